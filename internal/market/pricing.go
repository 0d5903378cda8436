package market

import "math"

// TickParams are the tunables one price step depends on, resolved from a
// tenant's settings for a given risk tier.
type TickParams struct {
	Band             float64 // max absolute step magnitude, e.g. 0.05 = +-5%
	Bias             float64 // drift strength toward the target price
	TargetMicros     int64
	RecoveryMicros   int64   // below this price the recovery bias kicks in
	RecoveryUpChance float64 // probability of an upward step near the floor
}

func TickParamsFor(set Settings, risk Risk) TickParams {
	return TickParams{
		Band:             set.Band(risk),
		Bias:             set.MarketBias(),
		TargetMicros:     set.TargetPriceMicros(),
		RecoveryMicros:   set.RecoveryPriceMicros(),
		RecoveryUpChance: set.RecoveryUpChance(),
	}
}

// NextPrice draws one stochastic price step. It consumes exactly two values
// from src: the step magnitude first, then the sign. Penny stocks (at or
// below the recovery threshold) get an elevated chance of an upward step so
// the market cannot deadlock at the floor.
func NextPrice(priceMicros int64, p TickParams, src StepSource) int64 {
	mag := src.Float64() * p.Band

	upChance := 0.5
	if priceMicros <= p.RecoveryMicros {
		upChance = p.RecoveryUpChance
	}
	step := mag
	if src.Float64() >= upChance {
		step = -mag
	}

	if p.TargetMicros > 0 {
		step += p.Bias * float64(p.TargetMicros-priceMicros) / float64(p.TargetMicros)
	}

	next := int64(math.Round(float64(priceMicros) * (1 + step)))
	return ClampPrice(next)
}

func ClampPrice(priceMicros int64) int64 {
	if priceMicros < MinPriceMicros {
		return MinPriceMicros
	}
	return priceMicros
}

// CrashFactor draws the fraction of value stocks retain in a crash, uniform
// in [min, max]. One draw covers the whole crash pass.
func CrashFactor(min, max float64, src StepSource) float64 {
	return min + (max-min)*src.Float64()
}

func ApplyCrash(priceMicros int64, factor float64) int64 {
	return ClampPrice(int64(math.Round(float64(priceMicros) * factor)))
}
