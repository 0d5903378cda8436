package market

import (
	"math"
	"testing"
)

// seqSource replays a fixed sequence of draws, wrapping around.
type seqSource struct {
	vals []float64
	i    int
}

func (s *seqSource) Float64() float64 {
	v := s.vals[s.i%len(s.vals)]
	s.i++
	return v
}

func defaultParams(risk Risk) TickParams {
	return TickParamsFor(Settings{}, risk)
}

func TestNextPriceStaysInBand(t *testing.T) {
	p := defaultParams(RiskModerate)
	p.Bias = 0 // isolate the stochastic step

	start := 100 * MicrosPerCoin
	for _, draws := range [][]float64{{0.99, 0.0}, {0.99, 0.99}, {0.5, 0.2}, {0.0, 0.9}} {
		src := &seqSource{vals: draws}
		next := NextPrice(start, p, src)
		move := math.Abs(float64(next-start)) / float64(start)
		if move > p.Band+1e-9 {
			t.Fatalf("draws=%v move %.4f exceeds band %.4f", draws, move, p.Band)
		}
	}
}

func TestNextPriceNeverBelowFloor(t *testing.T) {
	p := defaultParams(RiskHigh)
	p.Bias = 0
	p.RecoveryUpChance = 0 // force every step down

	price := CoinsToMicros(0.05)
	down := &seqSource{vals: []float64{0.99, 0.99}}
	for i := 0; i < 200; i++ {
		price = NextPrice(price, p, down)
		if price < MinPriceMicros {
			t.Fatalf("tick %d: price %d below floor", i, price)
		}
	}
	if price != MinPriceMicros {
		t.Fatalf("expected price pinned to floor, got %d", price)
	}
}

func TestNextPriceRecoveryBias(t *testing.T) {
	p := defaultParams(RiskModerate)
	p.Bias = 0

	// Second draw of 0.6 is below the 0.75 recovery chance, so a penny
	// stock steps up; a healthy stock with the same draws steps down.
	src := &seqSource{vals: []float64{0.8, 0.6}}
	penny := NextPrice(CoinsToMicros(0.50), p, src)
	if penny <= CoinsToMicros(0.50) {
		t.Fatalf("expected penny stock to recover upward, got %d", penny)
	}

	src = &seqSource{vals: []float64{0.8, 0.6}}
	healthy := NextPrice(200*MicrosPerCoin, p, src)
	if healthy >= 200*MicrosPerCoin {
		t.Fatalf("expected healthy stock to step down, got %d", healthy)
	}
}

func TestNextPriceBiasPullsTowardTarget(t *testing.T) {
	p := defaultParams(RiskLow)
	// Zero magnitude isolates the drift term.
	src := &seqSource{vals: []float64{0.0, 0.9}}
	below := NextPrice(CoinsToMicros(50), p, src)
	if below <= CoinsToMicros(50) {
		t.Fatalf("expected upward drift below target, got %d", below)
	}

	src = &seqSource{vals: []float64{0.0, 0.9}}
	above := NextPrice(CoinsToMicros(200), p, src)
	if above >= CoinsToMicros(200) {
		t.Fatalf("expected downward drift above target, got %d", above)
	}
}

func TestCrashFactorRange(t *testing.T) {
	if got := CrashFactor(0.5, 0.5, &seqSource{vals: []float64{0.37}}); got != 0.5 {
		t.Fatalf("degenerate range: got %v want 0.5", got)
	}
	got := CrashFactor(0.3, 0.6, &seqSource{vals: []float64{0.0}})
	if got != 0.3 {
		t.Fatalf("lower bound: got %v", got)
	}
	got = CrashFactor(0.3, 0.6, &seqSource{vals: []float64{0.999999}})
	if got < 0.3 || got >= 0.6 {
		t.Fatalf("factor %v outside [0.3, 0.6)", got)
	}
}

func TestApplyCrash(t *testing.T) {
	if got := ApplyCrash(CoinsToMicros(10), 0.5); got != CoinsToMicros(5) {
		t.Fatalf("10.00 x0.5: got %d", got)
	}
	if got := ApplyCrash(CoinsToMicros(0.02), 0.5); got != CoinsToMicros(0.01) {
		t.Fatalf("0.02 x0.5: got %d", got)
	}
	// Below the floor the clamp wins.
	if got := ApplyCrash(CoinsToMicros(0.01), 0.3); got != MinPriceMicros {
		t.Fatalf("floor clamp: got %d", got)
	}
}
