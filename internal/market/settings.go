package market

import (
	"fmt"
	"strconv"
	"time"
)

// Tenant-scoped setting keys. Everything the scheduler and the ledger tune
// per tenant lives here; unknown keys are rejected on write.
const (
	SettingUpdateRate       = "market_update_rate"
	SettingStartingMoney    = "starting_money"
	SettingMarketBias       = "market_bias"
	SettingTargetPrice      = "target_price"
	SettingBandLow          = "band_low"
	SettingBandModerate     = "band_moderate"
	SettingBandHigh         = "band_high"
	SettingRecoveryPrice    = "recovery_price"
	SettingRecoveryUpChance = "recovery_up_chance"
	SettingCrashMinFactor   = "crash_min_factor"
	SettingCrashMaxFactor   = "crash_max_factor"
)

var settingDefaults = map[string]string{
	SettingUpdateRate:       "1h",
	SettingStartingMoney:    "1000",
	SettingMarketBias:       "0.0008",
	SettingTargetPrice:      "100",
	SettingBandLow:          "0.02",
	SettingBandModerate:     "0.05",
	SettingBandHigh:         "0.15",
	SettingRecoveryPrice:    "1.00",
	SettingRecoveryUpChance: "0.75",
	SettingCrashMinFactor:   "0.30",
	SettingCrashMaxFactor:   "0.60",
}

// Settings is a tenant's effective configuration: compiled-in defaults
// overlaid with whatever the tenant has stored.
type Settings map[string]string

func loadSettings(tx Tx) (Settings, error) {
	stored, err := tx.Settings()
	if err != nil {
		return nil, err
	}
	eff := make(Settings, len(settingDefaults))
	for k, v := range settingDefaults {
		eff[k] = v
	}
	for k, v := range stored {
		if _, ok := settingDefaults[k]; ok {
			eff[k] = v
		}
	}
	return eff, nil
}

// ValidateSetting rejects unknown keys and values that do not parse for the
// key's type. It never mutates anything.
func ValidateSetting(key, value string) error {
	if _, ok := settingDefaults[key]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	switch key {
	case SettingUpdateRate:
		d, err := time.ParseDuration(value)
		if err != nil || d < time.Second {
			return fmt.Errorf("%w: %s must be a duration of at least 1s", ErrInvalidSetting, key)
		}
	case SettingStartingMoney, SettingTargetPrice, SettingRecoveryPrice:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f <= 0 {
			return fmt.Errorf("%w: %s must be a positive amount", ErrInvalidSetting, key)
		}
	case SettingBandLow, SettingBandModerate, SettingBandHigh:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f <= 0 || f > 1 {
			return fmt.Errorf("%w: %s must be in (0, 1]", ErrInvalidSetting, key)
		}
	case SettingRecoveryUpChance:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 || f > 1 {
			return fmt.Errorf("%w: %s must be in [0, 1]", ErrInvalidSetting, key)
		}
	case SettingCrashMinFactor, SettingCrashMaxFactor:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f <= 0 || f > 1 {
			return fmt.Errorf("%w: %s must be in (0, 1]", ErrInvalidSetting, key)
		}
	case SettingMarketBias:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return fmt.Errorf("%w: %s must be numeric", ErrInvalidSetting, key)
		}
	}
	return nil
}

func (s Settings) UpdateEvery() time.Duration {
	d, err := time.ParseDuration(s[SettingUpdateRate])
	if err != nil || d < time.Second {
		d, _ = time.ParseDuration(settingDefaults[SettingUpdateRate])
	}
	return d
}

func (s Settings) StartingMoneyMicros() int64 {
	return CoinsToMicros(s.float(SettingStartingMoney))
}

func (s Settings) MarketBias() float64 {
	return s.float(SettingMarketBias)
}

func (s Settings) TargetPriceMicros() int64 {
	return CoinsToMicros(s.float(SettingTargetPrice))
}

func (s Settings) Band(r Risk) float64 {
	switch r {
	case RiskLow:
		return s.float(SettingBandLow)
	case RiskHigh:
		return s.float(SettingBandHigh)
	default:
		return s.float(SettingBandModerate)
	}
}

func (s Settings) RecoveryPriceMicros() int64 {
	return CoinsToMicros(s.float(SettingRecoveryPrice))
}

func (s Settings) RecoveryUpChance() float64 {
	return s.float(SettingRecoveryUpChance)
}

// CrashRange returns the [min, max] fraction of value a stock retains after a
// crash.
func (s Settings) CrashRange() (float64, float64) {
	lo, hi := s.float(SettingCrashMinFactor), s.float(SettingCrashMaxFactor)
	if hi < lo {
		lo, hi = hi, lo
	}
	return lo, hi
}

func (s Settings) float(key string) float64 {
	f, err := strconv.ParseFloat(s[key], 64)
	if err != nil {
		f, _ = strconv.ParseFloat(settingDefaults[key], 64)
	}
	return f
}
