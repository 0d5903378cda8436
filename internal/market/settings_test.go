package market

import (
	"errors"
	"testing"
	"time"
)

func TestSettingsDefaults(t *testing.T) {
	set := Settings{}
	if got := set.UpdateEvery(); got != time.Hour {
		t.Fatalf("update rate default: got %v", got)
	}
	if got := set.StartingMoneyMicros(); got != 1000*MicrosPerCoin {
		t.Fatalf("starting money default: got %d", got)
	}
	if got := set.Band(RiskLow); got != 0.02 {
		t.Fatalf("band low default: got %v", got)
	}
	if got := set.Band(RiskModerate); got != 0.05 {
		t.Fatalf("band moderate default: got %v", got)
	}
	if got := set.Band(RiskHigh); got != 0.15 {
		t.Fatalf("band high default: got %v", got)
	}
	if got := set.RecoveryPriceMicros(); got != MicrosPerCoin {
		t.Fatalf("recovery price default: got %d", got)
	}
	if got := set.RecoveryUpChance(); got != 0.75 {
		t.Fatalf("recovery up chance default: got %v", got)
	}
	lo, hi := set.CrashRange()
	if lo != 0.30 || hi != 0.60 {
		t.Fatalf("crash range default: got [%v, %v]", lo, hi)
	}
}

func TestSettingsOverrides(t *testing.T) {
	set := Settings{
		SettingUpdateRate:    "5m",
		SettingStartingMoney: "250",
		SettingBandHigh:      "0.30",
	}
	if got := set.UpdateEvery(); got != 5*time.Minute {
		t.Fatalf("update rate override: got %v", got)
	}
	if got := set.StartingMoneyMicros(); got != 250*MicrosPerCoin {
		t.Fatalf("starting money override: got %d", got)
	}
	if got := set.Band(RiskHigh); got != 0.30 {
		t.Fatalf("band high override: got %v", got)
	}
	// Unset keys still fall back to defaults.
	if got := set.Band(RiskLow); got != 0.02 {
		t.Fatalf("band low fallback: got %v", got)
	}
}

func TestSettingsGarbageFallsBack(t *testing.T) {
	set := Settings{
		SettingUpdateRate:   "soon",
		SettingTargetPrice:  "not-a-number",
		SettingBandModerate: "",
	}
	if got := set.UpdateEvery(); got != time.Hour {
		t.Fatalf("bad duration should fall back: got %v", got)
	}
	if got := set.TargetPriceMicros(); got != 100*MicrosPerCoin {
		t.Fatalf("bad target should fall back: got %d", got)
	}
	if got := set.Band(RiskModerate); got != 0.05 {
		t.Fatalf("empty band should fall back: got %v", got)
	}
}

func TestValidateSetting(t *testing.T) {
	good := map[string]string{
		SettingUpdateRate:       "30s",
		SettingStartingMoney:    "500",
		SettingMarketBias:       "-0.001",
		SettingTargetPrice:      "80",
		SettingBandLow:          "0.01",
		SettingRecoveryUpChance: "0",
		SettingCrashMinFactor:   "1",
	}
	for k, v := range good {
		if err := ValidateSetting(k, v); err != nil {
			t.Fatalf("expected %s=%s to validate: %v", k, v, err)
		}
	}

	bad := map[string]string{
		SettingUpdateRate:       "500ms",
		SettingStartingMoney:    "-5",
		SettingTargetPrice:      "0",
		SettingBandHigh:         "1.5",
		SettingRecoveryUpChance: "2",
		SettingCrashMaxFactor:   "0",
		SettingMarketBias:       "abc",
	}
	for k, v := range bad {
		if err := ValidateSetting(k, v); !errors.Is(err, ErrInvalidSetting) {
			t.Fatalf("expected %s=%s to fail with ErrInvalidSetting, got %v", k, v, err)
		}
	}

	if err := ValidateSetting("volume_knob", "11"); !errors.Is(err, ErrUnknownSetting) {
		t.Fatalf("expected ErrUnknownSetting, got %v", err)
	}
}

func TestCrashRangeSwapsInvertedBounds(t *testing.T) {
	set := Settings{
		SettingCrashMinFactor: "0.9",
		SettingCrashMaxFactor: "0.4",
	}
	lo, hi := set.CrashRange()
	if lo != 0.4 || hi != 0.9 {
		t.Fatalf("got [%v, %v], want [0.4, 0.9]", lo, hi)
	}
}
