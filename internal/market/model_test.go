package market

import (
	"errors"
	"math"
	"testing"
)

func TestValidateTicker(t *testing.T) {
	valid := []string{"GM", "GMD", "TOILEX", "BPT"}
	for _, s := range valid {
		if err := ValidateTicker(s); err != nil {
			t.Fatalf("expected ticker %q to be valid: %v", s, err)
		}
	}

	invalid := []string{"", "G", "gmd", "TOOLONGX", "AB1", "A B"}
	for _, s := range invalid {
		if err := ValidateTicker(s); err == nil {
			t.Fatalf("expected ticker %q to fail", s)
		}
	}
}

func TestParseRisk(t *testing.T) {
	for _, s := range []string{"low", "Moderate", " HIGH "} {
		if _, err := ParseRisk(s); err != nil {
			t.Fatalf("expected risk %q to parse: %v", s, err)
		}
	}
	if _, err := ParseRisk("extreme"); !errors.Is(err, ErrInvalidRisk) {
		t.Fatalf("expected ErrInvalidRisk, got %v", err)
	}
}

func TestCoinsToMicros(t *testing.T) {
	tests := []struct {
		coins float64
		want  int64
	}{
		{coins: 200.28, want: 200_280_000},
		{coins: 0.28, want: 280_000},
		{coins: 0.01, want: 10_000},
		{coins: 1000, want: 1_000_000_000},
	}
	for _, tc := range tests {
		if got := CoinsToMicros(tc.coins); got != tc.want {
			t.Fatalf("coins=%v got=%d want=%d", tc.coins, got, tc.want)
		}
	}
}

func TestNotionalMicros(t *testing.T) {
	got, err := notionalMicros(20*MicrosPerCoin, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := 200 * MicrosPerCoin; got != want {
		t.Fatalf("got %d want %d", got, want)
	}

	if _, err := notionalMicros(math.MaxInt64, 2); err == nil {
		t.Fatalf("expected overflow error")
	}
}

func TestAddMicros(t *testing.T) {
	got, err := addMicros(100*MicrosPerCoin, 50*MicrosPerCoin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := 150 * MicrosPerCoin; got != want {
		t.Fatalf("got %d want %d", got, want)
	}

	if _, err := addMicros(math.MaxInt64, 1); err == nil {
		t.Fatalf("expected overflow error")
	}
	if got, err := addMicros(math.MaxInt64-1, 1); err != nil || got != math.MaxInt64 {
		t.Fatalf("ceiling add: got %d err %v", got, err)
	}
}

func TestAverageCostMicros(t *testing.T) {
	// 10 shares at 20.00 plus 10 shares at 10.00 averages to 15.00.
	got, err := averageCostMicros(20*MicrosPerCoin, 10, 10*MicrosPerCoin, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := 15 * MicrosPerCoin; got != want {
		t.Fatalf("got %d want %d", got, want)
	}

	// First buy: the basis is just the fill price.
	got, err = averageCostMicros(0, 0, 7*MicrosPerCoin, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := 7 * MicrosPerCoin; got != want {
		t.Fatalf("got %d want %d", got, want)
	}
}

func TestDefaultCatalog(t *testing.T) {
	stocks := DefaultCatalog("t1")
	if len(stocks) != 4 {
		t.Fatalf("expected 4 default stocks, got %d", len(stocks))
	}
	byTicker := map[string]Stock{}
	for _, s := range stocks {
		if err := ValidateTicker(s.Ticker); err != nil {
			t.Fatalf("default ticker %q invalid: %v", s.Ticker, err)
		}
		if s.PriceMicros < MinPriceMicros {
			t.Fatalf("default price for %s below floor", s.Ticker)
		}
		if !s.Active {
			t.Fatalf("default stock %s not active", s.Ticker)
		}
		byTicker[s.Ticker] = s
	}
	if byTicker["GMD"].PriceMicros != CoinsToMicros(200.28) {
		t.Fatalf("GMD seed price wrong: %d", byTicker["GMD"].PriceMicros)
	}
	if byTicker["JFP"].Risk != RiskLow || byTicker["BPT"].Risk != RiskHigh {
		t.Fatalf("default risk tiers wrong")
	}
}
