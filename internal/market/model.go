package market

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strings"
)

const (
	// MicrosPerCoin is the fixed-point scale for all money values.
	MicrosPerCoin = int64(1_000_000)

	// MinPriceMicros is the hard floor every stored stock price is clamped
	// to. Nothing in the engine may write a price below it.
	MinPriceMicros = int64(10_000) // 0.01 coin
)

var (
	ErrNotFound             = errors.New("not found")
	ErrStockNotFound        = errors.New("stock not found")
	ErrAlreadyExists        = errors.New("already exists")
	ErrInvalidQuantity      = errors.New("quantity must be a positive whole number")
	ErrInvalidPrice         = errors.New("price must be positive")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientShares   = errors.New("insufficient shares")
	ErrUnknownSetting       = errors.New("unknown setting")
	ErrInvalidSetting       = errors.New("invalid setting value")
	ErrInvalidTicker        = errors.New("ticker must be 2-6 uppercase letters")
	ErrInvalidRisk          = errors.New("risk must be low, moderate or high")
	ErrSelfGift             = errors.New("cannot gift to yourself")
	ErrCrashCooldown        = errors.New("market crash already triggered this year")
	ErrDuplicateIdempotency = errors.New("duplicate idempotency key")
	ErrTxConflict           = errors.New("storage conflict, try again")
)

// Risk classifies how wide a stock's per-tick price swings may be.
type Risk string

const (
	RiskLow      Risk = "low"
	RiskModerate Risk = "moderate"
	RiskHigh     Risk = "high"
)

func ParseRisk(s string) (Risk, error) {
	switch Risk(strings.ToLower(strings.TrimSpace(s))) {
	case RiskLow:
		return RiskLow, nil
	case RiskModerate:
		return RiskModerate, nil
	case RiskHigh:
		return RiskHigh, nil
	}
	return "", ErrInvalidRisk
}

var tickerRE = regexp.MustCompile(`^[A-Z]{2,6}$`)

func ValidateTicker(ticker string) error {
	if !tickerRE.MatchString(strings.TrimSpace(ticker)) {
		return ErrInvalidTicker
	}
	return nil
}

func CoinsToMicros(v float64) int64 {
	return int64(math.Round(v * float64(MicrosPerCoin)))
}

func MicrosToCoins(v int64) float64 {
	return float64(v) / float64(MicrosPerCoin)
}

// notionalMicros computes quantity x price with an overflow guard.
func notionalMicros(priceMicros, qty int64) (int64, error) {
	v := new(big.Int).Mul(big.NewInt(priceMicros), big.NewInt(qty))
	if !v.IsInt64() {
		return 0, fmt.Errorf("notional overflow")
	}
	return v.Int64(), nil
}

// addMicros credits b onto a with the same overflow guard debits get from
// notionalMicros. Both operands are non-negative in every call site.
func addMicros(a, b int64) (int64, error) {
	if b > math.MaxInt64-a {
		return 0, fmt.Errorf("cash overflow")
	}
	return a + b, nil
}

// averageCostMicros folds a fresh buy into an existing weighted cost basis.
func averageCostMicros(oldAvg, oldQty, priceMicros, qty int64) (int64, error) {
	newQty := oldQty + qty
	if newQty <= 0 {
		return 0, fmt.Errorf("invalid resulting quantity")
	}
	total := new(big.Int).Mul(big.NewInt(oldAvg), big.NewInt(oldQty))
	total.Add(total, new(big.Int).Mul(big.NewInt(priceMicros), big.NewInt(qty)))
	total.Div(total, big.NewInt(newQty))
	if !total.IsInt64() {
		return 0, fmt.Errorf("cost basis overflow")
	}
	return total.Int64(), nil
}

// DefaultCatalog is the stock set seeded into a tenant's market on first
// registration and on reset.
func DefaultCatalog(tenant string) []Stock {
	return []Stock{
		{Tenant: tenant, Ticker: "GMD", Name: "GOMADINC", PriceMicros: CoinsToMicros(200.28), Risk: RiskModerate, Active: true},
		{Tenant: tenant, Ticker: "BTH", Name: "Gamer Goddess Bathwater", PriceMicros: CoinsToMicros(150.00), Risk: RiskModerate, Active: true},
		{Tenant: tenant, Ticker: "JFP", Name: "JUST POSTS, Fences & Posts", PriceMicros: CoinsToMicros(0.28), Risk: RiskLow, Active: true},
		{Tenant: tenant, Ticker: "BPT", Name: "Blood Potions", PriceMicros: CoinsToMicros(700.00), Risk: RiskHigh, Active: true},
	}
}
