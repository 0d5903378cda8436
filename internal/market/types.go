package market

import "time"

type Stock struct {
	Tenant      string
	Ticker      string
	Name        string
	PriceMicros int64
	Risk        Risk
	Active      bool
}

type Account struct {
	Tenant     string    `json:"-"`
	User       string    `json:"user"`
	CashMicros int64     `json:"cash_micros"`
	CreatedAt  time.Time `json:"created_at"`
}

// Holding is one player's position in one stock. A quantity of zero is never
// stored; the row is deleted instead.
type Holding struct {
	Tenant         string
	User           string
	Ticker         string
	Quantity       int64
	AvgPriceMicros int64
}

type PricePoint struct {
	Ticker      string    `json:"ticker"`
	At          time.Time `json:"at"`
	PriceMicros int64     `json:"price_micros"`
}

type TradeSide string

const (
	SideBuy        TradeSide = "buy"
	SideSell       TradeSide = "sell"
	SideGiftIn     TradeSide = "gift_in"
	SideGiftOut    TradeSide = "gift_out"
	SideSettlement TradeSide = "settlement"
)

// Trade is an immutable audit record. Cash-only movements (cash gifts) carry
// an empty ticker and store the amount in PriceMicros.
type Trade struct {
	ID          string
	Group       string
	Tenant      string
	User        string
	Ticker      string
	Quantity    int64
	Side        TradeSide
	PriceMicros int64
	At          time.Time
}

type MarketEvent struct {
	Tenant string
	Type   string
	Year   int
	At     time.Time
}

type StockView struct {
	Ticker      string `json:"ticker"`
	Name        string `json:"name"`
	PriceMicros int64  `json:"price_micros"`
	Risk        Risk   `json:"risk"`
}

type HoldingView struct {
	Ticker           string `json:"ticker"`
	Name             string `json:"name"`
	Quantity         int64  `json:"quantity"`
	PriceMicros      int64  `json:"price_micros"`
	ValueMicros      int64  `json:"value_micros"`
	AvgPriceMicros   int64  `json:"avg_price_micros"`
	UnrealizedMicros int64  `json:"unrealized_micros"`
}

type Portfolio struct {
	User        string        `json:"user"`
	CashMicros  int64         `json:"cash_micros"`
	Holdings    []HoldingView `json:"holdings"`
	TotalMicros int64         `json:"total_micros"`
}

type TradeResult struct {
	TradeID        string `json:"trade_id"`
	Ticker         string `json:"ticker"`
	Quantity       int64  `json:"quantity"`
	PriceMicros    int64  `json:"price_micros"`
	NotionalMicros int64  `json:"notional_micros"`
	CashMicros     int64  `json:"cash_micros"`
}

// GiftPayload carries either a cash amount or a (ticker, quantity) pair,
// never both.
type GiftPayload struct {
	CashMicros int64
	Ticker     string
	Quantity   int64
}

type GiftResult struct {
	Group            string `json:"group"`
	SenderCashMicros int64  `json:"sender_cash_micros"`
}

type AddStockInput struct {
	Ticker      string
	Name        string
	PriceMicros int64
	Risk        Risk
}

type SettlementResult struct {
	Ticker              string `json:"ticker"`
	PriceMicros         int64  `json:"price_micros"`
	HoldersSettled      int    `json:"holders_settled"`
	SharesSettled       int64  `json:"shares_settled"`
	TotalCreditedMicros int64  `json:"total_credited_micros"`
}

type CrashResult struct {
	Factor float64     `json:"factor"`
	Stocks []StockView `json:"stocks"`
}

type LeaderboardRow struct {
	Rank           int64  `json:"rank"`
	User           string `json:"user"`
	NetWorthMicros int64  `json:"net_worth_micros"`
}
