package market

import (
	"context"
	"time"
)

// Store is the persistence boundary of the engine. Implementations must make
// Update atomic with respect to concurrent Updates on the same tenant's
// entities: either every mutation made by fn is visible afterwards or none
// is. View must present a single consistent snapshot for the duration of fn.
//
// Missing rows are reported as ErrNotFound; a transaction that cannot commit
// after the implementation's retry discipline is reported as ErrTxConflict.
type Store interface {
	View(ctx context.Context, tenant string, fn func(Tx) error) error
	Update(ctx context.Context, tenant string, fn func(Tx) error) error
	Tenants(ctx context.Context) ([]string, error)
}

// Tx exposes the row operations available inside one transaction. Every
// operation is scoped to the tenant the transaction was opened for.
type Tx interface {
	Stock(ticker string) (Stock, error)
	Stocks(activeOnly bool) ([]Stock, error)
	InsertStock(s Stock) error
	UpdateStock(s Stock) error
	DeleteStocks() error

	AppendPricePoint(p PricePoint) error
	PriceHistory(ticker string, since time.Time) ([]PricePoint, error)
	DeletePriceHistory() error

	Account(user string) (Account, error)
	Accounts() ([]Account, error)
	InsertAccount(a Account) error
	UpdateAccountCash(user string, cashMicros int64) error
	DeleteAccount(user string) error

	Holding(user, ticker string) (Holding, error)
	Holdings(user string) ([]Holding, error)
	Holders(ticker string) ([]Holding, error)
	UpsertHolding(h Holding) error
	DeleteHolding(user, ticker string) error
	DeleteHoldings() error

	InsertTrade(t Trade) error
	DeleteTrades(user string) error

	Setting(key string) (string, bool, error)
	PutSetting(key, value string) error
	Settings() (map[string]string, error)

	CrashCount(year int) (int, error)
	InsertMarketEvent(e MarketEvent) error

	ClaimIdempotency(user, key, action string) error
}
