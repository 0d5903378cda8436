// Package postgres backs the engine with pgx. Update transactions run at
// Serializable isolation and are retried with backoff on serialization
// failures, so per-entity mutations are linearizable without any in-process
// locking; View transactions run at RepeatableRead so portfolio valuation
// sees one consistent price snapshot.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"toilex/internal/market"
)

const (
	maxAttempts       = 8
	initialRetryDelay = 75 * time.Millisecond
	maxRetryDelay     = 1200 * time.Millisecond
)

type Store struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, log: logger}
}

func (s *Store) Update(ctx context.Context, tenant string, fn func(market.Tx) error) error {
	retryDelay := initialRetryDelay
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := s.runTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable}, tenant, true, fn)
		if err == nil {
			return nil
		}
		if !isSerializationError(err) {
			return err
		}
		if attempt == maxAttempts-1 {
			return market.ErrTxConflict
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < maxRetryDelay {
			retryDelay *= 2
		}
	}
	return market.ErrTxConflict
}

func (s *Store) View(ctx context.Context, tenant string, fn func(market.Tx) error) error {
	return s.runTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, tenant, false, fn)
}

func (s *Store) runTx(ctx context.Context, opts pgx.TxOptions, tenant string, writable bool, fn func(market.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{ctx: ctx, tx: tx, tenant: tenant, writable: writable}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) Tenants(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tenant_id FROM stocks
		UNION
		SELECT tenant_id FROM settings
		ORDER BY 1
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type pgTx struct {
	ctx      context.Context
	tx       pgx.Tx
	tenant   string
	writable bool
}

func (t *pgTx) Stock(ticker string) (market.Stock, error) {
	query := `
		SELECT tenant_id, ticker, name, price_micros, risk, active
		FROM stocks
		WHERE tenant_id = $1 AND ticker = $2
	`
	if t.writable {
		query += " FOR UPDATE"
	}
	var s market.Stock
	err := t.tx.QueryRow(t.ctx, query, t.tenant, ticker).
		Scan(&s.Tenant, &s.Ticker, &s.Name, &s.PriceMicros, &s.Risk, &s.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return market.Stock{}, market.ErrNotFound
	}
	return s, err
}

func (t *pgTx) Stocks(activeOnly bool) ([]market.Stock, error) {
	query := `
		SELECT tenant_id, ticker, name, price_micros, risk, active
		FROM stocks
		WHERE tenant_id = $1
	`
	if activeOnly {
		query += " AND active"
	}
	query += " ORDER BY ticker"
	rows, err := t.tx.Query(t.ctx, query, t.tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []market.Stock
	for rows.Next() {
		var s market.Stock
		if err := rows.Scan(&s.Tenant, &s.Ticker, &s.Name, &s.PriceMicros, &s.Risk, &s.Active); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (t *pgTx) InsertStock(s market.Stock) error {
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO stocks (tenant_id, ticker, name, price_micros, risk, active)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, t.tenant, s.Ticker, s.Name, s.PriceMicros, s.Risk, s.Active)
	if isUniqueViolation(err) {
		return market.ErrAlreadyExists
	}
	return err
}

func (t *pgTx) UpdateStock(s market.Stock) error {
	cmd, err := t.tx.Exec(t.ctx, `
		UPDATE stocks
		SET name = $3, price_micros = $4, risk = $5, active = $6
		WHERE tenant_id = $1 AND ticker = $2
	`, t.tenant, s.Ticker, s.Name, s.PriceMicros, s.Risk, s.Active)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return market.ErrNotFound
	}
	return nil
}

func (t *pgTx) DeleteStocks() error {
	_, err := t.tx.Exec(t.ctx, `DELETE FROM stocks WHERE tenant_id = $1`, t.tenant)
	return err
}

func (t *pgTx) AppendPricePoint(p market.PricePoint) error {
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO price_history (tenant_id, ticker, price_micros, at)
		VALUES ($1, $2, $3, $4)
	`, t.tenant, p.Ticker, p.PriceMicros, p.At)
	return err
}

func (t *pgTx) PriceHistory(ticker string, since time.Time) ([]market.PricePoint, error) {
	rows, err := t.tx.Query(t.ctx, `
		SELECT ticker, at, price_micros
		FROM price_history
		WHERE tenant_id = $1 AND ticker = $2 AND at >= $3
		ORDER BY at, id
	`, t.tenant, ticker, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []market.PricePoint
	for rows.Next() {
		var p market.PricePoint
		if err := rows.Scan(&p.Ticker, &p.At, &p.PriceMicros); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *pgTx) DeletePriceHistory() error {
	_, err := t.tx.Exec(t.ctx, `DELETE FROM price_history WHERE tenant_id = $1`, t.tenant)
	return err
}

func (t *pgTx) Account(user string) (market.Account, error) {
	query := `
		SELECT tenant_id, user_id, cash_micros, created_at
		FROM accounts
		WHERE tenant_id = $1 AND user_id = $2
	`
	if t.writable {
		query += " FOR UPDATE"
	}
	var a market.Account
	err := t.tx.QueryRow(t.ctx, query, t.tenant, user).
		Scan(&a.Tenant, &a.User, &a.CashMicros, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return market.Account{}, market.ErrNotFound
	}
	return a, err
}

func (t *pgTx) Accounts() ([]market.Account, error) {
	rows, err := t.tx.Query(t.ctx, `
		SELECT tenant_id, user_id, cash_micros, created_at
		FROM accounts
		WHERE tenant_id = $1
		ORDER BY user_id
	`, t.tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []market.Account
	for rows.Next() {
		var a market.Account
		if err := rows.Scan(&a.Tenant, &a.User, &a.CashMicros, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (t *pgTx) InsertAccount(a market.Account) error {
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO accounts (tenant_id, user_id, cash_micros, created_at)
		VALUES ($1, $2, $3, $4)
	`, t.tenant, a.User, a.CashMicros, a.CreatedAt)
	if isUniqueViolation(err) {
		return market.ErrAlreadyExists
	}
	return err
}

func (t *pgTx) UpdateAccountCash(user string, cashMicros int64) error {
	cmd, err := t.tx.Exec(t.ctx, `
		UPDATE accounts SET cash_micros = $3
		WHERE tenant_id = $1 AND user_id = $2
	`, t.tenant, user, cashMicros)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return market.ErrNotFound
	}
	return nil
}

func (t *pgTx) DeleteAccount(user string) error {
	cmd, err := t.tx.Exec(t.ctx, `
		DELETE FROM accounts
		WHERE tenant_id = $1 AND user_id = $2
	`, t.tenant, user)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return market.ErrNotFound
	}
	return nil
}

func (t *pgTx) Holding(user, ticker string) (market.Holding, error) {
	query := `
		SELECT tenant_id, user_id, ticker, quantity, avg_price_micros
		FROM holdings
		WHERE tenant_id = $1 AND user_id = $2 AND ticker = $3
	`
	if t.writable {
		query += " FOR UPDATE"
	}
	var h market.Holding
	err := t.tx.QueryRow(t.ctx, query, t.tenant, user, ticker).
		Scan(&h.Tenant, &h.User, &h.Ticker, &h.Quantity, &h.AvgPriceMicros)
	if errors.Is(err, pgx.ErrNoRows) {
		return market.Holding{}, market.ErrNotFound
	}
	return h, err
}

func (t *pgTx) Holdings(user string) ([]market.Holding, error) {
	return t.holdingsWhere(`user_id = $2 ORDER BY ticker`, user)
}

func (t *pgTx) Holders(ticker string) ([]market.Holding, error) {
	return t.holdingsWhere(`ticker = $2 ORDER BY user_id`, ticker)
}

func (t *pgTx) holdingsWhere(tail, arg string) ([]market.Holding, error) {
	rows, err := t.tx.Query(t.ctx, `
		SELECT tenant_id, user_id, ticker, quantity, avg_price_micros
		FROM holdings
		WHERE tenant_id = $1 AND `+tail, t.tenant, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []market.Holding
	for rows.Next() {
		var h market.Holding
		if err := rows.Scan(&h.Tenant, &h.User, &h.Ticker, &h.Quantity, &h.AvgPriceMicros); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (t *pgTx) UpsertHolding(h market.Holding) error {
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO holdings (tenant_id, user_id, ticker, quantity, avg_price_micros)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, user_id, ticker)
		DO UPDATE SET quantity = $4, avg_price_micros = $5
	`, t.tenant, h.User, h.Ticker, h.Quantity, h.AvgPriceMicros)
	return err
}

func (t *pgTx) DeleteHolding(user, ticker string) error {
	_, err := t.tx.Exec(t.ctx, `
		DELETE FROM holdings
		WHERE tenant_id = $1 AND user_id = $2 AND ticker = $3
	`, t.tenant, user, ticker)
	return err
}

func (t *pgTx) DeleteHoldings() error {
	_, err := t.tx.Exec(t.ctx, `DELETE FROM holdings WHERE tenant_id = $1`, t.tenant)
	return err
}

func (t *pgTx) InsertTrade(tr market.Trade) error {
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO trades (id, group_id, tenant_id, user_id, ticker, quantity, side, price_micros, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, tr.ID, tr.Group, t.tenant, tr.User, tr.Ticker, tr.Quantity, tr.Side, tr.PriceMicros, tr.At)
	return err
}

func (t *pgTx) DeleteTrades(user string) error {
	_, err := t.tx.Exec(t.ctx, `
		DELETE FROM trades
		WHERE tenant_id = $1 AND user_id = $2
	`, t.tenant, user)
	return err
}

func (t *pgTx) Setting(key string) (string, bool, error) {
	var v string
	err := t.tx.QueryRow(t.ctx, `
		SELECT value FROM settings
		WHERE tenant_id = $1 AND key = $2
	`, t.tenant, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (t *pgTx) PutSetting(key, value string) error {
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO settings (tenant_id, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, key) DO UPDATE SET value = $3
	`, t.tenant, key, value)
	return err
}

func (t *pgTx) Settings() (map[string]string, error) {
	rows, err := t.tx.Query(t.ctx, `
		SELECT key, value FROM settings WHERE tenant_id = $1
	`, t.tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (t *pgTx) CrashCount(year int) (int, error) {
	var n int
	err := t.tx.QueryRow(t.ctx, `
		SELECT COUNT(1) FROM market_events
		WHERE tenant_id = $1 AND event_type = 'crash' AND year = $2
	`, t.tenant, year).Scan(&n)
	return n, err
}

func (t *pgTx) InsertMarketEvent(e market.MarketEvent) error {
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO market_events (tenant_id, event_type, year, at)
		VALUES ($1, $2, $3, $4)
	`, t.tenant, e.Type, e.Year, e.At)
	return err
}

func (t *pgTx) ClaimIdempotency(user, key, action string) error {
	cmd, err := t.tx.Exec(t.ctx, `
		INSERT INTO idempotency_keys (tenant_id, user_id, key, action, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (tenant_id, user_id, key) DO NOTHING
	`, t.tenant, user, key, action)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return market.ErrDuplicateIdempotency
	}
	return nil
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
