package postgres

import "context"

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS stocks (
		tenant_id TEXT NOT NULL,
		ticker TEXT NOT NULL,
		name TEXT NOT NULL,
		price_micros BIGINT NOT NULL CHECK (price_micros > 0),
		risk TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		PRIMARY KEY (tenant_id, ticker)
	)`,
	`CREATE TABLE IF NOT EXISTS price_history (
		id BIGSERIAL PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		ticker TEXT NOT NULL,
		price_micros BIGINT NOT NULL,
		at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS price_history_lookup
		ON price_history (tenant_id, ticker, at)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		cash_micros BIGINT NOT NULL CHECK (cash_micros >= 0),
		created_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (tenant_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS holdings (
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		ticker TEXT NOT NULL,
		quantity BIGINT NOT NULL CHECK (quantity > 0),
		avg_price_micros BIGINT NOT NULL,
		PRIMARY KEY (tenant_id, user_id, ticker)
	)`,
	`CREATE TABLE IF NOT EXISTS trades (
		id UUID PRIMARY KEY,
		group_id UUID,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		ticker TEXT NOT NULL,
		quantity BIGINT NOT NULL,
		side TEXT NOT NULL,
		price_micros BIGINT NOT NULL,
		at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS trades_user_lookup
		ON trades (tenant_id, user_id, at)`,
	`CREATE TABLE IF NOT EXISTS settings (
		tenant_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (tenant_id, key)
	)`,
	`CREATE TABLE IF NOT EXISTS market_events (
		id BIGSERIAL PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		year INT NOT NULL,
		at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS idempotency_keys (
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		key TEXT NOT NULL,
		action TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (tenant_id, user_id, key)
	)`,
}

// EnsureSchema creates all tables and indexes if they do not exist yet.
// Safe to run on every startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
