// Package db opens the backing store for the API server and the worker.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"toilex/internal/market"
	"toilex/internal/store/mem"
	"toilex/internal/store/postgres"
)

func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 10 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

// OpenStore builds the configured store backend. The returned close func is a
// no-op for the in-memory backend.
func OpenStore(ctx context.Context, kind, databaseURL string, logger *slog.Logger) (market.Store, func(), error) {
	switch kind {
	case "memory":
		return mem.New(), func() {}, nil
	case "postgres":
		pool, err := Connect(ctx, databaseURL)
		if err != nil {
			return nil, nil, err
		}
		st := postgres.New(pool, logger)
		if err := st.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return st, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store kind %q", kind)
	}
}
