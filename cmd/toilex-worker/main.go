package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"toilex/internal/config"
	"toilex/internal/db"
	"toilex/internal/market"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	store, closeStore, err := db.OpenStore(ctx, cfg.StoreKind, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("open store failed", "err", err)
		os.Exit(1)
	}
	defer closeStore()

	svc := market.NewService(store, logger, market.NewStepSource(cfg.RandSeed))

	if cfg.RunOnce {
		tenants, err := svc.Tenants(ctx)
		if err != nil {
			logger.Error("list tenants failed", "err", err)
			os.Exit(1)
		}
		for _, tenant := range tenants {
			if err := svc.TickTenant(ctx, tenant); err != nil {
				logger.Error("tick failed", "tenant", tenant, "err", err)
				os.Exit(1)
			}
		}
		logger.Info("worker run-once completed", "tenants", len(tenants))
		return
	}

	logger.Info("worker started", "check_every", cfg.CheckEvery.String(), "store", cfg.StoreKind)
	market.NewScheduler(svc, logger, cfg.CheckEvery).Run(ctx)
	logger.Info("worker shutdown")
}
