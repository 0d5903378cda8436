package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type APIConfig struct {
	Addr        string
	StoreKind   string
	DatabaseURL string
	AdminToken  string
	RandSeed    int64
}

type WorkerConfig struct {
	StoreKind   string
	DatabaseURL string
	CheckEvery  time.Duration
	RandSeed    int64
	RunOnce     bool
}

type CLIConfig struct {
	APIBaseURL string
	AdminToken string
	Tenant     string
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("TOILEX_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Addr:        addr,
		StoreKind:   envStoreKindDefault(),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		AdminToken:  strings.TrimSpace(os.Getenv("TOILEX_ADMIN_TOKEN")),
		RandSeed:    envInt64Default("TOILEX_RAND_SEED", 0),
	}
	if cfg.StoreKind == "postgres" && cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required when TOILEX_STORE=postgres")
	}
	if cfg.AdminToken == "" {
		return cfg, fmt.Errorf("TOILEX_ADMIN_TOKEN is required")
	}
	return cfg, nil
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	cfg := WorkerConfig{
		StoreKind:   envStoreKindDefault(),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		CheckEvery:  envDurationDefault("TOILEX_CHECK_EVERY", time.Minute),
		RandSeed:    envInt64Default("TOILEX_RAND_SEED", 0),
		RunOnce:     envBoolDefault("TOILEX_WORKER_RUN_ONCE", false),
	}
	if cfg.StoreKind == "postgres" && cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required when TOILEX_STORE=postgres")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("TOILEXCTL_API_BASE_URL", "http://localhost:8080"), "/"),
		AdminToken: strings.TrimSpace(os.Getenv("TOILEXCTL_ADMIN_TOKEN")),
		Tenant:     envDefault("TOILEXCTL_TENANT", "default"),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envInt64Default(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envStoreKindDefault() string {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("TOILEX_STORE"))) {
	case "memory", "mem":
		return "memory"
	default:
		return "postgres"
	}
}
