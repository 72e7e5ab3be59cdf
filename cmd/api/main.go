package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	migrate "github.com/rubenv/sql-migrate"

	"github.com/mockbank/mockbank/internal/config"
	"github.com/mockbank/mockbank/internal/infra"
	"github.com/mockbank/mockbank/internal/logging"
	"github.com/mockbank/mockbank/internal/routes"
	"github.com/mockbank/mockbank/internal/seed"
	"github.com/mockbank/mockbank/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.AppName, cfg.LogLevel, cfg.IsDevelopment())

	ctx := context.Background()

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		n, err := infra.Migrate(cfg.DatabaseURL, migrate.Up, 0)
		if err != nil {
			logger.Error("apply migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("migrations applied", "count", n)

		db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory stores")
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	} else {
		logger.Warn("REDIS_URL not set, sessions and locks are process-local")
	}

	initial, err := initialSeed(cfg, db == nil, logger)
	if err != nil {
		logger.Error("load seed", "error", err)
		os.Exit(1)
	}

	srv, err := server.New(routes.Deps{Cfg: cfg, DB: db, Cache: cache, Logger: logger, Seed: initial})
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}

// initialSeed picks the accounts created at startup: SEED_FILE when set,
// otherwise the embedded demo accounts for in-memory development runs.
func initialSeed(cfg config.Config, memory bool, logger *slog.Logger) (*seed.Seed, error) {
	if cfg.SeedFile != "" {
		s, err := seed.LoadFile(cfg.SeedFile)
		if err != nil {
			return nil, err
		}
		logger.Info("seeding from file", "path", cfg.SeedFile, "accounts", len(s.Accounts))
		return &s, nil
	}
	if memory && cfg.IsDevelopment() {
		s := seed.Default()
		return &s, nil
	}
	return nil, nil
}
