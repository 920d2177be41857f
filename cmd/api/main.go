package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/mfi_wallet/internal/config"
	"github.com/congo-pay/mfi_wallet/internal/infra"
	"github.com/congo-pay/mfi_wallet/internal/logging"
	"github.com/congo-pay/mfi_wallet/internal/routes"
	"github.com/congo-pay/mfi_wallet/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, "service", cfg.AppName, "env", cfg.AppEnv)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	db, cache, err := connect(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("connect backing stores", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}
	if cache != nil {
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	}

	srv, err := server.New(routes.Deps{Cfg: cfg, DB: db, Cache: cache, Logger: logger})
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

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}

// connect opens postgres and redis. In development an unset URL leaves the
// store nil and the service runs on in-memory repositories.
func connect(ctx context.Context, cfg config.Config, logger *slog.Logger) (*pgxpool.Pool, *redis.Client, error) {
	var (
		db    *pgxpool.Pool
		cache *redis.Client
		err   error
	)
	if cfg.DatabaseURL != "" || !cfg.IsDev() {
		if db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL); err != nil {
			return nil, nil, err
		}
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory repositories")
	}
	if cfg.RedisURL != "" || !cfg.IsDev() {
		if cache, err = infra.NewRedisClient(ctx, cfg.RedisURL); err != nil {
			if db != nil {
				db.Close()
			}
			return nil, nil, err
		}
	} else {
		logger.Warn("REDIS_URL not set, idempotency and login throttling disabled")
	}
	return db, cache, nil
}
