package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/stravasync/internal/config"
	"example.com/stravasync/internal/logging"
	"example.com/stravasync/internal/outbox"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(logging.Config{Service: "stravasync-dlqmanager", Version: cfg.Version, Env: cfg.Env, Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay, logger)

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("dlq manager metrics listening", "addr", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	ticker := time.NewTicker(cfg.DLQPollInterval)
	defer ticker.Stop()

	logger.Info("dlq manager started", "interval", cfg.DLQPollInterval, "max_retries", cfg.DLQMaxRetries, "batch_size", cfg.DLQBatchSize)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			processed, err := manager.RunOnce(ctx, cfg.DLQBatchSize)
			if err != nil {
				logger.Error("dlq manager error", "error", err)
			} else if processed > 0 {
				logger.Info("dlq manager processed entries", "count", processed)
			}
		case <-stop:
			logger.Info("dlq manager received shutdown signal")
			cancel()
			break loop
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown error", "error", err)
	}
}
