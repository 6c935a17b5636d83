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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/stravasync/internal/activitysync"
	"example.com/stravasync/internal/api"
	"example.com/stravasync/internal/app"
	"example.com/stravasync/internal/auth"
	"example.com/stravasync/internal/config"
	"example.com/stravasync/internal/logging"
	"example.com/stravasync/internal/outbox"
	httptransport "example.com/stravasync/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(logging.Config{Service: "stravasync-api", Version: cfg.Version, Env: cfg.Env, Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	policy, err := activitysync.ParsePolicy(cfg.Sync.Policy)
	if err != nil {
		logger.Error("invalid SYNC_POLICY", "error", err)
		os.Exit(1)
	}

	var dispatcher *outbox.Dispatcher
	if a.Pool != nil && len(cfg.KafkaBrokers) > 0 {
		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers, outbox.WithBatchTimeout(cfg.OutboxBatchTimeout))
		defer producer.Close()

		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		dispatcher = outbox.NewDispatcher(a.Pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize, outbox.WithLogger(logger))
		go dispatcher.Start(ctx)
	} else {
		logger.Info("outbox dispatcher disabled", "store_driver", cfg.StoreDriver, "kafka_brokers", len(cfg.KafkaBrokers))
	}

	handler := api.NewHandler(api.Deps{
		Connector:        a.OAuth,
		Syncer:           a.Sync,
		Stats:            a.Stats,
		Activities:       a.Store,
		Health:           a.Store,
		DefaultPolicy:    policy,
		CallbackRedirect: cfg.CallbackRedirect,
	})
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress), httptransport.Chain(mux,
		logging.HTTPMiddleware(logger),
		httptransport.CORS(cfg.AllowedOrigin),
		authMiddleware.Wrap,
	))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("stravasync api listening", "addr", cfg.HTTPAddress, "store_driver", cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}

	if dispatcher != nil {
		dispatcher.Wait()
	}
}
