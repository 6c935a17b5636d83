package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"example.com/stravasync/internal/cache"
	"example.com/stravasync/internal/config"
	"example.com/stravasync/internal/consumer"
	"example.com/stravasync/internal/logging"
)

const statsKeyPrefix = "stravasync:stats:"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(logging.Config{Service: "stravasync-consumer", Version: cfg.Version, Env: cfg.Env, Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	handler := consumer.MultiHandler{
		consumer.NewPersistenceHandler(pool),
		consumer.NewInvalidationHandler(statsInvalidator(ctx, cfg, logger)),
	}

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("consumer metrics listening", "addr", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	var wg sync.WaitGroup
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	for _, topic := range cfg.ConsumerTopics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:         cfg.KafkaBrokers,
			GroupID:         cfg.ConsumerGroupID,
			Topic:           topic,
			MinBytes:        1e3,
			MaxBytes:        10e6,
			CommitInterval:  time.Second,
			RetentionTime:   24 * time.Hour,
			ReadLagInterval: -1,
		})

		topicLogger := logger.With("topic", topic, "group", cfg.ConsumerGroupID)
		proc := consumer.NewProcessor(reader, handler, consumer.WithLogger(topicLogger))

		wg.Add(1)
		go func(r *kafka.Reader) {
			defer wg.Done()
			defer r.Close()

			topicLogger.Info("consumer started")
			if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				topicLogger.Error("consumer stopped with error", "error", err)
			}
		}(reader)
	}

	<-stop
	logger.Info("consumer shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown error", "error", err)
	}

	wg.Wait()
}

// statsInvalidator returns a Redis-backed invalidator, or a no-op when Redis is
// not configured or unreachable.
func statsInvalidator(ctx context.Context, cfg config.Config, logger *slog.Logger) cache.Invalidator {
	if cfg.RedisAddr == "" {
		return cache.NoopInvalidator{}
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable; stats cache invalidation disabled", "addr", cfg.RedisAddr, "error", err)
		_ = rdb.Close()
		return cache.NoopInvalidator{}
	}
	return cache.NewRedis(rdb, statsKeyPrefix, cfg.StatsCacheTTL)
}
