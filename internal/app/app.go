// Package app assembles the stravasync services from configuration. The API,
// the CLI and the workers share it so every entry point wires the same graph.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	"example.com/stravasync/internal/activitysync"
	"example.com/stravasync/internal/cache"
	"example.com/stravasync/internal/config"
	"example.com/stravasync/internal/domain"
	"example.com/stravasync/internal/lock"
	"example.com/stravasync/internal/oauth"
	"example.com/stravasync/internal/persistence/memory"
	"example.com/stravasync/internal/persistence/postgres"
	"example.com/stravasync/internal/persistence/sqlite"
	"example.com/stravasync/internal/secrets"
	"example.com/stravasync/internal/stats"
	"example.com/stravasync/internal/strava"
)

const (
	statsKeyPrefix = "stravasync:stats:"
	lockKeyPrefix  = "stravasync:lock:"
)

// App holds the wired services.
type App struct {
	Config config.Config
	Logger *slog.Logger

	Store domain.Store
	// Pool is set for the postgres driver only.
	Pool *pgxpool.Pool
	// Redis is nil when no address is configured or the server is unreachable.
	Redis redis.UniversalClient

	OAuth  *oauth.Engine
	Strava *strava.Client
	Sync   *activitysync.Engine
	Stats  *stats.Service
	Cache  cache.Invalidator

	closers []func() error
}

// Option tweaks construction, mostly for tests.
type Option func(*options)

type options struct {
	secretStore secrets.Store
	httpClient  *http.Client
}

// WithSecretStore overrides the secrets backend chosen from config.
func WithSecretStore(store secrets.Store) Option {
	return func(o *options) { o.secretStore = store }
}

// WithHTTPClient sets the client used for Strava API and token calls.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// New builds the service graph. A failure to resolve the client credentials
// is returned as *secrets.SecretInitError.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	a.openRedis(ctx)

	secretStore := o.secretStore
	if secretStore == nil {
		var err error
		if secretStore, err = OpenSecretStore(ctx, cfg); err != nil {
			return nil, &secrets.SecretInitError{Name: cfg.SecretsBackend, Err: err}
		}
	}
	creds, err := secrets.LoadClientCredentials(ctx, secretStore, cfg.ClientIDSecretName, cfg.ClientSecretSecretName)
	if err != nil {
		return nil, err
	}

	oauthOpts := []oauth.Option{oauth.WithLogger(logger)}
	if o.httpClient != nil {
		oauthOpts = append(oauthOpts, oauth.WithHTTPClient(o.httpClient))
	}
	a.OAuth, err = oauth.NewEngine(creds, oauth.Config{
		AuthURL:        cfg.Strava.AuthURL,
		TokenURL:       cfg.Strava.TokenURL,
		RedirectURL:    cfg.Strava.RedirectURL,
		Scope:          cfg.Strava.Scope,
		ApprovalPrompt: cfg.Strava.ApprovalPrompt,
		RefreshSkew:    cfg.Strava.RefreshSkew,
	}, a.Store, oauthOpts...)
	if err != nil {
		return nil, err
	}

	a.Strava = strava.NewClient(strava.Config{
		BaseURL:    cfg.Strava.APIBaseURL,
		PageSize:   cfg.Strava.PageSize,
		MaxPages:   cfg.Strava.MaxPages,
		Timeout:    cfg.Strava.RequestTimeout,
		RateLimit:  cfg.Strava.RateLimit,
		RateWindow: cfg.Strava.RateWindow,
		HTTPClient: o.httpClient,
	})

	var locker lock.Locker = lock.NewLocal()
	a.Cache = cache.NoopInvalidator{}
	statsOpts := []stats.Option{stats.WithLogger(logger)}
	if a.Redis != nil {
		locker = lock.NewRedis(a.Redis, lockKeyPrefix, cfg.Sync.LockTTL)
		summaries := cache.NewRedis(a.Redis, statsKeyPrefix, cfg.StatsCacheTTL)
		a.Cache = summaries
		statsOpts = append(statsOpts, stats.WithCache(summaries))
	}

	a.Sync = activitysync.NewEngine(a.OAuth, a.Strava, a.Store,
		activitysync.WithLocker(locker),
		activitysync.WithInvalidator(a.Cache),
		activitysync.WithLogger(logger),
		activitysync.WithWriteConcurrency(cfg.Sync.WriteConcurrency),
	)
	a.Stats = stats.NewService(a.Store, statsOpts...)

	ok = true
	return a, nil
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) openStore(ctx context.Context) error {
	switch a.Config.StoreDriver {
	case config.DriverPostgres:
		if err := postgres.ApplyMigrations(a.Config.PostgresURL); err != nil {
			return fmt.Errorf("apply postgres migrations: %w", err)
		}
		pool, err := pgxpool.New(ctx, a.Config.PostgresURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		a.Pool = pool
		a.Store = postgres.NewStore(pool)
	case config.DriverSQLite:
		store, err := sqlite.NewStore(a.Config.SQLitePath)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		if err := store.ApplyMigrations(); err != nil {
			return fmt.Errorf("apply sqlite migrations: %w", err)
		}
		a.Store = store
	case config.DriverMemory:
		a.Store = memory.NewStore()
	default:
		return fmt.Errorf("unknown store driver %q", a.Config.StoreDriver)
	}
	return nil
}

func (a *App) openRedis(ctx context.Context) {
	if a.Config.RedisAddr == "" {
		return
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     a.Config.RedisAddr,
		Password: a.Config.RedisPassword,
		DB:       a.Config.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		a.Logger.WarnContext(ctx, "redis unavailable; using in-process locks and no stats cache", "addr", a.Config.RedisAddr, "error", err)
		_ = rdb.Close()
		return
	}
	a.closers = append(a.closers, rdb.Close)
	a.Redis = rdb
}

// OpenSecretStore returns the secrets backend named by cfg.SecretsBackend.
func OpenSecretStore(ctx context.Context, cfg config.Config) (secrets.Store, error) {
	switch cfg.SecretsBackend {
	case config.SecretsBackendEnv:
		return secrets.NewEnvStore(), nil
	case config.SecretsBackendGCP:
		var opts []option.ClientOption
		if cfg.GCPCredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.GCPCredentialsFile))
		}
		return secrets.NewSecretManagerStore(ctx, cfg.GCPProject, opts...)
	default:
		return nil, fmt.Errorf("unknown secrets backend %q", cfg.SecretsBackend)
	}
}
