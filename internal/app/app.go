// Package app assembles the routing core from configuration. The HTTP server
// and the operator CLI share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/nulzo/capability-router/internal/analytics"
	"github.com/nulzo/capability-router/internal/cli"
	"github.com/nulzo/capability-router/internal/config"
	"github.com/nulzo/capability-router/internal/gateway"
	"github.com/nulzo/capability-router/internal/health"
	"github.com/nulzo/capability-router/internal/llm"
	"github.com/nulzo/capability-router/internal/platform/metrics"
	"github.com/nulzo/capability-router/internal/platform/otel"
	"github.com/nulzo/capability-router/internal/platform/secrets"
	"github.com/nulzo/capability-router/internal/policy"
	"github.com/nulzo/capability-router/internal/store/cache"
	"github.com/nulzo/capability-router/internal/store/sqlite"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	// Import adapters to trigger init() registration
	_ "github.com/nulzo/capability-router/internal/llm/anthropic"
	_ "github.com/nulzo/capability-router/internal/llm/openai"
)

const cachePrefix = "capability-router:"

type App struct {
	Config *config.Config
	Logger *zap.Logger

	Repo        *sqlite.SqliteRepository
	Registry    *gateway.Registry
	Policies    *policy.Store
	Catalog     *policy.Catalog
	Provisioner *policy.Provisioner
	Attempts    analytics.Service
	Engine      *gateway.Engine
	Prober      *health.Prober
	Metrics     *metrics.Metrics
	Cache       cache.CacheService

	redis          *redis.Client
	tracerShutdown func(context.Context) error
}

// New opens storage, seeds providers and policies from configuration and
// wires the engine and prober.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	repo, err := sqlite.NewSQLiteStorage(cfg.Database.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.Repo = repo

	if cfg.Security.CredentialSecret == "" {
		logger.Warn(fmt.Sprintf("%s %s", cli.WarningSign(),
			cli.Style("security.credential_secret is not set; provider credentials use the built-in key", cli.Yellow)))
	}
	box := secrets.NewBox(cfg.Security.CredentialSecret)

	a.Registry = gateway.NewRegistry(logger, repo, box, llm.NewProviderFactory(nil))
	if _, err := gateway.BootstrapProviders(ctx, a.Registry, cfg.Providers, logger); err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("bootstrap providers: %w", err)
	}

	a.Policies = policy.NewStore(logger, repo, cfg.Routing.MaxRetryCount)
	if err := a.Policies.Load(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("load policies: %w", err)
	}
	if n, err := a.Policies.Seed(ctx, cfg.Policies); err != nil {
		logger.Warn("Policy seeding stopped early", zap.Int("seeded", n), zap.Error(err))
	}

	a.Catalog, err = policy.NewCatalog(logger, cfg.Templates.File)
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("load templates: %w", err)
	}
	a.Provisioner = policy.NewProvisioner(a.Catalog, a.Policies, a.Registry, cfg.Routing.DefaultsFor)
	a.Attempts = analytics.NewService(logger, repo)
	a.Metrics = metrics.New()

	opts := []gateway.EngineOption{gateway.WithMetrics(a.Metrics)}
	if cfg.Tracing.Enabled {
		shutdown, err := otel.InitTracer(cfg.Tracing.ServiceName, cfg.Tracing.SampleRatio, logger, os.Stdout)
		if err != nil {
			logger.Warn("Tracing disabled", zap.Error(err))
		} else {
			a.tracerShutdown = shutdown
			opts = append(opts, gateway.WithTracer(otel.Tracer()))
		}
	}
	a.Engine = gateway.NewEngine(logger, a.Registry, a.Policies, a.Attempts, opts...)

	a.Cache = a.openCache(ctx)
	a.Prober = health.NewProber(logger, a.Registry,
		health.WithTimeout(cfg.Health.ProbeTimeout),
		health.WithCache(a.Cache, cfg.Health.CacheTTL),
		health.WithMetrics(a.Metrics),
	)

	return a, nil
}

// openCache prefers redis and falls back to process memory.
func (a *App) openCache(ctx context.Context) cache.CacheService {
	rc := a.Config.Redis
	if !rc.Enabled {
		return cache.NewMemoryCache()
	}
	client, err := cache.Connect(ctx, rc.Addr, rc.Password, rc.DB)
	if err != nil {
		a.Logger.Warn("Redis unavailable, using in-memory cache", zap.String("addr", rc.Addr), zap.Error(err))
		return cache.NewMemoryCache()
	}
	a.redis = client
	a.Logger.Info("Connected to redis", zap.String("addr", rc.Addr))
	return cache.NewRedisCache(client, cachePrefix)
}

// Close releases everything New opened.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.tracerShutdown != nil {
		errs = append(errs, a.tracerShutdown(ctx))
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.Repo != nil {
		errs = append(errs, a.Repo.Close())
	}
	return errors.Join(errs...)
}
