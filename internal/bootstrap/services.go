package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/marketplace/catalog-api/config"
	"github.com/marketplace/catalog-api/internal/core"
	"github.com/marketplace/catalog-api/internal/data"
	"github.com/marketplace/catalog-api/internal/observability/statsd"
	"github.com/marketplace/catalog-api/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Products      *service.ProductService
	PageCache     *core.PageCacheService
	Warmer        *service.CacheWarmerService
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	// Sink fans out to every configured backend; nil when none is.
	Sink          statsd.Sink
	Statsd        *statsd.Client
	Prometheus    *statsd.PrometheusSink
	MetricsConfig config.ObservabilityMetricsConfig
}

// Close releases observability resources.
func (o ObservabilityContainer) Close() error {
	if o.Statsd == nil {
		return nil
	}
	return o.Statsd.Close()
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// buildObservability configures the statsd and Prometheus sinks.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityMetricsConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	out := ObservabilityContainer{MetricsConfig: cfg}
	var sinks statsd.Multi

	if cfg.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled:       true,
			Address:       cfg.StatsdAddress,
			Prefix:        cfg.Namespace,
			FlushInterval: cfg.StatsdFlushInterval,
			Logger:        obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			out.Statsd = client
			sinks = append(sinks, client)
		}
	}

	if cfg.PrometheusEnabled {
		out.Prometheus = statsd.NewPrometheusSink(cfg.Namespace, obsLogger)
		sinks = append(sinks, out.Prometheus)
	}

	switch len(sinks) {
	case 0:
	case 1:
		out.Sink = sinks[0]
	default:
		out.Sink = sinks
	}
	return out
}

func pageCacheConfig(cfg config.CacheConfig) core.PageCacheConfig {
	return core.PageCacheConfig{
		Enabled:          cfg.Enabled,
		TTL:              cfg.TTL,
		Prefix:           cfg.Prefix,
		FailureThreshold: cfg.BreakerFailures,
		OpenTimeout:      cfg.BreakerOpenTimeout,
		LoadTimeout:      cfg.LoadTimeout,
	}
}

// NewServices wires repositories, the page cache and domain services.
func NewServices(deps ServiceDeps) (ServiceContainer, error) {
	if deps.Config == nil {
		return ServiceContainer{}, errors.New("config is required")
	}
	if deps.DB == nil {
		return ServiceContainer{}, errors.New("database is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	obs := buildObservability(logger, cfg.Observability.Metrics)

	repo := data.NewProductRepo(deps.DB)
	repo.QueryTimeout = cfg.Postgres.QueryTimeout

	var cacheRepo core.CacheRepository
	if deps.RedisClient != nil {
		cacheRepo = data.NewRedisCacheRepo(deps.RedisClient)
	} else if cfg.Cache.Enabled {
		logger.Warn("page cache enabled but no redis client configured; caching disabled")
	}
	pageCache := core.NewPageCacheService(core.PageCacheServiceOptions{
		Cache:  cacheRepo,
		Config: pageCacheConfig(cfg.Cache),
		Logger: logger,
	})

	products, err := service.NewProductService(service.ProductServiceOptions{
		Repo:    repo,
		Cache:   pageCache,
		Metrics: obs.Sink,
		Logger:  logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create product service: %w", err)
	}

	warmer, err := service.NewCacheWarmerService(service.CacheWarmerServiceOptions{
		Products: products,
		Config:   cfg.CacheWarmer,
		Logger:   logger,
		Metrics:  obs.Sink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create cache warmer: %w", err)
	}

	return ServiceContainer{
		Products:      products,
		PageCache:     pageCache,
		Warmer:        warmer,
		Observability: obs,
	}, nil
}

// ReadinessCheck reports whether the database and, when configured, Redis answer a ping.
func ReadinessCheck(db *sql.DB, rdb redis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		if db == nil {
			return errors.New("database not configured")
		}
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("ping redis: %w", err)
			}
		}
		return nil
	}
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// shutdownWaitTimeout bounds how long stopping services may take once shutdown begins.
const shutdownWaitTimeout = 15 * time.Second

// runner is one long-lived component. run blocks until ctx ends and returns nil on a clean stop.
type runner struct {
	mode config.ServiceMode
	name string
	run  func(ctx context.Context) error
}

func httpRunner(cfg *ServiceOrchestrationConfig, logger *slog.Logger) runner {
	return runner{
		mode: config.ServiceModeHTTP,
		name: "http server",
		run: func(ctx context.Context) error {
			failed := make(chan error, 1)
			srv := StartHTTPServer(&HTTPServerConfig{
				Config:   cfg.Config,
				Services: cfg.Services,
				Ready:    ReadinessCheck(cfg.DB, cfg.RedisClient),
				Errors:   failed,
				Logger:   logger,
			})
			select {
			case err := <-failed:
				return err
			case <-ctx.Done():
			}
			// ctx is already done; in-flight requests get their own budget.
			return ShutdownHTTPServer(ShutdownConfig{
				Server:  srv,
				Timeout: cfg.Config.HTTP.ShutdownTimeout,
				Logger:  logger,
			})
		},
	}
}

func cacheWarmerRunner(cfg *ServiceOrchestrationConfig) runner {
	return runner{
		mode: config.ServiceModeCacheWarmer,
		name: "cache warmer",
		run: func(ctx context.Context) error {
			if cfg == nil || cfg.Services.Warmer == nil {
				return errors.New("cache warmer not configured")
			}
			return cfg.Services.Warmer.Run(ctx)
		},
	}
}

// enabledRunners returns the runners for enabled modes, in ValidServiceModes order.
func enabledRunners(cfg *ServiceOrchestrationConfig, enabled map[config.ServiceMode]bool, logger *slog.Logger) []runner {
	all := []runner{httpRunner(cfg, logger), cacheWarmerRunner(cfg)}
	out := make([]runner, 0, len(all))
	for _, r := range all {
		if enabled[r.mode] {
			out = append(out, r)
		}
	}
	return out
}

// RunServicesWithShutdown runs every enabled service until SIGINT or SIGTERM arrives or one of
// them fails. A failure stops the others and is returned.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	enabled, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return runServices(ctx, logger, enabledRunners(cfg, enabled, logger))
}

func runServices(ctx context.Context, logger *slog.Logger, runners []runner) error {
	if len(runners) == 0 {
		return errors.New("no services to run")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range runners {
		g.Go(func() error {
			logger.InfoContext(gctx, "service started", "service", r.name, "mode", r.mode)
			if err := r.run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.ErrorContext(gctx, "service failed", "service", r.name, "error", err)
				return fmt.Errorf("%s failed: %w", r.name, err)
			}
			logger.InfoContext(gctx, "service stopped", "service", r.name)
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-gctx.Done():
		logger.Info("shutting down services", "cause", context.Cause(gctx))
	}
	select {
	case err := <-done:
		return err
	case <-time.After(shutdownWaitTimeout):
		return fmt.Errorf("services did not stop within %s", shutdownWaitTimeout)
	}
}
