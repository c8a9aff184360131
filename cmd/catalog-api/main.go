// Command catalog-api serves the product catalog and runs its background services.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/marketplace/catalog-api/config"
	"github.com/marketplace/catalog-api/internal/bootstrap"
)

func main() {
	if err := run(context.Background()); err != nil {
		slog.Error("catalog api exited", "error", err)
		os.Exit(1) //nolint:forbidigo // non-zero exit for supervisors
	}
}

// closers releases resources in reverse acquisition order.
type closers struct {
	logger *slog.Logger
	items  []namedCloser
}

type namedCloser struct {
	name string
	c    io.Closer
}

func (cs *closers) add(name string, c io.Closer) {
	cs.items = append(cs.items, namedCloser{name: name, c: c})
}

func (cs *closers) closeAll() {
	for i := len(cs.items) - 1; i >= 0; i-- {
		if err := cs.items[i].c.Close(); err != nil {
			cs.logger.Warn("close failed", "resource", cs.items[i].name, "error", err)
		}
	}
}

func run(ctx context.Context) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	logger := bootstrap.InitLogger(cfg.Observability.Logging)
	if err = bootstrap.ValidateServiceConfig(&cfg); err != nil {
		return err
	}
	logger.InfoContext(ctx, "starting catalog api",
		"env", cfg.Env,
		"db", fmt.Sprintf("%s:%d/%s", cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.Name),
		"page_cache", cfg.Cache.Enabled,
		"services", bootstrap.GetEnabledServices(&cfg))

	cleanup := &closers{logger: logger}
	defer cleanup.closeAll()

	db, rdb, err := connect(ctx, &cfg, logger, cleanup)
	if err != nil {
		return err
	}

	if cfg.Postgres.RunMigrationsOnStart {
		if err = bootstrap.RunMigrations(ctx, db, logger); err != nil {
			return err
		}
	}

	services, err := bootstrap.NewServices(bootstrap.ServiceDeps{
		Config:      &cfg,
		DB:          db,
		RedisClient: rdb,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	cleanup.add("metrics", services.Observability)

	return bootstrap.RunServicesWithShutdown(&bootstrap.ServiceOrchestrationConfig{
		Config:      &cfg,
		Services:    services,
		DB:          db,
		RedisClient: rdb,
		Logger:      logger,
	})
}

// connect opens Postgres, and Redis when the page cache is on. Both are registered with cleanup.
//
//nolint:ireturn // UniversalClient covers direct, sentinel and cluster.
func connect(
	ctx context.Context,
	cfg *config.AppConfig,
	logger *slog.Logger,
	cleanup *closers,
) (*sql.DB, redis.UniversalClient, error) {
	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{DBConfig: cfg.Postgres, Logger: logger})
	if err != nil {
		return nil, nil, fmt.Errorf("connect db: %w", err)
	}
	cleanup.add("postgres", db)

	if !cfg.Cache.Enabled {
		logger.InfoContext(ctx, "page cache disabled, skipping redis")
		return db, nil, nil
	}
	rdb, err := bootstrap.ConnectRedis(bootstrap.DatabaseConfig{RedisConfig: cfg.Redis, Logger: logger})
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	cleanup.add("redis", rdb)
	return db, rdb, nil
}
