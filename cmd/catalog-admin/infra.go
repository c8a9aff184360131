package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/marketplace/catalog-api/config"
	"github.com/marketplace/catalog-api/internal/bootstrap"
)

var errRedisNotConfigured = errors.New("redis not configured")

// infra holds the connections one admin command needs. Close releases whatever was opened.
type infra struct {
	db       *sql.DB
	redis    redis.UniversalClient
	services bootstrap.ServiceContainer
}

type infraNeeds struct {
	DB       bool
	Redis    bool
	Services bool
}

func openInfra(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig, needs infraNeeds) (*infra, error) {
	out := &infra{}

	if needs.DB || needs.Services {
		db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{DBConfig: cfg.Postgres, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("connect db: %w", err)
		}
		out.db = db
	}

	if needs.Redis {
		client, err := maybeConnectRedis(logger, &cfg.Redis)
		switch {
		case errors.Is(err, errRedisNotConfigured):
			logger.InfoContext(ctx, "no redis configuration detected; skipping redis connection")
		case err != nil:
			return nil, errors.Join(err, out.Close())
		default:
			out.redis = client
		}
	}

	if needs.Services {
		services, err := bootstrap.NewServices(bootstrap.ServiceDeps{
			Config:      cfg,
			DB:          out.db,
			RedisClient: out.redis,
			Logger:      logger,
		})
		if err != nil {
			return nil, errors.Join(err, out.Close())
		}
		out.services = services
	}

	return out, nil
}

// maybeConnectRedis returns a connected client when configuration is present.
//
//nolint:ireturn // returning redis.UniversalClient keeps sentinel/cluster support flexible.
func maybeConnectRedis(logger *slog.Logger, cfg *config.RedisConfig) (redis.UniversalClient, error) {
	if !hasRedisConfig(cfg) {
		return nil, errRedisNotConfigured
	}
	client, err := bootstrap.ConnectRedis(bootstrap.DatabaseConfig{RedisConfig: *cfg, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

func hasRedisConfig(cfg *config.RedisConfig) bool {
	if cfg == nil {
		return false
	}
	if cfg.UseCluster {
		return len(cfg.ClusterNodes) > 0 || cfg.URI != ""
	}
	if cfg.UseSentinel {
		return len(cfg.SentinelNodes) > 0
	}
	return cfg.URI != ""
}

func (i *infra) Close() error {
	if i == nil {
		return nil
	}
	var closeErr error
	if err := i.services.Observability.Close(); err != nil {
		closeErr = errors.Join(closeErr, fmt.Errorf("close metrics: %w", err))
	}
	if i.db != nil {
		if err := i.db.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close db: %w", err))
		}
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close redis: %w", err))
		}
	}
	return closeErr
}
