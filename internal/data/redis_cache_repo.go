package data

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// scanBatchSize is both the SCAN COUNT hint and the UNLINK batch size.
const scanBatchSize = 500

var errEmptyKey = errors.New("cache key cannot be empty")

// RedisCacheRepo stores serialised pages and the cache generation counter in Redis. It works
// against single-node, sentinel and cluster clients.
type RedisCacheRepo struct {
	client redis.UniversalClient
}

// NewRedisCacheRepo creates a new RedisCacheRepo with the given Redis client.
func NewRedisCacheRepo(client redis.UniversalClient) *RedisCacheRepo {
	return &RedisCacheRepo{client: client}
}

func (r *RedisCacheRepo) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errEmptyKey
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Get returns nil, nil when key does not exist.
func (r *RedisCacheRepo) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, errEmptyKey
	}
	b, err := r.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return b, nil
}

// Incr bumps a counter, creating it at 1. The counter never expires.
func (r *RedisCacheRepo) Incr(ctx context.Context, key string) (int64, error) {
	if key == "" {
		return 0, errEmptyKey
	}
	n, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	return n, nil
}

// DeletePrefix unlinks every key starting with prefix using SCAN, so a large cache never
// blocks Redis. On a cluster each master is scanned, since keys are spread across them.
func (r *RedisCacheRepo) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	if prefix == "" {
		return 0, errEmptyKey
	}
	cluster, ok := r.client.(*redis.ClusterClient)
	if !ok {
		return unlinkMatching(ctx, r.client, prefix+"*")
	}

	var removed atomic.Int64
	err := cluster.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
		n, err := unlinkMatching(ctx, node, prefix+"*")
		removed.Add(n)
		return err
	})
	return removed.Load(), err
}

func unlinkMatching(ctx context.Context, c redis.Cmdable, pattern string) (int64, error) {
	var removed int64
	keys := make([]string, 0, scanBatchSize)

	it := c.Scan(ctx, 0, pattern, scanBatchSize).Iterator()
	for {
		more := it.Next(ctx)
		if more {
			keys = append(keys, it.Val())
		}
		if len(keys) > 0 && (len(keys) == scanBatchSize || !more) {
			n, err := c.Unlink(ctx, keys...).Result()
			removed += n
			if err != nil {
				return removed, fmt.Errorf("redis unlink: %w", err)
			}
			keys = keys[:0]
		}
		if !more {
			break
		}
	}
	if err := it.Err(); err != nil {
		return removed, fmt.Errorf("redis scan: %w", err)
	}
	return removed, nil
}
