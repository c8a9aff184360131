// Package core provides the business logic and service layer for the catalog.
package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
)

// CacheRepository is the key-value store behind PageCacheService.
type CacheRepository interface {
	// Set stores value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns nil, nil for a missing or expired key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Incr atomically increments an integer counter and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
	// DeletePrefix removes every key starting with prefix and reports how many it removed.
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}

// CacheStatus describes how a page request was served.
type CacheStatus string

const (
	CacheHit CacheStatus = "hit"
	// CacheMiss means the page was loaded and stored.
	CacheMiss CacheStatus = "miss"
	// CacheBypass means the cache was disabled or unavailable and the page was loaded directly.
	CacheBypass CacheStatus = "bypass"
)

// PageCacheConfig holds configuration for page caching.
type PageCacheConfig struct {
	Enabled bool          `json:"enabled"`
	TTL     time.Duration `json:"ttl"`
	// Prefix namespaces every key this service writes.
	Prefix string `json:"prefix"`
	// FailureThreshold is the number of consecutive cache errors that opens the breaker.
	FailureThreshold uint32 `json:"failure_threshold"`
	// OpenTimeout is how long the breaker stays open before probing the cache again.
	OpenTimeout time.Duration `json:"open_timeout"`
	// LoadTimeout bounds a shared page load, which outlives the caller that started it.
	LoadTimeout time.Duration `json:"load_timeout"`
}

// DefaultPageCacheConfig returns a PageCacheConfig with sensible defaults.
func DefaultPageCacheConfig() PageCacheConfig {
	return PageCacheConfig{
		Enabled:          true,
		TTL:              5 * time.Minute,
		Prefix:           "catalog:",
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
		LoadTimeout:      30 * time.Second,
	}
}

// PageCacheServiceOptions bundles dependencies for NewPageCacheService.
type PageCacheServiceOptions struct {
	Cache  CacheRepository // Optional; nil disables caching
	Config PageCacheConfig
	Logger *slog.Logger
}

// PageCacheService caches serialised pages in front of the page fetcher.
//
// Every page key embeds a generation number stored in the cache; bumping the generation on a
// write orphans all cached pages at once and lets them expire by TTL. Cache failures never fail
// a request: they are logged, counted by a circuit breaker and the page is loaded directly.
type PageCacheService struct {
	cache   CacheRepository
	cfg     PageCacheConfig
	breaker *gobreaker.CircuitBreaker
	group   singleflight.Group
	logger  *slog.Logger
}

// NewPageCacheService creates a new PageCacheService.
func NewPageCacheService(opts PageCacheServiceOptions) *PageCacheService {
	cfg := opts.Config
	def := DefaultPageCacheConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.Prefix == "" {
		cfg.Prefix = def.Prefix
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = def.LoadTimeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "page_cache")

	threshold := cfg.FailureThreshold
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "page-cache",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("cache circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &PageCacheService{
		cache:   opts.Cache,
		cfg:     cfg,
		breaker: breaker,
		logger:  logger,
	}
}

// Enabled reports whether pages are cached at all.
func (s *PageCacheService) Enabled() bool {
	return s != nil && s.cache != nil && s.cfg.Enabled
}

func (s *PageCacheService) generationKey() string {
	return s.cfg.Prefix + "pages:gen"
}

// PagesPrefix is the key prefix shared by every cached page.
func (s *PageCacheService) PagesPrefix() string {
	return s.cfg.Prefix + "pages:"
}

// PageKey derives the cache key of a page request from its parts. Parts must be JSON-serialisable.
func (s *PageCacheService) PageKey(generation int64, parts any) (string, error) {
	raw, err := json.Marshal(parts)
	if err != nil {
		return "", fmt.Errorf("marshal page key: %w", err)
	}
	sum := sha256.Sum256(raw)
	return s.cfg.Prefix + "pages:v" + strconv.FormatInt(generation, 10) + ":" + hex.EncodeToString(sum[:]), nil
}

// guard runs fn through the circuit breaker.
func (s *PageCacheService) guard(fn func() (any, error)) (any, error) {
	return s.breaker.Execute(fn)
}

func (s *PageCacheService) generation(ctx context.Context) (int64, error) {
	v, err := s.guard(func() (any, error) {
		return s.cache.Get(ctx, s.generationKey())
	})
	if err != nil {
		return 0, err
	}
	raw, _ := v.([]byte)
	if len(raw) == 0 {
		return 0, nil
	}
	gen, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse cache generation %q: %w", raw, err)
	}
	return gen, nil
}

// Load returns the cached bytes for parts, calling load on a miss and caching its result.
// Concurrent misses for the same key share one load.
func (s *PageCacheService) Load(
	ctx context.Context,
	parts any,
	load func(context.Context) ([]byte, error),
) ([]byte, CacheStatus, error) {
	if !s.Enabled() {
		b, err := load(ctx)
		return b, CacheBypass, err
	}

	gen, err := s.generation(ctx)
	if err != nil {
		s.logCacheError(ctx, "read cache generation", err)
		b, loadErr := load(ctx)
		return b, CacheBypass, loadErr
	}
	key, err := s.PageKey(gen, parts)
	if err != nil {
		return nil, CacheBypass, err
	}

	cached, err := s.guard(func() (any, error) {
		return s.cache.Get(ctx, key)
	})
	if err != nil {
		s.logCacheError(ctx, "read cached page", err)
	} else if b, _ := cached.([]byte); len(b) > 0 {
		return b, CacheHit, nil
	}

	// The shared load is detached from whichever caller started it; each caller waits on its
	// own context, so one disconnect does not fail the others.
	ch := s.group.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.LoadTimeout)
		defer cancel()
		b, loadErr := load(loadCtx)
		if loadErr != nil {
			return nil, loadErr
		}
		if _, setErr := s.guard(func() (any, error) {
			return nil, s.cache.Set(loadCtx, key, b, s.cfg.TTL)
		}); setErr != nil {
			s.logCacheError(loadCtx, "store page", setErr)
		}
		return b, nil
	})
	select {
	case <-ctx.Done():
		return nil, CacheMiss, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, CacheMiss, res.Err
		}
		b, _ := res.Val.([]byte)
		return b, CacheMiss, nil
	}
}

// Invalidate orphans every cached page by bumping the generation counter.
// Failures are logged, never returned; stale pages then expire by TTL.
func (s *PageCacheService) Invalidate(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	v, err := s.guard(func() (any, error) {
		return s.cache.Incr(ctx, s.generationKey())
	})
	if err != nil {
		s.logCacheError(ctx, "bump cache generation", err)
		return
	}
	s.logger.DebugContext(ctx, "page cache invalidated", "generation", v)
}

// Flush deletes every cached page and the generation counter.
func (s *PageCacheService) Flush(ctx context.Context) (int64, error) {
	if s == nil || s.cache == nil {
		return 0, nil
	}
	return s.cache.DeletePrefix(ctx, s.PagesPrefix())
}

func (s *PageCacheService) logCacheError(ctx context.Context, op string, err error) {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		s.logger.DebugContext(ctx, "page cache skipped", "op", op, "reason", err.Error())
		return
	}
	s.logger.WarnContext(ctx, "page cache unavailable", "op", op, "error", err)
}
