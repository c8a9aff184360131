package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"log/slog"
	"time"

	"github.com/marketplace/catalog-api/config"
	"github.com/marketplace/catalog-api/internal/domain/model"
	"github.com/marketplace/catalog-api/internal/observability/metrics"
	"github.com/marketplace/catalog-api/internal/observability/statsd"
)

// CacheWarmerServiceOptions groups dependencies for CacheWarmerService.
type CacheWarmerServiceOptions struct {
	Products *ProductService          // Required
	Config   config.CacheWarmerConfig // Required
	Logger   *slog.Logger             // Optional
	Metrics  statsd.Sink              // Optional
}

// CacheWarmerService keeps the first page of the busiest listings in the page cache
// so the first visitor after a write or TTL expiry does not pay for the query.
type CacheWarmerService struct {
	products *ProductService
	config   config.CacheWarmerConfig
	logger   *slog.Logger
	metrics  statsd.Sink
}

// NewCacheWarmerService constructs a new CacheWarmerService.
func NewCacheWarmerService(opts CacheWarmerServiceOptions) (*CacheWarmerService, error) {
	if opts.Products == nil {
		return nil, errors.New("product service is required")
	}
	cfg := opts.Config
	cfg.Sanitize()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CacheWarmerService{
		products: opts.Products,
		config:   cfg,
		logger:   logger.With("component", "cache_warmer"),
		metrics:  opts.Metrics,
	}, nil
}

// Targets lists the requests a warm run issues: every configured sort, unfiltered
// and once per configured category.
func (s *CacheWarmerService) Targets() []model.ListProductsRequest {
	out := make([]model.ListProductsRequest, 0, len(s.config.Sorts)*(1+len(s.config.Categories)))
	for _, sort := range s.config.Sorts {
		out = append(out, model.ListProductsRequest{Sort: sort, Limit: s.config.PageSize})
		for _, category := range s.config.Categories {
			out = append(out, model.ListProductsRequest{
				Sort:   sort,
				Limit:  s.config.PageSize,
				Filter: model.ProductFilter{Category: &category},
			})
		}
	}
	return out
}

// merchantTargets adds a newest-first page for each of the busiest merchants.
// The merchant list is read on every run so it follows the catalog.
func (s *CacheWarmerService) merchantTargets(ctx context.Context) []model.ListProductsRequest {
	if s.config.Merchants == 0 {
		return nil
	}
	merchants, err := s.products.TopMerchants(ctx, s.config.Merchants)
	if err != nil {
		s.logger.WarnContext(ctx, "listing top merchants failed", "error", err)
		return nil
	}
	out := make([]model.ListProductsRequest, 0, len(merchants))
	for _, id := range merchants {
		out = append(out, model.ListProductsRequest{
			Sort:   model.ProductSortCreatedAt,
			Limit:  s.config.PageSize,
			Filter: model.ProductFilter{MerchantID: &id},
		})
	}
	return out
}

// Run warms the cache at the configured interval until ctx is cancelled.
// Returns nil on graceful shutdown.
func (s *CacheWarmerService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting cache warmer", "interval", s.config.Interval, "targets", len(s.Targets()))

	// Replicas started together should not warm in lockstep.
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.WarmOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "cache warmer stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			s.WarmOnce(ctx)
		}
	}
}

func (s *CacheWarmerService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}
	jitter := time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter))) // #nosec G115 - bounded by maxJitter

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

// WarmOnce loads every target once and returns how many succeeded. Failures are
// logged and never stop the run.
func (s *CacheWarmerService) WarmOnce(ctx context.Context) int {
	start := time.Now()
	warmed, failed := 0, 0
	targets := append(s.Targets(), s.merchantTargets(ctx)...)
	for _, req := range targets {
		if ctx.Err() != nil {
			break
		}
		if _, err := s.products.List(ctx, req); err != nil {
			failed++
			s.logger.WarnContext(ctx, "warming page failed", "sort", req.Sort, "error", err)
			continue
		}
		warmed++
	}

	if s.metrics != nil {
		result := metrics.ResultSuccess
		if failed > 0 {
			result = metrics.ResultError
		}
		tags := map[string]string{"result": result}
		s.metrics.Count("page_cache.warm", int64(warmed), tags)
		s.metrics.Timing("page_cache.warm_duration", time.Since(start), metrics.CloneTags(tags))
	}
	s.logger.DebugContext(ctx, "cache warm run finished", "warmed", warmed, "failed", failed, "duration", time.Since(start))
	return warmed
}
