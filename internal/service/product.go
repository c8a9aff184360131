// Package service orchestrates catalog use cases on top of the repositories and the pagination engine.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/marketplace/catalog-api/internal/core"
	"github.com/marketplace/catalog-api/internal/domain/model"
	apperrors "github.com/marketplace/catalog-api/internal/errors"
	"github.com/marketplace/catalog-api/internal/observability/metrics"
	"github.com/marketplace/catalog-api/internal/observability/statsd"
	"github.com/marketplace/catalog-api/internal/pagination"
	"github.com/marketplace/catalog-api/internal/progressive"
)

// Feed names used for cache keys and metric tags.
const (
	feedList        = "list"
	feedProgressive = "progressive"
	feedPrefetch    = "prefetch"
)

// ProductServiceOptions groups dependencies for ProductService.
type ProductServiceOptions struct {
	Repo    core.ProductRepository // Required
	Cache   *core.PageCacheService // Optional
	Planner *progressive.Planner   // Optional; defaults to the catalog projections
	Metrics statsd.Sink            // Optional
	Logger  *slog.Logger           // Optional
}

// ProductService serves product pages, progressive feeds and product writes.
type ProductService struct {
	repo    core.ProductRepository
	fetcher *pagination.Fetcher[model.Product, model.ProductFilter]
	cache   *core.PageCacheService
	planner *progressive.Planner
	metrics statsd.Sink
	logger  *slog.Logger
}

// NewProductService constructs a new ProductService.
func NewProductService(opts ProductServiceOptions) (*ProductService, error) {
	if opts.Repo == nil {
		return nil, errors.New("product repository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fetcher, err := pagination.NewFetcher(pagination.FetcherOptions[model.Product, model.ProductFilter]{
		Source: opts.Repo,
		Marker: model.ProductMarker,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("page fetcher: %w", err)
	}

	planner := opts.Planner
	if planner == nil {
		planner, err = progressive.NewPlanner(progressive.DefaultProjections())
		if err != nil {
			return nil, fmt.Errorf("progressive planner: %w", err)
		}
	}

	return &ProductService{
		repo:    opts.Repo,
		fetcher: fetcher,
		cache:   opts.Cache,
		planner: planner,
		metrics: opts.Metrics,
		logger:  logger.With("component", "product_service"),
	}, nil
}

// productSort resolves the client's sort name and direction. Newest and best-rated listings
// default to descending, the rest to ascending.
func productSort(sort, dir string) pagination.SortSpec {
	key := model.ParseProductSort(sort)
	def := pagination.Ascending
	if key == model.ProductSortCreatedAt || key == model.ProductSortRating {
		def = pagination.Descending
	}
	return pagination.SortSpec{Key: key, Direction: pagination.ParseDirection(dir, def)}
}

// pageKey identifies a cacheable page request. Cursor and limit are normalised so equivalent
// requests share an entry.
type pageKey struct {
	Feed      string              `json:"feed"`
	Filter    model.ProductFilter `json:"filter"`
	Sort      string              `json:"sort"`
	Dir       string              `json:"dir"`
	Cursor    *pagination.Marker  `json:"cursor"`
	Limit     int                 `json:"limit"`
	WithCount bool                `json:"withCount"`
}

func (s *ProductService) fetchPage(
	ctx context.Context,
	feed string,
	req model.ListProductsRequest,
) (*pagination.Page[model.Product], pagination.SortSpec, core.CacheStatus, error) {
	sort := productSort(req.Sort, req.Direction)
	preq := pagination.Request{Cursor: req.Cursor, Limit: req.Limit, WithCount: req.WithCount}

	if !s.cache.Enabled() {
		page, err := s.fetcher.Fetch(ctx, preq, req.Filter, sort)
		return page, sort, core.CacheBypass, err
	}

	key := pageKey{
		Feed:      feed,
		Filter:    req.Filter,
		Sort:      sort.Key,
		Dir:       string(sort.Direction),
		Cursor:    pagination.DecodeCursor(req.Cursor),
		Limit:     pagination.NormalizeLimit(req.Limit),
		WithCount: req.WithCount,
	}
	raw, status, err := s.cache.Load(ctx, key, func(ctx context.Context) ([]byte, error) {
		page, fetchErr := s.fetcher.Fetch(ctx, preq, req.Filter, sort)
		if fetchErr != nil {
			return nil, fetchErr
		}
		return json.Marshal(page)
	})
	if err != nil {
		return nil, sort, status, err
	}

	var page pagination.Page[model.Product]
	if decodeErr := json.Unmarshal(raw, &page); decodeErr != nil {
		return nil, sort, status, fmt.Errorf("decode cached page: %w", decodeErr)
	}
	if page.Items == nil {
		page.Items = []model.Product{}
	}
	return &page, sort, status, nil
}

// List returns one page of the product listing.
func (s *ProductService) List(ctx context.Context, req model.ListProductsRequest) (*pagination.Page[model.Product], error) {
	start := time.Now()
	page, sort, status, err := s.fetchPage(ctx, feedList, req)
	s.emit(metrics.PageMetric{
		Endpoint: feedList,
		Sort:     sort.Key,
		Cache:    string(status),
		Items:    pageLen(page),
		Duration: time.Since(start),
		Err:      err,
	})
	if err != nil {
		return nil, s.storeError("list products", err)
	}
	return page, nil
}

// Progressive returns one page of a progressive feed, projected to the detail tier the request asks for.
// Cursors and counts are those of the underlying listing; projection never drops or reorders items.
func (s *ProductService) Progressive(
	ctx context.Context,
	req model.ProgressiveLoadRequest,
) (*pagination.Page[map[string]any], progressive.Policy, error) {
	start := time.Now()
	policy := s.planner.Plan(progressive.Options{
		Priority:     progressive.ParsePriority(req.Priority),
		FullDetails:  req.FullDetails,
		WithMetadata: req.WithMetadata,
	})

	page, sort, status, err := s.fetchPage(ctx, feedProgressive, req.ListProductsRequest)
	var out *pagination.Page[map[string]any]
	if err == nil {
		out, err = s.project(page, policy)
	}
	s.emit(metrics.PageMetric{
		Endpoint: feedProgressive,
		Sort:     sort.Key,
		Priority: string(policy.Priority),
		Cache:    string(status),
		Items:    pageLen(page),
		Duration: time.Since(start),
		Err:      err,
	})
	if err != nil {
		return nil, policy, s.storeError("progressive load", err)
	}
	return out, policy, nil
}

// Prefetch returns only the ids of the next items of a feed, for clients warming their caches.
func (s *ProductService) Prefetch(ctx context.Context, req model.ProgressiveLoadRequest) ([]string, error) {
	start := time.Now()
	page, sort, status, err := s.fetchPage(ctx, feedPrefetch, req.ListProductsRequest)
	s.emit(metrics.PageMetric{
		Endpoint: feedPrefetch,
		Sort:     sort.Key,
		Priority: string(progressive.PriorityPrefetch),
		Cache:    string(status),
		Items:    pageLen(page),
		Duration: time.Since(start),
		Err:      err,
	})
	if err != nil {
		return nil, s.storeError("prefetch", err)
	}

	ids := make([]string, len(page.Items))
	for i, p := range page.Items {
		ids[i] = p.ID
	}
	return ids, nil
}

func (s *ProductService) project(
	page *pagination.Page[model.Product],
	policy progressive.Policy,
) (*pagination.Page[map[string]any], error) {
	docs, err := progressive.Documents(page.Items)
	if err != nil {
		return nil, err
	}
	items, err := s.planner.Project(docs, policy)
	if err != nil {
		return nil, err
	}
	return &pagination.Page[map[string]any]{
		Items:      items,
		NextCursor: page.NextCursor,
		PrevCursor: page.PrevCursor,
		HasMore:    page.HasMore,
		TotalCount: page.TotalCount,
	}, nil
}

// Get returns a product by id.
func (s *ProductService) Get(ctx context.Context, id string) (*model.Product, error) {
	return s.repo.GetByID(ctx, id)
}

// Create validates req, stores the product and invalidates cached pages.
func (s *ProductService) Create(ctx context.Context, req *model.CreateProductRequest) (*model.Product, error) {
	if req == nil {
		return nil, apperrors.Validation("request body is required")
	}
	if err := req.Validate(); err != nil {
		return nil, validationError(err)
	}

	p := req.ToProduct()
	created, err := s.repo.Create(ctx, &p)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, "create")
	s.logger.InfoContext(ctx, "product created", "product_id", created.ID, "merchant_id", created.MerchantID)
	return created, nil
}

// Update applies a partial update to the product id and invalidates cached pages.
func (s *ProductService) Update(ctx context.Context, id string, req *model.UpdateProductRequest) (*model.Product, error) {
	if req == nil {
		return nil, apperrors.Validation("request body is required")
	}
	if err := req.Validate(); err != nil {
		return nil, validationError(err)
	}
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := req.Apply(current); err != nil {
		return nil, validationError(err)
	}
	updated, err := s.repo.Update(ctx, current)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, "update")
	s.logger.InfoContext(ctx, "product updated", "product_id", updated.ID, "merchant_id", updated.MerchantID)
	return updated, nil
}

// Delete removes the product id and invalidates cached pages.
func (s *ProductService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, "delete")
	s.logger.InfoContext(ctx, "product deleted", "product_id", id)
	return nil
}

// TopMerchants returns the merchants with the most products, largest first.
func (s *ProductService) TopMerchants(ctx context.Context, n int) ([]string, error) {
	return s.repo.TopMerchants(ctx, n)
}

// Import bulk loads products and invalidates cached pages once.
func (s *ProductService) Import(ctx context.Context, products []model.Product) (int64, error) {
	n, err := s.repo.BulkInsert(ctx, products)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.invalidate(ctx, "import")
	}
	return n, nil
}

func validationError(err error) error {
	var fe *model.FieldError
	if errors.As(err, &fe) {
		return apperrors.ValidationField(fe.Field, fe.Message)
	}
	return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid product")
}

func (s *ProductService) invalidate(ctx context.Context, reason string) {
	if !s.cache.Enabled() {
		return
	}
	s.cache.Invalidate(ctx)
	metrics.EmitCacheInvalidation(s.metrics, reason)
}

// storeError keeps app errors as they are and tags context failures, so the HTTP layer can
// distinguish a slow store from a broken one.
func (s *ProductService) storeError(op string, err error) error {
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(err, apperrors.ErrCodeTimeout, op+" timed out")
	case errors.Is(err, context.Canceled):
		return apperrors.Wrap(err, apperrors.ErrCodeCanceled, op+" canceled")
	default:
		s.logger.Error("page fetch failed", "op", op, "error", err)
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, op+" failed")
	}
}

func (s *ProductService) emit(m metrics.PageMetric) {
	metrics.EmitPageFetch(s.metrics, m)
}

func pageLen[T any](p *pagination.Page[T]) int {
	if p == nil {
		return 0
	}
	return len(p.Items)
}
