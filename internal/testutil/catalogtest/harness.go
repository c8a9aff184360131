// Package catalogtest runs the catalog HTTP API against real Postgres (and optionally Redis)
// for end-to-end paging tests.
package catalogtest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"time"

	"github.com/marketplace/catalog-api/internal/core"
	"github.com/marketplace/catalog-api/internal/data"
	"github.com/marketplace/catalog-api/internal/domain/model"
	httpx "github.com/marketplace/catalog-api/internal/http"
	"github.com/marketplace/catalog-api/internal/pagination"
	"github.com/marketplace/catalog-api/internal/service"
	"github.com/marketplace/catalog-api/internal/testutil"
)

// Options configures the harness.
type Options struct {
	// EnableRedis puts the Redis page cache in front of the repository.
	EnableRedis bool
	// DefaultLimit is the page size used when a request omits limit.
	DefaultLimit int
}

// DefaultOptions returns options for a database-only harness.
func DefaultOptions() Options {
	return Options{DefaultLimit: httpx.DefaultPageLimit}
}

// Harness wires repository, service and router the way the server does and serves them
// from an httptest server.
type Harness struct {
	t  testutil.TestingTB
	ts *httptest.Server

	Repo      *data.ProductRepo
	PageCache *core.PageCacheService
	Products  *service.ProductService
}

// New builds a harness on a migrated, empty database. It skips when the database (or Redis,
// if requested) is unavailable.
func New(t testutil.TestingTB, opts Options) *Harness {
	t.Helper()

	db := testutil.SetupAutoDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := &Harness{t: t, Repo: data.NewProductRepo(db)}

	var cache core.CacheRepository
	if opts.EnableRedis {
		cache = data.NewRedisCacheRepo(testutil.SetupTestRedis(t))
	}
	h.PageCache = core.NewPageCacheService(core.PageCacheServiceOptions{
		Cache:  cache,
		Config: core.PageCacheConfig{Enabled: opts.EnableRedis, TTL: time.Minute, Prefix: "catalogtest:"},
		Logger: logger,
	})

	products, err := service.NewProductService(service.ProductServiceOptions{
		Repo:   h.Repo,
		Cache:  h.PageCache,
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("create product service: %v", err)
	}
	h.Products = products

	h.ts = httptest.NewServer(httpx.NewRouter(httpx.RouterServices{
		Products:     products,
		DefaultLimit: opts.DefaultLimit,
		Logger:       logger,
	}))
	if c, ok := t.(interface{ Cleanup(func()) }); ok {
		c.Cleanup(h.Close)
	}
	return h
}

// Close stops the test server.
func (h *Harness) Close() {
	if h.ts != nil {
		h.ts.Close()
	}
}

// BaseURL returns the base URL of the test HTTP server.
func (h *Harness) BaseURL() string {
	return h.ts.URL
}

// Seed imports products through the service, invalidating cached pages like a real import.
func (h *Harness) Seed(products ...model.Product) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := h.Products.Import(ctx, products); err != nil {
		h.t.Fatalf("seed products: %v", err)
	}
}

// DoJSON performs a request against the test server. payload is JSON encoded when non-nil.
func (h *Harness) DoJSON(method, path string, payload any) *http.Response {
	h.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var body io.Reader = http.NoBody
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			h.t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.ts.URL+path, body)
	if err != nil {
		h.t.Fatalf("new request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.ts.Client().Do(req)
	if err != nil {
		h.t.Fatalf("do request: %v", err)
	}
	return resp
}

// GetPage fetches one list page and decodes it.
func (h *Harness) GetPage(query url.Values) pagination.Page[model.Product] {
	h.t.Helper()

	resp := h.DoJSON(http.MethodGet, "/api/products?"+query.Encode(), nil)
	defer func() {
		if err := resp.Body.Close(); err != nil {
			h.t.Logf("warning: failed to close response body: %v", err)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		h.t.Fatalf("list products status: %d", resp.StatusCode)
	}

	var page pagination.Page[model.Product]
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		h.t.Fatalf("decode page: %v", err)
	}
	return page
}

// WalkForward follows nextCursor from the first page until hasMore is false and returns the
// product ids in the order they were served. maxPages guards against a cursor loop.
func (h *Harness) WalkForward(query url.Values, maxPages int) []string {
	h.t.Helper()

	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	var ids []string
	for range maxPages {
		page := h.GetPage(q)
		for _, p := range page.Items {
			ids = append(ids, p.ID)
		}
		if !page.HasMore || page.NextCursor == nil {
			return ids
		}
		q.Set("cursor", *page.NextCursor)
	}
	h.t.Fatalf("walk did not finish within %d pages", maxPages)
	return ids
}
