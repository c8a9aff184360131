// Package httpx exposes the catalog over a JSON HTTP API.
package httpx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/marketplace/catalog-api/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Products *service.ProductService
	// DefaultLimit is the page size used when a request does not specify one.
	DefaultLimit int
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Ready backs /readyz when set; a non-nil error reports 503.
	Ready  func(ctx context.Context) error
	Logger *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	products := &ProductHandlers{Svc: services.Products, DefaultLimit: services.DefaultLimit, Logger: logger}
	registerProductRoutes(mux, products)

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("GET /readyz", readyHandler(services.Ready, logger))
	if services.Metrics != nil {
		mux.Handle("GET /metrics", services.Metrics)
	}
	return mux
}

func registerProductRoutes(mux *http.ServeMux, h *ProductHandlers) {
	mux.HandleFunc("GET /api/products", h.List)
	mux.HandleFunc("POST /api/products", h.Create)
	mux.HandleFunc("GET /api/products/{id}", h.Get)
	mux.HandleFunc("PATCH /api/products/{id}", h.Update)
	mux.HandleFunc("DELETE /api/products/{id}", h.Delete)
	mux.HandleFunc("GET /api/products/progressive", h.Progressive)
	mux.HandleFunc("POST /api/products/progressive/load-more", h.LoadMore)
	mux.HandleFunc("GET /api/products/progressive/prefetch", h.Prefetch)
}
