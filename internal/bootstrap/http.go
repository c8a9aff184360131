package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/marketplace/catalog-api/config"
	httpx "github.com/marketplace/catalog-api/internal/http"
)

const (
	defaultHTTPAddr        = ":8080"
	defaultShutdownTimeout = 10 * time.Second
)

// HTTPServerConfig wires the catalog HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Ready    func(context.Context) error
	// Errors receives a fatal serve error such as a failed bind. Sends never block.
	Errors chan<- error
	Logger *slog.Logger
}

// StartHTTPServer starts serving in the background and returns the server for shutdown.
func StartHTTPServer(cfg *HTTPServerConfig) *http.Server {
	if cfg == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	addr := appCfg.HTTP.Addr
	if addr == "" {
		addr = defaultHTTPAddr
	}
	server := &http.Server{
		Addr: addr,
		Handler: buildHTTPHandler(httpHandlerConfig{
			Logger:   logger,
			Services: routerServices(cfg, appCfg, logger),
			HTTP:     appCfg.HTTP,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	go serve(server, cfg.Errors, logger)
	return server
}

func serve(server *http.Server, errCh chan<- error, logger *slog.Logger) {
	logger.Info("starting HTTP server", "addr", server.Addr)
	err := server.ListenAndServe()
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return
	}
	logger.Error("HTTP server failed", "error", err)
	if errCh == nil {
		return
	}
	select {
	case errCh <- fmt.Errorf("http server: %w", err):
	default:
	}
}

func routerServices(cfg *HTTPServerConfig, appCfg *config.AppConfig, logger *slog.Logger) httpx.RouterServices {
	rs := httpx.RouterServices{
		Products:     cfg.Services.Products,
		DefaultLimit: appCfg.Pagination.DefaultLimit,
		Ready:        cfg.Ready,
		Logger:       logger,
	}
	if prom := cfg.Services.Observability.Prometheus; prom != nil {
		rs.Metrics = prom.Handler()
	}
	return rs
}

type httpHandlerConfig struct {
	Logger   *slog.Logger
	Services httpx.RouterServices
	HTTP     config.HTTPConfig
}

// buildHTTPHandler wraps the router, outermost first: recover, logging, request timeout,
// compression. Logging therefore records the compressed size.
func buildHTTPHandler(cfg httpHandlerConfig) http.Handler {
	var h http.Handler = httpx.NewRouter(cfg.Services)

	if cfg.HTTP.CompressionEnabled {
		h = httpx.Compression(httpx.CompressionConfig{
			Level:   cfg.HTTP.CompressionLevel,
			MinSize: cfg.HTTP.CompressionMinSize,
			Logger:  cfg.Logger,
		})(h)
	}
	if cfg.HTTP.RequestTimeout > 0 {
		h = httpx.Timeout(cfg.HTTP.RequestTimeout)(h)
	}
	h = httpx.Logging(cfg.Logger)(h)
	return httpx.Recover(cfg.Logger)(h)
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	Timeout time.Duration
	Logger  *slog.Logger
}

// ShutdownHTTPServer stops accepting connections and lets in-flight requests finish within
// Timeout.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	parent := cfg.Context
	if parent == nil {
		parent = context.Background()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	logger.Info("shutting down HTTP server", "timeout", timeout)
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	if err := cfg.Server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	logger.Info("HTTP server stopped")
	return nil
}
