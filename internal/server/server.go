// Package server exposes the introduction service as a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scrypster/relgraph/internal/config"
	"github.com/scrypster/relgraph/internal/intro"
	"github.com/scrypster/relgraph/internal/report"
)

// Option configures the handler built by New.
type Option func(*handlers)

// WithPublisher enables the publish endpoints.
func WithPublisher(p *report.Publisher) Option {
	return func(h *handlers) { h.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *handlers) { h.logger = logger }
}

// New builds the HTTP handler:
//
//	GET  /health                                  session status (no auth)
//	GET  /metrics                                 Prometheus metrics (no auth)
//	GET  /api/introductions/{target}              warm introductions
//	POST /api/introductions/batch                 warm introductions for many targets
//	GET  /api/paths?source=&target=&mode=         introduction or optimal paths
//	GET  /api/connectivity/{id}                   connectivity summary
//	GET  /api/insights                            network insights
//	POST /api/reload                              load a fresh snapshot
//	POST /api/introductions/{target}/publish      persist warm introductions
//	POST /api/insights/publish                    persist network insights
//
// The publish routes are registered only WithPublisher.
func New(cfg *config.Config, svc *intro.Service, opts ...Option) http.Handler {
	h := &handlers{svc: svc, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.logger = h.logger.With("component", "server")

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /api/introductions/{target}", h.warmIntroductions)
	apiMux.HandleFunc("POST /api/introductions/batch", h.warmIntroductionsBatch)
	apiMux.HandleFunc("GET /api/paths", h.paths)
	apiMux.HandleFunc("GET /api/connectivity/{id}", h.connectivity)
	apiMux.HandleFunc("GET /api/insights", h.insights)
	apiMux.HandleFunc("POST /api/reload", h.reload)
	if h.publisher != nil {
		apiMux.HandleFunc("POST /api/introductions/{target}/publish", h.publishIntroductions)
		apiMux.HandleFunc("POST /api/insights/publish", h.publishInsights)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.health)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("/api/", RequireAuth(apiMux, cfg.Security))

	// Rate limiting, then security headers.
	var handler http.Handler = mux
	handler = RateLimitMiddleware(handler, NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst))
	handler = accessLogMiddleware(handler, h.logger)
	return securityHeadersMiddleware(handler)
}

// Start listens on the configured address and serves handler until ctx is
// cancelled. It returns the address being listened on (useful for testing
// with port 0) and a channel that receives the serve result once the server
// has shut down.
func Start(ctx context.Context, cfg *config.Config, handler http.Handler, logger *slog.Logger) (string, <-chan error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	addr := net.JoinHostPort(cfg.Server.Host, fmt.Sprint(cfg.Server.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("server: listen on %s: %w", addr, err)
	}
	actual := listener.Addr().String()
	logger.Info("http server listening", "addr", actual)

	done := make(chan error, 1)
	go func() {
		err := srv.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	return actual, done, nil
}
