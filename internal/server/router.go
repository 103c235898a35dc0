package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/babblebase/filecount/pkg/config"
	"github.com/babblebase/filecount/pkg/health"
	"github.com/babblebase/filecount/pkg/metrics"
	"github.com/babblebase/filecount/pkg/middleware"
)

// NewRouter builds the HTTP handler.
//
//	POST /api/v1/analyses?filename=   analyze the request body
//	POST /api/v1/jobs?filename=       queue the request body for the worker
//	GET  /api/v1/analyses             list recent reports
//	GET  /api/v1/analyses/{id}        fetch a report
//	GET  /api/v1/memory               translation memory stats
//	POST /api/v1/cache/invalidate     drop cached reports
//	GET  /health/live, /health/ready  liveness and readiness
//	GET  /metrics                     Prometheus scrape
//
// Middleware, outermost first: RequestID, CORS, Timeout, Metrics. Analysis and
// job requests are also rate limited per client when limiter is non-nil.
func NewRouter(h *Handler, checker *health.Checker, m *metrics.Metrics, limiter *middleware.Limiter, cfg config.ServerConfig) http.Handler {
	analyze := http.Handler(http.HandlerFunc(h.Analyze))
	submit := http.Handler(http.HandlerFunc(h.SubmitJob))
	if limiter != nil {
		analyze = middleware.RateLimit(limiter)(analyze)
		submit = middleware.RateLimit(limiter)(submit)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/v1/analyses", analyze)
	mux.Handle("POST /api/v1/jobs", submit)
	mux.HandleFunc("GET /api/v1/analyses", h.ListAnalyses)
	mux.HandleFunc("GET /api/v1/analyses/{id}", h.GetAnalysis)
	mux.HandleFunc("GET /api/v1/memory", h.Memory)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.InvalidateCache)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", m.Handler())

	return middleware.Chain(mux,
		middleware.RequestID,
		middleware.CORS(middleware.DefaultCORSConfig()),
		middleware.Timeout(cfg.RequestTimeout),
		middleware.Metrics(m),
	)
}

// Run serves handler on cfg.Port until ctx is done, then shuts down
// gracefully within cfg.ShutdownTimeout.
func Run(ctx context.Context, cfg config.ServerConfig, handler http.Handler) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	slog.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	slog.Info("http server stopped")
	return nil
}
