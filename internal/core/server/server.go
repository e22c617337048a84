// Package server assembles the HTTP surface and runs it until shutdown.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/gridslice/internal/core/config"
	"github.com/mohammed-shakir/gridslice/internal/core/health"
	middleware "github.com/mohammed-shakir/gridslice/internal/core/middleware"
	"github.com/mohammed-shakir/gridslice/internal/core/router"
)

type Deps struct {
	Handlers  *router.Handlers
	Readiness health.ReadinessReporter
	// Metrics defaults to the global Prometheus handler.
	Metrics     http.Handler
	MetricsPath string
}

// NewHandler builds the router with the shared middleware chain.
func NewHandler(cfg config.Config, logger *slog.Logger, d Deps) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	metricsHandler := d.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	path := d.MetricsPath
	if path == "" {
		path = "/metrics"
	}

	r.Get("/healthz", health.Liveness())
	if d.Readiness != nil {
		r.Get("/readyz", health.Readiness(d.Readiness))
	}
	r.Method(http.MethodGet, path, metricsHandler)
	d.Handlers.Mount(r)
	return r
}

// sets up http and starts serving
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, d Deps) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(cfg, logger, d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
