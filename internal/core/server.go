// Package core provides the HTTP chassis for the StageCall operator API.
// It builds a chi router that runs both as a plain HTTP server (local dev)
// and behind AWS Lambda proxy integration. Cross-cutting concerns (panic
// recovery, request correlation, logging, auth) are enforced here before
// requests reach the domain handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"stagecall/internal/config"
)

// MetricsCollector records API request telemetry. The CloudWatch-backed
// implementation lives in the telemetry package; tests inject a fake.
type MetricsCollector interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// RouteRegistrar registers a group of domain routes on the v1 router.
// Handlers register themselves through this indirection so core never
// imports handler packages.
type RouteRegistrar func(r chi.Router)

// Server holds the dependencies of the operator API. All fields are set
// once at startup; the router is immutable after MountRoutes.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator
	Metrics   MetricsCollector

	// HealthProbes are checked concurrently by the /health endpoint.
	HealthProbes []HealthProbe

	// V1RouteRegistrars is populated by main before MountRoutes is called.
	V1RouteRegistrars []RouteRegistrar

	// onShutdown holds cleanup hooks run in registration order.
	onShutdown []func(ctx context.Context) error

	router *chi.Mux
}

// NewServer validates the critical dependencies and prepares the router.
// The caller mounts routes afterwards; the separation lets tests register
// their own handlers.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler for http.ListenAndServe
// or the Lambda chi adapter.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the underlying mux for route registration in tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// OnShutdown registers a cleanup hook (database pool close, log flush).
func (s *Server) OnShutdown(fn func(ctx context.Context) error) {
	s.onShutdown = append(s.onShutdown, fn)
}

// Shutdown runs the registered cleanup hooks. The first failure is
// returned but later hooks still run.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	var firstErr error
	for _, fn := range s.onShutdown {
		if err := fn(ctx); err != nil {
			s.Logger.Error("shutdown hook failed", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	s.Logger.Info("server shutdown complete")
	return firstErr
}
