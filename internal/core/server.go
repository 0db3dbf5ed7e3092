// Package core provides the HTTP chassis for the graphrelay service. It
// creates the chi router, enforces cross-cutting concerns (panic recovery,
// request correlation, timeouts, structured request logging) before requests
// reach domain handlers, and supplies the standard response helpers.
package core

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"graphrelay/internal/config"
)

// Server encapsulates the router and shared dependencies for the HTTP
// surface, allowing injection during testing.
type Server struct {
	Config *config.Config
	Logger *slog.Logger

	// V1RouteRegistrars are populated by the application entry point; this
	// indirection avoids import cycles between core and handler packages.
	V1RouteRegistrars []func(chi.Router)

	router       *chi.Mux
	healthProbes []HealthProbe
}

// NewServer validates dependencies and prepares the server for route
// mounting. The caller mounts routes via MountRoutes after registering
// handlers.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler for http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for tests and route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// MountRoutes registers the global middleware chain, the /v1 API group, and
// the health endpoint.
//
// Middleware order matters:
//  1. Recoverer       - outermost, catches all panics.
//  2. RequestID       - correlation ID before anything logs.
//  3. ContextTimeout  - keeps handling well inside the remote service's
//     webhook delivery timeout.
//  4. RequestLogger   - structured logging with redacted headers.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(ContextTimeoutMiddleware(s.Config.Server.RequestTimeout))
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))

	s.router.Route("/v1", func(r chi.Router) {
		for _, registrar := range s.V1RouteRegistrars {
			registrar(r)
		}
	})

	s.router.Get("/health", s.HandleHealth)
}
