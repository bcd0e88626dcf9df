// Package api provides the HTTP API for usage metering and billing sync.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP API server.
type Server struct {
	router  *chi.Mux
	server  *http.Server
	logger  *slog.Logger
	handler *Handler
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         "0.0.0.0:8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig, handler *Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router:  chi.NewRouter(),
		logger:  logger,
		handler: handler,
	}

	s.registerRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// registerRoutes sets up the API routes.
func (s *Server) registerRoutes() {
	h := s.handler
	r := s.router

	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(requestContext)
	r.Use(h.instrument)

	// Operational
	r.Get("/health", h.Health)
	if h.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", h.metricsHandler)
	}
	r.Get("/v1/plans", h.ListPlans)

	// Authenticated user routes
	r.Group(func(r chi.Router) {
		r.Use(h.requireUser)
		if h.limiter != nil {
			r.Use(h.limiter.Handler)
		}

		r.Get("/v1/usage", h.GetUsage)
		r.Get("/v1/me/plan", h.GetMyPlan)
		r.Post("/v1/charges", h.Charge)
		r.Post("/v1/renders", h.ChargeRender)
		r.Post("/v1/billing/cancel", h.CancelMySubscription)
	})

	// Internal billing sync
	r.Group(func(r chi.Router) {
		r.Use(h.requireAdmin)

		r.Put("/internal/subscriptions/{userID}", h.PutSubscription)
		r.Post("/internal/billing/{provider}/events", h.ProviderEvent)
	})
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info("starting API server",
		"addr", s.server.Addr,
	)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}
