// Package server exposes the browser tools over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/entrhq/browserd/pkg/browser/session"
	"github.com/entrhq/browserd/pkg/dispatch"
	"github.com/entrhq/browserd/pkg/logging"
)

// Options configures the HTTP server.
type Options struct {
	Addr           string
	AllowedOrigins []string
	// RequestTimeout bounds a single tool call; zero disables it.
	RequestTimeout time.Duration
}

// Server represents the HTTP API server
type Server struct {
	router *chi.Mux
	server *http.Server
	logger *logging.Logger
}

// New creates a new HTTP server serving the tools of d. registry backs the
// read-only session listing.
func New(opts Options, d *dispatch.Dispatcher, registry *session.Registry, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(recoveryMiddleware(logger))
	router.Use(loggingMiddleware(logger))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := &handlers{dispatcher: d, registry: registry, logger: logger}

	router.Get("/healthz", h.health)
	router.Get("/sessions", h.listSessions)
	router.Post("/call", h.callXML)
	router.Route("/tools", func(r chi.Router) {
		if opts.RequestTimeout > 0 {
			r.Use(middleware.Timeout(opts.RequestTimeout))
		}
		r.Get("/", h.listTools)
		r.Post("/{name}", h.callTool)
	})

	return &Server{
		router: router,
		server: &http.Server{
			Addr:              opts.Addr,
			Handler:           router,
			ReadHeaderTimeout: 15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Infof("starting HTTP server on %s", s.server.Addr)

	err := s.server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Infof("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	s.logger.Infof("HTTP server stopped")
	return nil
}
