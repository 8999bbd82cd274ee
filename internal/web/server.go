// Package web serves the upload form and the JSON face-matching endpoints.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Server represents the web server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	handlers   *Handlers
	log        *slog.Logger
}

// NewServer creates a new web server listening on addr.
func NewServer(addr string, h *Handlers, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(2 * time.Minute))

	s := &Server{router: r, handlers: h, log: log}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	h := s.handlers

	s.router.Get("/", h.Index)
	s.router.Post("/uploadfile/", h.UploadFile)

	s.router.Get("/api/v1/health", HealthCheck)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/gallery", h.ListGallery)
		r.Post("/identify", h.Identify)
	})
}

// Start listens, calls ready once the socket is bound, then serves until
// Shutdown.
func (s *Server) Start(ready func()) error {
	l, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.log.Info("starting web server", "addr", l.Addr().String())
	if ready != nil {
		ready()
	}
	if err := s.httpServer.Serve(l); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down web server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
