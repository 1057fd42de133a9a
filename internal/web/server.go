// Package web exposes the analysis pipeline over HTTP.
package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/rivion/rivion/internal/config"
	"github.com/rivion/rivion/internal/database"
	"github.com/rivion/rivion/internal/emotion"
	"github.com/rivion/rivion/internal/gallery"
	"github.com/rivion/rivion/internal/match"
	"github.com/rivion/rivion/internal/web/handlers"
	"github.com/rivion/rivion/internal/web/middleware"
)

// Deps carries the services the HTTP handlers operate on.
type Deps struct {
	Encoder  handlers.FaceEncoder
	Emotion  emotion.Provider
	Gallery  *gallery.Store
	Index    *match.HNSWIndex
	Sessions database.SessionStore // nil disables session persistence
}

// Server represents the web server.
type Server struct {
	config     *config.Config
	router     *chi.Mux
	httpServer *http.Server
}

// NewServer creates a new web server.
func NewServer(cfg *config.Config, deps Deps) *Server {
	r := chi.NewRouter()

	s := &Server{
		config: cfg,
		router: r,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(2 * time.Minute))
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	s.setupRoutes(deps)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute, // Long timeout for uploads and base64 payloads
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Printf("Starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down web server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
