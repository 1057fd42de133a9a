package web

import (
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rivion/rivion/internal/web/handlers"
)

func (s *Server) setupRoutes(deps Deps) {
	sessionTTL := time.Duration(s.config.Database.SessionTTLHours) * time.Hour

	analyzeHandler := handlers.NewAnalyzeHandler(
		deps.Encoder,
		deps.Emotion,
		deps.Gallery,
		deps.Index,
		deps.Sessions,
		s.config.Match,
		sessionTTL,
	)
	imagesHandler := handlers.NewImagesHandler(deps.Gallery)
	sessionsHandler := handlers.NewSessionsHandler(deps.Sessions)

	s.router.Get("/api/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)
		r.Post("/analyze-face", analyzeHandler.AnalyzeFace)
		r.Post("/search", analyzeHandler.SearchFace)
		r.Get("/local-images", imagesHandler.LocalImages)
		r.Get("/storage-stats", imagesHandler.StorageStats)
		r.Get("/sessions/{id}", sessionsHandler.Get)
	})
}
