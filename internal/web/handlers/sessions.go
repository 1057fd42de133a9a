package handlers

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rivion/rivion/internal/database"
)

// SessionsHandler serves stored analysis sessions.
type SessionsHandler struct {
	sessions database.SessionStore // nil when persistence is disabled
}

func NewSessionsHandler(sessions database.SessionStore) *SessionsHandler {
	return &SessionsHandler{sessions: sessions}
}

// Get handles GET /api/v1/sessions/{id}.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		respondError(w, http.StatusServiceUnavailable, "session persistence is disabled")
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		respondError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	session, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		log.Printf("loading session %s failed: %v", sanitizeForLog(id), err)
		respondError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if session == nil {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":            true,
		"session_id":         session.ID,
		"user_name":          session.UserName,
		"dominant_emotion":   session.DominantEmotion,
		"emotion_confidence": session.Confidence,
		"statement":          session.Statement,
		"match_count":        session.MatchCount,
		"created_at":         session.CreatedAt,
		"expires_at":         session.ExpiresAt,
	})
}
