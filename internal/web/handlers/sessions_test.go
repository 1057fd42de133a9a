package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rivion/rivion/internal/database"
)

func sessionsRouter(h *SessionsHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/api/v1/sessions/{id}", h.Get)
	return r
}

func TestGetSession(t *testing.T) {
	store := newMemorySessionStore()
	id := uuid.New().String()
	store.saved[id] = &database.AnalysisSession{
		ID:              id,
		UserName:        "alice",
		DominantEmotion: "happy",
		Confidence:      0.9,
		MatchCount:      2,
		CreatedAt:       time.Now(),
		ExpiresAt:       time.Now().Add(time.Hour),
	}

	router := sessionsRouter(NewSessionsHandler(store))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["dominant_emotion"] != "happy" {
		t.Errorf("unexpected session body: %v", body)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	router := sessionsRouter(NewSessionsHandler(newMemorySessionStore()))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+uuid.New().String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestGetSessionInvalidID(t *testing.T) {
	router := sessionsRouter(NewSessionsHandler(newMemorySessionStore()))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestGetSessionPersistenceDisabled(t *testing.T) {
	router := sessionsRouter(NewSessionsHandler(nil))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+uuid.New().String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}
