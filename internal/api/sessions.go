package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/synthcerebrum/cerebro/internal/app"
	"github.com/synthcerebrum/cerebro/internal/feedback"
	"github.com/synthcerebrum/cerebro/internal/session"
)

func handleListSessions(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summaries, err := a.Sessions.List()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "internal_error", "listing sessions: %v", err)
			return
		}
		writeJSON(w, map[string]any{"sessions": summaries})
	}
}

func handleGetSession(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		s, err := a.Sessions.Get(id)
		if errors.Is(err, session.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session %q not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "internal_error", "loading session: %v", err)
			return
		}
		writeJSON(w, s)
	}
}

// handleSaveSession creates or fully overwrites a session. The server mints
// the ID for new sessions and always stamps updatedAt.
func handleSaveSession(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var s session.Session
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request", "invalid session body: %v", err)
			return
		}
		saved, err := a.Sessions.Save(s)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "internal_error", "saving session: %v", err)
			return
		}
		writeJSON(w, saved)
	}
}

func handleDeleteSession(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := a.Sessions.Delete(id); err != nil {
			httpError(w, http.StatusInternalServerError, "internal_error", "deleting session: %v", err)
			return
		}
		writeJSON(w, map[string]any{"deleted": id})
	}
}

func handleFeedback(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			SessionID string `json:"sessionId"`
			MessageID string `json:"messageId"`
			Rating    string `json:"rating"`
			Note      string `json:"note,omitempty"`
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request", "invalid feedback body: %v", err)
			return
		}
		if req.SessionID == "" || req.MessageID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request", "sessionId and messageId are required")
			return
		}
		entry, err := a.Feedback.Record(req.SessionID, req.MessageID, req.Rating, req.Note)
		if errors.Is(err, feedback.ErrInvalidRating) {
			httpError(w, http.StatusBadRequest, "invalid_request", "rating must be %q or %q", feedback.RatingUp, feedback.RatingDown)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "internal_error", "recording feedback: %v", err)
			return
		}
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, entry)
	}
}
