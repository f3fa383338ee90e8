// Package api exposes the REST surface over the application context.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/synthcerebrum/cerebro/internal/app"
)

const (
	maxRequestBodySize = 1 << 20  // 1MB
	maxUploadBodySize  = 25 << 20 // 25MB, matches the upload surface limit
)

// NewHandler returns the http.Handler implementing the REST API.
func NewHandler(a *app.App) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/config", handleGetConfig(a))
		r.Post("/config", handleSetConfig(a))
		r.Get("/models", handleListModels(a))

		r.Get("/prefs", handleGetPrefs(a))
		r.Post("/prefs", handleSetPrefs(a))
		r.Delete("/prefs", handleResetPrefs(a))

		r.Get("/sessions", handleListSessions(a))
		r.Get("/sessions/{id}", handleGetSession(a))
		r.Post("/sessions", handleSaveSession(a))
		r.Delete("/sessions/{id}", handleDeleteSession(a))

		r.Post("/feedback", handleFeedback(a))

		r.Get("/knowledge-sets", handleListSets(a))
		r.Post("/knowledge-sets", handleCreateSet(a))
		r.Delete("/knowledge-sets/{name}", handleDeleteSet(a))
		r.Get("/knowledge-sets/{name}/count", handleCountSet(a))
		r.Get("/knowledge-sets/{name}/search", handleSearchSet(a))
		r.Post("/knowledge-sets/{name}/ingest", handleIngest(a))
		r.Post("/knowledge", handleAddKnowledge(a))

		r.Post("/query", handleQuery(a))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
