package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/synthcerebrum/cerebro/internal/app"
	"github.com/synthcerebrum/cerebro/internal/config"
	"github.com/synthcerebrum/cerebro/internal/query"
	"github.com/synthcerebrum/cerebro/internal/session"
	"github.com/synthcerebrum/cerebro/internal/stream"
)

type queryRequest struct {
	Query        string `json:"query"`
	KnowledgeSet string `json:"knowledgeSet,omitempty"`
	SessionID    string `json:"sessionId,omitempty"`
	UseMemory    bool   `json:"useMemory"`
	UseRAG       bool   `json:"useRag"`
	Stream       bool   `json:"stream"`
}

// handleQuery answers a query against the generation backend, appending the
// exchange to the named session (or a new one). With stream=true the response
// is NDJSON: a sources line, one line per token fragment, then a done line
// carrying the persisted session and message ids.
func handleQuery(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request", "invalid body: %v", err)
			return
		}

		var sess session.Session
		if req.SessionID != "" {
			loaded, err := a.Sessions.Get(req.SessionID)
			if errors.Is(err, session.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "session %q not found", req.SessionID)
				return
			}
			if err != nil {
				httpError(w, http.StatusInternalServerError, "internal_error", "loading session: %v", err)
				return
			}
			sess = loaded
		}

		qreq := query.Request{
			Query:        req.Query,
			KnowledgeSet: req.KnowledgeSet,
			UseMemory:    req.UseMemory,
			UseRAG:       req.UseRAG,
			History:      sess.Messages,
		}

		if req.Stream {
			streamQuery(w, r.Context(), a, qreq, sess)
			return
		}
		answerQuery(w, r.Context(), a, qreq, sess)
	}
}

// answerQuery resolves the query in one round trip. Nothing is persisted on
// failure: a backend error leaves the session exactly as it was.
func answerQuery(w http.ResponseWriter, ctx context.Context, a *app.App, qreq query.Request, sess session.Session) {
	resp, err := a.Answerer.Answer(ctx, qreq)
	if errors.Is(err, query.ErrEmptyQuery) {
		httpError(w, http.StatusBadRequest, "invalid_request", "query must not be empty")
		return
	}
	if err != nil {
		httpError(w, http.StatusBadGateway, "backend_error", "answering query: %v", err)
		return
	}

	userMsg := session.Message{ID: uuid.New().String(), Role: session.RoleUser, Text: qreq.Query}
	asstMsg := session.Message{ID: uuid.New().String(), Role: session.RoleAssistant, Text: resp.Text}
	if resp.Structured != nil {
		if raw, err := json.Marshal(resp.Structured); err == nil {
			asstMsg.Structured = raw
		}
	}
	sess.Messages = append(sess.Messages, userMsg, asstMsg)

	saved, err := a.Sessions.Save(sess)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "internal_error", "saving session: %v", err)
		return
	}

	writeJSON(w, map[string]any{
		"sessionId":  saved.ID,
		"messageId":  asstMsg.ID,
		"text":       resp.Text,
		"structured": resp.Structured,
		"sources":    resp.Sources,
	})
}

// streamQuery relays the backend token stream to the client while folding
// fragments into the assistant message. The session is persisted once the
// stream completes; a stream cut short by cancellation or a backend fault
// leaves the stored session untouched.
func streamQuery(w http.ResponseWriter, ctx context.Context, a *app.App, qreq query.Request, sess session.Session) {
	st, err := a.Answerer.OpenStream(ctx, qreq)
	if errors.Is(err, query.ErrEmptyQuery) {
		httpError(w, http.StatusBadRequest, "invalid_request", "query must not be empty")
		return
	}
	if err != nil {
		httpError(w, http.StatusBadGateway, "backend_error", "opening stream: %v", err)
		return
	}
	defer st.Body.Close()

	conv := session.NewConversation(sess.Messages)
	conv.Append(session.Message{ID: uuid.New().String(), Role: session.RoleUser, Text: qreq.Query})
	asstID := conv.Append(session.Message{ID: uuid.New().String(), Role: session.RoleAssistant})

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	enc.Encode(map[string]any{"sources": st.Sources})
	if flusher != nil {
		flusher.Flush()
	}

	err = stream.NewAdapter().Consume(ctx, st.Body, func(text string) error {
		if err := conv.ApplyFragment(asstID, text); err != nil {
			return err
		}
		if err := enc.Encode(map[string]any{"response": text}); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err != nil {
		slog.Warn("token stream aborted, session not persisted", "error", err)
		return
	}

	sess.Messages = conv.Messages()
	saved, err := a.Sessions.Save(sess)
	if err != nil {
		slog.Error("persisting streamed session", "error", err)
		enc.Encode(map[string]any{"done": true, "error": "session not persisted"})
		return
	}
	enc.Encode(map[string]any{"done": true, "sessionId": saved.ID, "messageId": asstID})
	if flusher != nil {
		flusher.Flush()
	}
}

func handleListModels(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		models, err := a.Ollama.ListModels(r.Context())
		if err != nil {
			httpError(w, http.StatusBadGateway, "backend_error", "listing models: %v", err)
			return
		}
		writeJSON(w, map[string]any{"models": models})
	}
}

func handleGetConfig(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := a.Config.Get()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "internal_error", "loading config: %v", err)
			return
		}
		writeJSON(w, cfg)
	}
}

func handleSetConfig(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch config.EnginePatch
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request", "invalid body: %v", err)
			return
		}
		cfg, err := a.Config.Update(patch)
		if errors.Is(err, config.ErrInvalidConfig) {
			httpError(w, http.StatusBadRequest, "invalid_request", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "internal_error", "updating config: %v", err)
			return
		}
		writeJSON(w, cfg)
	}
}

func handleGetPrefs(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, a.Prefs.Get())
	}
}

func handleSetPrefs(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var prefs app.Preferences
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request", "invalid body: %v", err)
			return
		}
		if err := a.Prefs.Set(prefs); err != nil {
			httpError(w, http.StatusInternalServerError, "internal_error", "saving preferences: %v", err)
			return
		}
		writeJSON(w, prefs)
	}
}

func handleResetPrefs(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := a.Prefs.Reset(); err != nil {
			httpError(w, http.StatusInternalServerError, "internal_error", "resetting preferences: %v", err)
			return
		}
		writeJSON(w, a.Prefs.Get())
	}
}
