package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/synthcerebrum/cerebro/internal/app"
	"github.com/synthcerebrum/cerebro/internal/ingest"
	"github.com/synthcerebrum/cerebro/internal/retrieval"
)

func handleListSets(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sets, err := a.Index.List()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "internal_error", "listing knowledge sets: %v", err)
			return
		}
		writeJSON(w, map[string]any{"sets": sets})
	}
}

func handleCreateSet(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name string `json:"name"`
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request", "invalid body: %v", err)
			return
		}
		if err := a.Index.Create(req.Name); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request", "creating knowledge set: %v", err)
			return
		}
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, map[string]any{"name": req.Name})
	}
}

func handleDeleteSet(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		err := a.Index.Delete(name)
		switch {
		case errors.Is(err, retrieval.ErrDefaultSet):
			httpError(w, http.StatusBadRequest, "invalid_request", "the default knowledge set cannot be deleted")
		case errors.Is(err, retrieval.ErrUnknownSet):
			httpError(w, http.StatusNotFound, "not_found", "knowledge set %q not found", name)
		case err != nil:
			httpError(w, http.StatusInternalServerError, "internal_error", "deleting knowledge set: %v", err)
		default:
			writeJSON(w, map[string]any{"deleted": name})
		}
	}
}

func handleCountSet(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		count, err := a.Index.Count(name)
		if errors.Is(err, retrieval.ErrUnknownSet) {
			httpError(w, http.StatusNotFound, "not_found", "knowledge set %q not found", name)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "internal_error", "counting chunks: %v", err)
			return
		}
		writeJSON(w, map[string]any{"set": name, "count": count})
	}
}

// handleSearchSet runs a semantic search and returns the ranked chunks.
func handleSearchSet(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		q := r.URL.Query().Get("q")
		if q == "" {
			httpError(w, http.StatusBadRequest, "invalid_request", "query parameter q is required")
			return
		}
		topK := 5
		if k := r.URL.Query().Get("k"); k != "" {
			parsed, err := strconv.Atoi(k)
			if err != nil || parsed < 1 {
				httpError(w, http.StatusBadRequest, "invalid_request", "k must be a positive integer")
				return
			}
			topK = parsed
		}

		chunks, err := a.Retriever().Retrieve(r.Context(), name, q, topK)
		if errors.Is(err, retrieval.ErrUnknownSet) {
			httpError(w, http.StatusNotFound, "not_found", "knowledge set %q not found", name)
			return
		}
		if err != nil {
			httpError(w, http.StatusBadGateway, "backend_error", "searching: %v", err)
			return
		}

		type result struct {
			ID         string  `json:"id"`
			SourceFile string  `json:"sourceFile"`
			Text       string  `json:"text"`
			Score      float32 `json:"score"`
		}
		results := make([]result, len(chunks))
		for i, c := range chunks {
			results[i] = result{ID: c.ID, SourceFile: c.SourceFile, Text: c.Text, Score: c.Score}
		}
		writeJSON(w, map[string]any{"results": results})
	}
}

type ingestRequest struct {
	Files []struct {
		Name    string `json:"name"`
		Content string `json:"content"` // base64
	} `json:"files"`
	ChunkSize   int  `json:"chunkSize,omitempty"`
	EmbedImages bool `json:"embedImages,omitempty"`
}

// handleIngest accepts files and streams one NDJSON job snapshot per state
// transition. Input errors are rejected up front, before any pipeline state
// is touched; after the first snapshot is written the response is committed
// and per-file failures arrive as error snapshots in the stream.
func handleIngest(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		set := chi.URLParam(r, "name")

		var req ingestRequest
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBodySize)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request", "invalid body: %v", err)
			return
		}
		if len(req.Files) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request", "no files provided")
			return
		}
		if _, err := a.Index.Count(set); errors.Is(err, retrieval.ErrUnknownSet) {
			httpError(w, http.StatusNotFound, "not_found", "knowledge set %q not found", set)
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, "internal_error", "checking knowledge set: %v", err)
			return
		}

		files := make([]ingest.File, 0, len(req.Files))
		for _, f := range req.Files {
			if f.Name == "" {
				httpError(w, http.StatusBadRequest, "invalid_request", "file name is required")
				return
			}
			data, err := base64.StdEncoding.DecodeString(f.Content)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request", "file %q: content is not valid base64", f.Name)
				return
			}
			files = append(files, ingest.File{Name: f.Name, Data: data})
		}

		opts := ingest.Options{
			KnowledgeSet: set,
			ChunkSize:    req.ChunkSize,
			EmbedImages:  req.EmbedImages,
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("Cache-Control", "no-cache")
		flusher, _ := w.(http.Flusher)

		enc := json.NewEncoder(w)
		for job := range a.Pipeline.Ingest(r.Context(), files, opts) {
			if err := enc.Encode(job); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

// handleAddKnowledge stores a free-text note into a knowledge set by running
// it through the full ingestion pipeline as a synthetic text file.
func handleAddKnowledge(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text         string `json:"text"`
			KnowledgeSet string `json:"knowledgeSet,omitempty"`
			Filename     string `json:"filename,omitempty"`
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request", "invalid body: %v", err)
			return
		}
		if req.Text == "" {
			httpError(w, http.StatusBadRequest, "invalid_request", "text is required")
			return
		}
		set := req.KnowledgeSet
		if set == "" {
			set = "default"
		}
		if _, err := a.Index.Count(set); errors.Is(err, retrieval.ErrUnknownSet) {
			httpError(w, http.StatusNotFound, "not_found", "knowledge set %q not found", set)
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, "internal_error", "checking knowledge set: %v", err)
			return
		}

		name := req.Filename
		if name == "" {
			name = fmt.Sprintf("note-%d.txt", time.Now().UnixMilli())
		}

		var final ingest.Job
		jobs := a.Pipeline.Ingest(r.Context(), []ingest.File{{Name: name, Data: []byte(req.Text)}}, ingest.Options{KnowledgeSet: set})
		for job := range jobs {
			final = job
		}
		if final.Status == ingest.StatusError {
			httpError(w, http.StatusInternalServerError, "internal_error", "storing note: %s", final.Error)
			return
		}
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, final)
	}
}
