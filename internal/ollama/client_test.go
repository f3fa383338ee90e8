package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestIsRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	if !c.IsRunning(context.Background()) {
		t.Error("expected running")
	}

	down := New("http://127.0.0.1:1")
	if down.IsRunning(context.Background()) {
		t.Error("expected not running for unreachable server")
	}
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[{"name":"llama3.1:latest"},{"name":"nomic-embed-text:latest"}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("got %d models, want 2", len(models))
	}
	if models[0] != "llama3.1:latest" {
		t.Errorf("got %q", models[0])
	}
}

func TestHasModel_TagSuffixMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[{"name":"llama3.1:latest"}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	if !c.HasModel(context.Background(), "llama3.1") {
		t.Error("bare name should match the tagged model")
	}
	if !c.HasModel(context.Background(), "llama3.1:latest") {
		t.Error("exact name should match")
	}
	if c.HasModel(context.Background(), "mistral") {
		t.Error("absent model should not match")
	}
}

func TestGenerate_StreamsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
			Stream bool   `json:"stream"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if !req.Stream {
			t.Error("Generate must request a streamed response")
		}
		if req.Model != "m" || req.Prompt != "p" {
			t.Errorf("got model=%q prompt=%q", req.Model, req.Prompt)
		}
		fmt.Fprintln(w, `{"response":"to","done":false}`)
		fmt.Fprintln(w, `{"response":"ken","done":true}`)
	}))
	defer srv.Close()

	c := New(srv.URL)
	body, err := c.Generate(context.Background(), "m", "p")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if !strings.Contains(string(data), `"response":"to"`) {
		t.Errorf("unexpected stream: %s", data)
	}
}

func TestGenerate_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.Generate(context.Background(), "m", "p"); err == nil {
		t.Error("expected error for non-200 status")
	}
}

func TestComplete_ReturnsFullResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Stream bool `json:"stream"`
			Format any  `json:"format"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Stream {
			t.Error("Complete must not request streaming")
		}
		w.Write([]byte(`{"response":"full answer"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	got, err := c.Complete(context.Background(), "m", "p", nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "full answer" {
		t.Errorf("got %q", got)
	}
}

func TestComplete_SendsSchema(t *testing.T) {
	var sawFormat bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		_, sawFormat = req["format"]
		w.Write([]byte(`{"response":"{}"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	schema := &Schema{Type: "object", Properties: map[string]SchemaProperty{"x": {Type: "string"}}}
	if _, err := c.Complete(context.Background(), "m", "p", schema); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !sawFormat {
		t.Error("schema should be sent as the format field")
	}
}

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"embeddings":[[0.1,0.2,0.3]]}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	vec, err := c.Embed(context.Background(), "m", "text")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("got %d floats, want 3", len(vec))
	}
}

func TestEmbed_EmptyEmbeddings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embeddings":[]}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.Embed(context.Background(), "m", "text"); err == nil {
		t.Error("expected error for empty embeddings")
	}
}

func TestPullModel_ReportsProgress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"status":"downloading","total":100,"completed":50}`)
		fmt.Fprintln(w, `{"status":"success"}`)
	}))
	defer srv.Close()

	c := New(srv.URL)
	var statuses []string
	err := c.PullModel(context.Background(), "m", func(p PullProgress) {
		statuses = append(statuses, p.Status)
	})
	if err != nil {
		t.Fatalf("PullModel: %v", err)
	}
	if len(statuses) != 2 || statuses[1] != "success" {
		t.Errorf("got %v", statuses)
	}
}

func TestEnsureReady_NotRunning(t *testing.T) {
	c := New("http://127.0.0.1:1")
	err := EnsureReady(context.Background(), c, "gen", "embed", io.Discard)
	if err == nil {
		t.Fatal("expected error when Ollama is unreachable")
	}
}

func TestEnsureReady_ModelsPresent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.Write([]byte(`{"models":[{"name":"gen:latest"},{"name":"embed:latest"}]}`))
		case "/api/generate":
			w.Write([]byte(`{"response":"pong"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	var out strings.Builder
	if err := EnsureReady(context.Background(), c, "gen", "embed", &out); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if !strings.Contains(out.String(), "model gen: ready") {
		t.Errorf("missing readiness output: %s", out.String())
	}
}
