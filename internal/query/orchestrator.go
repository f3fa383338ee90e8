// Package query answers user queries by blending conversation memory and
// retrieved knowledge into a single prompt for the generation backend.
package query

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/synthcerebrum/cerebro/internal/composer"
	"github.com/synthcerebrum/cerebro/internal/ollama"
	"github.com/synthcerebrum/cerebro/internal/retrieval"
	"github.com/synthcerebrum/cerebro/internal/session"
)

// ErrEmptyQuery is returned when the query text is missing or blank.
var ErrEmptyQuery = errors.New("query must not be empty")

const defaultTopK = 4
const defaultAnswerTimeout = 2 * time.Minute

// Backend is the generation backend: a black box that accepts a prompt and
// returns either a full completion or a token stream. The Ollama client
// satisfies this.
type Backend interface {
	Complete(ctx context.Context, model, prompt string, jsonSchema *ollama.Schema) (string, error)
	Generate(ctx context.Context, model, prompt string) (io.ReadCloser, error)
}

// Request carries one query plus its context toggles.
type Request struct {
	Query        string
	KnowledgeSet string
	UseMemory    bool
	UseRAG       bool
	History      []session.Message
}

// Source records the provenance of a retrieved chunk used for grounding.
type Source struct {
	File  string  `json:"file"`
	Score float32 `json:"score"`
}

// Response is a completed answer.
type Response struct {
	Text       string   `json:"text"`
	Structured *Payload `json:"structured,omitempty"`
	Sources    []Source `json:"sources,omitempty"`
}

// Stream is an in-flight streamed answer. Body is the backend's raw
// newline-delimited token stream; the caller owns it and must close it.
type Stream struct {
	Body    io.ReadCloser
	Sources []Source
}

// Orchestrator assembles context and dispatches prompts to the backend.
type Orchestrator struct {
	retriever *retrieval.Retriever
	composer  *composer.Composer
	backend   Backend
	model     string
	topK      int
	timeout   time.Duration
	logger    *slog.Logger
}

// NewOrchestrator creates an Orchestrator. topK <= 0 selects the default (4);
// timeout <= 0 selects the default bounded wait (2m) for non-streamed answers.
func NewOrchestrator(retriever *retrieval.Retriever, comp *composer.Composer, backend Backend, model string, topK int, timeout time.Duration) *Orchestrator {
	if topK <= 0 {
		topK = defaultTopK
	}
	if timeout <= 0 {
		timeout = defaultAnswerTimeout
	}
	return &Orchestrator{
		retriever: retriever,
		composer:  comp,
		backend:   backend,
		model:     model,
		topK:      topK,
		timeout:   timeout,
		logger:    slog.Default(),
	}
}

// Answer resolves a request to a complete response. Backend failures surface
// as recoverable errors; nothing is persisted here, so a total failure
// leaves no partial state behind.
func (o *Orchestrator) Answer(ctx context.Context, req Request) (Response, error) {
	prompt, sources, err := o.assemble(ctx, req)
	if err != nil {
		return Response{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	text, err := o.backend.Complete(ctx, o.model, prompt, nil)
	if err != nil {
		return Response{}, fmt.Errorf("generation backend: %w", err)
	}

	resp := Response{Text: text, Sources: sources}
	if payload := ParsePayload([]byte(strings.TrimSpace(text))); payload != nil {
		resp.Structured = payload
	}
	return resp, nil
}

// OpenStream resolves a request to a token stream for incremental
// consumption. The returned stream is caller-cancellable through ctx.
func (o *Orchestrator) OpenStream(ctx context.Context, req Request) (Stream, error) {
	prompt, sources, err := o.assemble(ctx, req)
	if err != nil {
		return Stream{}, err
	}

	body, err := o.backend.Generate(ctx, o.model, prompt)
	if err != nil {
		return Stream{}, fmt.Errorf("generation backend: %w", err)
	}
	return Stream{Body: body, Sources: sources}, nil
}

// assemble builds the prompt from memory and retrieval context per the
// request toggles. An empty retrieval result degrades to answering without
// grounding rather than failing.
func (o *Orchestrator) assemble(ctx context.Context, req Request) (string, []Source, error) {
	if strings.TrimSpace(req.Query) == "" {
		return "", nil, ErrEmptyQuery
	}

	var history []session.Message
	if req.UseMemory {
		history = req.History
	}

	var chunks []retrieval.ScoredChunk
	if req.UseRAG {
		set := req.KnowledgeSet
		if set == "" {
			set = "default"
		}
		found, err := o.retriever.Retrieve(ctx, set, req.Query, o.topK)
		if err != nil {
			return "", nil, fmt.Errorf("retrieving context: %w", err)
		}
		if len(found) == 0 {
			o.logger.Debug("no chunks retrieved, answering without grounding", "knowledge_set", set)
		}
		chunks = found
	}

	sources := make([]Source, 0, len(chunks))
	for _, ch := range chunks {
		sources = append(sources, Source{File: ch.SourceFile, Score: ch.Score})
	}

	return o.composer.Compose(req.Query, history, chunks), sources, nil
}
