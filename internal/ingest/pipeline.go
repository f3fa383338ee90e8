// Package ingest drives uploaded files through parse → chunk → embed → store,
// reporting progress as a stream of job snapshots.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/synthcerebrum/cerebro/internal/parser"
	"github.com/synthcerebrum/cerebro/internal/retrieval"
	"github.com/synthcerebrum/cerebro/internal/splitter"
	"github.com/synthcerebrum/cerebro/internal/storage"
)

// Status is the state of an ingestion job. Jobs progress strictly forward:
// queued → parsing → chunking → embedding → stored, with error reachable
// from any non-terminal state. A job that errors stops advancing.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusParsing   Status = "parsing"
	StatusChunking  Status = "chunking"
	StatusEmbedding Status = "embedding"
	StatusStored    Status = "stored"
	StatusError     Status = "error"
)

// Terminal reports whether the status ends a job's progression.
func (s Status) Terminal() bool {
	return s == StatusStored || s == StatusError
}

// Job is one snapshot of a file moving through the pipeline.
type Job struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Status       Status `json:"status"`
	KnowledgeSet string `json:"knowledgeSet"`
	Error        string `json:"error,omitempty"`
}

// File is an uploaded file held in memory for ingestion.
type File struct {
	Name string
	Data []byte
}

// Options control one ingestion run.
type Options struct {
	KnowledgeSet string
	ChunkSize    int
	// EmbedImages is accepted for API parity with the upload surface; the
	// text parsers do not extract images, so it currently gates nothing.
	EmbedImages bool
}

// Pipeline turns files into stored, embedded chunks.
type Pipeline struct {
	embedder    *retrieval.Embedder
	index       *retrieval.Index
	concurrency int
	logger      *slog.Logger
}

// NewPipeline creates a Pipeline. If concurrency <= 0 it defaults to 2
// files in flight at a time.
func NewPipeline(embedder *retrieval.Embedder, index *retrieval.Index, concurrency int) *Pipeline {
	if concurrency <= 0 {
		concurrency = 2
	}
	return &Pipeline{
		embedder:    embedder,
		index:       index,
		concurrency: concurrency,
		logger:      slog.Default(),
	}
}

// Ingest processes all files into the target knowledge set and returns a
// channel of job snapshots, one per state transition. The channel is closed
// once every file has reached a terminal state. Files are processed with
// bounded concurrency; each file's own transitions arrive in order, and
// every submitted file yields exactly one terminal snapshot.
//
// Chunk writes are all-or-nothing per file: a failure at any stage leaves no
// partial chunks behind for that file.
func (p *Pipeline) Ingest(ctx context.Context, files []File, opts Options) <-chan Job {
	ch := make(chan Job)

	go func() {
		defer close(ch)

		emit := func(job Job) {
			select {
			case ch <- job:
			case <-ctx.Done():
			}
		}

		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(p.concurrency)

		for _, f := range files {
			f := f
			g.Go(func() error {
				p.processFile(gCtx, f, opts, emit)
				return nil
			})
		}
		g.Wait()
	}()

	return ch
}

// processFile walks one file through the stage machine, emitting a snapshot
// before each stage runs and a terminal snapshot when it finishes.
func (p *Pipeline) processFile(ctx context.Context, f File, opts Options, emit func(Job)) {
	job := Job{
		ID:           uuid.New().String(),
		Name:         f.Name,
		Status:       StatusQueued,
		KnowledgeSet: opts.KnowledgeSet,
	}
	emit(job)

	fail := func(err error) {
		job.Status = StatusError
		job.Error = err.Error()
		p.logger.Warn("ingestion job failed", "job_id", job.ID, "file", f.Name, "error", err)
		emit(job)
	}

	// Parse.
	job.Status = StatusParsing
	emit(job)
	if ctx.Err() != nil {
		fail(ctx.Err())
		return
	}
	text, err := parser.Parse(f.Name, f.Data)
	if err != nil {
		fail(fmt.Errorf("parsing %s: %w", f.Name, err))
		return
	}

	// Chunk.
	job.Status = StatusChunking
	emit(job)
	pieces := splitter.Split(text, opts.ChunkSize)

	chunks := make([]storage.Chunk, len(pieces))
	now := time.Now().UTC()
	for i, piece := range pieces {
		chunks[i] = storage.Chunk{
			ID:           uuid.New().String(),
			KnowledgeSet: opts.KnowledgeSet,
			SourceFile:   f.Name,
			Sequence:     i,
			Text:         piece,
			Metadata:     chunkMetadata(f, opts),
			CreatedAt:    now,
		}
	}

	// Embed.
	job.Status = StatusEmbedding
	emit(job)
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		fail(fmt.Errorf("embedding %s: %w", f.Name, err))
		return
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}

	// Store. A single transaction keeps the per-file write all-or-nothing.
	if len(chunks) > 0 {
		if err := p.index.Insert(opts.KnowledgeSet, chunks); err != nil {
			fail(fmt.Errorf("storing %s: %w", f.Name, err))
			return
		}
	}

	job.Status = StatusStored
	p.logger.Info("file ingested", "job_id", job.ID, "file", f.Name, "chunks", len(chunks), "knowledge_set", opts.KnowledgeSet)
	emit(job)
}

func chunkMetadata(f File, opts Options) string {
	meta, err := json.Marshal(map[string]any{
		"fileBytes":   len(f.Data),
		"chunkSize":   opts.ChunkSize,
		"embedImages": opts.EmbedImages,
	})
	if err != nil {
		return "{}"
	}
	return string(meta)
}
