package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// DefaultKnowledgeSet is created by the initial migration and cannot be deleted.
const DefaultKnowledgeSet = "default"

// KnowledgeSet is a named partition of chunks and their embeddings.
type KnowledgeSet struct {
	Name      string
	CreatedAt time.Time
}

// Chunk is one bounded span of text cut from a source document, stored
// together with its embedding vector. Uniqueness is
// (KnowledgeSet, SourceFile, Sequence); re-ingesting a file overwrites
// rows sharing that key instead of duplicating them.
type Chunk struct {
	ID           string
	KnowledgeSet string
	SourceFile   string
	Sequence     int
	Text         string
	Metadata     string // JSON object stored as text
	Embedding    []float32
	CreatedAt    time.Time
}
