// Package retrieval provides the embedding index: per-knowledge-set vector
// storage with brute-force cosine similarity search over SQLite.
package retrieval

import (
	"container/heap"
	"errors"
	"fmt"
	"sync"

	"github.com/synthcerebrum/cerebro/internal/storage"
)

// ErrDefaultSet is returned when a caller attempts to delete the default
// knowledge set.
var ErrDefaultSet = errors.New(`the "default" knowledge set cannot be deleted`)

// ErrUnknownSet is returned for operations against a knowledge set that
// does not exist.
var ErrUnknownSet = errors.New("unknown knowledge set")

// ScoredChunk is a stored chunk with a similarity score attached.
type ScoredChunk struct {
	storage.Chunk
	Score float32
}

// Index owns vector storage and similarity search for all knowledge sets.
//
// Create and delete of a given set are serialized against concurrent upserts
// and searches on the same set via a per-set RWMutex, so deletion is
// all-or-nothing from a reader's perspective. Operations on different sets
// never block each other.
type Index struct {
	store *storage.Store

	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

// NewIndex creates an Index over the given store.
func NewIndex(store *storage.Store) *Index {
	return &Index{
		store: store,
		locks: make(map[string]*sync.RWMutex),
	}
}

func (ix *Index) setLock(name string) *sync.RWMutex {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	l, ok := ix.locks[name]
	if !ok {
		l = &sync.RWMutex{}
		ix.locks[name] = l
	}
	return l
}

// Create registers a knowledge set. Creating an existing set is a no-op.
func (ix *Index) Create(name string) error {
	l := ix.setLock(name)
	l.Lock()
	defer l.Unlock()
	return ix.store.CreateKnowledgeSet(name)
}

// Delete removes a knowledge set and all of its chunks and vectors.
// The default set rejects deletion with ErrDefaultSet.
func (ix *Index) Delete(name string) error {
	if name == storage.DefaultKnowledgeSet {
		return ErrDefaultSet
	}

	l := ix.setLock(name)
	l.Lock()
	defer l.Unlock()

	err := ix.store.DeleteKnowledgeSet(name)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownSet, name)
	}
	return err
}

// List returns the names of all knowledge sets.
func (ix *Index) List() ([]string, error) {
	sets, err := ix.store.ListKnowledgeSets()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(sets))
	for i, s := range sets {
		names[i] = s.Name
	}
	return names, nil
}

// Count returns the number of chunks stored in the named set.
func (ix *Index) Count(name string) (int, error) {
	l := ix.setLock(name)
	l.RLock()
	defer l.RUnlock()

	if err := ix.requireSet(name); err != nil {
		return 0, err
	}
	return ix.store.CountChunks(name)
}

// Insert writes already-embedded chunks into the named set in a single
// transaction. Chunks sharing a (set, sourceFile, sequence) key overwrite the
// existing row instead of duplicating it.
func (ix *Index) Insert(name string, chunks []storage.Chunk) error {
	l := ix.setLock(name)
	l.RLock()
	defer l.RUnlock()

	if err := ix.requireSet(name); err != nil {
		return err
	}
	for i := range chunks {
		if chunks[i].KnowledgeSet != name {
			return fmt.Errorf("chunk %s targets set %q, not %q", chunks[i].ID, chunks[i].KnowledgeSet, name)
		}
		if len(chunks[i].Embedding) == 0 {
			return fmt.Errorf("chunk %s has no embedding", chunks[i].ID)
		}
	}
	return ix.store.UpsertChunks(chunks)
}

func (ix *Index) requireSet(name string) error {
	ok, err := ix.store.HasKnowledgeSet(name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSet, name)
	}
	return nil
}

// idScore holds only the row identity and score during the scan phase of
// Search. Full chunk details are fetched only for top-K winners.
type idScore struct {
	ID    string
	RowID int64
	Score float32
}

// Search performs brute-force cosine similarity search over the named set,
// returning the top-K most similar chunks ordered by descending score.
// Ties are broken by insertion order: the earlier-ingested chunk wins.
func (ix *Index) Search(name string, vector []float32, topK int) ([]ScoredChunk, error) {
	l := ix.setLock(name)
	l.RLock()
	defer l.RUnlock()

	if err := ix.requireSet(name); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}

	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	// Phase 1: scan only rowid + id + embedding to find top-K candidates.
	// Scanning in rowid order means an equal-scoring later row never evicts
	// an earlier one from the heap.
	rows, err := ix.store.DB().Query(
		"SELECT rowid, id, embedding FROM chunks WHERE knowledge_set = ? ORDER BY rowid ASC", name)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	h := &idScoreHeap{}
	heap.Init(h)

	// Reusable buffer for decoding embeddings to avoid per-row allocations.
	var buf []float32

	for rows.Next() {
		var rowID int64
		var id string
		var blob []byte
		if err := rows.Scan(&rowID, &id, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		buf, err = storage.DecodeVectorInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", id, err)
		}

		score := cosine(vector, buf, queryNorm)
		if h.Len() < topK {
			heap.Push(h, idScore{ID: id, RowID: rowID, Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = idScore{ID: id, RowID: rowID, Score: score}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	if h.Len() == 0 {
		return nil, nil
	}

	// Phase 2: fetch full chunks only for the top-K IDs.
	ranked := make([]idScore, h.Len())
	for i := len(ranked) - 1; i >= 0; i-- {
		ranked[i] = heap.Pop(h).(idScore)
	}

	byID := make(map[string]storage.Chunk, len(ranked))
	for _, r := range ranked {
		chunk, err := ix.chunkByID(r.ID)
		if err != nil {
			return nil, err
		}
		byID[r.ID] = chunk
	}

	// ranked is already score-descending; restore insertion order among ties.
	sortRanked(ranked)

	results := make([]ScoredChunk, len(ranked))
	for i, r := range ranked {
		results[i] = ScoredChunk{Chunk: byID[r.ID], Score: r.Score}
	}
	return results, nil
}

func (ix *Index) chunkByID(id string) (storage.Chunk, error) {
	row := ix.store.DB().QueryRow(`
		SELECT id, knowledge_set, source_file, sequence, text, metadata, created_at
		FROM chunks WHERE id = ?`, id)

	var c storage.Chunk
	var createdAt string
	if err := row.Scan(&c.ID, &c.KnowledgeSet, &c.SourceFile, &c.Sequence, &c.Text, &c.Metadata, &createdAt); err != nil {
		return storage.Chunk{}, fmt.Errorf("fetching chunk %s: %w", id, err)
	}
	c.CreatedAt, _ = parseTime(createdAt)
	return c, nil
}

// sortRanked sorts by score descending, then rowid ascending. Used for small
// slices (topK) so insertion sort is fine.
func sortRanked(ranked []idScore) {
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && less(ranked[j], ranked[j-1]); j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}
}

func less(a, b idScore) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.RowID < b.RowID
}

// idScoreHeap is a min-heap of idScore ordered by Score, with later rows
// considered worse among equal scores.
type idScoreHeap []idScore

func (h idScoreHeap) Len() int { return len(h) }
func (h idScoreHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].RowID > h[j].RowID
}
func (h idScoreHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *idScoreHeap) Push(x interface{}) { *h = append(*h, x.(idScore)) }
func (h *idScoreHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
