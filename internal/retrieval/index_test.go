package retrieval

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/synthcerebrum/cerebro/internal/storage"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewIndex(store)
}

func embeddedChunk(set, file string, seq int, vec []float32) storage.Chunk {
	return storage.Chunk{
		ID:           fmt.Sprintf("%s-%s-%d", set, file, seq),
		KnowledgeSet: set,
		SourceFile:   file,
		Sequence:     seq,
		Text:         fmt.Sprintf("chunk %d of %s", seq, file),
		Metadata:     "{}",
		Embedding:    vec,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestDelete_DefaultSetRejected(t *testing.T) {
	ix := openTestIndex(t)
	if err := ix.Delete("default"); !errors.Is(err, ErrDefaultSet) {
		t.Errorf("got %v, want ErrDefaultSet", err)
	}
}

func TestDelete_UnknownSet(t *testing.T) {
	ix := openTestIndex(t)
	if err := ix.Delete("ghost"); !errors.Is(err, ErrUnknownSet) {
		t.Errorf("got %v, want ErrUnknownSet", err)
	}
}

func TestCount_UnknownSet(t *testing.T) {
	ix := openTestIndex(t)
	if _, err := ix.Count("ghost"); !errors.Is(err, ErrUnknownSet) {
		t.Errorf("got %v, want ErrUnknownSet", err)
	}
}

func TestInsert_SetMismatch(t *testing.T) {
	ix := openTestIndex(t)
	chunk := embeddedChunk("other", "a.txt", 0, []float32{1, 0})
	if err := ix.Insert("default", []storage.Chunk{chunk}); err == nil {
		t.Error("expected error for chunk targeting a different set")
	}
}

func TestInsert_MissingEmbedding(t *testing.T) {
	ix := openTestIndex(t)
	chunk := embeddedChunk("default", "a.txt", 0, nil)
	if err := ix.Insert("default", []storage.Chunk{chunk}); err == nil {
		t.Error("expected error for chunk without embedding")
	}
}

func TestSearch_RanksByCosine(t *testing.T) {
	ix := openTestIndex(t)

	chunks := []storage.Chunk{
		embeddedChunk("default", "a.txt", 0, []float32{1, 0, 0}),
		embeddedChunk("default", "a.txt", 1, []float32{0, 1, 0}),
		embeddedChunk("default", "a.txt", 2, []float32{0.9, 0.1, 0}),
	}
	if err := ix.Insert("default", chunks); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := ix.Search("default", []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if got[0].Sequence != 0 {
		t.Errorf("best match should be the identical vector, got sequence %d", got[0].Sequence)
	}
	if got[1].Sequence != 2 {
		t.Errorf("second match should be the near vector, got sequence %d", got[1].Sequence)
	}
	if got[0].Score < got[1].Score {
		t.Error("results not ordered by descending score")
	}
}

func TestSearch_TieBreakByInsertionOrder(t *testing.T) {
	ix := openTestIndex(t)

	// Two chunks with identical vectors score identically; the one ingested
	// first must win the single slot.
	first := embeddedChunk("default", "first.txt", 0, []float32{1, 1, 0})
	second := embeddedChunk("default", "second.txt", 0, []float32{1, 1, 0})
	if err := ix.Insert("default", []storage.Chunk{first}); err != nil {
		t.Fatalf("Insert first: %v", err)
	}
	if err := ix.Insert("default", []storage.Chunk{second}); err != nil {
		t.Fatalf("Insert second: %v", err)
	}

	got, err := ix.Search("default", []float32{1, 1, 0}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d results, want 1", len(got))
	}
	if got[0].SourceFile != "first.txt" {
		t.Errorf("tie should go to the earlier-ingested chunk, got %s", got[0].SourceFile)
	}
}

func TestSearch_TopKLargerThanStore(t *testing.T) {
	ix := openTestIndex(t)

	if err := ix.Insert("default", []storage.Chunk{
		embeddedChunk("default", "a.txt", 0, []float32{1, 0}),
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := ix.Search("default", []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("got %d results, want 1", len(got))
	}
}

func TestSearch_EmptySet(t *testing.T) {
	ix := openTestIndex(t)

	got, err := ix.Search("default", []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d results from an empty set, want 0", len(got))
	}
}

func TestSearch_SetIsolation(t *testing.T) {
	ix := openTestIndex(t)

	if err := ix.Create("work"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := ix.Insert("work", []storage.Chunk{
		embeddedChunk("work", "w.txt", 0, []float32{1, 0}),
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := ix.Search("default", []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 0 {
		t.Error("search must not cross knowledge set boundaries")
	}
}

func TestCreateDelete_Lifecycle(t *testing.T) {
	ix := openTestIndex(t)

	if err := ix.Create("temp"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := ix.Insert("temp", []storage.Chunk{
		embeddedChunk("temp", "t.txt", 0, []float32{0, 1}),
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := ix.Delete("temp"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := ix.Search("temp", []float32{0, 1}, 5); !errors.Is(err, ErrUnknownSet) {
		t.Errorf("search after delete: got %v, want ErrUnknownSet", err)
	}
}

func TestCosine_ZeroVector(t *testing.T) {
	if got := cosine([]float32{0, 0}, []float32{1, 0}, 0); got != 0 {
		t.Errorf("cosine with zero norm should be 0, got %f", got)
	}
}
