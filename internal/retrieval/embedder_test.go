package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/synthcerebrum/cerebro/internal/storage"
)

// mockEmbedClient implements EmbedClient for testing.
type mockEmbedClient struct {
	embedFn func(ctx context.Context, model string, text string) ([]float32, error)
}

func (m *mockEmbedClient) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	return m.embedFn(ctx, model, text)
}

func TestEmbed_PassesModel(t *testing.T) {
	var gotModel string
	mock := &mockEmbedClient{
		embedFn: func(_ context.Context, model string, _ string) ([]float32, error) {
			gotModel = model
			return []float32{1, 2, 3}, nil
		},
	}
	e := NewEmbedder(mock, "nomic-embed-text")

	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("got %d dimensions, want 3", len(vec))
	}
	if gotModel != "nomic-embed-text" {
		t.Errorf("got model %q, want nomic-embed-text", gotModel)
	}
}

func TestEmbed_ClientError(t *testing.T) {
	mock := &mockEmbedClient{
		embedFn: func(_ context.Context, _ string, _ string) ([]float32, error) {
			return nil, errors.New("connection refused")
		},
	}
	e := NewEmbedder(mock, "nomic-embed-text")

	if _, err := e.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestEmbedBatch_OrderPreserved(t *testing.T) {
	mock := &mockEmbedClient{
		embedFn: func(_ context.Context, _ string, text string) ([]float32, error) {
			return []float32{float32(len(text))}, nil
		},
	}
	e := NewEmbedder(mock, "nomic-embed-text")

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vecs))
	}
	for i, want := range []float32{1, 2, 3} {
		if vecs[i][0] != want {
			t.Errorf("vector %d: got %f, want %f", i, vecs[i][0], want)
		}
	}
}

func TestEmbedBatch_Empty(t *testing.T) {
	e := NewEmbedder(&mockEmbedClient{}, "nomic-embed-text")
	vecs, err := e.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if vecs != nil {
		t.Errorf("got %v, want nil", vecs)
	}
}

func TestRetrieve_EmbedsAndSearches(t *testing.T) {
	ix := openTestIndex(t)
	if err := ix.Insert("default", []storage.Chunk{
		embeddedChunk("default", "a.txt", 0, []float32{1, 0}),
		embeddedChunk("default", "a.txt", 1, []float32{0, 1}),
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	mock := &mockEmbedClient{
		embedFn: func(_ context.Context, _ string, _ string) ([]float32, error) {
			return []float32{1, 0}, nil
		},
	}
	r := NewRetriever(NewEmbedder(mock, "nomic-embed-text"), ix)

	got, err := r.Retrieve(context.Background(), "default", "anything", 1)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d results, want 1", len(got))
	}
	if got[0].Sequence != 0 {
		t.Errorf("got sequence %d, want 0", got[0].Sequence)
	}
}
