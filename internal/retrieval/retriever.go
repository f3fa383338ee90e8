package retrieval

import (
	"context"
)

// Retriever combines query embedding and vector search to find relevant
// context chunks for a knowledge set.
type Retriever struct {
	embedder *Embedder
	index    *Index
}

// NewRetriever creates a Retriever backed by the given Embedder and Index.
func NewRetriever(embedder *Embedder, index *Index) *Retriever {
	return &Retriever{embedder: embedder, index: index}
}

// Retrieve embeds the query and returns the top-K most similar chunks from
// the named knowledge set.
func (r *Retriever) Retrieve(ctx context.Context, knowledgeSet, query string, topK int) ([]ScoredChunk, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return r.index.Search(knowledgeSet, vec, topK)
}
