package rag

import (
	"context"
	"fmt"
	"strings"
)

// Retriever answers query-time lookups against one Index. It embeds the query
// with the same Embedder that built the index and delegates similarity search
// to the index. Nothing is cached between calls.
type Retriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder

	// index performs the vector similarity search.
	index Searcher
}

// NewRetriever constructs a Retriever from the given Embedder and Searcher.
func NewRetriever(embedder Embedder, index Searcher) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: rag: embedder must not be nil", ErrConfig)
	}
	if index == nil {
		return nil, fmt.Errorf("%w: rag: index must not be nil", ErrConfig)
	}
	return &Retriever{embedder: embedder, index: index}, nil
}

// Retrieve embeds the query and returns the k most relevant chunks, best
// match first. Fewer than k chunks are returned when the index is smaller.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]Chunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: rag: query must not be empty", ErrEmbedding)
	}

	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, embeddingErr(fmt.Errorf("rag: embedding query failed: %w", err))
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("%w: rag: embedder returned empty result for query", ErrEmbedding)
	}

	results, err := r.index.Search(ctx, embeddings[0], k)
	if err != nil {
		return nil, err
	}

	chunks := make([]Chunk, len(results))
	for i, res := range results {
		chunks[i] = res.Chunk
	}
	return chunks, nil
}
