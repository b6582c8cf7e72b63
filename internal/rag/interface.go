// Package rag defines the retrieval half of the docqa pipeline: the chunk and
// result types, the Embedder and VectorStore interfaces, the immutable
// per-document Index built on top of a VectorStore, and the Retriever that
// answers query-time lookups against it.
// Concrete stores (in-memory, chromem, Qdrant) satisfy VectorStore so the
// pipeline never depends on a specific backend.
package rag

import (
	"context"
)

// Chunk is a bounded-length passage of document text used as the unit of
// retrieval. Chunks are immutable once produced by the chunker.
type Chunk struct {
	// Index is the zero-based position of the chunk in document order.
	// It doubles as the insertion order used to break distance ties.
	Index int

	// Text is the chunk content.
	Text string

	// Start is the rune offset of the chunk in the concatenated document text.
	Start int

	// End is the exclusive rune offset of the chunk end.
	End int

	// PageStart is the 1-based page the chunk starts on.
	PageStart int

	// PageEnd is the 1-based page the chunk ends on.
	PageEnd int
}

// Result is one ranked retrieval hit.
type Result struct {
	// Chunk is the matched passage.
	Chunk Chunk

	// Distance is the cosine distance (1 - cosine similarity) between the
	// query vector and the chunk vector. Lower is closer.
	Distance float32
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore persists chunk embeddings and answers similarity queries.
// A store backs exactly one Index and is discarded with it.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Upsert stores a batch of chunks with their pre-computed embeddings.
	// embeddings[i] is the vector for chunks[i].
	Upsert(ctx context.Context, chunks []Chunk, embeddings [][]float32) error

	// Search returns up to topK chunks nearest to the query vector.
	// Ordering is not required; the Index re-ranks the results.
	Search(ctx context.Context, query []float32, topK int) ([]Result, error)

	// Close releases any resources held by the store.
	Close() error
}

// Searcher is the read side of an Index.
type Searcher interface {
	// Search returns the k nearest chunks to query, best match first.
	Search(ctx context.Context, query []float32, k int) ([]Result, error)
}
