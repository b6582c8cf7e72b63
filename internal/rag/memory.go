package rag

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
)

// MemoryStore implements VectorStore with an exact brute-force scan over
// vectors held in process memory. It is the default backend: a single
// document rarely exceeds a few thousand chunks.
type MemoryStore struct {
	// mu guards chunks and vectors.
	mu sync.RWMutex
	// chunks holds the stored chunks in insertion order.
	chunks []Chunk
	// vectors is parallel to chunks.
	vectors [][]float32
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Upsert appends chunks and their embeddings to the store.
func (s *MemoryStore) Upsert(_ context.Context, chunks []Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("memory store: %d chunks but %d embeddings", len(chunks), len(embeddings))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range chunks {
		s.chunks = append(s.chunks, chunks[i])
		s.vectors = append(s.vectors, slices.Clone(embeddings[i]))
	}
	return nil
}

// Search scores every stored vector against query and returns the topK
// closest, ranked by ascending cosine distance with ties in insertion order.
func (s *MemoryStore) Search(_ context.Context, query []float32, topK int) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]Result, 0, len(s.chunks))
	for i, v := range s.vectors {
		results = append(results, Result{
			Chunk:    s.chunks[i],
			Distance: CosineDistance(query, v),
		})
	}

	rank(results)
	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// Close is a no-op; the vectors are released with the store.
func (s *MemoryStore) Close() error { return nil }

// CosineDistance returns 1 - cos(a, b). Vectors of different length or with
// zero magnitude have distance 1 (no similarity).
func CosineDistance(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	d := 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
	if d < 0 {
		// Rounding can push identical vectors slightly below zero.
		d = 0
	}
	return float32(d)
}

// rank sorts results by ascending distance, breaking ties by chunk index.
func rank(results []Result) {
	slices.SortStableFunc(results, func(a, b Result) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		}
		return a.Chunk.Index - b.Chunk.Index
	})
}
