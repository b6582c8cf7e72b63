package rag

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// defaultBatchSize is the number of chunks embedded per Embedder call when
// BuildConfig.BatchSize is zero.
const defaultBatchSize = 32

// BuildConfig holds the inputs for building an Index.
type BuildConfig struct {
	// Embedder embeds every chunk. The same embedder must later be used to
	// embed queries against the index.
	Embedder Embedder

	// Store receives the chunk vectors. Build takes ownership: the store is
	// closed if the build fails, and by Index.Close otherwise.
	Store VectorStore

	// Chunks are the document passages in document order.
	Chunks []Chunk

	// BatchSize caps the number of texts per Embed call. Defaults to 32.
	BatchSize int
}

// Index is the immutable, per-document vector index. It is built once by
// Build and is read-only thereafter; there is no insert or delete.
// It is safe for concurrent Search calls.
type Index struct {
	// store holds the vectors.
	store VectorStore
	// chunks are the indexed chunks in insertion order.
	chunks []Chunk
	// dim is the embedding dimension shared by every vector in the index.
	dim int
}

// Build embeds every non-blank chunk and inserts all vectors into the store.
// It fails with ErrIndexBuild when no embeddable chunk remains, so an empty
// document can never become a queryable index.
func Build(ctx context.Context, cfg *BuildConfig) (idx *Index, err error) {
	if cfg == nil || cfg.Embedder == nil || cfg.Store == nil {
		return nil, fmt.Errorf("%w: rag: build requires an embedder and a store", ErrConfig)
	}
	defer func() {
		if err != nil {
			_ = cfg.Store.Close()
		}
	}()

	chunks := make([]Chunk, 0, len(cfg.Chunks))
	for _, c := range cfg.Chunks {
		if strings.TrimSpace(c.Text) != "" {
			chunks = append(chunks, c)
		}
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: rag: document produced no embeddable chunks", ErrIndexBuild)
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}

	dim := 0
	for start := 0; start < len(chunks); start += batch {
		end := min(start+batch, len(chunks))
		part := chunks[start:end]

		texts := make([]string, len(part))
		for i, c := range part {
			texts[i] = c.Text
		}

		vectors, err := cfg.Embedder.Embed(ctx, texts)
		if err != nil {
			return nil, embeddingErr(fmt.Errorf("rag: embedding chunks %d-%d: %w", start, end-1, err))
		}
		if len(vectors) != len(part) {
			return nil, fmt.Errorf("%w: rag: expected %d embeddings, got %d", ErrEmbedding, len(part), len(vectors))
		}
		for i, v := range vectors {
			if len(v) == 0 {
				return nil, fmt.Errorf("%w: rag: empty embedding for chunk %d", ErrEmbedding, part[i].Index)
			}
			if dim == 0 {
				dim = len(v)
			}
			if len(v) != dim {
				return nil, fmt.Errorf("%w: rag: chunk %d has dimension %d, index has %d",
					ErrEmbedding, part[i].Index, len(v), dim)
			}
		}

		if err := cfg.Store.Upsert(ctx, part, vectors); err != nil {
			return nil, fmt.Errorf("%w: rag: storing vectors: %w", ErrIndexBuild, err)
		}
	}

	return &Index{store: cfg.Store, chunks: chunks, dim: dim}, nil
}

// Search returns the k chunks nearest to query, ranked by ascending cosine
// distance with ties broken by insertion order. k is clamped to Len.
func (x *Index) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	if len(query) != x.dim {
		return nil, fmt.Errorf("%w: rag: query has dimension %d, index has %d", ErrEmbedding, len(query), x.dim)
	}
	k = min(k, len(x.chunks))
	if k <= 0 {
		return nil, nil
	}

	results, err := x.store.Search(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}
	rank(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Len returns the number of indexed chunks.
func (x *Index) Len() int { return len(x.chunks) }

// Dimension returns the embedding dimension of the index.
func (x *Index) Dimension() int { return x.dim }

// Chunks returns a copy of the indexed chunks in insertion order.
func (x *Index) Chunks() []Chunk { return slices.Clone(x.chunks) }

// Close releases the underlying store.
func (x *Index) Close() error {
	if err := x.store.Close(); err != nil {
		return fmt.Errorf("rag: close index: %w", err)
	}
	return nil
}

// embeddingErr tags err with ErrEmbedding unless it already carries a kind.
func embeddingErr(err error) error {
	if errors.Is(err, ErrEmbedding) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrEmbedding, err)
}
