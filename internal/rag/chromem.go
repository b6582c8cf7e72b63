package rag

import (
	"context"
	"fmt"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
)

// chromemCollection is the collection name used inside each private chromem DB.
const chromemCollection = "chunks"

// ChromemStore implements VectorStore on top of an in-process chromem-go
// collection. Each store owns a private, non-persistent chromem DB.
type ChromemStore struct {
	// db is the private chromem database; nil after Close.
	db *chromem.DB
	// collection holds the chunk documents.
	collection *chromem.Collection
}

// NewChromemStore creates an empty chromem-backed store using cosine
// similarity. Documents are always added with pre-computed embeddings, so
// the collection's own embedding function must never be called.
func NewChromemStore() (*ChromemStore, error) {
	db := chromem.NewDB()
	noEmbed := func(context.Context, string) ([]float32, error) {
		return nil, fmt.Errorf("chromem store: embeddings must be supplied by the caller")
	}
	col, err := db.CreateCollection(chromemCollection, map[string]string{"hnsw:space": "cosine"}, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("chromem store: create collection: %w", err)
	}
	return &ChromemStore{db: db, collection: col}, nil
}

// Upsert adds chunks with their embeddings to the collection. Chunk
// provenance travels in the document metadata.
func (s *ChromemStore) Upsert(ctx context.Context, chunks []Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("chromem store: %d chunks but %d embeddings", len(chunks), len(embeddings))
	}

	docs := make([]chromem.Document, 0, len(chunks))
	for i, c := range chunks {
		docs = append(docs, chromem.Document{
			ID:        strconv.Itoa(c.Index),
			Content:   c.Text,
			Embedding: embeddings[i],
			Metadata:  chunkMetadata(c),
		})
	}

	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("chromem store: add documents: %w", err)
	}
	return nil
}

// Search queries the whole collection and re-ranks locally so that distance
// ties resolve in insertion order, then truncates to topK.
func (s *ChromemStore) Search(ctx context.Context, query []float32, topK int) ([]Result, error) {
	n := s.collection.Count()
	if n == 0 || topK <= 0 {
		return nil, nil
	}

	hits, err := s.collection.QueryEmbedding(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem store: query: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		c, err := chunkFromMetadata(h.Metadata)
		if err != nil {
			return nil, fmt.Errorf("chromem store: document %s: %w", h.ID, err)
		}
		c.Text = h.Content
		results = append(results, Result{Chunk: c, Distance: 1 - h.Similarity})
	}

	rank(results)
	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// Close drops the references to the private DB so it can be collected.
func (s *ChromemStore) Close() error {
	s.collection = nil
	s.db = nil
	return nil
}

// chunkMetadata encodes chunk provenance as string metadata.
func chunkMetadata(c Chunk) map[string]string {
	return map[string]string{
		"chunk_index": strconv.Itoa(c.Index),
		"start":       strconv.Itoa(c.Start),
		"end":         strconv.Itoa(c.End),
		"page_start":  strconv.Itoa(c.PageStart),
		"page_end":    strconv.Itoa(c.PageEnd),
	}
}

// chunkFromMetadata is the inverse of chunkMetadata. Text is not restored.
func chunkFromMetadata(m map[string]string) (Chunk, error) {
	var c Chunk
	fields := []struct {
		key string
		dst *int
	}{
		{"chunk_index", &c.Index},
		{"start", &c.Start},
		{"end", &c.End},
		{"page_start", &c.PageStart},
		{"page_end", &c.PageEnd},
	}
	for _, f := range fields {
		v, err := strconv.Atoi(m[f.key])
		if err != nil {
			return Chunk{}, fmt.Errorf("metadata %q: %w", f.key, err)
		}
		*f.dst = v
	}
	return c, nil
}
