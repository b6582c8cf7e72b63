package rag

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// qdrantDropTimeout bounds the collection drop performed by Close.
const qdrantDropTimeout = 10 * time.Second

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// CollectionPrefix prefixes the per-index collection names
	// (default: docqa).
	CollectionPrefix string

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// NewQdrantClient opens a gRPC client from cfg, filling in defaults.
// The client is shared by every QdrantStore created from it.
func NewQdrantClient(cfg *QdrantConfig) (*qdrant.Client, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.CollectionPrefix == "" {
		cfg.CollectionPrefix = "docqa"
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}
	return client, nil
}

// tieMargin widens the second query of Search so points scoring equal to the
// k-th result are returned however the server compares against the threshold.
const tieMargin = 1e-6

// qdrantAPI is the part of *qdrant.Client a QdrantStore uses.
type qdrantAPI interface {
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	DeleteCollection(ctx context.Context, name string) error
}

// QdrantStore implements VectorStore with one ephemeral Qdrant collection per
// index. The collection is created on the first Upsert (once the vector size
// is known) and dropped on Close, so nothing outlives the session.
type QdrantStore struct {
	// client is the shared Qdrant gRPC client. It is not closed by the store.
	client qdrantAPI

	// collection is the unique collection name owned by this store.
	collection string

	// once guards collection creation.
	once sync.Once
	// createErr records the outcome of collection creation.
	createErr error

	// points is the number of points upserted so far.
	points atomic.Int64
}

// NewQdrantStore returns a store bound to a fresh, uniquely named collection.
func NewQdrantStore(client *qdrant.Client, prefix string) *QdrantStore {
	if prefix == "" {
		prefix = "docqa"
	}
	return &QdrantStore{
		client:     client,
		collection: prefix + "-" + uuid.NewString(),
	}
}

// Collection returns the name of the collection owned by this store.
func (s *QdrantStore) Collection() string { return s.collection }

// ensureCollection creates the collection with the given vector size.
func (s *QdrantStore) ensureCollection(ctx context.Context, size uint64) error {
	s.once.Do(func() {
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     size,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			s.createErr = fmt.Errorf("qdrant: failed to create collection %q: %w", s.collection, err)
		}
	})
	return s.createErr
}

// Upsert stores chunks and their embeddings as points keyed by chunk index.
func (s *QdrantStore) Upsert(ctx context.Context, chunks []Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("qdrant: %d chunks but %d embeddings", len(chunks), len(embeddings))
	}
	if len(chunks) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx, uint64(len(embeddings[0]))); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for i, c := range chunks {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(uint64(c.Index)), //nolint:gosec // chunk indices are non-negative
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				"content":     c.Text,
				"chunk_index": c.Index,
				"start":       c.Start,
				"end":         c.End,
				"page_start":  c.PageStart,
				"page_end":    c.PageEnd,
			}),
		})
	}

	wait := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	s.points.Add(int64(len(points)))
	return nil
}

// Search returns the topK points nearest to query, ties broken by chunk
// index. The server picks arbitrarily among points tied at the k-th score, so
// when the first page is full a second query fetches every point scoring at
// least that well before ranking locally.
func (s *QdrantStore) Search(ctx context.Context, query []float32, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, nil
	}

	points, err := s.query(ctx, query, uint64(topK), nil)
	if err != nil {
		return nil, err
	}
	if len(points) == topK && int64(topK) < s.points.Load() {
		threshold := points[topK-1].GetScore() - tieMargin
		points, err = s.query(ctx, query, uint64(s.points.Load()), &threshold)
		if err != nil {
			return nil, err
		}
	}

	results := make([]Result, 0, len(points))
	for _, p := range points {
		results = append(results, Result{Chunk: chunkFromPayload(p.GetPayload()), Distance: 1 - p.GetScore()})
	}

	rank(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *QdrantStore) query(ctx context.Context, vec []float32, limit uint64, threshold *float32) ([]*qdrant.ScoredPoint, error) {
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vec...),
		Limit:          &limit,
		ScoreThreshold: threshold,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}
	return points, nil
}

func chunkFromPayload(pl map[string]*qdrant.Value) Chunk {
	if pl == nil {
		return Chunk{}
	}
	return Chunk{
		Index:     int(pl["chunk_index"].GetIntegerValue()),
		Text:      pl["content"].GetStringValue(),
		Start:     int(pl["start"].GetIntegerValue()),
		End:       int(pl["end"].GetIntegerValue()),
		PageStart: int(pl["page_start"].GetIntegerValue()),
		PageEnd:   int(pl["page_end"].GetIntegerValue()),
	}
}

// Close drops the collection owned by this store.
func (s *QdrantStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), qdrantDropTimeout)
	defer cancel()

	if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
		return fmt.Errorf("qdrant: failed to drop collection %q: %w", s.collection, err)
	}
	return nil
}
