package rag

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"testing"

	"github.com/qdrant/go-client/qdrant"
)

// fakeQdrant stands in for the qdrant server. Scores are assigned per point
// id by the test; among equal scores the highest id is returned first, which
// is a legal server order the store must not depend on.
type fakeQdrant struct {
	mu      sync.Mutex
	scores  map[uint64]float32
	points  []*qdrant.PointStruct
	queries []*qdrant.QueryPoints
	dropped bool
}

func (f *fakeQdrant) CreateCollection(context.Context, *qdrant.CreateCollection) error { return nil }

func (f *fakeQdrant) Upsert(_ context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, req.GetPoints()...)
	return &qdrant.UpdateResult{}, nil
}

func (f *fakeQdrant) Query(_ context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, req)

	var out []*qdrant.ScoredPoint
	for _, p := range f.points {
		score := f.scores[p.GetId().GetNum()]
		if req.ScoreThreshold != nil && score < req.GetScoreThreshold() {
			continue
		}
		out = append(out, &qdrant.ScoredPoint{Id: p.GetId(), Payload: p.GetPayload(), Score: score})
	}
	slices.SortFunc(out, func(a, b *qdrant.ScoredPoint) int {
		if c := cmp.Compare(b.GetScore(), a.GetScore()); c != 0 {
			return c
		}
		return cmp.Compare(b.GetId().GetNum(), a.GetId().GetNum())
	})
	if limit := int(req.GetLimit()); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeQdrant) DeleteCollection(context.Context, string) error {
	f.mu.Lock()
	f.dropped = true
	f.mu.Unlock()
	return nil
}

func newFakeQdrantStore(t *testing.T, scores map[uint64]float32, texts ...string) (*QdrantStore, *fakeQdrant) {
	t.Helper()
	fake := &fakeQdrant{scores: scores}
	s := &QdrantStore{client: fake, collection: "docqa-test"}

	chunks := chunksOf(texts...)
	vecs := make([][]float32, len(chunks))
	for i := range vecs {
		vecs[i] = []float32{1, 0}
	}
	if err := s.Upsert(context.Background(), chunks, vecs); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	return s, fake
}

func TestQdrantStore_TiesResolveInInsertionOrder(t *testing.T) {
	t.Parallel()

	s, fake := newFakeQdrantStore(t,
		map[uint64]float32{0: 0.9, 1: 0.9, 2: 0.9, 3: 0.1},
		"alpha", "beta", "gamma", "delta",
	)

	got, err := s.Search(context.Background(), []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 || got[0].Chunk.Index != 0 || got[1].Chunk.Index != 1 {
		t.Fatalf("want chunks [0 1], got %+v", got)
	}
	if got[0].Chunk.Text != "alpha" {
		t.Errorf("payload not decoded: %+v", got[0].Chunk)
	}
	if len(fake.queries) != 2 || fake.queries[1].ScoreThreshold == nil {
		t.Errorf("expected a second, thresholded query; got %d queries", len(fake.queries))
	}
}

func TestQdrantStore_ShortPageSkipsSecondQuery(t *testing.T) {
	t.Parallel()

	s, fake := newFakeQdrantStore(t, map[uint64]float32{0: 0.5, 1: 0.7}, "alpha", "beta")

	got, err := s.Search(context.Background(), []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 || got[0].Chunk.Index != 1 {
		t.Fatalf("want chunk 1 first, got %+v", got)
	}
	if len(fake.queries) != 1 {
		t.Errorf("want one query, got %d", len(fake.queries))
	}
}

func TestQdrantStore_CloseDropsCollection(t *testing.T) {
	t.Parallel()

	s, fake := newFakeQdrantStore(t, nil, "alpha")
	if got := s.Collection(); got != "docqa-test" {
		t.Errorf("Collection: got %q", got)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !fake.dropped {
		t.Error("collection not dropped")
	}
}
