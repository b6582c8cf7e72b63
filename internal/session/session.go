// Package session owns the per-user state of docqa: one analysed document,
// its vector index and the collaborators built from the user's credentials.
// A Session starts Empty, becomes Indexed after a successful Analyze, and is
// replaced in place by each later Analyze. Sessions share no mutable state.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/54b3r/docqa-go/internal/generation"
	"github.com/54b3r/docqa-go/internal/prompt"
	"github.com/54b3r/docqa-go/internal/rag"
)

var (
	// ErrNotFound is returned for an unknown session id.
	ErrNotFound = errors.New("session not found")

	// ErrNotIndexed is returned when a session has no analysed document yet.
	ErrNotIndexed = errors.New("no document has been analysed for this session")
)

// State is the lifecycle stage of a Session.
type State string

const (
	// StateEmpty means no document has been analysed yet.
	StateEmpty State = "empty"
	// StateIndexed means the session holds a searchable index.
	StateIndexed State = "indexed"
)

// Info is a read-only snapshot of a session, safe to serialise.
type Info struct {
	ID        string    `json:"session_id"`
	State     State     `json:"state"`
	Filename  string    `json:"filename,omitempty"`
	Pages     int       `json:"pages"`
	Chunks    int       `json:"chunks"`
	CreatedAt time.Time `json:"created_at"`
	IndexedAt time.Time `json:"indexed_at,omitzero"`
}

// indexed is everything produced by one successful Analyze.
type indexed struct {
	index     *rag.Index
	retriever *rag.Retriever
	generator generation.Generator
	assembler *prompt.Assembler
	maxTokens int
	filename  string
	pages     int
	at        time.Time
}

// Session is one user's analysed document. The index is guarded by an
// RWMutex: retrieval runs under the read lock, a replacement index is built
// outside any lock and swapped in under the write lock.
type Session struct {
	id      string
	created time.Time

	mu     sync.RWMutex
	state  *indexed
	closed bool
}

func newSession(id string) *Session {
	return &Session{id: id, created: time.Now().UTC()}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := Info{ID: s.id, State: StateEmpty, CreatedAt: s.created}
	if st := s.state; st != nil {
		info.State = StateIndexed
		info.Filename = st.filename
		info.Pages = st.pages
		info.Chunks = st.index.Len()
		info.IndexedAt = st.at
	}
	return info
}

// Retrieve searches the current index under the read lock. It satisfies
// pipeline.Retriever so a concurrent Analyze can never close the index
// mid-search.
func (s *Session) Retrieve(ctx context.Context, query string, k int) ([]rag.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == nil {
		return nil, ErrNotIndexed
	}
	return s.state.retriever.Retrieve(ctx, query, k)
}

// current returns the indexed state, or ErrNotIndexed. The returned
// generator and assembler stay valid after a swap; only the index is closed.
func (s *Session) current() (*indexed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == nil {
		return nil, ErrNotIndexed
	}
	return s.state, nil
}

// swap installs next and closes the index it replaces. Once the session is
// closed, next is released instead and ErrNotFound is returned.
func (s *Session) swap(next *indexed) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if err := next.index.Close(); err != nil {
			return fmt.Errorf("%w: %s: release index: %w", ErrNotFound, s.id, err)
		}
		return fmt.Errorf("%w: %s", ErrNotFound, s.id)
	}
	prev := s.state
	s.state = next
	s.mu.Unlock()

	return closeIndex(s.id, prev)
}

// close marks the session closed and releases its index. Later swaps are
// rejected.
func (s *Session) close() error {
	s.mu.Lock()
	s.closed = true
	prev := s.state
	s.state = nil
	s.mu.Unlock()

	return closeIndex(s.id, prev)
}

func closeIndex(id string, st *indexed) error {
	if st == nil {
		return nil
	}
	if err := st.index.Close(); err != nil {
		return fmt.Errorf("session %s: close previous index: %w", id, err)
	}
	return nil
}
