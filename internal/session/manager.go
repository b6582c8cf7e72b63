package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/54b3r/docqa-go/internal/budget"
	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/pipeline"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/store"
)

// defaultHistoryLimit caps History when the caller passes n <= 0.
const defaultHistoryLimit = 50

// Ingestor extracts page text from an uploaded document.
// *ingestion.PDFIngestor satisfies it.
type Ingestor interface {
	Ingest(ctx context.Context, doc ingestion.Document) ([]ingestion.TextUnit, error)
}

// Config wires a Manager.
type Config struct {
	// Backends builds embedders, generators and vector stores. Required.
	Backends Backends
	// Ingestor extracts document text. Required.
	Ingestor Ingestor
	// Chunker splits extracted text. Required.
	Chunker *ingestion.Chunker
	// Transcripts records answered exchanges. Optional.
	Transcripts store.TranscriptStore
	// ObservePrompt receives the prompt budget of every generation. Optional.
	ObservePrompt func(op string, u budget.Usage)
}

// Manager owns the id → session map. Each operation on a session only holds
// the map lock long enough to look the session up.
type Manager struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager validates cfg and returns an empty Manager.
func NewManager(cfg *Config) (*Manager, error) {
	if cfg == nil || cfg.Backends == nil || cfg.Ingestor == nil || cfg.Chunker == nil {
		return nil, fmt.Errorf("%w: session: backends, ingestor and chunker are required", rag.ErrConfig)
	}
	return &Manager{cfg: *cfg, sessions: make(map[string]*Session)}, nil
}

// Create registers a new Empty session and returns it.
func (m *Manager) Create() *Session {
	s := newSession(uuid.NewString())

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	return s
}

// Get returns the session with id, or ErrNotFound.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Analyze ingests doc, builds a fresh index with collaborators derived from
// creds and installs it in the session. An empty id creates a new session.
// On failure the session keeps whatever it held before; a session created by
// this call is discarded.
func (m *Manager) Analyze(ctx context.Context, id string, doc ingestion.Document, creds Credentials) (*Session, error) {
	var (
		s       *Session
		created bool
	)
	if id == "" {
		s, created = m.Create(), true
	} else {
		var err error
		if s, err = m.Get(id); err != nil {
			return nil, err
		}
	}

	log := logging.FromContext(ctx).With(slog.String("session_id", s.id))
	start := time.Now()

	next, err := m.build(ctx, doc, creds)
	if err != nil {
		if created {
			m.remove(s.id)
		}
		log.Warn("analyze failed", slog.String("filename", doc.Name), slog.Any("error", err))
		return nil, err
	}

	if err := s.swap(next); err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Warn("session closed during analyze, index discarded", slog.Any("error", err))
			return nil, err
		}
		// The new index is live; only the old one failed to close.
		log.Warn("previous index not released", slog.Any("error", err))
	}

	log.Info("document analysed",
		slog.String("filename", doc.Name),
		slog.Int("pages", next.pages),
		slog.Int("chunks", next.index.Len()),
		slog.Int("dimension", next.index.Dimension()),
		slog.Duration("duration", time.Since(start)),
	)
	return s, nil
}

// build runs ingest, chunk, embed and index without touching any session.
func (m *Manager) build(ctx context.Context, doc ingestion.Document, creds Credentials) (*indexed, error) {
	units, err := m.cfg.Ingestor.Ingest(ctx, doc)
	if err != nil {
		return nil, err
	}
	chunks := m.cfg.Chunker.Split(units)

	eng, err := m.cfg.Backends.Engine(ctx, creds)
	if err != nil {
		return nil, err
	}
	vs, err := m.cfg.Backends.VectorStore(ctx)
	if err != nil {
		return nil, err
	}
	if named, ok := vs.(interface{ Collection() string }); ok {
		logging.FromContext(ctx).Info("index collection created", slog.String("collection", named.Collection()))
	}

	idx, err := rag.Build(ctx, &rag.BuildConfig{
		Embedder: eng.Embedder,
		Store:    vs,
		Chunks:   chunks,
	})
	if err != nil {
		return nil, err
	}
	retriever, err := rag.NewRetriever(eng.Embedder, idx)
	if err != nil {
		_ = idx.Close()
		return nil, err
	}

	return &indexed{
		index:     idx,
		retriever: retriever,
		generator: eng.Generator,
		assembler: eng.Assembler,
		maxTokens: eng.MaxOutputTokens,
		filename:  doc.Name,
		pages:     len(units),
		at:        time.Now().UTC(),
	}, nil
}

// Ask answers question from the session's document.
func (m *Manager) Ask(ctx context.Context, id, question string) (string, error) {
	s, st, err := m.indexed(id)
	if err != nil {
		return "", err
	}
	answer, err := pipeline.AnswerQuestion(ctx, m.deps(s, st), question)
	if err != nil {
		return "", err
	}
	m.record(ctx, s.id, store.KindAsk, question, answer)
	return answer, nil
}

// Quiz generates a three-question quiz from the session's document.
func (m *Manager) Quiz(ctx context.Context, id string) (string, error) {
	s, st, err := m.indexed(id)
	if err != nil {
		return "", err
	}
	quiz, err := pipeline.GenerateQuiz(ctx, m.deps(s, st))
	if err != nil {
		return "", err
	}
	m.record(ctx, s.id, store.KindQuiz, "", quiz)
	return quiz, nil
}

// History returns up to n recorded exchanges for the session, oldest first.
func (m *Manager) History(ctx context.Context, id string, n int) ([]store.Exchange, error) {
	if _, err := m.Get(id); err != nil {
		return nil, err
	}
	if m.cfg.Transcripts == nil {
		return nil, nil
	}
	if n <= 0 {
		n = defaultHistoryLimit
	}
	return m.cfg.Transcripts.Recent(ctx, id, n)
}

// Delete closes the session's index, forgets its transcript and removes it.
func (m *Manager) Delete(ctx context.Context, id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	m.remove(id)

	var errs []error
	if err := s.close(); err != nil {
		errs = append(errs, err)
	}
	if m.cfg.Transcripts != nil {
		if err := m.cfg.Transcripts.Forget(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases every session. The Manager must not be used afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

func (m *Manager) indexed(id string) (*Session, *indexed, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, nil, err
	}
	st, err := s.current()
	if err != nil {
		return nil, nil, err
	}
	return s, st, nil
}

// deps retrieves through the session so every search sees a complete index,
// and generates with the collaborators of the index current at call time.
func (m *Manager) deps(s *Session, st *indexed) pipeline.Deps {
	return pipeline.Deps{
		Retriever:       s,
		Generator:       st.generator,
		Assembler:       st.assembler,
		MaxOutputTokens: st.maxTokens,
		ObservePrompt:   m.cfg.ObservePrompt,
	}
}

// record appends an exchange to the transcript. Failures are logged only;
// the caller already has its answer.
func (m *Manager) record(ctx context.Context, id string, kind store.Kind, input, output string) {
	if m.cfg.Transcripts == nil {
		return
	}
	if err := m.cfg.Transcripts.Append(ctx, id, kind, input, output); err != nil {
		logging.FromContext(ctx).Warn("transcript append failed",
			slog.String("session_id", id),
			slog.Any("error", err),
		)
	}
}
