// Package store provides a SQLite-backed transcript of the grounded exchanges
// made against each docqa session. Every answered question and generated quiz
// is appended so it can be reviewed later. Transcripts are never fed back into
// prompts: each exchange is grounded on the document alone.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Kind identifies the operation that produced an exchange.
type Kind string

const (
	// KindAsk is a question answered from the document.
	KindAsk Kind = "ask"
	// KindQuiz is a quiz generated from the document.
	KindQuiz Kind = "quiz"
)

// Exchange is a single recorded request/response pair.
type Exchange struct {
	// Kind is the operation that produced the exchange.
	Kind Kind `json:"kind"`
	// Input is the user's question. Empty for quizzes.
	Input string `json:"input,omitempty"`
	// Output is the model's reply, stored verbatim.
	Output string `json:"output"`
	// CreatedAt is when the exchange was persisted.
	CreatedAt time.Time `json:"created_at"`
}

// TranscriptStore persists and retrieves exchanges keyed by session id.
// Implementations must be safe for concurrent use.
type TranscriptStore interface {
	// Append persists a single exchange for the given session.
	Append(ctx context.Context, sessionID string, kind Kind, input, output string) error
	// Recent returns the most recent n exchanges for the session, ordered
	// oldest-first. If fewer than n exist, all are returned.
	Recent(ctx context.Context, sessionID string, n int) ([]Exchange, error)
	// Forget removes every exchange recorded for the session.
	Forget(ctx context.Context, sessionID string) error
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a TranscriptStore backed by a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// DefaultDBPath returns the default path for the transcript database.
// It resolves to ~/.docqa/history.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".docqa")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Single writer connection avoids SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS exchanges (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id   TEXT    NOT NULL,
    kind         TEXT    NOT NULL CHECK(kind IN ('ask','quiz')),
    input        TEXT    NOT NULL,
    output       TEXT    NOT NULL,
    created_at   INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_exchanges_session_created
    ON exchanges (session_id, created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Append persists a single exchange for the given session.
func (s *SQLiteStore) Append(ctx context.Context, sessionID string, kind Kind, input, output string) error {
	const q = `INSERT INTO exchanges (session_id, kind, input, output, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, sessionID, string(kind), input, output, time.Now().Unix()); err != nil {
		return fmt.Errorf("store: append: %w", err)
	}
	return nil
}

// Recent returns the most recent n exchanges for the session, ordered
// oldest-first.
func (s *SQLiteStore) Recent(ctx context.Context, sessionID string, n int) ([]Exchange, error) {
	const q = `
SELECT kind, input, output, created_at FROM (
    SELECT id, kind, input, output, created_at
    FROM   exchanges
    WHERE  session_id = ?
    ORDER  BY created_at DESC, id DESC
    LIMIT  ?
) ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var out []Exchange
	for rows.Next() {
		var e Exchange
		var ts int64
		var kind string
		if err := rows.Scan(&kind, &e.Input, &e.Output, &ts); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		e.Kind = Kind(kind)
		e.CreatedAt = time.Unix(ts, 0)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return out, nil
}

// Forget removes every exchange recorded for the session.
func (s *SQLiteStore) Forget(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM exchanges WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("store: forget: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
