// Package store persists conversation transcripts and thread metadata in a
// single SQLite database.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // register pure-Go SQLite driver
)

// ErrThreadNotFound is returned when a thread id has no metadata row.
var ErrThreadNotFound = errors.New("thread not found")

// timeLayout is fixed width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store owns the database handle shared by Messages and Threads.
type Store struct {
	db  *sql.DB
	now func() time.Time

	Messages *Messages
	Threads  *Threads
}

// Option customises a Store.
type Option func(*Store)

// WithClock replaces the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens (creating if needed) the database at dsn and ensures the schema.
// Pass ":memory:" for a throwaway database.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", dsn)
	}
	// Each pooled connection to :memory: would see its own database.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.Messages = &Messages{db: db, now: s.now}
	s.Threads = &Threads{db: db, now: s.now}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS thread_metadata (
			thread_id     TEXT PRIMARY KEY,
			thread_name   TEXT NOT NULL,
			document_name TEXT,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			thread_id  TEXT    NOT NULL,
			seq        INTEGER NOT NULL,
			kind       TEXT    NOT NULL,
			payload    TEXT    NOT NULL,
			created_at TEXT    NOT NULL,
			PRIMARY KEY (thread_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_thread_metadata_updated ON thread_metadata(updated_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "migrate")
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse timestamp %q", s)
	}
	return t, nil
}
