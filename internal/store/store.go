package store

import (
	"database/sql"
	"fmt"
	"time"
)

// timeFormat is the canonical timestamp layout persisted in SQLite.
const timeFormat = "2006-01-02T15:04:05.000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(timeFormat, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05.000", s)
}

// Writer abstracts write operations so every mutation runs through the
// single serialized write connection.
type Writer interface {
	Execute(query string, args ...any) (sql.Result, error)
	ExecuteTx(fn func(tx *sql.Tx) error) error
}

// Store is the data access layer for the sync queue, cursors and local
// entity tables. All mutating operations are wrapped in explicit
// transactions so concurrent readers never observe a half-written row.
type Store struct {
	db      *DB
	writer  Writer
	storeID string
}

// NewStore creates a Store bound to one store identity.
func NewStore(db *DB, storeID string) *Store {
	return &Store{
		db:      db,
		writer:  &DirectWriter{db: db.Write},
		storeID: storeID,
	}
}

// StoreID returns the store identity all queue rows are scoped to.
func (s *Store) StoreID() string {
	return s.storeID
}

// DirectWriter executes SQL directly against the SQLite write connection.
type DirectWriter struct {
	db *sql.DB
}

func (w *DirectWriter) Execute(query string, args ...any) (sql.Result, error) {
	return w.db.Exec(query, args...)
}

func (w *DirectWriter) ExecuteTx(fn func(tx *sql.Tx) error) error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// ExecuteTx runs fn inside one write transaction. Exposed so the pull
// worker can reconcile a page, advance the cursor and write the tracking
// item atomically.
func (s *Store) ExecuteTx(fn func(tx *sql.Tx) error) error {
	return s.writer.ExecuteTx(fn)
}

// ReadDB returns the read connection for queries.
func (s *Store) ReadDB() *sql.DB {
	return s.db.Read
}
