// Package store persists analysis sessions, per-file results, and the
// cross-session hash catalog in a single SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // sqlite driver for database/sql
)

// Sentinel errors.
var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionNotRunning = errors.New("session is not running")
	ErrDuplicateResult   = errors.New("result already recorded for this file")
	ErrUnknownAlgorithm  = errors.New("no hash column for algorithm")
	ErrInvalidRetention  = errors.New("retention days must not be negative")
)

// Session statuses. Transitions are one-way: running is the only state
// that can move, and it moves exactly once.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusError     = "error"
)

const defaultReaderConns = 4

// Store wraps two connection pools over one database file: a
// single-connection writer, so result inserts never contend, and a small
// reader pool for queries.
type Store struct {
	writer *sql.DB
	reader *sql.DB
	logger *slog.Logger
	path   string
}

// Open creates or opens the database at path, applies pragmas, and runs
// pending migrations. A nil logger discards diagnostics.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if dir := filepath.Dir(path); dir != "." {
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			return nil, fmt.Errorf("create store directory: %w", mkErr)
		}
	}

	writer, writerErr := openPool(path, 1)
	if writerErr != nil {
		return nil, fmt.Errorf("open writer: %w", writerErr)
	}

	reader, readerErr := openPool(path, defaultReaderConns)
	if readerErr != nil {
		_ = writer.Close()

		return nil, fmt.Errorf("open reader: %w", readerErr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if schemaErr := ensureSchema(ctx, writer); schemaErr != nil {
		_ = writer.Close()
		_ = reader.Close()

		return nil, schemaErr
	}

	logger.Debug("store opened", "path", path)

	return &Store{writer: writer, reader: reader, logger: logger, path: path}, nil
}

// openPool opens one pool with pragmas applied per connection through the
// DSN, so they survive pool churn.
func openPool(path string, maxConns int) (*sql.DB, error) {
	dsn := "file:" + url.PathEscape(path) +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)"

	db, openErr := sql.Open("sqlite", dsn)
	if openErr != nil {
		return nil, openErr
	}

	db.SetMaxOpenConns(maxConns)

	if pingErr := db.Ping(); pingErr != nil {
		_ = db.Close()

		return nil, pingErr
	}

	return db, nil
}

// Close closes both pools. Safe to call once per Store.
func (s *Store) Close() error {
	return errors.Join(s.writer.Close(), s.reader.Close())
}

// Path reports the database file location.
func (s *Store) Path() string {
	return s.path
}

// DB exposes the reader pool for maintenance queries and tests.
func (s *Store) DB() *sql.DB {
	return s.reader
}

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(value string) time.Time {
	t, parseErr := time.Parse(time.RFC3339, value)
	if parseErr != nil {
		return time.Time{}
	}

	return t
}

// nullable maps empty strings to NULL so absent hashes never overwrite
// stored ones.
func nullable(value string) any {
	if value == "" {
		return nil
	}

	return value
}
