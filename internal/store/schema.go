package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const schemaVersionTable = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// migrations are applied in order, each inside its own transaction.
// Never modify an existing migration, only append new ones.
var migrations = []func(context.Context, *sql.Tx) error{
	migrateV0,
}

// migrateV0 creates the initial schema: sessions, per-session results,
// the cross-session hash catalog, and session statistics.
func migrateV0(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
            id TEXT PRIMARY KEY,
            directory_path TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'running',
            total_files INTEGER NOT NULL DEFAULT 0,
            processed_files INTEGER NOT NULL DEFAULT 0,
            successful_files INTEGER NOT NULL DEFAULT 0,
            failed_files INTEGER NOT NULL DEFAULT 0,
            start_time TEXT NOT NULL,
            end_time TEXT,
            error_message TEXT NOT NULL DEFAULT '',
            created_at TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS results (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            session_id TEXT NOT NULL,
            file_path TEXT NOT NULL,
            file_name TEXT NOT NULL,
            file_size INTEGER NOT NULL DEFAULT 0,
            file_type TEXT NOT NULL DEFAULT '',
            analyzer_used TEXT NOT NULL DEFAULT '',
            success INTEGER NOT NULL DEFAULT 0,
            error_message TEXT NOT NULL DEFAULT '',
            metadata TEXT NOT NULL DEFAULT '{}',
            hash_md5 TEXT,
            hash_sha1 TEXT,
            hash_sha256 TEXT,
            duration_seconds REAL NOT NULL DEFAULT 0,
            created_at TEXT NOT NULL,
            UNIQUE(session_id, file_path),
            FOREIGN KEY(session_id) REFERENCES sessions(id) ON DELETE CASCADE
        );`,
		`CREATE TABLE IF NOT EXISTS file_hashes (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            file_path TEXT NOT NULL,
            file_size INTEGER NOT NULL,
            md5 TEXT,
            sha1 TEXT,
            sha256 TEXT,
            sha512 TEXT,
            first_seen TEXT NOT NULL,
            last_seen TEXT NOT NULL,
            UNIQUE(file_path, file_size)
        );`,
		`CREATE TABLE IF NOT EXISTS statistics (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            session_id TEXT NOT NULL,
            name TEXT NOT NULL,
            value TEXT NOT NULL DEFAULT '',
            created_at TEXT NOT NULL,
            UNIQUE(session_id, name),
            FOREIGN KEY(session_id) REFERENCES sessions(id) ON DELETE CASCADE
        );`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);`,
		`CREATE INDEX IF NOT EXISTS idx_results_session ON results(session_id);`,
		`CREATE INDEX IF NOT EXISTS idx_results_file_type ON results(file_type);`,
		`CREATE INDEX IF NOT EXISTS idx_results_success ON results(success);`,
		`CREATE INDEX IF NOT EXISTS idx_results_md5 ON results(hash_md5);`,
		`CREATE INDEX IF NOT EXISTS idx_results_sha1 ON results(hash_sha1);`,
		`CREATE INDEX IF NOT EXISTS idx_results_sha256 ON results(hash_sha256);`,
		`CREATE INDEX IF NOT EXISTS idx_file_hashes_md5 ON file_hashes(md5);`,
		`CREATE INDEX IF NOT EXISTS idx_file_hashes_sha256 ON file_hashes(sha256);`,
	}

	for _, stmt := range stmts {
		if _, execErr := tx.ExecContext(ctx, stmt); execErr != nil {
			return fmt.Errorf("create schema: %w", execErr)
		}
	}

	return nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	if _, execErr := db.ExecContext(ctx, schemaVersionTable); execErr != nil {
		return fmt.Errorf("create schema_version table: %w", execErr)
	}

	var currentVersion int

	row := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), -1) FROM schema_version")
	if scanErr := row.Scan(&currentVersion); scanErr != nil {
		return fmt.Errorf("get schema version: %w", scanErr)
	}

	for version := currentVersion + 1; version < len(migrations); version++ {
		if runErr := runMigration(ctx, db, version); runErr != nil {
			return fmt.Errorf("run migration %d: %w", version, runErr)
		}
	}

	return nil
}

func runMigration(ctx context.Context, db *sql.DB, version int) error {
	tx, beginErr := db.BeginTx(ctx, nil)
	if beginErr != nil {
		return fmt.Errorf("begin transaction: %w", beginErr)
	}
	defer func() { _ = tx.Rollback() }()

	if migrateErr := migrations[version](ctx, tx); migrateErr != nil {
		return fmt.Errorf("execute migration: %w", migrateErr)
	}

	applied := time.Now().UTC().Format(time.RFC3339)
	if _, execErr := tx.ExecContext(ctx,
		"INSERT INTO schema_version (version, applied_at) VALUES (?, ?)", version, applied); execErr != nil {
		return fmt.Errorf("record migration: %w", execErr)
	}

	return tx.Commit()
}

// SchemaVersion reports the highest applied migration version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int

	row := s.reader.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), -1) FROM schema_version")
	if scanErr := row.Scan(&version); scanErr != nil {
		return 0, fmt.Errorf("get schema version: %w", scanErr)
	}

	return version, nil
}
