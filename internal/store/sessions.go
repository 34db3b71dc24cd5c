package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Session is one analysis run over a directory.
type Session struct {
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time,omitzero"`
	ID              string    `json:"id"`
	DirectoryPath   string    `json:"directory_path"`
	Status          string    `json:"status"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	TotalFiles      int       `json:"total_files"`
	ProcessedFiles  int       `json:"processed_files"`
	SuccessfulFiles int       `json:"successful_files"`
	FailedFiles     int       `json:"failed_files"`
}

// CreateSession inserts a new session in the running state.
func (s *Store) CreateSession(ctx context.Context, session Session) error {
	_, execErr := s.writer.ExecContext(ctx, `
        INSERT INTO sessions (id, directory_path, status, total_files, start_time, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		session.ID, session.DirectoryPath, StatusRunning, session.TotalFiles,
		formatTime(session.StartTime), nowUTC())
	if execErr != nil {
		return fmt.Errorf("create session %s: %w", session.ID, execErr)
	}

	return nil
}

// UpdateSessionProgress refreshes the counters of a running session.
func (s *Store) UpdateSessionProgress(ctx context.Context, id string, processed, successful, failed int) error {
	_, execErr := s.writer.ExecContext(ctx, `
        UPDATE sessions
        SET processed_files = ?, successful_files = ?, failed_files = ?
        WHERE id = ? AND status = ?`,
		processed, successful, failed, id, StatusRunning)
	if execErr != nil {
		return fmt.Errorf("update session %s: %w", id, execErr)
	}

	return nil
}

// CompleteSession moves a running session to its terminal status and
// records the final counters and, for error transitions, the captured
// message. A session that already left the running state is never
// modified again; a second transition reports ErrSessionNotRunning.
func (s *Store) CompleteSession(ctx context.Context, id, status string, processed, successful, failed int, errorMessage string) error {
	res, execErr := s.writer.ExecContext(ctx, `
        UPDATE sessions
        SET status = ?, end_time = ?, processed_files = ?, successful_files = ?, failed_files = ?, error_message = ?
        WHERE id = ? AND status = ?`,
		status, nowUTC(), processed, successful, failed, errorMessage, id, StatusRunning)
	if execErr != nil {
		return fmt.Errorf("complete session %s: %w", id, execErr)
	}

	affected, affErr := res.RowsAffected()
	if affErr != nil {
		return fmt.Errorf("complete session %s: %w", id, affErr)
	}

	if affected == 0 {
		if _, getErr := s.GetSession(ctx, id); getErr != nil {
			return getErr
		}

		return fmt.Errorf("complete session %s: %w", id, ErrSessionNotRunning)
	}

	return nil
}

const sessionColumns = `id, directory_path, status, error_message, total_files, processed_files,
        successful_files, failed_files, start_time, COALESCE(end_time, '')`

// GetSession loads one session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (Session, error) {
	row := s.reader.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)

	session, scanErr := scanSession(row)
	if scanErr != nil {
		if errors.Is(scanErr, sql.ErrNoRows) {
			return Session{}, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
		}

		return Session{}, fmt.Errorf("get session %s: %w", id, scanErr)
	}

	return session, nil
}

// ListRecentSessions returns the newest sessions first.
func (s *Store) ListRecentSessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, queryErr := s.reader.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY start_time DESC, id DESC LIMIT ?`, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list sessions: %w", queryErr)
	}
	defer rows.Close()

	var sessions []Session

	for rows.Next() {
		session, scanErr := scanSession(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("list sessions: %w", scanErr)
		}

		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}

// CleanupOlderThan deletes sessions created more than the given number of
// days ago, cascading to their results and statistics. Returns how many
// sessions were removed.
func (s *Store) CleanupOlderThan(ctx context.Context, days int) (int64, error) {
	if days < 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidRetention, days)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339)

	tx, beginErr := s.writer.BeginTx(ctx, nil)
	if beginErr != nil {
		return 0, fmt.Errorf("cleanup: %w", beginErr)
	}
	defer func() { _ = tx.Rollback() }()

	res, execErr := tx.ExecContext(ctx, `DELETE FROM sessions WHERE created_at < ?`, cutoff)
	if execErr != nil {
		return 0, fmt.Errorf("cleanup: %w", execErr)
	}

	removed, affErr := res.RowsAffected()
	if affErr != nil {
		return 0, fmt.Errorf("cleanup: %w", affErr)
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return 0, fmt.Errorf("cleanup: %w", commitErr)
	}

	s.logger.Debug("cleanup finished", "removed_sessions", removed, "cutoff", cutoff)

	return removed, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var (
		session            Session
		startTime, endTime string
	)

	scanErr := row.Scan(&session.ID, &session.DirectoryPath, &session.Status,
		&session.ErrorMessage, &session.TotalFiles, &session.ProcessedFiles,
		&session.SuccessfulFiles, &session.FailedFiles, &startTime, &endTime)
	if scanErr != nil {
		return Session{}, scanErr
	}

	session.StartTime = parseTime(startTime)
	if endTime != "" {
		session.EndTime = parseTime(endTime)
	}

	return session, nil
}
