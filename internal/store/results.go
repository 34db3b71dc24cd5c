package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/forensiq/filescope/internal/analyzers/analyze"
)

const defaultResultLimit = 1000

// Result is one persisted analysis outcome.
type Result struct {
	CreatedAt    time.Time      `json:"created_at"`
	Metadata     map[string]any `json:"metadata"`
	SessionID    string         `json:"session_id"`
	FilePath     string         `json:"file_path"`
	FileName     string         `json:"file_name"`
	FileType     string         `json:"file_type"`
	Analyzer     string         `json:"analyzer"`
	ErrorMessage string         `json:"error_message,omitempty"`
	MD5          string         `json:"hash_md5,omitempty"`
	SHA1         string         `json:"hash_sha1,omitempty"`
	SHA256       string         `json:"hash_sha256,omitempty"`
	ID           int64          `json:"id"`
	FileSize     int64          `json:"file_size"`
	Duration     time.Duration  `json:"duration"`
	Success      bool           `json:"success"`
}

// ResultFilter narrows GetResults. Zero fields match everything; a nil
// Success matches both outcomes.
type ResultFilter struct {
	Success   *bool
	SessionID string
	FileType  string
	Analyzer  string
	Limit     int
	Offset    int
}

// SaveResult records one analysis result and refreshes the hash catalog
// inside a single transaction, so a result and its hashes never diverge.
// A second result for the same (session, file) pair is rejected; results
// are immutable once written.
func (s *Store) SaveResult(ctx context.Context, sessionID string, res analyze.Result, hashes map[string]string) error {
	metadata, marshalErr := json.Marshal(res.Metadata)
	if marshalErr != nil {
		return fmt.Errorf("encode metadata for %s: %w", res.FilePath, marshalErr)
	}

	tx, beginErr := s.writer.BeginTx(ctx, nil)
	if beginErr != nil {
		return fmt.Errorf("save result: %w", beginErr)
	}
	defer func() { _ = tx.Rollback() }()

	_, insertErr := tx.ExecContext(ctx, `
        INSERT INTO results (session_id, file_path, file_name, file_size, file_type,
            analyzer_used, success, error_message, metadata,
            hash_md5, hash_sha1, hash_sha256, duration_seconds, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, res.FilePath, res.FileName, res.FileSize, res.FileType,
		res.Analyzer, boolToInt(res.Success), res.ErrorMessage, string(metadata),
		nullable(hashes["md5"]), nullable(hashes["sha1"]), nullable(hashes["sha256"]),
		res.Duration.Seconds(), nowUTC())
	if insertErr != nil {
		if strings.Contains(insertErr.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("result for %s in session %s: %w", res.FilePath, sessionID, ErrDuplicateResult)
		}

		return fmt.Errorf("insert result for %s: %w", res.FilePath, insertErr)
	}

	if len(hashes) > 0 {
		if upsertErr := upsertFileHashes(ctx, tx, res.FilePath, res.FileSize, hashes); upsertErr != nil {
			return fmt.Errorf("upsert hashes for %s: %w", res.FilePath, upsertErr)
		}
	}

	return tx.Commit()
}

// upsertFileHashes refreshes the catalog row for (path, size). Absent
// algorithms are NULL on insert and COALESCE away on update, so a run
// with fewer algorithms never erases hashes recorded by an earlier run.
func upsertFileHashes(ctx context.Context, tx *sql.Tx, path string, size int64, hashes map[string]string) error {
	now := nowUTC()

	_, execErr := tx.ExecContext(ctx, `
        INSERT INTO file_hashes (file_path, file_size, md5, sha1, sha256, sha512, first_seen, last_seen)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(file_path, file_size) DO UPDATE SET
            md5       = COALESCE(excluded.md5, file_hashes.md5),
            sha1      = COALESCE(excluded.sha1, file_hashes.sha1),
            sha256    = COALESCE(excluded.sha256, file_hashes.sha256),
            sha512    = COALESCE(excluded.sha512, file_hashes.sha512),
            last_seen = excluded.last_seen`,
		path, size,
		nullable(hashes["md5"]), nullable(hashes["sha1"]),
		nullable(hashes["sha256"]), nullable(hashes["sha512"]),
		now, now)

	return execErr
}

// GetResults returns results matching the filter, newest first. The
// limit defaults to 1000.
func (s *Store) GetResults(ctx context.Context, filter ResultFilter) ([]Result, error) {
	query := `SELECT id, session_id, file_path, file_name, file_size, file_type,
        analyzer_used, success, error_message, metadata,
        COALESCE(hash_md5, ''), COALESCE(hash_sha1, ''), COALESCE(hash_sha256, ''),
        duration_seconds, created_at
        FROM results`

	var (
		conds []string
		args  []any
	)

	if filter.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, filter.SessionID)
	}

	if filter.FileType != "" {
		conds = append(conds, "file_type = ?")
		args = append(args, filter.FileType)
	}

	if filter.Analyzer != "" {
		conds = append(conds, "analyzer_used = ?")
		args = append(args, filter.Analyzer)
	}

	if filter.Success != nil {
		conds = append(conds, "success = ?")
		args = append(args, boolToInt(*filter.Success))
	}

	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultResultLimit
	}

	query += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, queryErr := s.reader.QueryContext(ctx, query, args...)
	if queryErr != nil {
		return nil, fmt.Errorf("get results: %w", queryErr)
	}
	defer rows.Close()

	var results []Result

	for rows.Next() {
		var (
			res        Result
			success    int
			metadata   string
			durationS  float64
			createdStr string
		)

		scanErr := rows.Scan(&res.ID, &res.SessionID, &res.FilePath, &res.FileName,
			&res.FileSize, &res.FileType, &res.Analyzer, &success, &res.ErrorMessage,
			&metadata, &res.MD5, &res.SHA1, &res.SHA256, &durationS, &createdStr)
		if scanErr != nil {
			return nil, fmt.Errorf("get results: %w", scanErr)
		}

		res.Success = success != 0
		res.Duration = time.Duration(durationS * float64(time.Second))
		res.CreatedAt = parseTime(createdStr)

		if unmarshalErr := json.Unmarshal([]byte(metadata), &res.Metadata); unmarshalErr != nil {
			s.logger.Warn("corrupt metadata column", "result_id", res.ID, "error", unmarshalErr)
			res.Metadata = map[string]any{}
		}

		results = append(results, res)
	}

	return results, rows.Err()
}

// Statistics aggregates a session's persisted results.
type Statistics struct {
	FileTypes       map[string]int    `json:"file_types"`
	Analyzers       map[string]int    `json:"analyzers"`
	Stored          map[string]string `json:"stored,omitempty"`
	SessionID       string            `json:"session_id"`
	TotalResults    int               `json:"total_results"`
	SuccessfulCount int               `json:"successful_count"`
	FailedCount     int               `json:"failed_count"`
	TotalBytes      int64             `json:"total_bytes"`
	SuccessRate     float64           `json:"success_rate"`
	AvgDuration     float64           `json:"avg_duration_seconds"`
}

// SessionStatistics computes aggregate statistics for one session and
// merges in any values recorded via SaveStatistics.
func (s *Store) SessionStatistics(ctx context.Context, sessionID string) (Statistics, error) {
	stats := Statistics{
		SessionID: sessionID,
		FileTypes: map[string]int{},
		Analyzers: map[string]int{},
	}

	row := s.reader.QueryRowContext(ctx, `
        SELECT COUNT(*),
               COALESCE(SUM(success), 0),
               COALESCE(SUM(file_size), 0),
               COALESCE(AVG(duration_seconds), 0)
        FROM results WHERE session_id = ?`, sessionID)
	if scanErr := row.Scan(&stats.TotalResults, &stats.SuccessfulCount, &stats.TotalBytes, &stats.AvgDuration); scanErr != nil {
		return Statistics{}, fmt.Errorf("session statistics: %w", scanErr)
	}

	stats.FailedCount = stats.TotalResults - stats.SuccessfulCount
	if stats.TotalResults > 0 {
		stats.SuccessRate = float64(stats.SuccessfulCount) / float64(stats.TotalResults) * 100
	}

	if typesErr := s.countBy(ctx, sessionID, "file_type", stats.FileTypes); typesErr != nil {
		return Statistics{}, typesErr
	}

	if analyzersErr := s.countBy(ctx, sessionID, "analyzer_used", stats.Analyzers); analyzersErr != nil {
		return Statistics{}, analyzersErr
	}

	stored, storedErr := s.storedStatistics(ctx, sessionID)
	if storedErr != nil {
		return Statistics{}, storedErr
	}

	stats.Stored = stored

	return stats, nil
}

// countBy tallies results per value of the given column. The column name
// comes from call sites only, never from user input.
func (s *Store) countBy(ctx context.Context, sessionID, column string, into map[string]int) error {
	rows, queryErr := s.reader.QueryContext(ctx,
		`SELECT `+column+`, COUNT(*) FROM results WHERE session_id = ? GROUP BY `+column, sessionID)
	if queryErr != nil {
		return fmt.Errorf("count by %s: %w", column, queryErr)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			value string
			count int
		)

		if scanErr := rows.Scan(&value, &count); scanErr != nil {
			return fmt.Errorf("count by %s: %w", column, scanErr)
		}

		into[value] = count
	}

	return rows.Err()
}

// SaveStatistics records named values for a session, replacing any
// previous value of the same name.
func (s *Store) SaveStatistics(ctx context.Context, sessionID string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	tx, beginErr := s.writer.BeginTx(ctx, nil)
	if beginErr != nil {
		return fmt.Errorf("save statistics: %w", beginErr)
	}
	defer func() { _ = tx.Rollback() }()

	for name, value := range values {
		if _, execErr := tx.ExecContext(ctx, `
            INSERT INTO statistics (session_id, name, value, created_at)
            VALUES (?, ?, ?, ?)
            ON CONFLICT(session_id, name) DO UPDATE SET value = excluded.value`,
			sessionID, name, value, nowUTC()); execErr != nil {
			return fmt.Errorf("save statistic %s: %w", name, execErr)
		}
	}

	return tx.Commit()
}

func (s *Store) storedStatistics(ctx context.Context, sessionID string) (map[string]string, error) {
	rows, queryErr := s.reader.QueryContext(ctx,
		`SELECT name, value FROM statistics WHERE session_id = ?`, sessionID)
	if queryErr != nil {
		return nil, fmt.Errorf("stored statistics: %w", queryErr)
	}
	defer rows.Close()

	stored := map[string]string{}

	for rows.Next() {
		var name, value string

		if scanErr := rows.Scan(&name, &value); scanErr != nil {
			return nil, fmt.Errorf("stored statistics: %w", scanErr)
		}

		stored[name] = value
	}

	return stored, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
