package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// pathSeparator joins grouped paths inside SQL. Unit separator, so real
// file paths never collide with it.
const pathSeparator = "\x1f"

// resultHashColumns maps algorithm names to per-session result columns.
var resultHashColumns = map[string]string{
	"md5":    "hash_md5",
	"sha1":   "hash_sha1",
	"sha256": "hash_sha256",
}

// catalogHashColumns maps algorithm names to hash catalog columns.
var catalogHashColumns = map[string]string{
	"md5":    "md5",
	"sha1":   "sha1",
	"sha256": "sha256",
	"sha512": "sha512",
}

// DuplicateGroup is a set of at least two paths sharing one digest.
type DuplicateGroup struct {
	Algorithm string   `json:"algorithm"`
	Hash      string   `json:"hash"`
	Paths     []string `json:"paths"`
	FileSize  int64    `json:"file_size"`
	Count     int      `json:"count"`
}

// FindDuplicates groups files sharing a digest under the given algorithm.
// A non-empty sessionID scopes the search to one session's results; an
// empty one searches the cross-session hash catalog. Groups are ordered
// largest first.
func (s *Store) FindDuplicates(ctx context.Context, algorithm, sessionID string) ([]DuplicateGroup, error) {
	algorithm = strings.ToLower(strings.TrimSpace(algorithm))

	if sessionID != "" {
		return s.sessionDuplicates(ctx, algorithm, sessionID)
	}

	return s.globalDuplicates(ctx, algorithm)
}

func (s *Store) sessionDuplicates(ctx context.Context, algorithm, sessionID string) ([]DuplicateGroup, error) {
	column, known := resultHashColumns[algorithm]
	if !known {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, algorithm)
	}

	query := fmt.Sprintf(`
        SELECT %[1]s, COUNT(*), MIN(file_size), GROUP_CONCAT(file_path, char(31))
        FROM results
        WHERE session_id = ? AND %[1]s IS NOT NULL AND %[1]s != ''
        GROUP BY %[1]s
        HAVING COUNT(*) >= 2
        ORDER BY COUNT(*) DESC, %[1]s ASC`, column)

	return s.queryDuplicates(ctx, algorithm, query, sessionID)
}

func (s *Store) globalDuplicates(ctx context.Context, algorithm string) ([]DuplicateGroup, error) {
	column, known := catalogHashColumns[algorithm]
	if !known {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, algorithm)
	}

	query := fmt.Sprintf(`
        SELECT %[1]s, COUNT(*), MIN(file_size), GROUP_CONCAT(file_path, char(31))
        FROM file_hashes
        WHERE %[1]s IS NOT NULL AND %[1]s != ''
        GROUP BY %[1]s
        HAVING COUNT(*) >= 2
        ORDER BY COUNT(*) DESC, %[1]s ASC`, column)

	return s.queryDuplicates(ctx, algorithm, query)
}

func (s *Store) queryDuplicates(ctx context.Context, algorithm, query string, args ...any) ([]DuplicateGroup, error) {
	rows, queryErr := s.reader.QueryContext(ctx, query, args...)
	if queryErr != nil {
		return nil, fmt.Errorf("find duplicates: %w", queryErr)
	}
	defer rows.Close()

	var groups []DuplicateGroup

	for rows.Next() {
		var (
			group  DuplicateGroup
			joined string
		)

		if scanErr := rows.Scan(&group.Hash, &group.Count, &group.FileSize, &joined); scanErr != nil {
			return nil, fmt.Errorf("find duplicates: %w", scanErr)
		}

		group.Algorithm = algorithm
		group.Paths = strings.Split(joined, pathSeparator)
		sort.Strings(group.Paths)

		groups = append(groups, group)
	}

	return groups, rows.Err()
}
