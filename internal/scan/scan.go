// Package scan discovers candidate files under a directory tree, applying
// the validation policy lazily during the walk.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Sentinel errors.
var (
	ErrNotDirectory       = errors.New("scan root is not a directory")
	ErrInvalidExcludeGlob = errors.New("invalid exclude glob")
)

// SkipReason explains why the walk rejected a path. Reasons appear in
// debug logs only; skipped files are never errors.
type SkipReason string

// Skip reasons, in validation order.
const (
	SkipMissing    SkipReason = "missing"
	SkipTooDeep    SkipReason = "too_deep"
	SkipSymlink    SkipReason = "symlink"
	SkipExcluded   SkipReason = "excluded_glob"
	SkipIrregular  SkipReason = "irregular"
	SkipUnreadable SkipReason = "unreadable"
	SkipBlockedExt SkipReason = "blocked_extension"
	SkipUnhandled  SkipReason = "extension_not_handled"
	SkipTooLarge   SkipReason = "too_large"
	SkipEmpty      SkipReason = "empty"
)

// Policy controls which files a walk yields. Zero limits mean unlimited.
type Policy struct {
	// BlockedExtensions are never yielded (lowercase, dot-prefixed).
	BlockedExtensions []string

	// AllowedExtensions, when non-empty, restrict the walk to these
	// extensions. Used to scope a session to the extensions analyzers
	// actually handle.
	AllowedExtensions []string

	// ExcludeGlobs are doublestar patterns matched against the
	// slash-separated path relative to the walk root.
	ExcludeGlobs []string

	// MaxFileSize is the largest file size yielded, in bytes.
	MaxFileSize int64

	// MaxDepth limits how deep below the root files may sit.
	// Files directly under the root are at depth 1.
	MaxDepth int

	// MaxFiles caps the number of files a single walk yields.
	MaxFiles int

	// FollowSymlinks lets the walk traverse symlinked files and
	// directories. Directory cycles are detected and skipped.
	FollowSymlinks bool
}

// Scanner walks directory trees under a fixed policy.
type Scanner struct {
	policy  Policy
	logger  *slog.Logger
	blocked map[string]struct{}
	allowed map[string]struct{}
}

// NewScanner validates the policy and creates a Scanner. A nil logger
// discards skip diagnostics.
func NewScanner(policy Policy, logger *slog.Logger) (*Scanner, error) {
	for _, pattern := range policy.ExcludeGlobs {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidExcludeGlob, pattern)
		}
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Scanner{
		policy:  policy,
		logger:  logger,
		blocked: extensionSet(policy.BlockedExtensions),
		allowed: extensionSet(policy.AllowedExtensions),
	}, nil
}

func extensionSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		set[strings.ToLower(ext)] = struct{}{}
	}

	return set
}

// ValidateRoot checks that root exists and is a directory.
func (s *Scanner) ValidateRoot(root string) error {
	info, statErr := os.Stat(root)
	if statErr != nil {
		return fmt.Errorf("scan root: %w", statErr)
	}

	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}

	return nil
}

// Files returns a lazy sequence of validated file paths under root.
// Each range over the sequence runs a fresh walk; the tree is never
// materialized. Unreadable subdirectories are skipped with a debug log
// and the walk continues with their siblings.
func (s *Scanner) Files(ctx context.Context, root string) iter.Seq[string] {
	return func(yield func(string) bool) {
		w := &walker{
			scanner: s,
			root:    root,
			visited: make(map[string]struct{}),
		}

		w.descend(ctx, root, 1, yield)
	}
}

// CountFiles runs the identical walk without keeping paths, returning how
// many files a session over root would process. Capped by MaxFiles.
func (s *Scanner) CountFiles(ctx context.Context, root string) int {
	count := 0
	for range s.Files(ctx, root) {
		count++
	}

	return count
}

type walker struct {
	scanner *Scanner
	root    string
	visited map[string]struct{}
	yielded int
}

// descend walks one directory level. depth is the depth assigned to the
// directory's entries. Returns false once the walk should stop entirely.
func (w *walker) descend(ctx context.Context, dir string, depth int, yield func(string) bool) bool {
	if !w.markVisited(dir) {
		return true
	}

	entries, readErr := os.ReadDir(dir)
	if readErr != nil {
		w.scanner.logger.Debug("skipping unreadable directory", "path", dir, "error", readErr)

		return true
	}

	policy := w.scanner.policy

	for _, entry := range entries {
		if ctx.Err() != nil {
			return false
		}

		if policy.MaxFiles > 0 && w.yielded >= policy.MaxFiles {
			return false
		}

		path := filepath.Join(dir, entry.Name())

		if w.isDir(entry, path) {
			if policy.MaxDepth > 0 && depth+1 > policy.MaxDepth {
				continue
			}

			if entry.Type()&fs.ModeSymlink != 0 && !policy.FollowSymlinks {
				continue
			}

			if !w.descend(ctx, path, depth+1, yield) {
				return false
			}

			continue
		}

		reason, ok := w.scanner.validate(w.root, path, entry, depth)
		if !ok {
			w.scanner.logger.Debug("skipping file", "path", path, "reason", string(reason))

			continue
		}

		w.yielded++

		if !yield(path) {
			return false
		}
	}

	return true
}

// isDir resolves directory-ness through symlinks so symlinked trees are
// traversed when the policy allows it.
func (w *walker) isDir(entry fs.DirEntry, path string) bool {
	if entry.IsDir() {
		return true
	}

	if entry.Type()&fs.ModeSymlink == 0 {
		return false
	}

	info, statErr := os.Stat(path)

	return statErr == nil && info.IsDir()
}

// markVisited records the directory's resolved path, reporting false when
// it was already walked. Guards against symlink cycles.
func (w *walker) markVisited(dir string) bool {
	resolved, evalErr := filepath.EvalSymlinks(dir)
	if evalErr != nil {
		resolved = dir
	}

	if _, seen := w.visited[resolved]; seen {
		return false
	}

	w.visited[resolved] = struct{}{}

	return true
}

// validate applies the policy checks to one directory entry. The first
// failing check decides the skip reason.
func (s *Scanner) validate(root, path string, entry fs.DirEntry, depth int) (SkipReason, bool) {
	policy := s.policy

	if policy.MaxDepth > 0 && depth > policy.MaxDepth {
		return SkipTooDeep, false
	}

	isSymlink := entry.Type()&fs.ModeSymlink != 0
	if isSymlink && !policy.FollowSymlinks {
		return SkipSymlink, false
	}

	if s.excluded(root, path) {
		return SkipExcluded, false
	}

	// Stat follows symlinks, so a dangling link fails here.
	info, statErr := os.Stat(path)
	if statErr != nil {
		return SkipMissing, false
	}

	if !info.Mode().IsRegular() {
		return SkipIrregular, false
	}

	if !readable(path) {
		return SkipUnreadable, false
	}

	ext := strings.ToLower(filepath.Ext(path))

	if _, blocked := s.blocked[ext]; blocked {
		return SkipBlockedExt, false
	}

	if len(s.allowed) > 0 {
		if _, handled := s.allowed[ext]; !handled {
			return SkipUnhandled, false
		}
	}

	if policy.MaxFileSize > 0 && info.Size() > policy.MaxFileSize {
		return SkipTooLarge, false
	}

	if info.Size() == 0 {
		return SkipEmpty, false
	}

	return "", true
}

func (s *Scanner) excluded(root, path string) bool {
	if len(s.policy.ExcludeGlobs) == 0 {
		return false
	}

	rel, relErr := filepath.Rel(root, path)
	if relErr != nil {
		return false
	}

	rel = filepath.ToSlash(rel)

	for _, pattern := range s.policy.ExcludeGlobs {
		if match, _ := doublestar.Match(pattern, rel); match {
			return true
		}
	}

	return false
}

// readable probes the file by opening it, the only check that reflects
// ACLs and mount options as well as permission bits.
func readable(path string) bool {
	f, openErr := os.Open(path)
	if openErr != nil {
		return false
	}

	_ = f.Close()

	return true
}
