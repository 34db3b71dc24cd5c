package scan_test

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensiq/filescope/internal/scan"
)

func newScanner(t *testing.T, policy scan.Policy) *scan.Scanner {
	t.Helper()

	scanner, newErr := scan.NewScanner(policy, nil)
	require.NoError(t, newErr)

	return scanner
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))

	return path
}

func collect(t *testing.T, scanner *scan.Scanner, root string) []string {
	t.Helper()

	var paths []string
	for path := range scanner.Files(context.Background(), root) {
		paths = append(paths, path)
	}

	sort.Strings(paths)

	return paths
}

func TestNewScanner_RejectsInvalidGlob(t *testing.T) {
	t.Parallel()

	_, newErr := scan.NewScanner(scan.Policy{ExcludeGlobs: []string{"[unterminated"}}, nil)

	require.ErrorIs(t, newErr, scan.ErrInvalidExcludeGlob)
}

func TestValidateRoot(t *testing.T) {
	t.Parallel()

	scanner := newScanner(t, scan.Policy{})
	dir := t.TempDir()

	require.NoError(t, scanner.ValidateRoot(dir))

	missingErr := scanner.ValidateRoot(filepath.Join(dir, "absent"))
	require.Error(t, missingErr)

	filePath := writeFile(t, dir, "plain.txt", []byte("content"))
	require.ErrorIs(t, scanner.ValidateRoot(filePath), scan.ErrNotDirectory)
}

func TestFiles_YieldsValidFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	report := writeFile(t, dir, "report.txt", []byte("evidence"))
	photo := writeFile(t, dir, "nested/photo.jpg", []byte{0xff, 0xd8, 0xff})

	scanner := newScanner(t, scan.Policy{})
	paths := collect(t, scanner, dir)

	assert.Equal(t, []string{report, photo}, paths)
}

func TestFiles_SkipsBlockedExtensions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "dropper.exe", []byte("MZ"))
	writeFile(t, dir, "dropper.EXE", []byte("MZ"))
	kept := writeFile(t, dir, "notes.txt", []byte("clean"))

	scanner := newScanner(t, scan.Policy{BlockedExtensions: []string{".exe"}})

	assert.Equal(t, []string{kept}, collect(t, scanner, dir))
}

func TestFiles_AllowlistRestrictsExtensions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	kept := writeFile(t, dir, "scan.jpg", []byte("jpeg"))
	writeFile(t, dir, "scan.txt", []byte("text"))

	scanner := newScanner(t, scan.Policy{AllowedExtensions: []string{".jpg"}})

	assert.Equal(t, []string{kept}, collect(t, scanner, dir))
}

func TestFiles_SkipsEmptyFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "empty.txt", nil)
	kept := writeFile(t, dir, "full.txt", []byte("x"))

	scanner := newScanner(t, scan.Policy{})

	assert.Equal(t, []string{kept}, collect(t, scanner, dir))
}

func TestFiles_SkipsOversizeFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "big.bin", make([]byte, 128))
	kept := writeFile(t, dir, "small.bin", make([]byte, 16))

	scanner := newScanner(t, scan.Policy{MaxFileSize: 64})

	assert.Equal(t, []string{kept}, collect(t, scanner, dir))
}

func TestFiles_HonorsMaxDepth(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	top := writeFile(t, dir, "top.txt", []byte("1"))
	second := writeFile(t, dir, "a/second.txt", []byte("2"))
	writeFile(t, dir, "a/b/third.txt", []byte("3"))

	scanner := newScanner(t, scan.Policy{MaxDepth: 2})

	assert.Equal(t, []string{second, top}, collect(t, scanner, dir))
}

func TestFiles_HonorsMaxFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt", "c.txt", "d.txt"} {
		writeFile(t, dir, name, []byte("data"))
	}

	scanner := newScanner(t, scan.Policy{MaxFiles: 2})

	assert.Len(t, collect(t, scanner, dir), 2)
	assert.Equal(t, 2, scanner.CountFiles(context.Background(), dir))
}

func TestFiles_ExcludeGlobs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "logs/app.log", []byte("line"))
	writeFile(t, dir, "deep/nested/trace.log", []byte("line"))
	kept := writeFile(t, dir, "logs/summary.txt", []byte("line"))

	scanner := newScanner(t, scan.Policy{ExcludeGlobs: []string{"**/*.log"}})

	assert.Equal(t, []string{kept}, collect(t, scanner, dir))
}

func TestFiles_SymlinksSkippedByDefault(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	target := writeFile(t, dir, "target.txt", []byte("data"))
	link := filepath.Join(dir, "alias.txt")
	require.NoError(t, os.Symlink(target, link))

	scanner := newScanner(t, scan.Policy{})

	assert.Equal(t, []string{target}, collect(t, scanner, dir))
}

func TestFiles_SymlinksFollowedWhenEnabled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	target := writeFile(t, dir, "target.txt", []byte("data"))
	link := filepath.Join(dir, "alias.txt")
	require.NoError(t, os.Symlink(target, link))

	scanner := newScanner(t, scan.Policy{FollowSymlinks: true})

	assert.Equal(t, []string{link, target}, collect(t, scanner, dir))
}

func TestFiles_SymlinkCycleTerminates(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	inner := writeFile(t, dir, "sub/file.txt", []byte("data"))
	require.NoError(t, os.Symlink(dir, filepath.Join(dir, "sub", "loop")))

	scanner := newScanner(t, scan.Policy{FollowSymlinks: true})
	paths := collect(t, scanner, dir)

	assert.Contains(t, paths, inner)
	assert.LessOrEqual(t, len(paths), 2)
}

func TestFiles_DanglingSymlinkSkipped(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.Symlink(filepath.Join(dir, "gone.txt"), filepath.Join(dir, "dangling.txt")))
	kept := writeFile(t, dir, "real.txt", []byte("data"))

	scanner := newScanner(t, scan.Policy{FollowSymlinks: true})

	assert.Equal(t, []string{kept}, collect(t, scanner, dir))
}

func TestFiles_UnreadableSubdirectorySkipped(t *testing.T) {
	t.Parallel()

	if os.Geteuid() == 0 {
		t.Skip("directory permissions are not enforced for root")
	}

	dir := t.TempDir()
	writeFile(t, dir, "locked/secret.txt", []byte("data"))
	kept := writeFile(t, dir, "open/visible.txt", []byte("data"))

	locked := filepath.Join(dir, "locked")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	scanner := newScanner(t, scan.Policy{})

	assert.Equal(t, []string{kept}, collect(t, scanner, dir))
}

func TestFiles_MissingRootYieldsNothing(t *testing.T) {
	t.Parallel()

	scanner := newScanner(t, scan.Policy{})

	assert.Empty(t, collect(t, scanner, filepath.Join(t.TempDir(), "absent")))
}

func TestFiles_EachRangeIsAFreshWalk(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a.txt", []byte("1"))
	writeFile(t, dir, "b.txt", []byte("2"))

	scanner := newScanner(t, scan.Policy{})
	seq := scanner.Files(context.Background(), dir)

	first := 0
	for range seq {
		first++

		break
	}
	require.Equal(t, 1, first)

	second := 0
	for range seq {
		second++
	}
	assert.Equal(t, 2, second)
}

func TestFiles_CancelledContextStopsWalk(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		writeFile(t, dir, name, []byte("data"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	scanner := newScanner(t, scan.Policy{})

	assert.Zero(t, scanner.CountFiles(ctx, dir))
}

func TestCountFiles_MatchesWalk(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a.txt", []byte("1"))
	writeFile(t, dir, "sub/b.jpg", []byte("2"))
	writeFile(t, dir, "sub/deep/c.pdf", []byte("3"))
	writeFile(t, dir, "empty.txt", nil)
	writeFile(t, dir, "tool.exe", []byte("MZ"))

	scanner := newScanner(t, scan.Policy{BlockedExtensions: []string{".exe"}})

	paths := collect(t, scanner, dir)
	assert.Len(t, paths, 3)
	assert.Equal(t, len(paths), scanner.CountFiles(context.Background(), dir))
}
