// Package report renders persisted session data into the supported output
// formats. It consumes only the Manager's query surface; the store is
// never touched directly.
package report

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/forensiq/filescope/internal/store"
)

// ErrUnknownFormat reports an unregistered report format.
var ErrUnknownFormat = errors.New("unknown report format")

// Supported format names.
const (
	FormatJSON    = "json"
	FormatCSV     = "csv"
	FormatYAML    = "yaml"
	FormatXLSX    = "xlsx"
	FormatHTML    = "html"
	FormatArchive = "lz4"
)

// Data is the canonical report payload: one session, its aggregate
// statistics, and the per-file results.
type Data struct {
	GeneratedAt time.Time        `json:"generated_at" yaml:"generated_at"`
	Session     store.Session    `json:"session" yaml:"session"`
	Statistics  store.Statistics `json:"statistics" yaml:"statistics"`
	Results     []store.Result   `json:"results" yaml:"results"`
}

type writerFunc func(w io.Writer, data Data) error

// formats maps format names to writers and file extensions, in the order
// Formats reports them.
var formats = []struct {
	name      string
	extension string
	write     writerFunc
}{
	{FormatJSON, ".json", WriteJSON},
	{FormatCSV, ".csv", WriteCSV},
	{FormatYAML, ".yaml", WriteYAML},
	{FormatXLSX, ".xlsx", WriteXLSX},
	{FormatHTML, ".html", WriteHTML},
	{FormatArchive, ".json.lz4", WriteArchive},
}

// Formats lists the supported format names.
func Formats() []string {
	names := make([]string, 0, len(formats))
	for _, f := range formats {
		names = append(names, f.name)
	}

	return names
}

// Write renders data in the named format.
func Write(w io.Writer, format string, data Data) error {
	for _, f := range formats {
		if f.name == format {
			return f.write(w, data)
		}
	}

	return fmt.Errorf("%w: %s", ErrUnknownFormat, format)
}

// WriteFile renders data into dir using the session ID and the format's
// extension as the file name, returning the written path.
func WriteFile(dir, format string, data Data) (string, error) {
	extension := ""

	for _, f := range formats {
		if f.name == format {
			extension = f.extension
		}
	}

	if extension == "" {
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}

	if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
		return "", fmt.Errorf("create report directory: %w", mkErr)
	}

	path := filepath.Join(dir, data.Session.ID+extension)

	f, createErr := os.Create(path)
	if createErr != nil {
		return "", fmt.Errorf("create report file: %w", createErr)
	}

	writeErr := Write(f, format, data)

	closeErr := f.Close()
	if writeErr != nil {
		return "", fmt.Errorf("write %s report: %w", format, writeErr)
	}

	if closeErr != nil {
		return "", fmt.Errorf("close report file: %w", closeErr)
	}

	return path, nil
}

// largestResults returns up to n successful results ordered by size,
// biggest first. Ties break on path for stable output.
func largestResults(results []store.Result, n int) []store.Result {
	sorted := make([]store.Result, len(results))
	copy(sorted, results)

	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].FileSize != sorted[j].FileSize {
			return sorted[i].FileSize > sorted[j].FileSize
		}

		return sorted[i].FilePath < sorted[j].FilePath
	})

	if len(sorted) > n {
		sorted = sorted[:n]
	}

	return sorted
}

// sortedKeys returns the map's keys in lexical order, for deterministic
// report output.
func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}
