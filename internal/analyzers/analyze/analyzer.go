// Package analyze defines the analyzer contract, the capability registry,
// and the shared result type produced for every examined file.
package analyze

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// UnsupportedAnalyzer is the analyzer name recorded on results for files
// no registered analyzer accepts.
const UnsupportedAnalyzer = "Unsupported"

// Result is the outcome of analyzing a single file. Failures are carried
// in the result itself; analyzers never surface errors to callers.
type Result struct {
	FilePath     string         `json:"file_path"`
	FileName     string         `json:"file_name"`
	FileType     string         `json:"file_type"`
	Analyzer     string         `json:"analyzer"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Metadata     map[string]any `json:"metadata"`
	FileSize     int64          `json:"file_size"`
	Duration     time.Duration  `json:"duration"`
	Success      bool           `json:"success"`
}

// Analyzer extracts metadata from files of the formats it declares.
type Analyzer interface {
	// Name identifies the analyzer in results and reports.
	Name() string

	// Extensions lists the lowercase dot-prefixed extensions the analyzer handles.
	Extensions() []string

	// CanAnalyze reports whether this analyzer accepts the given file.
	// Called after the extension already matched.
	CanAnalyze(path string) bool

	// Analyze extracts metadata from the file. Failures are recorded in
	// the returned Result, never raised.
	Analyze(ctx context.Context, path string) Result
}

// New creates a Result seeded with the file's identity fields and Success
// set. Analyzers flip it via SetError when extraction fails.
func New(path, analyzerName string) Result {
	res := Result{
		FilePath: path,
		FileName: filepath.Base(path),
		FileType: TypeForExtension(filepath.Ext(path)),
		Analyzer: analyzerName,
		Metadata: make(map[string]any),
		Success:  true,
	}

	if info, statErr := os.Stat(path); statErr == nil {
		res.FileSize = info.Size()
	}

	return res
}

// Unsupported builds the failed result recorded when no analyzer accepts a file.
func Unsupported(path string) Result {
	res := New(path, UnsupportedAnalyzer)
	res.SetError(fmt.Sprintf("no analyzer registered for extension %q", strings.ToLower(filepath.Ext(path))))

	return res
}

// SetError marks the result failed with the given message.
func (r *Result) SetError(msg string) {
	r.Success = false
	r.ErrorMessage = msg
}

// Run invokes the analyzer with wall-clock timing and panic isolation.
// A panicking analyzer yields a failed result instead of unwinding into
// the calling worker.
func Run(ctx context.Context, a Analyzer, path string) (res Result) {
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			res = New(path, a.Name())
			res.SetError(fmt.Sprintf("analyzer panic: %v", rec))
		}

		res.Duration = time.Since(start)
	}()

	res = a.Analyze(ctx, path)

	return res
}
