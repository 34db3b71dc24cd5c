package analyze

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

type registration struct {
	analyzer   Analyzer
	extensions map[string]struct{}
}

// Registry maps file extensions to analyzers. Lookup walks analyzers in
// registration order and selects the first whose extensions match and
// whose CanAnalyze accepts the file.
type Registry struct {
	mu      sync.RWMutex
	ordered []registration
	names   map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		names: make(map[string]struct{}),
	}
}

// Register adds an analyzer. Registering the same name twice is a no-op,
// preserving the position and instance of the first registration.
func (r *Registry) Register(a Analyzer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.names[a.Name()]; exists {
		return
	}

	exts := make(map[string]struct{}, len(a.Extensions()))
	for _, ext := range a.Extensions() {
		exts[strings.ToLower(ext)] = struct{}{}
	}

	r.names[a.Name()] = struct{}{}
	r.ordered = append(r.ordered, registration{analyzer: a, extensions: exts})
}

// AnalyzerFor returns the first registered analyzer that handles the
// file's extension and accepts the file. Extension comparison is
// case-insensitive.
func (r *Registry) AnalyzerFor(path string) (Analyzer, bool) {
	ext := strings.ToLower(filepath.Ext(path))

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, reg := range r.ordered {
		if _, ok := reg.extensions[ext]; !ok {
			continue
		}

		if reg.analyzer.CanAnalyze(path) {
			return reg.analyzer, true
		}
	}

	return nil, false
}

// All returns the registered analyzers in registration order.
func (r *Registry) All() []Analyzer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	analyzers := make([]Analyzer, 0, len(r.ordered))
	for _, reg := range r.ordered {
		analyzers = append(analyzers, reg.analyzer)
	}

	return analyzers
}

// Extensions returns the sorted union of extensions across all registered
// analyzers.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})

	for _, reg := range r.ordered {
		for ext := range reg.extensions {
			seen[ext] = struct{}{}
		}
	}

	exts := make([]string, 0, len(seen))
	for ext := range seen {
		exts = append(exts, ext)
	}

	sort.Strings(exts)

	return exts
}

// Len returns the number of registered analyzers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.ordered)
}
