// Package network extracts traffic summaries from packet captures and
// security-relevant tallies from server logs.
package network

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/forensiq/filescope/internal/analyzers/analyze"
)

const analyzerName = "network"

// Line and packet caps keep pathological inputs bounded.
const (
	maxAccessLines   = 50000
	maxFirewallLines = 30000
	maxAuthLines     = 20000
	maxGenericLines  = 10000
	maxPackets       = 10000
)

var extensions = []string{".log", ".pcap", ".cap", ".conf", ".cfg"}

type Analyzer struct{}

func New() *Analyzer {
	return &Analyzer{}
}

func (a *Analyzer) Name() string {
	return analyzerName
}

func (a *Analyzer) Extensions() []string {
	return slices.Clone(extensions)
}

func (a *Analyzer) CanAnalyze(path string) bool {
	return slices.Contains(extensions, strings.ToLower(filepath.Ext(path)))
}

func (a *Analyzer) Analyze(ctx context.Context, path string) analyze.Result {
	res := analyze.New(path, analyzerName)

	if ctxErr := ctx.Err(); ctxErr != nil {
		res.SetError(fmt.Sprintf("analysis cancelled: %v", ctxErr))

		return res
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".pcap" || ext == ".cap" {
		analyzePCAP(&res, path)

		return res
	}

	// Log flavor is in the filename, not the extension.
	name := strings.ToLower(filepath.Base(path))

	switch {
	case strings.Contains(name, "access"):
		analyzeAccessLog(&res, path)
	case strings.Contains(name, "firewall"), strings.Contains(name, "iptables"):
		analyzeFirewallLog(&res, path)
	case strings.Contains(name, "auth"), strings.Contains(name, "secure"):
		analyzeAuthLog(&res, path)
	default:
		analyzeGenericLog(&res, path)
	}

	return res
}

// tally counts string occurrences, ignoring empties.
type tally map[string]int

func (t tally) add(key string) {
	if key != "" {
		t[key]++
	}
}

// top returns the n most frequent entries, ties broken alphabetically.
func (t tally) top(n int) []map[string]any {
	type pair struct {
		value string
		count int
	}

	pairs := make([]pair, 0, len(t))
	for value, count := range t {
		pairs = append(pairs, pair{value, count})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count != pairs[j].count {
			return pairs[i].count > pairs[j].count
		}

		return pairs[i].value < pairs[j].value
	})

	if len(pairs) > n {
		pairs = pairs[:n]
	}

	out := make([]map[string]any, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, map[string]any{"value": p.value, "count": p.count})
	}

	return out
}

func (t tally) counts() map[string]int {
	return map[string]int(t)
}
