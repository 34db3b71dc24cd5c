// Package security inspects executables and scripts for packing, embedded
// network indicators, and known suspicious strings, and grades each file
// with a weighted risk score.
package security

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/forensiq/filescope/internal/analyzers/analyze"
)

const analyzerName = "security"

// maxScanBytes bounds how much of the file feeds the entropy and string
// scans. One prefix read serves both.
const maxScanBytes = 1 << 20

const (
	maxRiskScore       = 100
	entropyRiskBonus   = 15
	peIndicatorBonus   = 5
	peIndicatorCeiling = 15
)

var extensions = []string{
	".exe", ".dll", ".scr", ".bat", ".cmd", ".ps1", ".vbs", ".js",
	".jar", ".apk", ".dex", ".so", ".dylib", ".bin", ".com", ".pif",
}

// eicarSignature is the standard antivirus test string. Harmless, but any
// scanner worth its salt reports it.
var eicarSignature = []byte(`X5O!P%@AP[4\PZX54(P^)7CC)7}$EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*`)

type Analyzer struct {
	rules *Rules
}

// New returns an analyzer backed by the embedded IOC rules. The embedded
// document is covered by tests, so loading it cannot fail at runtime.
func New() *Analyzer {
	rules, loadErr := loadRules(defaultRulesJSON)
	if loadErr != nil {
		panic(fmt.Sprintf("security: embedded rules: %v", loadErr))
	}

	return &Analyzer{rules: rules}
}

// NewWithRulesFile returns an analyzer whose suspicious-string scan is
// driven by a caller-provided rules document instead of the embedded one.
func NewWithRulesFile(path string) (*Analyzer, error) {
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return nil, fmt.Errorf("read rules: %w", readErr)
	}

	rules, loadErr := loadRules(data)
	if loadErr != nil {
		return nil, loadErr
	}

	return &Analyzer{rules: rules}, nil
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

	f, openErr := os.Open(path)
	if openErr != nil {
		res.SetError(fmt.Sprintf("open file: %v", openErr))

		return res
	}
	defer f.Close()

	info, statErr := f.Stat()
	if statErr != nil {
		res.SetError(fmt.Sprintf("stat file: %v", statErr))

		return res
	}

	head := make([]byte, maxScanBytes)

	n, readErr := io.ReadFull(f, head)
	if readErr != nil && !errors.Is(readErr, io.EOF) && !errors.Is(readErr, io.ErrUnexpectedEOF) {
		res.SetError(fmt.Sprintf("read file: %v", readErr))

		return res
	}

	head = head[:n]

	entropy := shannonEntropy(head)
	res.Metadata["entropy"] = round3(entropy)
	res.Metadata["entropy_suspicious"] = entropy > suspiciousEntropy

	if info.Size() >= minSectionedSize {
		if sections, secErr := sectionEntropies(f, info.Size()); secErr == nil {
			res.Metadata["section_entropy"] = sections
		}
	}

	classify(&res, path, head)

	eicar := bytes.Contains(head, eicarSignature)
	if eicar {
		res.Metadata["eicar_test_file"] = true
	}

	content := strings.ToLower(string(head))

	matches := scanIOC(a.rules, content)
	if len(matches) > 0 {
		res.Metadata["ioc_matches"] = matches
	}

	urls, domains, ips := extractIndicators(content)
	if len(urls) > 0 {
		res.Metadata["urls"] = urls
	}

	if len(domains) > 0 {
		res.Metadata["domains"] = domains
	}

	if len(ips) > 0 {
		res.Metadata["ip_addresses"] = ips
	}

	score := a.riskScore(&res, matches, entropy, eicar)
	level := riskLevel(score)

	res.Metadata["risk_score"] = score
	res.Metadata["risk_level"] = level
	res.Metadata["recommendations"] = recommendations(level, matches, entropy, eicar)

	return res
}

// classify routes on content magic rather than extension: a renamed
// executable still identifies itself.
func classify(res *analyze.Result, path string, head []byte) {
	switch {
	case len(head) >= 2 && head[0] == 'M' && head[1] == 'Z':
		analyzePE(res, path)
	case bytes.HasPrefix(head, []byte("\x7fELF")):
		analyzeELF(res, path)
	case bytes.HasPrefix(head, []byte("PK\x03\x04")):
		analyzeArchive(res, path)
	case bytes.HasPrefix(head, []byte("#!")):
		res.Metadata["executable_format"] = "script"
		attachShebang(res, head)
	}
}

func (a *Analyzer) riskScore(res *analyze.Result, matches map[string][]string, entropy float64, eicar bool) int {
	weights := make(map[string]int, len(a.rules.Categories))
	for _, cat := range a.rules.Categories {
		weights[cat.Name] = cat.Weight
	}

	score := 0
	for name, hits := range matches {
		score += len(hits) * weights[name]
	}

	if entropy > suspiciousEntropy {
		score += entropyRiskBonus
	}

	if indicators, ok := res.Metadata["pe_indicators"].([]string); ok {
		bonus := len(indicators) * peIndicatorBonus
		if bonus > peIndicatorCeiling {
			bonus = peIndicatorCeiling
		}

		score += bonus
	}

	if eicar || score > maxRiskScore {
		score = maxRiskScore
	}

	return score
}

func riskLevel(score int) string {
	switch {
	case score >= 80:
		return "critical"
	case score >= 50:
		return "high"
	case score >= 25:
		return "medium"
	case score > 0:
		return "low"
	default:
		return "minimal"
	}
}

func recommendations(level string, matches map[string][]string, entropy float64, eicar bool) []string {
	var recs []string

	if eicar {
		recs = append(recs, "EICAR antivirus test signature, not live malware. Confirm scanners flag this path.")
	}

	if level == "critical" || level == "high" {
		recs = append(recs, "Quarantine the file and review its provenance before any execution.")
	}

	if entropy > suspiciousEntropy {
		recs = append(recs, "High entropy points at packing or encryption. Unpack before deeper review.")
	}

	if _, ok := matches["network"]; ok {
		recs = append(recs, "Cross-check the embedded network indicators against egress logs.")
	}

	if _, ok := matches["persistence"]; ok {
		recs = append(recs, "Audit autorun keys, scheduled tasks, and services the file references.")
	}

	if _, ok := matches["evasion"]; ok {
		recs = append(recs, "Anti-analysis indicators present. Examine only inside a sandbox.")
	}

	if _, ok := matches["crypto"]; ok {
		recs = append(recs, "Search adjacent files for ransom notes or wallet artifacts.")
	}

	if len(recs) == 0 {
		recs = append(recs, "No suspicious indicators found.")
	}

	return recs
}
