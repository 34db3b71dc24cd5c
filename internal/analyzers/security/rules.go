package security

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed rules.json
var defaultRulesJSON []byte

//go:embed rules_schema.json
var rulesSchemaJSON []byte

// ErrInvalidRules reports a rules document that failed schema validation.
var ErrInvalidRules = errors.New("invalid IOC rules")

// Extraction caps bound the indicator lists on pathological inputs.
const (
	maxURLs    = 20
	maxDomains = 30
	maxIPs     = 30
)

var (
	urlPattern    = regexp.MustCompile(`https?://[^\s"'<>\\]+`)
	domainPattern = regexp.MustCompile(`\b(?:[a-z0-9][a-z0-9-]{0,62}\.)+[a-z]{2,6}\b`)
	ipPattern     = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
)

// Category is one group of IOC substring patterns sharing a risk weight.
type Category struct {
	Name     string   `json:"name"`
	Patterns []string `json:"patterns"`
	Weight   int      `json:"weight"`
}

// Rules is the IOC rules document driving the suspicious-string scan.
type Rules struct {
	Categories []Category `json:"categories"`
	Version    int        `json:"version"`
}

// loadRules validates a rules document against the embedded schema and
// decodes it. Patterns are lowercased so matching stays case-insensitive.
func loadRules(data []byte) (*Rules, error) {
	schemaLoader := gojsonschema.NewBytesLoader(rulesSchemaJSON)
	docLoader := gojsonschema.NewBytesLoader(data)

	result, validateErr := gojsonschema.Validate(schemaLoader, docLoader)
	if validateErr != nil {
		return nil, fmt.Errorf("validate rules: %w", validateErr)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}

		return nil, fmt.Errorf("%w: %s", ErrInvalidRules, strings.Join(msgs, "; "))
	}

	var rules Rules
	if unmarshalErr := json.Unmarshal(data, &rules); unmarshalErr != nil {
		return nil, fmt.Errorf("decode rules: %w", unmarshalErr)
	}

	for i := range rules.Categories {
		for j, p := range rules.Categories[i].Patterns {
			rules.Categories[i].Patterns[j] = strings.ToLower(p)
		}
	}

	return &rules, nil
}

// scanIOC reports, per category, which patterns occur in the content.
// Content must already be lowercased.
func scanIOC(rules *Rules, content string) map[string][]string {
	matches := make(map[string][]string)

	for _, cat := range rules.Categories {
		var hits []string

		for _, p := range cat.Patterns {
			if strings.Contains(content, p) {
				hits = append(hits, p)
			}
		}

		if len(hits) > 0 {
			matches[cat.Name] = hits
		}
	}

	return matches
}

// extractIndicators pulls URLs, bare domains, and IPv4 addresses out of the
// content, deduplicated in order of first appearance.
func extractIndicators(content string) (urls, domains, ips []string) {
	urls = dedupeCapped(urlPattern.FindAllString(content, -1), maxURLs)
	domains = dedupeCapped(domainPattern.FindAllString(content, -1), maxDomains)
	ips = dedupeCapped(ipPattern.FindAllString(content, -1), maxIPs)

	return urls, domains, ips
}

func dedupeCapped(values []string, limit int) []string {
	if len(values) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, min(limit, len(values)))

	for _, v := range values {
		if _, dup := seen[v]; dup {
			continue
		}

		seen[v] = struct{}{}

		out = append(out, v)
		if len(out) == limit {
			break
		}
	}

	return out
}
