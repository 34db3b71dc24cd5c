package document

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/forensiq/filescope/internal/analyzers/analyze"
)

// infoFields are the Info dictionary entries worth carrying into results.
var infoFields = map[string]string{
	"Title":    "title",
	"Author":   "author",
	"Subject":  "subject",
	"Creator":  "creator",
	"Producer": "producer",
}

// analyzePDF reads the page tree and Info dictionary. The parser panics
// on some malformed files; those turn into a failed result here.
func analyzePDF(res *analyze.Result, path string) {
	defer func() {
		if r := recover(); r != nil {
			res.SetError(fmt.Sprintf("parse pdf: %v", r))
		}
	}()

	if version := pdfVersion(path); version != "" {
		res.Metadata["pdf_version"] = version
	}

	f, reader, openErr := pdf.Open(path)
	if openErr != nil {
		res.SetError(fmt.Sprintf("open pdf: %v", openErr))

		return
	}
	defer f.Close()

	res.Metadata["page_count"] = reader.NumPage()

	info := reader.Trailer().Key("Info")
	if info.Kind() != pdf.Dict {
		return
	}

	for field, key := range infoFields {
		if value := strings.TrimSpace(info.Key(field).Text()); value != "" {
			res.Metadata[key] = value
		}
	}

	if created, ok := pdfDate(info.Key("CreationDate").Text()); ok {
		res.Metadata["created"] = created
	}

	if modified, ok := pdfDate(info.Key("ModDate").Text()); ok {
		res.Metadata["modified"] = modified
	}
}

// pdfVersion reads the version from the %PDF-x.y header line.
func pdfVersion(path string) string {
	f, openErr := os.Open(path)
	if openErr != nil {
		return ""
	}
	defer f.Close()

	line, readErr := bufio.NewReader(f).ReadString('\n')
	if readErr != nil && line == "" {
		return ""
	}

	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "%PDF-") {
		return ""
	}

	return strings.TrimPrefix(line, "%PDF-")
}

// pdfDate parses dictionary dates like D:20240131154500+02'00'.
func pdfDate(raw string) (string, bool) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "D:")
	if raw == "" {
		return "", false
	}

	// Strip the timezone suffix; precision beyond seconds is rare.
	for _, sep := range []string{"+", "-", "Z", "'"} {
		if idx := strings.Index(raw, sep); idx > 0 {
			raw = raw[:idx]
		}
	}

	for _, layout := range []string{"20060102150405", "200601021504", "2006010215", "20060102"} {
		if t, parseErr := time.Parse(layout, raw); parseErr == nil {
			return t.UTC().Format(time.RFC3339), true
		}
	}

	return "", false
}
