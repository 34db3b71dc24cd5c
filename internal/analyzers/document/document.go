// Package document extracts structure and authorship metadata from PDF,
// Office, and plain-text documents.
package document

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/forensiq/filescope/internal/analyzers/analyze"
)

const analyzerName = "document"

var extensions = []string{
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
	".txt", ".md", ".csv", ".rtf", ".odt", ".html", ".xml", ".json",
}

// oleMagic is the compound document signature of legacy Office files.
var oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

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

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		analyzePDF(&res, path)
	case ".docx", ".xlsx", ".pptx", ".odt":
		analyzeZipContainer(&res, path)
	case ".doc", ".xls", ".ppt":
		analyzeLegacyOffice(&res, path)
	default:
		analyzeText(&res, path)
	}

	return res
}

// analyzeLegacyOffice identifies the OLE compound container. The binary
// stream layout inside is not parsed.
func analyzeLegacyOffice(res *analyze.Result, path string) {
	f, openErr := os.Open(path)
	if openErr != nil {
		res.SetError(fmt.Sprintf("open document: %v", openErr))

		return
	}
	defer f.Close()

	magic := make([]byte, len(oleMagic))
	if _, readErr := f.Read(magic); readErr != nil {
		res.SetError(fmt.Sprintf("read document header: %v", readErr))

		return
	}

	if !bytes.Equal(magic, oleMagic) {
		res.SetError("not an OLE compound document")

		return
	}

	res.Metadata["container"] = "OLE Compound Document"
	res.Metadata["format_era"] = "legacy (pre-2007 Office)"
}
