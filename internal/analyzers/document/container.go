package document

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/forensiq/filescope/internal/analyzers/analyze"
)

// coreProperties maps docProps/core.xml. Field tags match local element
// names, so the dc/cp/dcterms namespace prefixes are irrelevant.
type coreProperties struct {
	Title          string `xml:"title"`
	Subject        string `xml:"subject"`
	Creator        string `xml:"creator"`
	Keywords       string `xml:"keywords"`
	Description    string `xml:"description"`
	LastModifiedBy string `xml:"lastModifiedBy"`
	Revision       string `xml:"revision"`
	Created        string `xml:"created"`
	Modified       string `xml:"modified"`
}

// appProperties maps docProps/app.xml.
type appProperties struct {
	Application string `xml:"Application"`
	Company     string `xml:"Company"`
	Pages       int    `xml:"Pages"`
	Words       int    `xml:"Words"`
	Slides      int    `xml:"Slides"`
	TotalTime   int    `xml:"TotalTime"`
}

// analyzeZipContainer handles the zip-based Office and OpenDocument
// formats: OOXML document properties when present, plus container shape.
func analyzeZipContainer(res *analyze.Result, path string) {
	zr, openErr := zip.OpenReader(path)
	if openErr != nil {
		res.SetError(fmt.Sprintf("open container: %v", openErr))

		return
	}
	defer zr.Close()

	res.Metadata["entry_count"] = len(zr.File)

	mediaCount := 0

	for _, entry := range zr.File {
		if strings.Contains(entry.Name, "/media/") {
			mediaCount++
		}
	}

	res.Metadata["embedded_media"] = mediaCount

	if mimetype := readEntry(&zr.Reader, "mimetype", 256); mimetype != "" {
		res.Metadata["container"] = "OpenDocument"
		res.Metadata["mimetype"] = strings.TrimSpace(mimetype)
	}

	if core := readEntry(&zr.Reader, "docProps/core.xml", 1<<20); core != "" {
		res.Metadata["container"] = "OOXML"
		attachCoreProperties(res.Metadata, []byte(core))
	}

	if app := readEntry(&zr.Reader, "docProps/app.xml", 1<<20); app != "" {
		attachAppProperties(res.Metadata, []byte(app))
	}
}

func attachCoreProperties(metadata map[string]any, data []byte) {
	var core coreProperties
	if unmarshalErr := xml.Unmarshal(data, &core); unmarshalErr != nil {
		return
	}

	setNonEmpty(metadata, "title", core.Title)
	setNonEmpty(metadata, "subject", core.Subject)
	setNonEmpty(metadata, "author", core.Creator)
	setNonEmpty(metadata, "keywords", core.Keywords)
	setNonEmpty(metadata, "description", core.Description)
	setNonEmpty(metadata, "last_modified_by", core.LastModifiedBy)
	setNonEmpty(metadata, "revision", core.Revision)
	setNonEmpty(metadata, "created", core.Created)
	setNonEmpty(metadata, "modified", core.Modified)
}

func attachAppProperties(metadata map[string]any, data []byte) {
	var app appProperties
	if unmarshalErr := xml.Unmarshal(data, &app); unmarshalErr != nil {
		return
	}

	setNonEmpty(metadata, "application", app.Application)
	setNonEmpty(metadata, "company", app.Company)

	if app.Pages > 0 {
		metadata["page_count"] = app.Pages
	}

	if app.Words > 0 {
		metadata["word_count"] = app.Words
	}

	if app.Slides > 0 {
		metadata["slide_count"] = app.Slides
	}

	if app.TotalTime > 0 {
		metadata["edit_minutes"] = app.TotalTime
	}
}

func setNonEmpty(metadata map[string]any, key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		metadata[key] = value
	}
}

// readEntry returns the named archive entry's content, empty when the
// entry is absent or unreadable. Reads are capped at limit bytes.
func readEntry(zr *zip.Reader, name string, limit int64) string {
	f, openErr := zr.Open(name)
	if openErr != nil {
		return ""
	}
	defer f.Close()

	data, readErr := io.ReadAll(io.LimitReader(f, limit))
	if readErr != nil {
		return ""
	}

	return string(data)
}
