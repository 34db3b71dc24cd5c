package document

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/src-d/enry/v2"

	"github.com/forensiq/filescope/internal/analyzers/analyze"
)

// maxTextBytes caps how much of a text file is loaded for counting.
const maxTextBytes = 8 << 20

var boms = []struct {
	encoding string
	marker   []byte
}{
	{"utf-8", []byte{0xEF, 0xBB, 0xBF}},
	{"utf-16le", []byte{0xFF, 0xFE}},
	{"utf-16be", []byte{0xFE, 0xFF}},
}

func analyzeText(res *analyze.Result, path string) {
	data, truncated, readErr := readCapped(path, maxTextBytes)
	if readErr != nil {
		res.SetError(fmt.Sprintf("read document: %v", readErr))

		return
	}

	if truncated {
		res.Metadata["truncated"] = true
	}

	res.Metadata["line_count"] = countLines(data)
	res.Metadata["word_count"] = len(strings.Fields(string(data)))
	res.Metadata["char_count"] = utf8.RuneCount(data)
	res.Metadata["valid_utf8"] = utf8.Valid(data)
	res.Metadata["is_binary"] = enry.IsBinary(data)

	for _, bom := range boms {
		if bytes.HasPrefix(data, bom.marker) {
			res.Metadata["bom"] = bom.encoding

			break
		}
	}

	if language := enry.GetLanguage(filepath.Base(path), data); language != "" {
		res.Metadata["language"] = language
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if !truncated {
			res.Metadata["valid_json"] = json.Valid(data)
		}
	case ".csv":
		if columns := csvColumns(data); columns > 0 {
			res.Metadata["csv_columns"] = columns
		}
	}
}

func readCapped(path string, limit int64) ([]byte, bool, error) {
	f, openErr := os.Open(path)
	if openErr != nil {
		return nil, false, openErr
	}
	defer f.Close()

	data, readErr := io.ReadAll(io.LimitReader(f, limit))
	if readErr != nil {
		return nil, false, readErr
	}

	info, statErr := f.Stat()
	truncated := statErr == nil && info.Size() > int64(len(data))

	return data, truncated, nil
}

func countLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}

	lines := bytes.Count(data, []byte{'\n'})
	if data[len(data)-1] != '\n' {
		lines++
	}

	return lines
}

// csvColumns counts the fields of the first record.
func csvColumns(data []byte) int {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	record, readErr := reader.Read()
	if readErr != nil {
		return 0
	}

	return len(record)
}
