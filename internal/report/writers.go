package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/pierrec/lz4/v4"
	"gopkg.in/yaml.v3"
)

// WriteJSON renders the canonical indented JSON report.
func WriteJSON(w io.Writer, data Data) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if encodeErr := encoder.Encode(data); encodeErr != nil {
		return fmt.Errorf("encode json report: %w", encodeErr)
	}

	return nil
}

// WriteYAML renders the report as YAML.
func WriteYAML(w io.Writer, data Data) error {
	encoder := yaml.NewEncoder(w)

	if encodeErr := encoder.Encode(data); encodeErr != nil {
		return fmt.Errorf("encode yaml report: %w", encodeErr)
	}

	if closeErr := encoder.Close(); closeErr != nil {
		return fmt.Errorf("flush yaml report: %w", closeErr)
	}

	return nil
}

var csvHeader = []string{
	"file_path", "file_name", "file_size", "file_type", "analyzer",
	"success", "error_message", "duration_seconds", "md5", "sha1", "sha256",
}

// WriteCSV renders flat per-result rows.
func WriteCSV(w io.Writer, data Data) error {
	cw := csv.NewWriter(w)

	if headerErr := cw.Write(csvHeader); headerErr != nil {
		return fmt.Errorf("write csv header: %w", headerErr)
	}

	for _, res := range data.Results {
		row := []string{
			res.FilePath,
			res.FileName,
			strconv.FormatInt(res.FileSize, 10),
			res.FileType,
			res.Analyzer,
			strconv.FormatBool(res.Success),
			res.ErrorMessage,
			strconv.FormatFloat(res.Duration.Seconds(), 'f', 3, 64),
			res.MD5,
			res.SHA1,
			res.SHA256,
		}

		if rowErr := cw.Write(row); rowErr != nil {
			return fmt.Errorf("write csv row for %s: %w", res.FilePath, rowErr)
		}
	}

	cw.Flush()

	if flushErr := cw.Error(); flushErr != nil {
		return fmt.Errorf("flush csv report: %w", flushErr)
	}

	return nil
}

// WriteArchive renders the JSON report through an lz4 frame, the compact
// form for retaining many sessions.
func WriteArchive(w io.Writer, data Data) error {
	lw := lz4.NewWriter(w)

	encoder := json.NewEncoder(lw)
	if encodeErr := encoder.Encode(data); encodeErr != nil {
		return fmt.Errorf("encode archived report: %w", encodeErr)
	}

	if closeErr := lw.Close(); closeErr != nil {
		return fmt.Errorf("close lz4 frame: %w", closeErr)
	}

	return nil
}

// ReadArchive decodes a report written by WriteArchive.
func ReadArchive(r io.Reader) (Data, error) {
	var data Data

	decoder := json.NewDecoder(lz4.NewReader(r))
	if decodeErr := decoder.Decode(&data); decodeErr != nil {
		return Data{}, fmt.Errorf("decode archived report: %w", decodeErr)
	}

	return data, nil
}
