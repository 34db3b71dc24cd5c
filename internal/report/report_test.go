package report_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/forensiq/filescope/internal/report"
	"github.com/forensiq/filescope/internal/store"
)

func sampleData() report.Data {
	start := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	return report.Data{
		GeneratedAt: start.Add(time.Minute),
		Session: store.Session{
			ID:              "run-1",
			DirectoryPath:   "/evidence/case-9",
			Status:          store.StatusCompleted,
			StartTime:       start,
			EndTime:         start.Add(30 * time.Second),
			TotalFiles:      3,
			ProcessedFiles:  3,
			SuccessfulFiles: 2,
			FailedFiles:     1,
		},
		Statistics: store.Statistics{
			SessionID:       "run-1",
			TotalResults:    3,
			SuccessfulCount: 2,
			FailedCount:     1,
			TotalBytes:      6144,
			SuccessRate:     66.7,
			AvgDuration:     0.019,
			FileTypes:       map[string]int{"Text Document": 2, "JPEG Image": 1},
			Analyzers:       map[string]int{"document": 2, "image": 1},
		},
		Results: []store.Result{
			{
				SessionID: "run-1",
				FilePath:  "/evidence/case-9/notes.txt",
				FileName:  "notes.txt",
				FileSize:  1024,
				FileType:  "Text Document",
				Analyzer:  "document",
				Success:   true,
				MD5:       "aaa111",
				Duration:  12 * time.Millisecond,
			},
			{
				SessionID: "run-1",
				FilePath:  "/evidence/case-9/scan.jpg",
				FileName:  "scan.jpg",
				FileSize:  4096,
				FileType:  "JPEG Image",
				Analyzer:  "image",
				Success:   true,
				MD5:       "bbb222",
				Duration:  40 * time.Millisecond,
			},
			{
				SessionID:    "run-1",
				FilePath:     "/evidence/case-9/broken.txt",
				FileName:     "broken.txt",
				FileSize:     1024,
				FileType:     "Text Document",
				Analyzer:     "document",
				Success:      false,
				ErrorMessage: "analysis failed: truncated file",
				Duration:     5 * time.Millisecond,
			},
		},
	}
}

func TestFormats_ListsEveryWriter(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		[]string{"json", "csv", "yaml", "xlsx", "html", "lz4"},
		report.Formats())
}

func TestWrite_UnknownFormat(t *testing.T) {
	t.Parallel()

	err := report.Write(&bytes.Buffer{}, "pdf", sampleData())
	require.ErrorIs(t, err, report.ErrUnknownFormat)
}

func TestWriteJSON_RoundTrips(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.NoError(t, report.WriteJSON(&buf, sampleData()))

	var decoded report.Data

	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded.Session.ID)
	assert.Len(t, decoded.Results, 3)
	assert.Equal(t, 2, decoded.Statistics.SuccessfulCount)
}

func TestWriteYAML_RoundTrips(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.NoError(t, report.WriteYAML(&buf, sampleData()))

	var decoded map[string]any

	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	session, ok := decoded["session"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "run-1", session["id"])
}

func TestWriteCSV_OneRowPerResult(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.NoError(t, report.WriteCSV(&buf, sampleData()))

	rows, readErr := csv.NewReader(&buf).ReadAll()
	require.NoError(t, readErr)
	require.Len(t, rows, 4)

	assert.Equal(t, "file_path", rows[0][0])
	assert.Equal(t, "/evidence/case-9/notes.txt", rows[1][0])
	assert.Equal(t, "true", rows[1][5])
	assert.Equal(t, "false", rows[3][5])
	assert.Equal(t, "analysis failed: truncated file", rows[3][6])
}

func TestWriteXLSX_SummaryAndResults(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.NoError(t, report.WriteXLSX(&buf, sampleData()))

	wb, openErr := excelize.OpenReader(&buf)
	require.NoError(t, openErr)

	defer func() { _ = wb.Close() }()

	assert.ElementsMatch(t, []string{"Summary", "Results"}, wb.GetSheetList())

	id, cellErr := wb.GetCellValue("Summary", "B1")
	require.NoError(t, cellErr)
	assert.Equal(t, "run-1", id)

	path, pathErr := wb.GetCellValue("Results", "A2")
	require.NoError(t, pathErr)
	assert.Equal(t, "/evidence/case-9/notes.txt", path)
}

func TestWriteHTML_EmbedsChartsAndSummary(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.NoError(t, report.WriteHTML(&buf, sampleData()))

	html := buf.String()
	assert.Contains(t, html, "session run-1")
	assert.Contains(t, html, "File Types")
	assert.Contains(t, html, "Largest Files")
	assert.Contains(t, html, "echarts.init")
}

func TestArchive_RoundTrips(t *testing.T) {
	t.Parallel()

	data := sampleData()

	var buf bytes.Buffer

	require.NoError(t, report.WriteArchive(&buf, data))

	// The output must be a real lz4 frame, not pass-through JSON.
	require.True(t, bytes.HasPrefix(buf.Bytes(), []byte{0x04, 0x22, 0x4d, 0x18}))

	decoded, readErr := report.ReadArchive(&buf)
	require.NoError(t, readErr)
	assert.Equal(t, data.Session, decoded.Session)
	assert.Len(t, decoded.Results, len(data.Results))
}

func TestReadArchive_RejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := report.ReadArchive(strings.NewReader("not an lz4 frame"))
	require.Error(t, err)
}

func TestWriteFile_NamesBySessionAndFormat(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	path, writeErr := report.WriteFile(filepath.Join(dir, "reports"), report.FormatJSON, sampleData())
	require.NoError(t, writeErr)
	assert.Equal(t, filepath.Join(dir, "reports", "run-1.json"), path)

	content, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Contains(t, string(content), `"run-1"`)
}

func TestWriteFile_UnknownFormat(t *testing.T) {
	t.Parallel()

	_, err := report.WriteFile(t.TempDir(), "docx", sampleData())
	require.ErrorIs(t, err, report.ErrUnknownFormat)
}

func TestRenderSessions_Table(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	report.RenderSessions(&buf, []store.Session{sampleData().Session})

	out := buf.String()
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "/evidence/case-9")
	assert.Contains(t, out, store.StatusCompleted)
}

func TestRenderSessions_Empty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	report.RenderSessions(&buf, nil)
	assert.Contains(t, buf.String(), "No sessions recorded")
}

func TestRenderSessionDetails_IncludesStatistics(t *testing.T) {
	t.Parallel()

	data := sampleData()

	var buf bytes.Buffer

	report.RenderSessionDetails(&buf, data.Session, data.Statistics)

	out := buf.String()
	assert.Contains(t, out, "Success rate")
	assert.Contains(t, out, "66.7%")
	assert.Contains(t, out, "Avg duration")
	assert.Contains(t, out, "0.019s")
	assert.Contains(t, out, "Text Document")
	assert.Contains(t, out, "JPEG Image")
}

func TestRenderDuplicates_GroupsAndPaths(t *testing.T) {
	t.Parallel()

	groups := []store.DuplicateGroup{{
		Algorithm: "md5",
		Hash:      "aaa111",
		Paths:     []string{"/a/one.txt", "/b/two.txt"},
		FileSize:  1024,
		Count:     2,
	}}

	var buf bytes.Buffer

	report.RenderDuplicates(&buf, groups)

	out := buf.String()
	assert.Contains(t, out, "md5 aaa111")
	assert.Contains(t, out, "/a/one.txt")
	assert.Contains(t, out, "/b/two.txt")
}

func TestRenderFailedResults_OnlyFailures(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	report.RenderFailedResults(&buf, sampleData().Results)

	out := buf.String()
	assert.Contains(t, out, "broken.txt")
	assert.Contains(t, out, "truncated file")
	assert.NotContains(t, out, "notes.txt")
}
