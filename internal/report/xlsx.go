package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	sheetSummary = "Summary"
	sheetResults = "Results"
)

// WriteXLSX renders a workbook with a session summary sheet and a
// per-result sheet.
func WriteXLSX(w io.Writer, data Data) error {
	wb := excelize.NewFile()
	defer func() { _ = wb.Close() }()

	if renameErr := wb.SetSheetName(wb.GetSheetName(0), sheetSummary); renameErr != nil {
		return fmt.Errorf("name summary sheet: %w", renameErr)
	}

	if summaryErr := writeSummarySheet(wb, data); summaryErr != nil {
		return summaryErr
	}

	if resultsErr := writeResultsSheet(wb, data); resultsErr != nil {
		return resultsErr
	}

	if writeErr := wb.Write(w); writeErr != nil {
		return fmt.Errorf("write workbook: %w", writeErr)
	}

	return nil
}

func writeSummarySheet(wb *excelize.File, data Data) error {
	rows := [][]any{
		{"Session ID", data.Session.ID},
		{"Directory", data.Session.DirectoryPath},
		{"Status", data.Session.Status},
		{"Started", data.Session.StartTime.Format(time.RFC3339)},
		{"Total Files", data.Session.TotalFiles},
		{"Processed", data.Session.ProcessedFiles},
		{"Successful", data.Session.SuccessfulFiles},
		{"Failed", data.Session.FailedFiles},
		{"Success Rate", fmt.Sprintf("%.1f%%", data.Statistics.SuccessRate)},
		{"Avg Duration (s)", data.Statistics.AvgDuration},
		{"Total Bytes", data.Statistics.TotalBytes},
	}

	if !data.Session.EndTime.IsZero() {
		rows = append(rows, []any{"Finished", data.Session.EndTime.Format(time.RFC3339)})
	}

	for _, fileType := range sortedKeys(data.Statistics.FileTypes) {
		rows = append(rows, []any{"Type: " + fileType, data.Statistics.FileTypes[fileType]})
	}

	for i, row := range rows {
		cell, cellErr := excelize.CoordinatesToCellName(1, i+1)
		if cellErr != nil {
			return fmt.Errorf("summary cell: %w", cellErr)
		}

		if rowErr := wb.SetSheetRow(sheetSummary, cell, &row); rowErr != nil {
			return fmt.Errorf("write summary row %d: %w", i+1, rowErr)
		}
	}

	return nil
}

func writeResultsSheet(wb *excelize.File, data Data) error {
	if _, newErr := wb.NewSheet(sheetResults); newErr != nil {
		return fmt.Errorf("create results sheet: %w", newErr)
	}

	header := []any{
		"File Path", "File Name", "Size", "Type", "Analyzer",
		"Success", "Error", "Duration (s)", "MD5", "SHA1", "SHA256",
	}

	if headerErr := wb.SetSheetRow(sheetResults, "A1", &header); headerErr != nil {
		return fmt.Errorf("write results header: %w", headerErr)
	}

	for i, res := range data.Results {
		row := []any{
			res.FilePath, res.FileName, res.FileSize, res.FileType, res.Analyzer,
			res.Success, res.ErrorMessage, res.Duration.Seconds(),
			res.MD5, res.SHA1, res.SHA256,
		}

		cell, cellErr := excelize.CoordinatesToCellName(1, i+2)
		if cellErr != nil {
			return fmt.Errorf("results cell: %w", cellErr)
		}

		if rowErr := wb.SetSheetRow(sheetResults, cell, &row); rowErr != nil {
			return fmt.Errorf("write results row for %s: %w", res.FilePath, rowErr)
		}
	}

	return nil
}
