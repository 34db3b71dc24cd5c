package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/forensiq/filescope/internal/store"
)

// newTable builds a writer in the house terminal style.
func newTable(w io.Writer) table.Writer {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.SeparateColumns = true

	return tbl
}

// RenderSessions prints recent sessions, newest first.
func RenderSessions(w io.Writer, sessions []store.Session) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions recorded")

		return
	}

	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"ID", "Directory", "Status", "Files", "OK", "Failed", "Started"})

	for _, session := range sessions {
		tbl.AppendRow(table.Row{
			session.ID,
			session.DirectoryPath,
			session.Status,
			session.TotalFiles,
			session.SuccessfulFiles,
			session.FailedFiles,
			session.StartTime.Format(time.RFC3339),
		})
	}

	tbl.Render()
}

// RenderSessionDetails prints one session with its aggregate statistics.
func RenderSessionDetails(w io.Writer, session store.Session, stats store.Statistics) {
	tbl := newTable(w)
	tbl.AppendRows([]table.Row{
		{"Session", session.ID},
		{"Directory", session.DirectoryPath},
		{"Status", session.Status},
		{"Started", session.StartTime.Format(time.RFC3339)},
	})

	if !session.EndTime.IsZero() {
		tbl.AppendRow(table.Row{"Finished", session.EndTime.Format(time.RFC3339)})
	}

	if session.ErrorMessage != "" {
		tbl.AppendRow(table.Row{"Error", session.ErrorMessage})
	}

	tbl.AppendRows([]table.Row{
		{"Total files", session.TotalFiles},
		{"Processed", session.ProcessedFiles},
		{"Successful", session.SuccessfulFiles},
		{"Failed", session.FailedFiles},
		{"Success rate", fmt.Sprintf("%.1f%%", stats.SuccessRate)},
		{"Avg duration", fmt.Sprintf("%.3fs", stats.AvgDuration)},
		{"Total size", humanize.Bytes(uint64(max(stats.TotalBytes, 0)))},
	})
	tbl.Render()

	if len(stats.FileTypes) > 0 {
		fmt.Fprintln(w, "\nFile types:")
		renderCounts(w, stats.FileTypes)
	}

	if len(stats.Analyzers) > 0 {
		fmt.Fprintln(w, "\nAnalyzers:")
		renderCounts(w, stats.Analyzers)
	}

	if len(stats.Stored) > 0 {
		fmt.Fprintln(w, "\nRun metrics:")

		metrics := newTable(w)
		for _, name := range sortedStringKeys(stats.Stored) {
			metrics.AppendRow(table.Row{name, stats.Stored[name]})
		}

		metrics.Render()
	}
}

func renderCounts(w io.Writer, counts map[string]int) {
	tbl := newTable(w)
	for _, key := range sortedKeys(counts) {
		tbl.AppendRow(table.Row{key, counts[key]})
	}

	tbl.Render()
}

// RenderDuplicates prints duplicate groups, largest first.
func RenderDuplicates(w io.Writer, groups []store.DuplicateGroup) {
	if len(groups) == 0 {
		fmt.Fprintln(w, "No duplicates found")

		return
	}

	for i, group := range groups {
		fmt.Fprintf(w, "Group %d: %s %s (%d files, %s each)\n",
			i+1, group.Algorithm, group.Hash, group.Count,
			humanize.Bytes(uint64(max(group.FileSize, 0))))

		for _, path := range group.Paths {
			fmt.Fprintf(w, "  %s\n", path)
		}
	}
}

// RenderFailedResults prints the failed files of a session with reasons.
func RenderFailedResults(w io.Writer, results []store.Result) {
	failed := make([]store.Result, 0, len(results))

	for _, res := range results {
		if !res.Success {
			failed = append(failed, res)
		}
	}

	if len(failed) == 0 {
		return
	}

	fmt.Fprintln(w, "\nFailed files:")

	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"File", "Analyzer", "Error"})

	for _, res := range failed {
		tbl.AppendRow(table.Row{res.FilePath, res.Analyzer, res.ErrorMessage})
	}

	tbl.Render()
}

func sortedStringKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}
