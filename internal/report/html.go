package report

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/forensiq/filescope/internal/report/plotpage"
	"github.com/forensiq/filescope/internal/store"
)

const topLargestFiles = 10

// WriteHTML renders the interactive chart report for one session.
func WriteHTML(w io.Writer, data Data) error {
	page := plotpage.NewPage(
		"filescope session "+data.Session.ID,
		data.Session.DirectoryPath,
	)

	page.Add(plotpage.Section{
		Title: "Session Summary",
		HTML:  summaryTable(data),
	})

	if len(data.Statistics.FileTypes) > 0 {
		page.Add(plotpage.Section{
			Title:    "File Types",
			Subtitle: "Analyzed files by detected format",
			Chart:    fileTypePie(data.Statistics.FileTypes),
		})
	}

	page.Add(plotpage.Section{
		Title:    "Outcomes",
		Subtitle: "Successful versus failed analyses",
		Chart:    outcomeBar(data.Statistics),
		Hints: []string{
			"Failed files carry the failure reason in their result row.",
			"Files with no matching analyzer are recorded as failed results.",
		},
	})

	if largest := largestResults(data.Results, topLargestFiles); len(largest) > 0 {
		page.Add(plotpage.Section{
			Title:    "Largest Files",
			Subtitle: fmt.Sprintf("Top %d by size", len(largest)),
			Chart:    largestFilesBar(largest),
		})
	}

	if renderErr := page.Render(w); renderErr != nil {
		return fmt.Errorf("render html report: %w", renderErr)
	}

	return nil
}

func summaryTable(data Data) template.HTML {
	rows := [][2]string{
		{"Status", data.Session.Status},
		{"Started", data.Session.StartTime.Format(time.RFC3339)},
		{"Total files", humanize.Comma(int64(data.Session.TotalFiles))},
		{"Processed", humanize.Comma(int64(data.Session.ProcessedFiles))},
		{"Successful", humanize.Comma(int64(data.Session.SuccessfulFiles))},
		{"Failed", humanize.Comma(int64(data.Session.FailedFiles))},
		{"Success rate", fmt.Sprintf("%.1f%%", data.Statistics.SuccessRate)},
		{"Avg duration", fmt.Sprintf("%.3fs", data.Statistics.AvgDuration)},
		{"Total size", humanize.Bytes(uint64(max(data.Statistics.TotalBytes, 0)))},
	}

	if data.Session.ErrorMessage != "" {
		rows = append(rows, [2]string{"Error", data.Session.ErrorMessage})
	}

	var b strings.Builder

	b.WriteString("<table>")

	for _, row := range rows {
		b.WriteString("<tr><th>")
		b.WriteString(template.HTMLEscapeString(row[0]))
		b.WriteString("</th><td>")
		b.WriteString(template.HTMLEscapeString(row[1]))
		b.WriteString("</td></tr>")
	}

	b.WriteString("</table>")

	//nolint:gosec // every cell above is escaped.
	return template.HTML(b.String())
}

func fileTypePie(fileTypes map[string]int) *charts.Pie {
	items := make([]opts.PieData, 0, len(fileTypes))
	for _, fileType := range sortedKeys(fileTypes) {
		items = append(items, opts.PieData{Name: fileType, Value: fileTypes[fileType]})
	}

	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "700px", Height: "400px"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	pie.AddSeries("file types", items)

	return pie
}

func outcomeBar(stats store.Statistics) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "700px", Height: "400px"}),
	)
	bar.SetXAxis([]string{"successful", "failed"})
	bar.AddSeries("files", []opts.BarData{
		{Value: stats.SuccessfulCount},
		{Value: stats.FailedCount},
	})

	return bar
}

func largestFilesBar(largest []store.Result) *charts.Bar {
	labels := make([]string, 0, len(largest))
	values := make([]opts.BarData, 0, len(largest))

	for _, res := range largest {
		labels = append(labels, res.FileName)
		values = append(values, opts.BarData{Value: res.FileSize})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "700px", Height: "400px"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "bytes"}),
	)
	bar.SetXAxis(labels)
	bar.AddSeries("size", values)

	return bar
}
