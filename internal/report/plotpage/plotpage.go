// Package plotpage assembles go-echarts charts into a single HTML report
// page with titled sections and interpretive hints.
package plotpage

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strings"
)

// Renderable is the interface go-echarts chart types satisfy.
type Renderable interface {
	Render(w io.Writer) error
}

// Section is one chart block on the page.
type Section struct {
	Title    string
	Subtitle string
	Hints    []string
	Chart    Renderable

	// HTML holds pre-rendered content for chartless sections (summary
	// tables). Ignored when Chart is set.
	HTML template.HTML
}

// Page is a complete report page.
type Page struct {
	Title    string
	Subtitle string
	Sections []Section
}

// NewPage creates a page with the filescope report chrome.
func NewPage(title, subtitle string) *Page {
	return &Page{Title: title, Subtitle: subtitle}
}

// Add appends sections to the page.
func (p *Page) Add(sections ...Section) {
	p.Sections = append(p.Sections, sections...)
}

// Render writes the page as a standalone HTML document.
func (p *Page) Render(w io.Writer) error {
	sections := make([]renderedSection, 0, len(p.Sections))

	for _, section := range p.Sections {
		content, renderErr := sectionContent(section)
		if renderErr != nil {
			return fmt.Errorf("render section %q: %w", section.Title, renderErr)
		}

		sections = append(sections, renderedSection{
			Title:    section.Title,
			Subtitle: section.Subtitle,
			Hints:    section.Hints,
			Content:  content,
		})
	}

	executeErr := pageTemplate.Execute(w, pageData{
		Title:    p.Title,
		Subtitle: p.Subtitle,
		Sections: sections,
	})
	if executeErr != nil {
		return fmt.Errorf("execute page template: %w", executeErr)
	}

	return nil
}

func sectionContent(section Section) (template.HTML, error) {
	if section.Chart == nil {
		return section.HTML, nil
	}

	var buf bytes.Buffer

	renderErr := section.Chart.Render(&buf)
	if renderErr != nil {
		return "", fmt.Errorf("render chart: %w", renderErr)
	}

	//nolint:gosec // chart markup is produced locally by go-echarts.
	return template.HTML(extractChartContent(buf.String())), nil
}

// extractChartContent lifts the chart container and script out of the
// full HTML page go-echarts renders, so charts embed cleanly into the
// report page. Content that is already a fragment passes through.
func extractChartContent(html string) string {
	trimmed := strings.TrimSpace(html)
	if !strings.HasPrefix(trimmed, "<!DOCTYPE") && !strings.HasPrefix(trimmed, "<html") {
		return html
	}

	start := strings.Index(html, `<div class="container">`)
	if start == -1 {
		return html
	}

	end := strings.Index(html, `</body>`)
	if end == -1 {
		return html
	}

	content := html[start:end]
	content = strings.ReplaceAll(content, `class="container"`, `class="chart-box"`)

	return content
}

type renderedSection struct {
	Title    string
	Subtitle string
	Hints    []string
	Content  template.HTML
}

type pageData struct {
	Title    string
	Subtitle string
	Sections []renderedSection
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<script src="https://go-echarts.github.io/go-echarts-assets/assets/echarts.min.js"></script>
<style>
body { font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; margin: 0; background: #f6f8fa; color: #1f2328; }
header { background: #1f2328; color: #f6f8fa; padding: 24px 32px; }
header h1 { margin: 0; font-size: 22px; }
header p { margin: 4px 0 0; color: #9198a1; font-size: 14px; }
section { background: #ffffff; margin: 24px 32px; padding: 20px 24px; border: 1px solid #d1d9e0; border-radius: 6px; }
section h2 { margin-top: 0; font-size: 18px; }
section p.subtitle { color: #59636e; font-size: 13px; margin-top: -8px; }
ul.hints { color: #59636e; font-size: 13px; }
table { border-collapse: collapse; font-size: 13px; }
th, td { border: 1px solid #d1d9e0; padding: 6px 12px; text-align: left; }
th { background: #f6f8fa; }
.chart-box { display: flex; justify-content: center; }
</style>
</head>
<body>
<header>
<h1>{{.Title}}</h1>
<p>{{.Subtitle}}</p>
</header>
{{range .Sections}}
<section>
<h2>{{.Title}}</h2>
{{if .Subtitle}}<p class="subtitle">{{.Subtitle}}</p>{{end}}
{{.Content}}
{{if .Hints}}<ul class="hints">{{range .Hints}}<li>{{.}}</li>{{end}}</ul>{{end}}
</section>
{{end}}
</body>
</html>
`))
