package reporting

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/spboyer/dea/internal/models"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// formatDuration formats a duration in a consistent, human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.String()
}

// FormatMarkdown renders the outcome as a Markdown report with a results
// table, an optional summary, and the list of skipped DMUs.
func FormatMarkdown(outcome *models.Outcome) string {
	var b strings.Builder

	b.WriteString("## DEA CCR Results\n\n")
	b.WriteString(fmt.Sprintf("**DMUs:** %d | **Inputs:** %d | **Outputs:** %d | **Duration:** %s\n\n",
		outcome.Setup.DMUs, outcome.Setup.Inputs, outcome.Setup.Outputs,
		formatDuration(time.Duration(outcome.DurationMs)*time.Millisecond)))

	b.WriteString("| DMU | θ* (Efficiency) | Reference Set |\n")
	b.WriteString("|-----|-----------------|---------------|\n")
	for _, r := range outcome.Records {
		b.WriteString(fmt.Sprintf("| %s | %s | %s |\n",
			escapeCell(r.DMU), FormatEfficiency(r.Efficiency), escapeCell(JoinReferenceSet(r.ReferenceSet))))
	}
	b.WriteString("\n")

	if s := outcome.Summary; s != nil {
		b.WriteString("### Summary\n\n")
		b.WriteString(fmt.Sprintf("- **Efficient:** %d of %d\n", s.Efficient, s.Evaluated))
		b.WriteString(fmt.Sprintf("- **Mean θ\\*:** %.4f (σ=%.4f)\n", s.MeanEfficiency, s.StdDev))
		b.WriteString(fmt.Sprintf("- **Range:** %.4f - %.4f\n", s.MinEfficiency, s.MaxEfficiency))
		if ci := s.BootstrapCI; ci != nil {
			b.WriteString(fmt.Sprintf("- **%.0f%% CI of mean:** [%.4f, %.4f]\n", ci.ConfidenceLevel*100, ci.Lower, ci.Upper))
		}
		b.WriteString("\n")
	}

	if len(outcome.Warnings) > 0 {
		b.WriteString("### ⚠️ Skipped DMUs\n\n")
		for _, w := range outcome.Warnings {
			b.WriteString(fmt.Sprintf("- **%s** (%s): %s\n", escapeCell(w.DMU), w.Status, w.Message))
		}
		b.WriteString("\n")
	}

	return b.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

var markdownRenderer = goldmark.New(goldmark.WithExtensions(extension.Table))

var pageTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; max-width: 56rem; margin: 2rem auto; padding: 0 1rem; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: .3rem .7rem; text-align: left; }
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// RenderHTML converts the Markdown report to a standalone HTML page.
func RenderHTML(outcome *models.Outcome) ([]byte, error) {
	body, err := RenderHTMLFragment(outcome)
	if err != nil {
		return nil, err
	}
	var page bytes.Buffer
	err = pageTemplate.Execute(&page, struct {
		Title string
		Body  template.HTML
	}{
		Title: "DEA CCR Results",
		Body:  template.HTML(body), //nolint:gosec // goldmark output with raw HTML disabled
	})
	if err != nil {
		return nil, fmt.Errorf("rendering HTML page: %w", err)
	}
	return page.Bytes(), nil
}

// RenderHTMLFragment returns just the rendered report body.
func RenderHTMLFragment(outcome *models.Outcome) ([]byte, error) {
	var buf bytes.Buffer
	if err := markdownRenderer.Convert([]byte(FormatMarkdown(outcome)), &buf); err != nil {
		return nil, fmt.Errorf("rendering markdown: %w", err)
	}
	return buf.Bytes(), nil
}
