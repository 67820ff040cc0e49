package reporting

import (
	"fmt"
	"io"
	"strings"

	"github.com/spboyer/dea/internal/models"
)

// Format selects an output renderer.
type Format string

const (
	TableFormat    Format = "table"
	CSVFormat      Format = "csv"
	JSONFormat     Format = "json"
	MarkdownFormat Format = "markdown"
	HTMLFormat     Format = "html"
	JUnitFormat    Format = "junit"
)

// Formats lists every supported format in help-text order.
var Formats = []Format{TableFormat, CSVFormat, JSONFormat, MarkdownFormat, HTMLFormat, JUnitFormat}

// ParseFormat resolves a format name case-insensitively; "md" is accepted
// for markdown.
func ParseFormat(name string) (Format, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "md" {
		return MarkdownFormat, nil
	}
	for _, f := range Formats {
		if string(f) == n {
			return f, nil
		}
	}
	names := make([]string, len(Formats))
	for i, f := range Formats {
		names[i] = string(f)
	}
	return "", fmt.Errorf("unknown format %q (expected one of %s)", name, strings.Join(names, ", "))
}

// ContentType returns the MIME type of a rendered format.
func (f Format) ContentType() string {
	switch f {
	case CSVFormat:
		return "text/csv; charset=utf-8"
	case JSONFormat:
		return "application/json"
	case MarkdownFormat:
		return "text/markdown; charset=utf-8"
	case HTMLFormat:
		return "text/html; charset=utf-8"
	case JUnitFormat:
		return "application/xml"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Write renders outcome in format f.
func Write(w io.Writer, f Format, outcome *models.Outcome) error {
	switch f {
	case TableFormat:
		return WriteTable(w, outcome)
	case CSVFormat:
		return WriteCSV(w, outcome.Records)
	case JSONFormat:
		return WriteJSON(w, outcome)
	case MarkdownFormat:
		_, err := io.WriteString(w, FormatMarkdown(outcome))
		return err
	case HTMLFormat:
		page, err := RenderHTML(outcome)
		if err != nil {
			return err
		}
		_, err = w.Write(page)
		return err
	case JUnitFormat:
		return WriteJUnitXML(w, outcome)
	default:
		return fmt.Errorf("unknown format %q", f)
	}
}
