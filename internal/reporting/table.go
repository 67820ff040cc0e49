package reporting

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spboyer/dea/internal/models"
)

// WriteTable writes an aligned text table of the records followed by one
// line per skipped DMU.
func WriteTable(w io.Writer, outcome *models.Outcome) error {
	rows := [][]string{CSVHeader}
	for _, r := range outcome.Records {
		ref := JoinReferenceSet(r.ReferenceSet)
		if ref == "" {
			ref = "-"
		}
		rows = append(rows, []string{r.DMU, FormatEfficiency(r.Efficiency), ref})
	}

	widths := make([]int, len(CSVHeader))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	var b strings.Builder
	for n, row := range rows {
		for i, cell := range row {
			if i > 0 {
				b.WriteString("  ")
			}
			if i == len(row)-1 {
				b.WriteString(cell)
			} else {
				b.WriteString(runewidth.FillRight(cell, widths[i]))
			}
		}
		b.WriteString("\n")
		if n == 0 {
			for i, wd := range widths {
				if i > 0 {
					b.WriteString("  ")
				}
				b.WriteString(strings.Repeat("─", wd))
			}
			b.WriteString("\n")
		}
	}

	for _, warn := range outcome.Warnings {
		b.WriteString(fmt.Sprintf("⚠ skipped %s: %s\n", warn.DMU, warn.Message))
	}

	_, err := io.WriteString(w, b.String())
	return err
}
