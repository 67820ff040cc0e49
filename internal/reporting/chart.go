package reporting

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spboyer/dea/internal/models"
	"golang.org/x/term"
)

const (
	// DefaultChartWidth is used when the output is not a terminal.
	DefaultChartWidth = 80
	minBarWidth       = 10
)

// ChartWidth returns the terminal width of w, or DefaultChartWidth when w is
// not a terminal.
func ChartWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return DefaultChartWidth
	}
	cols, _, err := term.GetSize(int(f.Fd()))
	if err != nil || cols <= 0 {
		return DefaultChartWidth
	}
	return cols
}

// WriteChart draws a horizontal bar chart keyed by DMU with θ* as the bar
// length. A full-width bar is θ* = 1.
func WriteChart(w io.Writer, records []models.Record, width int) error {
	if len(records) == 0 {
		return nil
	}

	label := 0
	for _, r := range records {
		label = max(label, runewidth.StringWidth(r.DMU))
	}
	// label, " │", bar, " ", value
	bar := max(width-label-2-1-len("0.0000"), minBarWidth)

	var b strings.Builder
	for _, r := range records {
		v := math.Max(0, math.Min(1, r.Efficiency))
		n := int(math.Round(v * float64(bar)))
		b.WriteString(runewidth.FillRight(r.DMU, label))
		b.WriteString(" │")
		b.WriteString(strings.Repeat("█", n))
		b.WriteString(fmt.Sprintf(" %.4f\n", r.Efficiency))
	}

	_, err := io.WriteString(w, b.String())
	return err
}
