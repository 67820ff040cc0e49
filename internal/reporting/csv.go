// Package reporting renders evaluation outcomes as CSV, text tables, bar
// charts, Markdown, HTML, JSON and JUnit XML.
package reporting

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spboyer/dea/internal/models"
)

// DefaultCSVFilename is the name offered when the export is downloaded.
const DefaultCSVFilename = "dea_ccr_result.csv"

// CSVHeader is the header row of the export.
var CSVHeader = []string{"DMU", "θ* (Efficiency)", "Reference Set"}

// WriteCSV writes one row per record. The reference set is a single cell
// joined with ", " and is empty when the DMU has no peers.
func WriteCSV(w io.Writer, records []models.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for _, r := range records {
		row := []string{r.DMU, FormatEfficiency(r.Efficiency), JoinReferenceSet(r.ReferenceSet)}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing CSV row for %s: %w", r.DMU, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// FormatEfficiency prints θ* with the shortest exact representation and at
// least one fractional digit, so 1 becomes "1.0" and 0.8571 stays "0.8571".
func FormatEfficiency(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

// JoinReferenceSet renders peers the way they appear in every report.
func JoinReferenceSet(peers []string) string {
	return strings.Join(peers, ", ")
}
