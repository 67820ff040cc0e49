// Package dataset turns pasted or uploaded tables into a models.Table.
//
// A text table has a header row and one row per DMU. Cells may be separated
// by tabs, commas or semicolons, in any mix. The header must contain exactly
// one "DMU" column plus "input:<name>" and "output:<name>" columns; names are
// matched case-insensitively and any other column is ignored.
package dataset

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/spboyer/dea/internal/models"
)

const (
	dmuHeader    = "dmu"
	inputPrefix  = "input:"
	outputPrefix = "output:"
)

var cellSeparator = regexp.MustCompile(`[\t,;]`)

// columnLayout records where each category lives in the header row.
type columnLayout struct {
	width       int
	dmu         int
	inputs      []int
	outputs     []int
	inputNames  []string
	outputNames []string
}

// Parse reads a delimited text table. A missing column category is reported
// as *models.ShapeError; malformed rows or cells as *models.DataError.
func Parse(r io.Reader) (*models.Table, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		layout *columnLayout
		table  *models.Table
		seen   = make(map[string]int)
		line   = 0
	)

	for scanner.Scan() {
		line++
		text := scanner.Text()
		if line == 1 {
			text = strings.TrimPrefix(text, "\ufeff")
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		cells := splitCells(text)

		if layout == nil {
			l, err := parseHeader(cells)
			if err != nil {
				return nil, err
			}
			layout = l
			table = &models.Table{InputNames: l.inputNames, OutputNames: l.outputNames}
			continue
		}

		if len(cells) != layout.width {
			return nil, &models.DataError{
				Row:    line,
				Reason: fmt.Sprintf("has %d cells, expected %d", len(cells), layout.width),
			}
		}

		name := cells[layout.dmu]
		if name == "" {
			return nil, &models.DataError{Row: line, Column: "DMU", Reason: "DMU name is empty"}
		}
		if prev, dup := seen[name]; dup {
			return nil, &models.DataError{
				Row:    line,
				Column: "DMU",
				Value:  name,
				Reason: fmt.Sprintf("duplicate DMU name (first seen at row %d)", prev),
			}
		}
		seen[name] = line

		in, err := parseNumbers(cells, layout.inputs, line, inputPrefix, layout.inputNames)
		if err != nil {
			return nil, err
		}
		out, err := parseNumbers(cells, layout.outputs, line, outputPrefix, layout.outputNames)
		if err != nil {
			return nil, err
		}

		table.Names = append(table.Names, name)
		table.Inputs = append(table.Inputs, in)
		table.Outputs = append(table.Outputs, out)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading table: %w", err)
	}

	if layout == nil {
		return nil, &models.ShapeError{Expected: "a header row", Found: "empty input"}
	}
	if table.Len() == 0 {
		return nil, &models.DataError{Reason: "table has a header but no DMU rows"}
	}
	return table, nil
}

// ParseString is a convenience wrapper around Parse.
func ParseString(s string) (*models.Table, error) {
	return Parse(strings.NewReader(s))
}

func splitCells(line string) []string {
	cells := cellSeparator.Split(line, -1)
	for i, c := range cells {
		cells[i] = strings.TrimSpace(c)
	}
	return cells
}

func parseHeader(cells []string) (*columnLayout, error) {
	l := &columnLayout{width: len(cells), dmu: -1}
	dmuCount := 0

	for i, h := range cells {
		lower := strings.ToLower(h)
		switch {
		case lower == dmuHeader:
			dmuCount++
			if l.dmu < 0 {
				l.dmu = i
			}
		case strings.HasPrefix(lower, inputPrefix):
			l.inputs = append(l.inputs, i)
			l.inputNames = append(l.inputNames, strings.TrimSpace(h[len(inputPrefix):]))
		case strings.HasPrefix(lower, outputPrefix):
			l.outputs = append(l.outputs, i)
			l.outputNames = append(l.outputNames, strings.TrimSpace(h[len(outputPrefix):]))
		}
	}

	var missing []string
	if dmuCount == 0 {
		missing = append(missing, "no 'DMU' column")
	}
	if dmuCount > 1 {
		missing = append(missing, fmt.Sprintf("%d 'DMU' columns", dmuCount))
	}
	if len(l.inputs) == 0 {
		missing = append(missing, "no 'input:<name>' column")
	}
	if len(l.outputs) == 0 {
		missing = append(missing, "no 'output:<name>' column")
	}
	if len(missing) > 0 {
		return nil, &models.ShapeError{
			Expected: "exactly one 'DMU' column, at least one 'input:<name>' and at least one 'output:<name>' column",
			Found:    fmt.Sprintf("%s in header [%s]", strings.Join(missing, ", "), strings.Join(cells, " | ")),
		}
	}
	return l, nil
}

func parseNumbers(cells []string, idx []int, line int, prefix string, names []string) ([]float64, error) {
	values := make([]float64, len(idx))
	for k, i := range idx {
		raw := cells[i]
		col := prefix + names[k]
		if raw == "" {
			return nil, &models.DataError{Row: line, Column: col, Value: raw, Reason: "missing value"}
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, &models.DataError{Row: line, Column: col, Value: raw, Reason: "not a number"}
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &models.DataError{Row: line, Column: col, Value: raw, Reason: "not a finite number"}
		}
		values[k] = v
	}
	return values, nil
}
