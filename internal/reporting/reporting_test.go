package reporting

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/spboyer/dea/internal/models"
	"github.com/spboyer/dea/internal/statistics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOutcome() *models.Outcome {
	return &models.Outcome{
		Model:     "ccr-input",
		Timestamp: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
		Setup: models.OutcomeSetup{
			DMUs: 4, Inputs: 2, Outputs: 1, Workers: 1, Tolerance: 1e-6, Decimals: 4,
		},
		Records: []models.Record{
			{DMU: "A", Index: 0, Efficiency: 0.8571, RawEfficiency: 0.857142857, ReferenceSet: []string{"D", "E"}, Lambdas: []float64{0.714, 0.286}},
			{DMU: "C", Index: 2, Efficiency: 1, RawEfficiency: 1, ReferenceSet: []string{"C"}, Lambdas: []float64{1}},
			{DMU: "Z", Index: 3, Efficiency: 0.5, RawEfficiency: 0.5},
		},
		Warnings: []models.Warning{
			{DMU: "B", Index: 1, Status: models.SolveNumericalFailure, Message: "no optimal solution for DMU B: numerical failure"},
		},
		DurationMs: 42,
	}
}

func TestFormatEfficiency(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1, "1.0"},
		{0.8571, "0.8571"},
		{0.5, "0.5"},
		{0, "0.0"},
		{0.6316, "0.6316"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatEfficiency(tt.in))
		})
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, newTestOutcome().Records))

	want := "DMU,θ* (Efficiency),Reference Set\n" +
		"A,0.8571,\"D, E\"\n" +
		"C,1.0,C\n" +
		"Z,0.5,\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, "DMU,θ* (Efficiency),Reference Set\n", buf.String())
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, newTestOutcome()))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")

	require.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[0], "DMU  θ* (Efficiency)"))
	assert.True(t, strings.HasPrefix(lines[1], "───  "))
	assert.True(t, strings.HasPrefix(lines[2], "A    0.8571"))
	assert.True(t, strings.HasSuffix(lines[2], "D, E"))
	assert.True(t, strings.HasSuffix(lines[4], "-"), "empty reference set shows a dash")
	assert.Equal(t, "⚠ skipped B: no optimal solution for DMU B: numerical failure", lines[5])
}

func TestWriteChart(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteChart(&buf, newTestOutcome().Records, 30))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")

	require.Len(t, lines, 3)
	assert.Equal(t, "A │"+strings.Repeat("█", 17)+" 0.8571", lines[0])
	assert.Equal(t, "C │"+strings.Repeat("█", 20)+" 1.0000", lines[1])
	assert.Equal(t, "Z │"+strings.Repeat("█", 10)+" 0.5000", lines[2])
}

func TestWriteChart_NarrowAndEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteChart(&buf, []models.Record{{DMU: "long-name", Efficiency: 1}}, 5))
	assert.Equal(t, "long-name │"+strings.Repeat("█", minBarWidth)+" 1.0000\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteChart(&buf, nil, 80))
	assert.Empty(t, buf.String())
}

func TestChartWidth_NotTerminal(t *testing.T) {
	assert.Equal(t, DefaultChartWidth, ChartWidth(&bytes.Buffer{}))
}

func TestFormatMarkdown(t *testing.T) {
	outcome := newTestOutcome()
	outcome.Summarize(0, 0)
	md := FormatMarkdown(outcome)

	assert.Contains(t, md, "## DEA CCR Results")
	assert.Contains(t, md, "**DMUs:** 4 | **Inputs:** 2 | **Outputs:** 1 | **Duration:** 42ms")
	assert.Contains(t, md, "| A | 0.8571 | D, E |")
	assert.Contains(t, md, "| C | 1.0 | C |")
	assert.Contains(t, md, "| Z | 0.5 |  |")
	assert.Contains(t, md, "- **Efficient:** 1 of 3")
	assert.Contains(t, md, "- **B** (numerical_failure)")
	assert.NotContains(t, md, "CI of mean")
}

func TestFormatMarkdown_EscapesPipes(t *testing.T) {
	outcome := &models.Outcome{Records: []models.Record{{DMU: "a|b", Efficiency: 1, ReferenceSet: []string{"a|b"}}}}
	assert.Contains(t, FormatMarkdown(outcome), `| a\|b | 1.0 | a\|b |`)
}

func TestRenderHTML(t *testing.T) {
	outcome := newTestOutcome()
	outcome.Summary = &models.Summary{
		Evaluated: 3, Efficient: 1,
		BootstrapCI: &statistics.ConfidenceInterval{Lower: 0.5, Upper: 0.9, ConfidenceLevel: 0.95},
	}
	page, err := RenderHTML(outcome)
	require.NoError(t, err)
	html := string(page)

	assert.True(t, strings.HasPrefix(html, "<!DOCTYPE html>"))
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "<td>A</td>")
	assert.Contains(t, html, "<td>D, E</td>")
	assert.Contains(t, html, "95% CI of mean")
}

func TestRenderHTML_EscapesNames(t *testing.T) {
	outcome := &models.Outcome{Records: []models.Record{{DMU: "<script>x</script>", Efficiency: 1}}}
	page, err := RenderHTML(outcome)
	require.NoError(t, err)
	assert.NotContains(t, string(page), "<script>")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, newTestOutcome()))

	var decoded models.Outcome
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, newTestOutcome().Records, decoded.Records)
	assert.Contains(t, buf.String(), `"results": [`)
	assert.Contains(t, buf.String(), `"reference_set": [`)
}

func TestConvertToJUnit(t *testing.T) {
	suites := ConvertToJUnit(newTestOutcome())

	assert.Equal(t, 4, suites.Tests)
	assert.Equal(t, 1, suites.Errors)
	require.Len(t, suites.TestSuites, 1)
	suite := suites.TestSuites[0]
	assert.Equal(t, "ccr-input", suite.Name)
	assert.Equal(t, "2025-06-15T12:00:00Z", suite.Timestamp)

	var names []string
	for _, tc := range suite.TestCases {
		names = append(names, tc.Name)
	}
	assert.Equal(t, []string{"A", "B", "C", "Z"}, names)
	assert.Nil(t, suite.TestCases[0].Error)
	assert.Equal(t, "efficiency=0.8571 reference_set=D,E", suite.TestCases[0].SystemOut)
	require.NotNil(t, suite.TestCases[1].Error)
	assert.Equal(t, "numerical_failure", suite.TestCases[1].Error.Type)
}

func TestWriteJUnitXML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJUnitXML(&buf, newTestOutcome()))
	assert.True(t, strings.HasPrefix(buf.String(), xml.Header))

	var parsed JUnitTestSuites
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &parsed))
	assert.Equal(t, 4, parsed.Tests)
	assert.Len(t, parsed.TestSuites[0].TestCases, 4)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"table", TableFormat, false},
		{"CSV", CSVFormat, false},
		{" json ", JSONFormat, false},
		{"md", MarkdownFormat, false},
		{"markdown", MarkdownFormat, false},
		{"html", HTMLFormat, false},
		{"junit", JUnitFormat, false},
		{"xlsx", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "expected one of table, csv, json, markdown, html, junit")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWrite_AllFormats(t *testing.T) {
	for _, f := range Formats {
		t.Run(string(f), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Write(&buf, f, newTestOutcome()))
			assert.Contains(t, buf.String(), "0.8571")
			assert.NotEmpty(t, f.ContentType())
		})
	}
	require.Error(t, Write(&bytes.Buffer{}, Format("pdf"), newTestOutcome()))
}

func TestInterpretEfficiency(t *testing.T) {
	tests := []struct {
		theta float64
		want  string
	}{
		{1, "Efficient (on the frontier)"},
		{0.95, "Near-efficient (≥0.90)"},
		{0.9, "Near-efficient (≥0.90)"},
		{0.8571, "Moderately inefficient (0.70-0.90)"},
		{0.6316, "Inefficient (<0.70)"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, InterpretEfficiency(tt.theta))
		})
	}
}

func TestInterpretReduction(t *testing.T) {
	assert.Equal(t, "No proportional input reduction is possible.", InterpretReduction(1))
	assert.Equal(t, "Could produce the same outputs with 75.0% of its inputs (a 25.0% reduction).", InterpretReduction(0.75))
}

func TestFormatSummaryReport(t *testing.T) {
	outcome := newTestOutcome()
	outcome.Summarize(0, 0)
	report := FormatSummaryReport(outcome)

	assert.Contains(t, report, "=== Interpretation ===")
	assert.Contains(t, report, "Efficient DMUs:  1 of 3 evaluated")
	assert.Contains(t, report, "Skipped:         1 DMU(s)")
	assert.Contains(t, report, "✗ A: Moderately inefficient")
	assert.Contains(t, report, "Benchmark against: D, E")
	assert.Contains(t, report, "✓ C: Efficient")
}
