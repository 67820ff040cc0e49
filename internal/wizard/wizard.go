// Package wizard collects the settings for a new DEA project and renders the
// starter data file.
package wizard

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/template"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"
)

// Delimiter separates cells in the generated data file.
type Delimiter string

const (
	DelimiterTab       Delimiter = "tab"
	DelimiterComma     Delimiter = "comma"
	DelimiterSemicolon Delimiter = "semicolon"
)

// Rune returns the separator character.
func (d Delimiter) Rune() string {
	switch d {
	case DelimiterComma:
		return ","
	case DelimiterSemicolon:
		return ";"
	default:
		return "\t"
	}
}

// Ext returns the conventional file extension for the delimiter.
func (d Delimiter) Ext() string {
	if d == DelimiterTab {
		return ".tsv"
	}
	return ".csv"
}

// ProjectSpec holds all fields collected during the interactive wizard.
type ProjectSpec struct {
	DataFile  string
	Inputs    []string
	Outputs   []string
	Delimiter Delimiter
	DMUs      int
}

// DefaultSpec is the starting point of the wizard and the non-interactive
// result of `dea init`.
func DefaultSpec() *ProjectSpec {
	return &ProjectSpec{
		DataFile:  "dmus.tsv",
		Inputs:    []string{"labor", "capital"},
		Outputs:   []string{"product"},
		Delimiter: DelimiterTab,
		DMUs:      3,
	}
}

const dataTemplate = `DMU
{{- range .Inputs }}{{ $.Sep }}input:{{ . }}{{ end }}
{{- range .Outputs }}{{ $.Sep }}output:{{ . }}{{ end }}
{{ range .Rows -}}
{{ .Name }}{{ range .Cells }}{{ $.Sep }}{{ . }}{{ end }}
{{ end -}}
`

var dataTmpl = template.Must(template.New("data").Parse(dataTemplate))

// RunProjectWizard runs an interactive huh form to collect project
// settings, starting from defaults.
func RunProjectWizard(in io.Reader, out io.Writer, defaults *ProjectSpec) (*ProjectSpec, error) {
	if defaults == nil {
		defaults = DefaultSpec()
	}
	var (
		dataFile   = defaults.DataFile
		inputsRaw  = strings.Join(defaults.Inputs, ", ")
		outputsRaw = strings.Join(defaults.Outputs, ", ")
		delimiter  = string(defaults.Delimiter)
		dmusRaw    = strconv.Itoa(defaults.DMUs)
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Data file").
				Description("Where the DMU table will be written").
				Placeholder("dmus.tsv").
				Value(&dataFile).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("data file is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Input metrics").
				Description("Comma-separated names of the resources each DMU consumes").
				Placeholder("labor, capital").
				Value(&inputsRaw).
				Validate(func(s string) error {
					return ValidateMetricNames("input", splitAndTrim(s))
				}),
			huh.NewInput().
				Title("Output metrics").
				Description("Comma-separated names of what each DMU produces").
				Placeholder("product").
				Value(&outputsRaw).
				Validate(func(s string) error {
					return ValidateMetricNames("output", splitAndTrim(s))
				}),
			huh.NewSelect[string]().
				Title("Cell separator").
				Options(
					huh.NewOption("tab (paste from a spreadsheet)", string(DelimiterTab)),
					huh.NewOption("comma", string(DelimiterComma)),
					huh.NewOption("semicolon", string(DelimiterSemicolon)),
				).
				Value(&delimiter),
			huh.NewInput().
				Title("Placeholder DMUs").
				Description("Number of example rows to generate").
				Value(&dmusRaw).
				Validate(func(s string) error {
					n, err := strconv.Atoi(strings.TrimSpace(s))
					if err != nil || n < 1 {
						return fmt.Errorf("enter a positive number")
					}
					return nil
				}),
		),
	).
		WithInput(in).
		WithOutput(out)

	// Use accessible mode for non-TTY input (e.g., tests, piped input).
	if f, ok := in.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		form = form.WithAccessible(true)
	}

	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("wizard failed: %w", err)
	}

	dmus, _ := strconv.Atoi(strings.TrimSpace(dmusRaw))
	return &ProjectSpec{
		DataFile:  strings.TrimSpace(dataFile),
		Inputs:    splitAndTrim(inputsRaw),
		Outputs:   splitAndTrim(outputsRaw),
		Delimiter: Delimiter(delimiter),
		DMUs:      dmus,
	}, nil
}

// ValidateMetricNames rejects empty lists, duplicates and names containing
// a cell separator.
func ValidateMetricNames(kind string, names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("at least one %s metric is required", kind)
	}
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if strings.ContainsAny(n, "\t,;") {
			return fmt.Errorf("%s metric %q must not contain a tab, comma or semicolon", kind, n)
		}
		key := strings.ToLower(n)
		if seen[key] {
			return fmt.Errorf("duplicate %s metric %q", kind, n)
		}
		seen[key] = true
	}
	return nil
}

// Validate checks a spec before anything is written.
func (s *ProjectSpec) Validate() error {
	if strings.TrimSpace(s.DataFile) == "" {
		return fmt.Errorf("data file is required")
	}
	if err := ValidateMetricNames("input", s.Inputs); err != nil {
		return err
	}
	if err := ValidateMetricNames("output", s.Outputs); err != nil {
		return err
	}
	switch s.Delimiter {
	case DelimiterTab, DelimiterComma, DelimiterSemicolon:
	default:
		return fmt.Errorf("unknown delimiter %q", s.Delimiter)
	}
	if s.DMUs < 1 {
		return fmt.Errorf("at least one placeholder DMU is required")
	}
	return nil
}

type templateRow struct {
	Name  string
	Cells []string
}

// GenerateDataTemplate renders a data file with the header row and DMUs
// placeholder rows. Every placeholder DMU uses 1 for each metric, so the
// file evaluates as-is.
func GenerateDataTemplate(spec *ProjectSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}

	width := len(spec.Inputs) + len(spec.Outputs)
	rows := make([]templateRow, spec.DMUs)
	for i := range rows {
		cells := make([]string, width)
		for c := range cells {
			cells[c] = "1"
		}
		rows[i] = templateRow{Name: dmuName(i), Cells: cells}
	}

	var buf strings.Builder
	err := dataTmpl.Execute(&buf, struct {
		Sep     string
		Inputs  []string
		Outputs []string
		Rows    []templateRow
	}{spec.Delimiter.Rune(), spec.Inputs, spec.Outputs, rows})
	if err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return buf.String(), nil
}

// dmuName returns A..Z, then AA, AB, ...
func dmuName(i int) string {
	name := ""
	for i >= 0 {
		name = string(rune('A'+i%26)) + name
		i = i/26 - 1
	}
	return name
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
