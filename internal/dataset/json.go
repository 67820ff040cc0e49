package dataset

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/spboyer/dea/internal/models"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed table.schema.json
var tableSchemaJSON string

// defaultPrinter is used to format schema validation error messages.
var defaultPrinter = message.NewPrinter(language.English)

// tableSchema is the compiled JSON Schema for JSON tables.
var tableSchema = mustCompileSchema(tableSchemaJSON, "table.schema.json")

func mustCompileSchema(raw string, name string) *jsonschema.Schema {
	var schemaDoc any
	if err := json.Unmarshal([]byte(raw), &schemaDoc); err != nil {
		panic(fmt.Sprintf("failed to parse embedded %s: %v", name, err))
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, schemaDoc); err != nil {
		panic(fmt.Sprintf("failed to add %s resource: %v", name, err))
	}

	sch, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("failed to compile %s: %v", name, err))
	}
	return sch
}

type jsonTable struct {
	Inputs  []string  `json:"inputs"`
	Outputs []string  `json:"outputs"`
	DMUs    []jsonDMU `json:"dmus"`
}

type jsonDMU struct {
	Name    string             `json:"name"`
	Inputs  map[string]float64 `json:"inputs"`
	Outputs map[string]float64 `json:"outputs"`
}

// ParseJSON reads a table of the form
//
//	{"inputs": ["labor"], "outputs": ["product"],
//	 "dmus": [{"name": "A", "inputs": {"labor": 4}, "outputs": {"product": 1}}]}
//
// The top-level "inputs"/"outputs" lists fix the column order; when absent the
// metric names of the first DMU are used in sorted order. Every DMU must carry
// the same metrics.
func ParseJSON(data []byte) (*models.Table, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &models.DataError{Reason: fmt.Sprintf("JSON parse error: %v", err)}
	}
	if errs := ValidateJSON(doc); len(errs) > 0 {
		return nil, &models.DataError{Reason: "schema: " + strings.Join(errs, "; ")}
	}

	var jt jsonTable
	if err := json.Unmarshal(data, &jt); err != nil {
		return nil, &models.DataError{Reason: fmt.Sprintf("JSON decode error: %v", err)}
	}

	inputNames := jt.Inputs
	if len(inputNames) == 0 {
		inputNames = sortedKeys(jt.DMUs[0].Inputs)
	}
	outputNames := jt.Outputs
	if len(outputNames) == 0 {
		outputNames = sortedKeys(jt.DMUs[0].Outputs)
	}

	table := &models.Table{InputNames: inputNames, OutputNames: outputNames}
	seen := make(map[string]bool, len(jt.DMUs))
	for i, d := range jt.DMUs {
		if seen[d.Name] {
			return nil, &models.DataError{Row: i + 1, Column: "name", Value: d.Name, Reason: "duplicate DMU name"}
		}
		seen[d.Name] = true

		in, err := pick(d.Inputs, inputNames, i+1, inputPrefix)
		if err != nil {
			return nil, err
		}
		out, err := pick(d.Outputs, outputNames, i+1, outputPrefix)
		if err != nil {
			return nil, err
		}
		table.Names = append(table.Names, d.Name)
		table.Inputs = append(table.Inputs, in)
		table.Outputs = append(table.Outputs, out)
	}
	return table, nil
}

// ValidateJSON validates a decoded JSON document against the table schema and
// returns one message per violation.
func ValidateJSON(doc any) []string {
	err := tableSchema.Validate(doc)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{fmt.Sprintf("schema: %v", err)}
	}
	var errs []string
	collectSchemaErrors(ve, &errs)
	return errs
}

func collectSchemaErrors(ve *jsonschema.ValidationError, errs *[]string) {
	if len(ve.Causes) == 0 {
		loc := "/"
		if len(ve.InstanceLocation) > 0 {
			loc = "/" + strings.Join(ve.InstanceLocation, "/")
		}
		*errs = append(*errs, fmt.Sprintf("%s: %s", loc, ve.ErrorKind.LocalizedString(defaultPrinter)))
		return
	}
	for _, c := range ve.Causes {
		collectSchemaErrors(c, errs)
	}
}

func pick(values map[string]float64, names []string, row int, prefix string) ([]float64, error) {
	if len(values) != len(names) {
		return nil, &models.DataError{
			Row:    row,
			Reason: fmt.Sprintf("has %d %s metrics, expected %d", len(values), strings.TrimSuffix(prefix, ":"), len(names)),
		}
	}
	out := make([]float64, len(names))
	for i, n := range names {
		v, ok := values[n]
		if !ok {
			return nil, &models.DataError{Row: row, Column: prefix + n, Reason: "missing value"}
		}
		out[i] = v
	}
	return out, nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
