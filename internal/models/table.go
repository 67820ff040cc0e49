package models

import "fmt"

// Table is the DMU table handed to the solver: one row per Decision Making
// Unit, with inputs and outputs row-aligned by DMU index.
type Table struct {
	Names       []string    `json:"names"`
	InputNames  []string    `json:"input_names"`
	OutputNames []string    `json:"output_names"`
	Inputs      [][]float64 `json:"inputs"`
	Outputs     [][]float64 `json:"outputs"`
}

// Len returns the number of DMUs in the table.
func (t *Table) Len() int {
	return len(t.Names)
}

// NumInputs returns the number of input metrics.
func (t *Table) NumInputs() int {
	if len(t.Inputs) == 0 {
		return len(t.InputNames)
	}
	return len(t.Inputs[0])
}

// NumOutputs returns the number of output metrics.
func (t *Table) NumOutputs() int {
	if len(t.Outputs) == 0 {
		return len(t.OutputNames)
	}
	return len(t.Outputs[0])
}

// CheckShape verifies the table is rectangular and non-empty. Values are not
// inspected: negative or odd numbers are passed through to the LP as given.
func (t *Table) CheckShape() error {
	n := len(t.Names)
	if n == 0 {
		return &ShapeError{Expected: "at least one DMU", Found: "none"}
	}
	if len(t.Inputs) != n {
		return &ShapeError{Expected: fmt.Sprintf("%d input rows", n), Found: fmt.Sprintf("%d", len(t.Inputs))}
	}
	if len(t.Outputs) != n {
		return &ShapeError{Expected: fmt.Sprintf("%d output rows", n), Found: fmt.Sprintf("%d", len(t.Outputs))}
	}

	m, p := len(t.Inputs[0]), len(t.Outputs[0])
	if m == 0 {
		return &ShapeError{Expected: "at least one input metric", Found: "none"}
	}
	if p == 0 {
		return &ShapeError{Expected: "at least one output metric", Found: "none"}
	}

	for j := 0; j < n; j++ {
		if len(t.Inputs[j]) != m {
			return &ShapeError{
				Expected: fmt.Sprintf("%d inputs for DMU %q", m, t.Names[j]),
				Found:    fmt.Sprintf("%d", len(t.Inputs[j])),
			}
		}
		if len(t.Outputs[j]) != p {
			return &ShapeError{
				Expected: fmt.Sprintf("%d outputs for DMU %q", p, t.Names[j]),
				Found:    fmt.Sprintf("%d", len(t.Outputs[j])),
			}
		}
	}
	return nil
}
