package models

import "time"

// SolveStatus mirrors the LP backend status for a single DMU evaluation.
type SolveStatus string

const (
	SolveOptimal          SolveStatus = "optimal"
	SolveInfeasible       SolveStatus = "infeasible"
	SolveUnbounded        SolveStatus = "unbounded"
	SolveNumericalFailure SolveStatus = "numerical_failure"
	SolveAborted          SolveStatus = "aborted"
	SolveError            SolveStatus = "error"
)

// Record is the efficiency result for one DMU. Records are never mutated
// after the solver creates them.
type Record struct {
	DMU string `json:"dmu"`
	// Index is the DMU's row in the input table.
	Index int `json:"index"`
	// Efficiency is θ* rounded for reporting.
	Efficiency float64 `json:"efficiency"`
	// RawEfficiency is θ* at full solver precision.
	RawEfficiency float64 `json:"raw_efficiency"`
	// ReferenceSet lists peers with λ above the tolerance, in table order.
	ReferenceSet []string `json:"reference_set"`
	// Lambdas holds the λ weight of each peer in ReferenceSet.
	Lambdas []float64 `json:"lambdas"`
}

// IsEfficient reports whether θ* equals 1 at reporting precision.
func (r Record) IsEfficient() bool {
	return r.Efficiency >= 1
}

// Warning names a DMU that was skipped because its LP did not reach an
// optimal solution.
type Warning struct {
	DMU     string      `json:"dmu"`
	Index   int         `json:"index"`
	Status  SolveStatus `json:"status"`
	Message string      `json:"message"`
}

// Evaluation is the tagged result of evaluating one DMU: exactly one of
// Record and Warning is set.
type Evaluation struct {
	Record  *Record  `json:"record,omitempty"`
	Warning *Warning `json:"warning,omitempty"`
}

// OK reports whether the evaluation produced a record.
func (e Evaluation) OK() bool {
	return e.Record != nil
}

// Outcome is the result of a batch evaluation.
type Outcome struct {
	Model      string         `json:"model"`
	Timestamp  time.Time      `json:"timestamp"`
	Setup      OutcomeSetup   `json:"config"`
	Records    []Record       `json:"results"`
	Warnings   []Warning      `json:"warnings,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	Summary    *Summary       `json:"summary,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// OutcomeSetup records the parameters the batch ran with.
type OutcomeSetup struct {
	DMUs      int     `json:"dmus"`
	Inputs    int     `json:"inputs"`
	Outputs   int     `json:"outputs"`
	Workers   int     `json:"workers"`
	Tolerance float64 `json:"tolerance"`
	Decimals  int     `json:"decimals"`
}

// Skipped returns the number of DMUs that produced no record.
func (o *Outcome) Skipped() int {
	return len(o.Warnings)
}
