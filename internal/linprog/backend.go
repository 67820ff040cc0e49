package linprog

//go:generate go tool mockgen -source=backend.go -destination=backend_mock.go -package=linprog

import (
	"context"
	"fmt"
)

// Status is the outcome of a solve.
type Status int

const (
	StatusOptimal Status = iota
	StatusInfeasible
	StatusUnbounded
	StatusNumericalFailure
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	case StatusNumericalFailure:
		return "numerical failure"
	case StatusAborted:
		return "aborted"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Solution contains the results from solving a model.
type Solution struct {
	Status Status

	// Objective is the value of the objective function at X.
	// Only meaningful when Status is StatusOptimal.
	Objective float64

	// X holds the primal value of each variable, indexed like the model's columns.
	X []float64

	// Message carries backend detail for non-optimal statuses.
	Message string
}

// IsOptimal returns true if the solution is optimal.
func (s *Solution) IsOptimal() bool {
	return s.Status == StatusOptimal
}

// Value returns the solution value for variable j, or 0 if j is out of range.
func (s *Solution) Value(j int) float64 {
	if j < 0 || j >= len(s.X) {
		return 0
	}
	return s.X[j]
}

// Backend solves a model. A non-optimal outcome is reported through
// Solution.Status; the error return is reserved for models the backend
// cannot accept at all.
type Backend interface {
	Solve(ctx context.Context, model *Model) (*Solution, error)
}
