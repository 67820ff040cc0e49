package linprog

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// DefaultSimplexTolerance is the pivoting tolerance passed to the simplex routine.
const DefaultSimplexTolerance = 1e-10

// SimplexBackend solves models in-process with gonum's two-phase simplex.
type SimplexBackend struct {
	// Tolerance is the simplex pivoting tolerance. Zero means DefaultSimplexTolerance.
	Tolerance float64
}

// NewSimplexBackend returns a SimplexBackend with the default tolerance.
func NewSimplexBackend() *SimplexBackend {
	return &SimplexBackend{Tolerance: DefaultSimplexTolerance}
}

// standardForm is the model rewritten as: min c'x s.t. Ax = b, x >= 0, with
// one slack or surplus column per inequality row and structurally zero
// columns removed.
type standardForm struct {
	c    []float64
	a    *mat.Dense
	b    []float64
	cols []int // model column of each structural column in a
}

// Solve implements Backend.
func (sb *SimplexBackend) Solve(ctx context.Context, model *Model) (sol *Solution, err error) {
	if model.NumVars() == 0 {
		return nil, errors.New("linprog: model has no variables")
	}
	defer func() {
		if r := recover(); r != nil {
			sol, err = &Solution{Status: StatusNumericalFailure, Message: fmt.Sprintf("simplex panic: %v", r)}, nil
		}
	}()
	if err := ctx.Err(); err != nil {
		return &Solution{Status: StatusAborted, Message: err.Error()}, nil
	}
	if !model.finite() {
		return &Solution{Status: StatusNumericalFailure, Message: "model has non-finite coefficients"}, nil
	}

	sf, status := toStandardForm(model)
	if status != StatusOptimal {
		return &Solution{Status: status, Message: "detected while building standard form"}, nil
	}

	x := make([]float64, model.NumVars())
	if sf == nil {
		// No binding rows: every variable sits at its lower bound.
		return &Solution{Status: StatusOptimal, X: x}, nil
	}

	tol := sb.Tolerance
	if tol <= 0 {
		tol = DefaultSimplexTolerance
	}

	optF, optX, lpErr := lp.Simplex(sf.c, sf.a, sf.b, tol, nil)
	if lpErr != nil {
		return &Solution{Status: statusFromError(lpErr), Message: lpErr.Error()}, nil
	}
	if err := ctx.Err(); err != nil {
		return &Solution{Status: StatusAborted, Message: err.Error()}, nil
	}

	for i, j := range sf.cols {
		x[j] = optX[i]
	}
	return &Solution{Status: StatusOptimal, Objective: optF, X: x}, nil
}

func toStandardForm(model *Model) (*standardForm, Status) {
	nv := model.NumVars()

	used := make([]bool, nv)
	var rows []Constraint
	for _, r := range model.Constraints() {
		nonzero := false
		for k, j := range r.Ind {
			if r.Val[k] != 0 {
				used[j] = true
				nonzero = true
			}
		}
		if nonzero {
			rows = append(rows, r)
			continue
		}
		// An all-zero row reads 0 sense rhs and is either redundant or infeasible.
		if !zeroRowHolds(r) {
			return nil, StatusInfeasible
		}
	}

	pos := make([]int, nv)
	var cols []int
	for j := 0; j < nv; j++ {
		pos[j] = -1
		if used[j] {
			pos[j] = len(cols)
			cols = append(cols, j)
			continue
		}
		// A free-standing column with negative cost can grow without bound.
		if model.Objective(j) < 0 {
			return nil, StatusUnbounded
		}
	}
	if len(rows) == 0 {
		return nil, StatusOptimal
	}

	slacks := 0
	for _, r := range rows {
		if r.Sense != Equal {
			slacks++
		}
	}

	nc := len(cols) + slacks
	a := mat.NewDense(len(rows), nc, nil)
	b := make([]float64, len(rows))
	c := make([]float64, nc)
	for i, j := range cols {
		c[i] = model.Objective(j)
	}

	slack := len(cols)
	for i, r := range rows {
		sign := 1.0
		if r.RHS < 0 {
			sign = -1
		}
		for k, j := range r.Ind {
			if pos[j] < 0 {
				// dropped column, every coefficient is zero
				continue
			}
			a.Set(i, pos[j], a.At(i, pos[j])+sign*r.Val[k])
		}
		switch r.Sense {
		case LessEqual:
			a.Set(i, slack, sign)
			slack++
		case GreaterEqual:
			a.Set(i, slack, -sign)
			slack++
		}
		b[i] = sign * r.RHS
	}

	return &standardForm{c: c, a: a, b: b, cols: cols}, StatusOptimal
}

func zeroRowHolds(r Constraint) bool {
	switch r.Sense {
	case LessEqual:
		return 0 <= r.RHS
	case GreaterEqual:
		return 0 >= r.RHS
	default:
		return r.RHS == 0
	}
}

func statusFromError(err error) Status {
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return StatusInfeasible
	case errors.Is(err, lp.ErrUnbounded):
		return StatusUnbounded
	default:
		return StatusNumericalFailure
	}
}
