// Package linprog builds small linear programs and hands them to a solver
// backend. Every model minimises its objective and every variable is bounded
// below by zero.
package linprog

import (
	"fmt"
	"math"
)

// Sense is the relation of a constraint row to its right-hand side.
type Sense int8

const (
	LessEqual Sense = iota
	GreaterEqual
	Equal
)

func (s Sense) String() string {
	switch s {
	case LessEqual:
		return "<="
	case GreaterEqual:
		return ">="
	case Equal:
		return "="
	default:
		return fmt.Sprintf("Sense(%d)", int8(s))
	}
}

// Constraint is one sparse row: sum(Val[k] * x[Ind[k]]) Sense RHS.
type Constraint struct {
	Name  string
	Ind   []int
	Val   []float64
	Sense Sense
	RHS   float64
}

// Model is a minimisation LP over non-negative variables.
type Model struct {
	name     string
	varNames []string
	obj      []float64
	constrs  []Constraint
}

// NewModel returns an empty model. The name is informational only.
func NewModel(name string) *Model {
	return &Model{name: name}
}

// Name returns the name given to NewModel.
func (m *Model) Name() string { return m.name }

// NumVars returns the number of variables (columns).
func (m *Model) NumVars() int { return len(m.obj) }

// NumConstrs returns the number of constraint rows.
func (m *Model) NumConstrs() int { return len(m.constrs) }

// VarName returns the name of variable j.
func (m *Model) VarName(j int) string { return m.varNames[j] }

// Objective returns the objective coefficient of variable j.
func (m *Model) Objective(j int) float64 { return m.obj[j] }

// Constraints returns the rows added so far. The slice must not be modified.
func (m *Model) Constraints() []Constraint { return m.constrs }

// AddVar adds a variable x >= 0 with the given objective coefficient and
// returns its column index.
func (m *Model) AddVar(name string, obj float64) int {
	m.varNames = append(m.varNames, name)
	m.obj = append(m.obj, obj)
	return len(m.obj) - 1
}

// AddConstr adds the row sum(val[k] * x[ind[k]]) sense rhs. Repeated indices
// are summed.
func (m *Model) AddConstr(ind []int, val []float64, sense Sense, rhs float64, name string) error {
	if len(ind) != len(val) {
		return fmt.Errorf("constraint %s: inconsistent number of indices and values: %d != %d", name, len(ind), len(val))
	}
	if sense != LessEqual && sense != GreaterEqual && sense != Equal {
		return fmt.Errorf("constraint %s: unknown sense %v", name, sense)
	}
	for _, j := range ind {
		if j < 0 || j >= len(m.obj) {
			return fmt.Errorf("constraint %s: variable index %d out of range [0, %d)", name, j, len(m.obj))
		}
	}
	m.constrs = append(m.constrs, Constraint{
		Name:  name,
		Ind:   append([]int(nil), ind...),
		Val:   append([]float64(nil), val...),
		Sense: sense,
		RHS:   rhs,
	})
	return nil
}

// finite reports whether every coefficient of the model is a finite number.
func (m *Model) finite() bool {
	for _, c := range m.obj {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	for _, r := range m.constrs {
		if math.IsNaN(r.RHS) || math.IsInf(r.RHS, 0) {
			return false
		}
		for _, v := range r.Val {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
