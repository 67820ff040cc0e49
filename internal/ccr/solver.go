// Package ccr computes input-oriented CCR (Charnes-Cooper-Rhodes) efficiency
// scores. For every DMU k it solves
//
//	min θ
//	s.t. Σ_j λ_j·x_ji <= θ·x_ki   for every input i
//	     Σ_j λ_j·y_jr >= y_kr     for every output r
//	     θ, λ_j >= 0
//
// and reports θ* together with the peers whose λ_j is positive.
package ccr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/spboyer/dea/internal/linprog"
	"github.com/spboyer/dea/internal/models"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultTolerance is the λ threshold above which a DMU is a peer.
	DefaultTolerance = 1e-6
	// DefaultDecimals is the number of decimal places θ* is reported with.
	DefaultDecimals = 4
	// ModelName identifies the envelopment model in outcomes.
	ModelName = "ccr-input"
)

// ErrBatchAborted is returned by EvaluateAll when the batch timeout expires
// or the context is cancelled before every DMU was evaluated.
var ErrBatchAborted = errors.New("batch aborted before all DMUs were evaluated")

// Solver evaluates every DMU of a table. The table is read-only for the
// lifetime of the solver; each evaluation builds its own LP.
type Solver struct {
	table     *models.Table
	backend   linprog.Backend
	workers   int
	tolerance float64
	decimals  int
	timeout   time.Duration
	logger    *slog.Logger
	progress  func(models.Evaluation)
}

// Option configures a Solver.
type Option func(*Solver)

// WithBackend sets the LP backend. Defaults to linprog.NewSimplexBackend().
func WithBackend(b linprog.Backend) Option {
	return func(s *Solver) { s.backend = b }
}

// WithWorkers sets how many DMUs are evaluated concurrently. Values below 1
// mean sequential evaluation.
func WithWorkers(n int) Option {
	return func(s *Solver) { s.workers = n }
}

// WithTolerance sets the reference-set threshold on λ.
func WithTolerance(tol float64) Option {
	return func(s *Solver) { s.tolerance = tol }
}

// WithDecimals sets the rounding applied to reported θ*.
func WithDecimals(d int) Option {
	return func(s *Solver) { s.decimals = d }
}

// WithTimeout bounds a whole EvaluateAll call. Zero disables the limit.
func WithTimeout(d time.Duration) Option {
	return func(s *Solver) { s.timeout = d }
}

// WithLogger sets the logger used for skip warnings and debug output.
func WithLogger(l *slog.Logger) Option {
	return func(s *Solver) { s.logger = l }
}

// WithProgress registers fn to be called after each DMU is evaluated. With
// more than one worker fn is called from several goroutines at once.
func WithProgress(fn func(models.Evaluation)) Option {
	return func(s *Solver) { s.progress = fn }
}

// NewSolver checks that table is rectangular and returns a solver for it.
func NewSolver(table *models.Table, opts ...Option) (*Solver, error) {
	if table == nil {
		return nil, &models.ShapeError{Expected: "a DMU table", Found: "nil"}
	}
	if err := table.CheckShape(); err != nil {
		return nil, err
	}

	s := &Solver{
		table:     table,
		workers:   1,
		tolerance: DefaultTolerance,
		decimals:  DefaultDecimals,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.backend == nil {
		s.backend = linprog.NewSimplexBackend()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.workers < 1 {
		s.workers = 1
	}
	if s.decimals < 0 {
		s.decimals = 0
	}
	return s, nil
}

// BuildModel constructs the envelopment LP for DMU k. Column 0 is θ and
// column j+1 is λ_j.
func (s *Solver) BuildModel(k int) (*linprog.Model, error) {
	t := s.table
	n := t.Len()
	if k < 0 || k >= n {
		return nil, fmt.Errorf("DMU index %d out of range [0, %d)", k, n)
	}

	model := linprog.NewModel("ccr-" + t.Names[k])
	theta := model.AddVar("theta", 1)
	lambdas := make([]int, n)
	for j := range lambdas {
		lambdas[j] = model.AddVar(fmt.Sprintf("lambda_%d", j), 0)
	}

	for i := range t.Inputs[k] {
		ind := make([]int, 0, n+1)
		val := make([]float64, 0, n+1)
		for j := 0; j < n; j++ {
			ind = append(ind, lambdas[j])
			val = append(val, t.Inputs[j][i])
		}
		ind = append(ind, theta)
		val = append(val, -t.Inputs[k][i])
		if err := model.AddConstr(ind, val, linprog.LessEqual, 0, fmt.Sprintf("input_%d", i)); err != nil {
			return nil, err
		}
	}

	for r := range t.Outputs[k] {
		val := make([]float64, n)
		for j := 0; j < n; j++ {
			val[j] = t.Outputs[j][r]
		}
		if err := model.AddConstr(lambdas, val, linprog.GreaterEqual, t.Outputs[k][r], fmt.Sprintf("output_%d", r)); err != nil {
			return nil, err
		}
	}

	return model, nil
}

// Evaluate solves the LP for DMU k. The returned Evaluation carries either a
// Record or, when the LP did not reach an optimal solution, a Warning.
// A panic while building or solving the LP is reported as a SolveError
// warning for DMU k.
func (s *Solver) Evaluate(ctx context.Context, k int) (ev models.Evaluation) {
	name := fmt.Sprintf("#%d", k)
	if k >= 0 && k < s.table.Len() {
		name = s.table.Names[k]
	}
	defer func() {
		if p := recover(); p != nil {
			ev = s.skip(k, name, models.SolveError, fmt.Sprintf("solver panic: %v", p))
		}
	}()

	model, err := s.BuildModel(k)
	if err != nil {
		return s.skip(k, name, models.SolveError, err.Error())
	}

	sol, err := s.backend.Solve(ctx, model)
	if err != nil {
		return s.skip(k, name, models.SolveError, err.Error())
	}
	if sol == nil {
		return s.skip(k, name, models.SolveError, "backend returned no solution")
	}
	if !sol.IsOptimal() {
		msg := fmt.Sprintf("no optimal solution found (%s)", sol.Status)
		if sol.Message != "" {
			msg += ": " + sol.Message
		}
		return s.skip(k, name, solveStatus(sol.Status), msg)
	}

	theta := clampZero(sol.Value(0))
	rec := &models.Record{
		DMU:           name,
		Index:         k,
		Efficiency:    round(theta, s.decimals),
		RawEfficiency: theta,
		ReferenceSet:  []string{},
		Lambdas:       []float64{},
	}
	for j := 0; j < s.table.Len(); j++ {
		if l := clampZero(sol.Value(j + 1)); l > s.tolerance {
			rec.ReferenceSet = append(rec.ReferenceSet, s.table.Names[j])
			rec.Lambdas = append(rec.Lambdas, l)
		}
	}

	s.logger.Debug("evaluated DMU", "dmu", name, "theta", theta, "peers", rec.ReferenceSet)
	return models.Evaluation{Record: rec}
}

// EvaluateAll evaluates every DMU and returns records in table order. DMUs
// whose LP is not optimal are skipped and listed in Outcome.Warnings.
//
// When the batch timeout expires or ctx is cancelled, the outcome holds the
// evaluations that completed and the error wraps ErrBatchAborted.
func (s *Solver) EvaluateAll(ctx context.Context) (*models.Outcome, error) {
	start := time.Now()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	n := s.table.Len()
	evals := make([]models.Evaluation, n)
	done := make([]bool, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for k := 0; k < n; k++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ev := s.Evaluate(gctx, k)
			if !ev.OK() && ev.Warning.Status == models.SolveAborted && gctx.Err() != nil {
				// interrupted, not a verdict on this DMU
				return gctx.Err()
			}
			evals[k] = ev
			done[k] = true
			if s.progress != nil {
				s.progress(ev)
			}
			return nil
		})
	}
	_ = g.Wait()

	outcome := &models.Outcome{
		Model:     ModelName,
		Timestamp: start,
		Setup: models.OutcomeSetup{
			DMUs:      n,
			Inputs:    s.table.NumInputs(),
			Outputs:   s.table.NumOutputs(),
			Workers:   s.workers,
			Tolerance: s.tolerance,
			Decimals:  s.decimals,
		},
		Records: make([]models.Record, 0, n),
	}

	completed := 0
	for k, ev := range evals {
		if !done[k] {
			continue
		}
		completed++
		if ev.OK() {
			outcome.Records = append(outcome.Records, *ev.Record)
		} else {
			outcome.Warnings = append(outcome.Warnings, *ev.Warning)
		}
	}
	outcome.DurationMs = time.Since(start).Milliseconds()

	if completed < n {
		cause := ctx.Err()
		if cause == nil {
			cause = context.Canceled
		}
		s.logger.Warn("batch aborted", "evaluated", completed, "total", n, "error", cause)
		return outcome, fmt.Errorf("%w: %d of %d DMUs evaluated: %v", ErrBatchAborted, completed, n, cause)
	}
	return outcome, nil
}

func (s *Solver) skip(k int, name string, status models.SolveStatus, msg string) models.Evaluation {
	s.logger.Warn("skipping DMU", "dmu", name, "index", k, "status", status, "reason", msg)
	return models.Evaluation{Warning: &models.Warning{
		DMU:     name,
		Index:   k,
		Status:  status,
		Message: fmt.Sprintf("no optimal solution for DMU %s: %s", name, msg),
	}}
}

func solveStatus(st linprog.Status) models.SolveStatus {
	switch st {
	case linprog.StatusOptimal:
		return models.SolveOptimal
	case linprog.StatusInfeasible:
		return models.SolveInfeasible
	case linprog.StatusUnbounded:
		return models.SolveUnbounded
	case linprog.StatusNumericalFailure:
		return models.SolveNumericalFailure
	case linprog.StatusAborted:
		return models.SolveAborted
	default:
		return models.SolveError
	}
}

// clampZero removes round-off below the zero bound of LP variables.
func clampZero(v float64) float64 {
	if v < 0 && v > -1e-9 {
		return 0
	}
	return v
}

func round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
