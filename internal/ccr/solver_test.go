package ccr

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/spboyer/dea/internal/linprog"
	"github.com/spboyer/dea/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// canonicalTable is the two-input, one-output textbook example.
func canonicalTable() *models.Table {
	return &models.Table{
		Names:       []string{"A", "B", "C", "D", "E", "F"},
		InputNames:  []string{"labor", "capital"},
		OutputNames: []string{"product1"},
		Inputs:      [][]float64{{4, 3}, {7, 3}, {8, 1}, {4, 2}, {2, 4}, {10, 1}},
		Outputs:     [][]float64{{1}, {1}, {1}, {1}, {1}, {1}},
	}
}

// randomTable builds a deterministic table with strictly positive values.
func randomTable(seed int64, n, m, p int) *models.Table {
	rng := rand.New(rand.NewSource(seed))
	t := &models.Table{}
	for j := 0; j < n; j++ {
		t.Names = append(t.Names, string(rune('a'+j%26))+string(rune('0'+j/26)))
		in := make([]float64, m)
		for i := range in {
			in[i] = 1 + rng.Float64()*9
		}
		out := make([]float64, p)
		for r := range out {
			out[r] = 1 + rng.Float64()*9
		}
		t.Inputs = append(t.Inputs, in)
		t.Outputs = append(t.Outputs, out)
	}
	return t
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSolver(t *testing.T, table *models.Table, opts ...Option) *Solver {
	t.Helper()
	s, err := NewSolver(table, append([]Option{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	return s
}

func recordsByName(o *models.Outcome) map[string]models.Record {
	out := make(map[string]models.Record, len(o.Records))
	for _, r := range o.Records {
		out[r.DMU] = r
	}
	return out
}

func TestEvaluateAll_CanonicalFixture(t *testing.T) {
	s := newTestSolver(t, canonicalTable())

	outcome, err := s.EvaluateAll(context.Background())
	require.NoError(t, err)
	require.Len(t, outcome.Records, 6)
	assert.Empty(t, outcome.Warnings)

	names := make([]string, 0, 6)
	for _, r := range outcome.Records {
		names = append(names, r.DMU)
	}
	assert.Equal(t, []string{"A", "B", "C", "D", "E", "F"}, names)

	byName := recordsByName(outcome)

	assert.Equal(t, 0.8571, byName["A"].Efficiency)
	assert.InDelta(t, 6.0/7.0, byName["A"].RawEfficiency, 1e-7)
	assert.Equal(t, []string{"D", "E"}, byName["A"].ReferenceSet)
	require.Len(t, byName["A"].Lambdas, 2)
	assert.InDelta(t, 5.0/7.0, byName["A"].Lambdas[0], 1e-7)
	assert.InDelta(t, 2.0/7.0, byName["A"].Lambdas[1], 1e-7)

	assert.Equal(t, 0.6316, byName["B"].Efficiency)
	assert.InDelta(t, 12.0/19.0, byName["B"].RawEfficiency, 1e-7)
	assert.Equal(t, []string{"C", "D"}, byName["B"].ReferenceSet)

	for _, name := range []string{"C", "D", "E"} {
		assert.Equal(t, 1.0, byName[name].Efficiency, name)
		assert.Equal(t, []string{name}, byName[name].ReferenceSet, name)
		assert.InDelta(t, 1.0, byName[name].Lambdas[0], 1e-7, name)
	}

	// F is only weakly efficient: C reaches the same radial score with slack
	// on labor, so either peer is a valid optimum.
	assert.Equal(t, 1.0, byName["F"].Efficiency)
	require.NotEmpty(t, byName["F"].ReferenceSet)
	for _, peer := range byName["F"].ReferenceSet {
		assert.Contains(t, []string{"C", "F"}, peer)
	}

	for _, name := range []string{"A", "B"} {
		rec := byName[name]
		assert.False(t, rec.IsEfficient(), name)
		for _, peer := range rec.ReferenceSet {
			assert.Contains(t, []string{"C", "D", "E", "F"}, peer, name)
		}
	}
}

func TestEvaluate_ReconstructsDominatingPoint(t *testing.T) {
	table := canonicalTable()
	s := newTestSolver(t, table)

	for k := range table.Names {
		ev := s.Evaluate(context.Background(), k)
		require.True(t, ev.OK(), table.Names[k])
		rec := ev.Record

		index := make(map[string]int)
		for j, name := range table.Names {
			index[name] = j
		}
		for i := range table.Inputs[k] {
			sum := 0.0
			for p, peer := range rec.ReferenceSet {
				sum += rec.Lambdas[p] * table.Inputs[index[peer]][i]
			}
			assert.LessOrEqual(t, sum, rec.RawEfficiency*table.Inputs[k][i]+1e-6)
		}
		for r := range table.Outputs[k] {
			sum := 0.0
			for p, peer := range rec.ReferenceSet {
				sum += rec.Lambdas[p] * table.Outputs[index[peer]][r]
			}
			assert.GreaterOrEqual(t, sum, table.Outputs[k][r]-1e-6)
		}
	}
}

func TestEvaluateAll_ScoresWithinUnitInterval(t *testing.T) {
	s := newTestSolver(t, randomTable(1, 15, 3, 2))

	outcome, err := s.EvaluateAll(context.Background())
	require.NoError(t, err)
	require.Len(t, outcome.Records, 15)

	efficient := 0
	for _, r := range outcome.Records {
		assert.Greater(t, r.RawEfficiency, 0.0, r.DMU)
		assert.LessOrEqual(t, r.RawEfficiency, 1.0+1e-9, r.DMU)
		assert.NotEmpty(t, r.ReferenceSet, r.DMU)
		if r.IsEfficient() {
			efficient++
		}
	}
	assert.Positive(t, efficient, "at least one DMU lies on the frontier")
}

func TestEvaluateAll_Deterministic(t *testing.T) {
	table := randomTable(7, 10, 2, 2)
	s := newTestSolver(t, table)

	first, err := s.EvaluateAll(context.Background())
	require.NoError(t, err)
	second, err := s.EvaluateAll(context.Background())
	require.NoError(t, err)

	require.Len(t, second.Records, len(first.Records))
	for i := range first.Records {
		assert.Equal(t, first.Records[i].DMU, second.Records[i].DMU)
		assert.InDelta(t, first.Records[i].RawEfficiency, second.Records[i].RawEfficiency, 1e-6)
		assert.Equal(t, first.Records[i].ReferenceSet, second.Records[i].ReferenceSet)
	}
}

func TestEvaluateAll_OrderIndependent(t *testing.T) {
	table := randomTable(11, 9, 2, 2)

	perm := rand.New(rand.NewSource(3)).Perm(table.Len())
	shuffled := &models.Table{}
	for _, j := range perm {
		shuffled.Names = append(shuffled.Names, table.Names[j])
		shuffled.Inputs = append(shuffled.Inputs, table.Inputs[j])
		shuffled.Outputs = append(shuffled.Outputs, table.Outputs[j])
	}

	original, err := newTestSolver(t, table).EvaluateAll(context.Background())
	require.NoError(t, err)
	permuted, err := newTestSolver(t, shuffled).EvaluateAll(context.Background())
	require.NoError(t, err)

	a, b := recordsByName(original), recordsByName(permuted)
	require.Len(t, b, len(a))
	for name, ra := range a {
		rb, ok := b[name]
		require.True(t, ok, name)
		assert.Equal(t, ra.Efficiency, rb.Efficiency, name)
		refA := append([]string(nil), ra.ReferenceSet...)
		refB := append([]string(nil), rb.ReferenceSet...)
		sort.Strings(refA)
		sort.Strings(refB)
		assert.Equal(t, refA, refB, name)
	}
}

func TestEvaluateAll_ParallelMatchesSequential(t *testing.T) {
	table := randomTable(5, 20, 3, 1)

	seq, err := newTestSolver(t, table).EvaluateAll(context.Background())
	require.NoError(t, err)
	par, err := newTestSolver(t, table, WithWorkers(4)).EvaluateAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, par.Setup.Workers)
	require.Len(t, par.Records, len(seq.Records))
	for i := range seq.Records {
		assert.Equal(t, seq.Records[i].DMU, par.Records[i].DMU)
		assert.Equal(t, seq.Records[i].Efficiency, par.Records[i].Efficiency)
		assert.Equal(t, seq.Records[i].ReferenceSet, par.Records[i].ReferenceSet)
	}
}

func TestEvaluateAll_SkipsNonOptimalDMU(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := linprog.NewMockBackend(ctrl)
	simplex := linprog.NewSimplexBackend()

	backend.EXPECT().Solve(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, m *linprog.Model) (*linprog.Solution, error) {
			if m.Name() == "ccr-C" {
				return &linprog.Solution{Status: linprog.StatusNumericalFailure, Message: "injected fault"}, nil
			}
			return simplex.Solve(ctx, m)
		}).Times(6)

	var logs bytes.Buffer
	s, err := NewSolver(canonicalTable(),
		WithBackend(backend),
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
	)
	require.NoError(t, err)

	outcome, err := s.EvaluateAll(context.Background())
	require.NoError(t, err)

	require.Len(t, outcome.Records, 5)
	require.Len(t, outcome.Warnings, 1)
	assert.Equal(t, 1, outcome.Skipped())
	assert.NotContains(t, recordsByName(outcome), "C")

	w := outcome.Warnings[0]
	assert.Equal(t, "C", w.DMU)
	assert.Equal(t, 2, w.Index)
	assert.Equal(t, models.SolveNumericalFailure, w.Status)
	assert.Contains(t, w.Message, "injected fault")

	assert.Contains(t, logs.String(), "skipping DMU")
	assert.Contains(t, logs.String(), "dmu=C")
}

func TestEvaluateAll_BackendPanicSkipsDMU(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := linprog.NewMockBackend(ctrl)
	simplex := linprog.NewSimplexBackend()

	backend.EXPECT().Solve(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, m *linprog.Model) (*linprog.Solution, error) {
			if m.Name() == "ccr-D" {
				panic("pivot exploded")
			}
			return simplex.Solve(ctx, m)
		}).Times(6)

	var logs bytes.Buffer
	s, err := NewSolver(canonicalTable(),
		WithBackend(backend),
		WithWorkers(3),
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
	)
	require.NoError(t, err)

	var outcome *models.Outcome
	require.NotPanics(t, func() {
		outcome, err = s.EvaluateAll(context.Background())
	})
	require.NoError(t, err)

	require.Len(t, outcome.Records, 5)
	require.Len(t, outcome.Warnings, 1)
	assert.NotContains(t, recordsByName(outcome), "D")

	w := outcome.Warnings[0]
	assert.Equal(t, "D", w.DMU)
	assert.Equal(t, 3, w.Index)
	assert.Equal(t, models.SolveError, w.Status)
	assert.Contains(t, w.Message, "pivot exploded")
	assert.Contains(t, logs.String(), "dmu=D")
}

func TestEvaluate_BackendError(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := linprog.NewMockBackend(ctrl)
	backend.EXPECT().Solve(gomock.Any(), gomock.Any()).Return(nil, errors.New("backend exploded"))

	s := newTestSolver(t, canonicalTable(), WithBackend(backend))
	ev := s.Evaluate(context.Background(), 0)

	require.False(t, ev.OK())
	assert.Equal(t, models.SolveError, ev.Warning.Status)
	assert.Equal(t, "A", ev.Warning.DMU)
	assert.Contains(t, ev.Warning.Message, "backend exploded")
}

func TestEvaluate_IndexOutOfRange(t *testing.T) {
	s := newTestSolver(t, canonicalTable())

	ev := s.Evaluate(context.Background(), 6)
	require.False(t, ev.OK())
	assert.Equal(t, models.SolveError, ev.Warning.Status)
	assert.Equal(t, "#6", ev.Warning.DMU)
}

func TestEvaluateAll_CancelledMidBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl := gomock.NewController(t)
	backend := linprog.NewMockBackend(ctrl)
	simplex := linprog.NewSimplexBackend()
	backend.EXPECT().Solve(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, m *linprog.Model) (*linprog.Solution, error) {
			if m.Name() == "ccr-B" {
				cancel()
			}
			return simplex.Solve(ctx, m)
		}).Times(2)

	s := newTestSolver(t, canonicalTable(), WithBackend(backend))
	outcome, err := s.EvaluateAll(ctx)

	require.ErrorIs(t, err, ErrBatchAborted)
	require.NotNil(t, outcome)
	require.Len(t, outcome.Records, 1)
	assert.Equal(t, "A", outcome.Records[0].DMU)
	assert.Empty(t, outcome.Warnings)
	assert.Contains(t, err.Error(), "1 of 6")
}

func TestEvaluateAll_Timeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := linprog.NewMockBackend(ctrl)
	backend.EXPECT().Solve(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, m *linprog.Model) (*linprog.Solution, error) {
			<-ctx.Done()
			return &linprog.Solution{Status: linprog.StatusAborted, Message: ctx.Err().Error()}, nil
		}).Times(1)

	s := newTestSolver(t, canonicalTable(), WithBackend(backend), WithTimeout(20*time.Millisecond))
	outcome, err := s.EvaluateAll(context.Background())

	require.ErrorIs(t, err, ErrBatchAborted)
	assert.Contains(t, err.Error(), context.DeadlineExceeded.Error())
	assert.Empty(t, outcome.Records)
	assert.Empty(t, outcome.Warnings)
}

func TestEvaluateAll_ZeroInputsDoNotCrash(t *testing.T) {
	table := &models.Table{
		Names:   []string{"free", "paid"},
		Inputs:  [][]float64{{0, 0}, {3, 2}},
		Outputs: [][]float64{{1}, {1}},
	}
	s := newTestSolver(t, table)

	outcome, err := s.EvaluateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, len(outcome.Records)+len(outcome.Warnings))

	byName := recordsByName(outcome)
	if rec, ok := byName["free"]; ok {
		assert.Equal(t, 0.0, rec.Efficiency)
		assert.Equal(t, []string{"free"}, rec.ReferenceSet)
	}
}

func TestEvaluateAll_IdleDMU(t *testing.T) {
	// idle has all-zero inputs and outputs, so its column carries no data
	// and, as the evaluated unit, its theta column is empty too.
	table := &models.Table{
		Names:   []string{"a", "b", "idle"},
		Inputs:  [][]float64{{2, 3}, {4, 1}, {0, 0}},
		Outputs: [][]float64{{1}, {1}, {0}},
	}
	s := newTestSolver(t, table)

	var outcome *models.Outcome
	var err error
	require.NotPanics(t, func() {
		outcome, err = s.EvaluateAll(context.Background())
	})
	require.NoError(t, err)
	require.Equal(t, 3, len(outcome.Records)+len(outcome.Warnings))

	byName := recordsByName(outcome)
	for _, name := range []string{"a", "b"} {
		rec, ok := byName[name]
		require.True(t, ok, name)
		assert.Equal(t, 1.0, rec.Efficiency, name)
		assert.NotContains(t, rec.ReferenceSet, "idle", name)
	}
	if rec, ok := byName["idle"]; ok {
		assert.Equal(t, 0.0, rec.Efficiency)
		assert.Empty(t, rec.ReferenceSet)
	}
}

func TestEvaluateAll_NegativeValuesPassThrough(t *testing.T) {
	table := &models.Table{
		Names:   []string{"x", "y", "z"},
		Inputs:  [][]float64{{-1, 2}, {3, 1}, {2, 2}},
		Outputs: [][]float64{{1}, {-2}, {1}},
	}
	s := newTestSolver(t, table)

	assert.NotPanics(t, func() {
		outcome, err := s.EvaluateAll(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, len(outcome.Records)+len(outcome.Warnings))
	})
}

func TestBuildModel_Structure(t *testing.T) {
	table := canonicalTable()
	s := newTestSolver(t, table)

	m, err := s.BuildModel(1)
	require.NoError(t, err)

	assert.Equal(t, "ccr-B", m.Name())
	assert.Equal(t, 7, m.NumVars())
	assert.Equal(t, 3, m.NumConstrs())
	assert.Equal(t, "theta", m.VarName(0))
	assert.Equal(t, 1.0, m.Objective(0))
	for j := 1; j < m.NumVars(); j++ {
		assert.Equal(t, 0.0, m.Objective(j))
	}

	rows := m.Constraints()
	assert.Equal(t, linprog.LessEqual, rows[0].Sense)
	assert.Equal(t, []float64{4, 7, 8, 4, 2, 10, -7}, rows[0].Val)
	assert.Equal(t, []float64{3, 3, 1, 2, 4, 1, -3}, rows[1].Val)
	assert.Equal(t, linprog.GreaterEqual, rows[2].Sense)
	assert.Equal(t, 1.0, rows[2].RHS)

	_, err = s.BuildModel(-1)
	require.Error(t, err)
}

func TestNewSolver_ShapeErrors(t *testing.T) {
	tests := []struct {
		name  string
		table *models.Table
	}{
		{"nil table", nil},
		{"no DMUs", &models.Table{}},
		{"missing input rows", &models.Table{Names: []string{"a"}, Outputs: [][]float64{{1}}}},
		{"no inputs", &models.Table{Names: []string{"a"}, Inputs: [][]float64{{}}, Outputs: [][]float64{{1}}}},
		{"ragged outputs", &models.Table{
			Names:   []string{"a", "b"},
			Inputs:  [][]float64{{1}, {2}},
			Outputs: [][]float64{{1, 2}, {1}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSolver(tt.table)
			var shapeErr *models.ShapeError
			require.ErrorAs(t, err, &shapeErr)
		})
	}
}

func TestNewSolver_Options(t *testing.T) {
	s := newTestSolver(t, canonicalTable(), WithWorkers(-3), WithDecimals(2), WithTolerance(0.5))

	outcome, err := s.EvaluateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Setup.Workers)
	assert.Equal(t, 2, outcome.Setup.Decimals)
	assert.Equal(t, 0.86, recordsByName(outcome)["A"].Efficiency)
	// λ_E = 2/7 falls under the raised threshold
	assert.Equal(t, []string{"D"}, recordsByName(outcome)["A"].ReferenceSet)
}

func TestEvaluateAll_ReportsProgress(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	s := newTestSolver(t, canonicalTable(), WithWorkers(3), WithProgress(func(ev models.Evaluation) {
		mu.Lock()
		defer mu.Unlock()
		if assert.True(t, ev.OK()) {
			seen = append(seen, ev.Record.DMU)
		}
	}))

	_, err := s.EvaluateAll(context.Background())
	require.NoError(t, err)
	sort.Strings(seen)
	assert.Equal(t, []string{"A", "B", "C", "D", "E", "F"}, seen)
}
