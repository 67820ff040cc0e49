// Package orchestration runs a batch evaluation end to end: cache lookup,
// solving, summary statistics and progress notification.
package orchestration

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/spboyer/dea/internal/cache"
	"github.com/spboyer/dea/internal/ccr"
	"github.com/spboyer/dea/internal/linprog"
	"github.com/spboyer/dea/internal/models"
)

// Runner evaluates DMU tables with a fixed set of solver parameters.
type Runner struct {
	workers   int
	tolerance float64
	decimals  int
	timeout   time.Duration
	backend   linprog.Backend
	logger    *slog.Logger

	// Result caching
	cache *cache.Cache

	// Summary statistics; a level outside (0, 1) skips the bootstrap CI
	summary         bool
	confidenceLevel float64
	seed            int64

	// Progress tracking
	progressMu sync.Mutex
	listeners  []ProgressListener
}

// ProgressListener receives progress updates
type ProgressListener func(event ProgressEvent)

// EventType represents the type of progress event
type EventType string

// EventType constants
const (
	EventBatchStart    EventType = "batch_start"
	EventBatchCached   EventType = "batch_cached"
	EventDMUComplete   EventType = "dmu_complete"
	EventDMUSkipped    EventType = "dmu_skipped"
	EventBatchComplete EventType = "batch_complete"
	EventBatchStopped  EventType = "batch_stopped"
)

// ProgressEvent represents a progress update
type ProgressEvent struct {
	EventType  EventType
	DMU        string
	Done       int
	Total      int
	Efficiency float64
	DurationMs int64
	Message    string
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithWorkers sets the number of DMUs solved concurrently.
func WithWorkers(n int) RunnerOption {
	return func(r *Runner) { r.workers = n }
}

// WithTolerance sets the reference-set threshold on λ.
func WithTolerance(tol float64) RunnerOption {
	return func(r *Runner) { r.tolerance = tol }
}

// WithDecimals sets the rounding applied to reported θ*.
func WithDecimals(d int) RunnerOption {
	return func(r *Runner) { r.decimals = d }
}

// WithTimeout bounds each batch. Zero disables the limit.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) { r.timeout = d }
}

// WithBackend overrides the LP backend.
func WithBackend(b linprog.Backend) RunnerOption {
	return func(r *Runner) { r.backend = b }
}

// WithLogger sets the logger handed to the solver.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// WithCache enables result caching
func WithCache(c *cache.Cache) RunnerOption {
	return func(r *Runner) { r.cache = c }
}

// WithSummary attaches summary statistics to every outcome. seed < 0 makes
// the bootstrap non-deterministic.
func WithSummary(confidenceLevel float64, seed int64) RunnerOption {
	return func(r *Runner) {
		r.summary = true
		r.confidenceLevel = confidenceLevel
		r.seed = seed
	}
}

// NewRunner creates a runner with the CCR defaults.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		workers:   1,
		tolerance: ccr.DefaultTolerance,
		decimals:  ccr.DefaultDecimals,
		seed:      -1,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// OnProgress registers a progress listener
func (r *Runner) OnProgress(listener ProgressListener) {
	r.progressMu.Lock()
	defer r.progressMu.Unlock()
	r.listeners = append(r.listeners, listener)
}

func (r *Runner) notifyProgress(event ProgressEvent) {
	r.progressMu.Lock()
	listeners := make([]ProgressListener, len(r.listeners))
	copy(listeners, r.listeners)
	r.progressMu.Unlock()

	for _, listener := range listeners {
		listener(event)
	}
}

// Run evaluates table. A complete outcome is cached; an aborted batch
// returns the partial outcome with an error wrapping ccr.ErrBatchAborted and
// is not cached.
func (r *Runner) Run(ctx context.Context, table *models.Table) (*models.Outcome, error) {
	var key string
	if r.cache != nil {
		k, err := cache.CacheKey(ccr.ModelName, table, r.tolerance, r.decimals)
		if err != nil {
			r.logger.Warn("cache key failed, evaluating without cache", "error", err)
		} else {
			key = k
			if cached, ok := r.cache.Get(key); ok {
				r.logger.Debug("cache hit", "key", key)
				r.finish(cached)
				r.notifyProgress(ProgressEvent{
					EventType: EventBatchCached,
					Done:      cached.Setup.DMUs,
					Total:     cached.Setup.DMUs,
				})
				return cached, nil
			}
		}
	}

	total := table.Len()
	r.notifyProgress(ProgressEvent{EventType: EventBatchStart, Total: total})

	var (
		doneMu sync.Mutex
		done   int
	)
	solver, err := ccr.NewSolver(table,
		ccr.WithWorkers(r.workers),
		ccr.WithTolerance(r.tolerance),
		ccr.WithDecimals(r.decimals),
		ccr.WithTimeout(r.timeout),
		ccr.WithBackend(r.backend),
		ccr.WithLogger(r.logger),
		ccr.WithProgress(func(ev models.Evaluation) {
			doneMu.Lock()
			done++
			n := done
			doneMu.Unlock()

			if ev.OK() {
				r.notifyProgress(ProgressEvent{
					EventType:  EventDMUComplete,
					DMU:        ev.Record.DMU,
					Done:       n,
					Total:      total,
					Efficiency: ev.Record.Efficiency,
				})
				return
			}
			r.notifyProgress(ProgressEvent{
				EventType: EventDMUSkipped,
				DMU:       ev.Warning.DMU,
				Done:      n,
				Total:     total,
				Message:   ev.Warning.Message,
			})
		}),
	)
	if err != nil {
		return nil, err
	}

	outcome, err := solver.EvaluateAll(ctx)
	if outcome != nil {
		r.finish(outcome)
	}
	if err != nil {
		if errors.Is(err, ccr.ErrBatchAborted) {
			r.notifyProgress(ProgressEvent{
				EventType:  EventBatchStopped,
				Done:       len(outcome.Records) + len(outcome.Warnings),
				Total:      total,
				DurationMs: outcome.DurationMs,
				Message:    err.Error(),
			})
		}
		return outcome, err
	}

	if key != "" {
		if err := r.cache.Put(key, outcome); err != nil {
			r.logger.Warn("failed to cache outcome", "error", err)
		}
	}

	r.notifyProgress(ProgressEvent{
		EventType:  EventBatchComplete,
		Done:       total,
		Total:      total,
		DurationMs: outcome.DurationMs,
	})
	return outcome, nil
}

// finish attaches the summary when requested.
func (r *Runner) finish(outcome *models.Outcome) {
	if r.summary {
		outcome.Summarize(r.confidenceLevel, r.seed)
	} else {
		outcome.Summary = nil
	}
}
