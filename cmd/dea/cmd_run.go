package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/spboyer/dea/internal/cache"
	"github.com/spboyer/dea/internal/ccr"
	"github.com/spboyer/dea/internal/dataset"
	"github.com/spboyer/dea/internal/models"
	"github.com/spboyer/dea/internal/orchestration"
	"github.com/spboyer/dea/internal/projectconfig"
	"github.com/spboyer/dea/internal/reporting"
	"github.com/spboyer/dea/internal/spinner"
)

var (
	format          string
	outputPath      string
	showChart       bool
	workers         int
	tolerance       float64
	decimals        int
	timeout         time.Duration
	enableCache     bool
	disableCache    bool
	runCacheDir     string
	showSummary     bool
	confidenceLevel float64
	seed            int64
	interpret       bool
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [file|-]",
		Short: "Compute CCR efficiency scores for a table of DMUs",
		Long: `Compute input-oriented CCR efficiency scores for every DMU in a table.

The table is delimited text (tab, comma or semicolon) with a header row
naming one DMU column, one or more input:<name> columns and one or more
output:<name> columns, or a JSON document with a "dmus" array. Use "-" to
read from stdin. Without an argument the data file from .dea.yaml is used.

Flags override .dea.yaml, which overrides built-in defaults.

Exit status is 0 when every DMU was evaluated, 1 when one or more DMUs were
skipped because their LP had no optimal solution, and 2 on any other error.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCommandE,
	}

	cmd.Flags().StringVar(&format, "format", "", "Output format: table, csv, json, markdown, html, junit (default: output.format from .dea.yaml)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write results to a file instead of stdout")
	cmd.Flags().BoolVar(&showChart, "chart", false, "Print an efficiency bar chart after the table")
	cmd.Flags().IntVar(&workers, "workers", 0, "Number of DMUs solved concurrently")
	cmd.Flags().Float64Var(&tolerance, "tolerance", 0, "λ threshold for reference set membership")
	cmd.Flags().IntVar(&decimals, "decimals", 0, "Decimal places θ* is rounded to")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Abort the batch after this long (0 disables)")
	cmd.Flags().BoolVar(&enableCache, "cache", false, "Enable result caching")
	cmd.Flags().BoolVar(&disableCache, "no-cache", false, "Disable result caching")
	cmd.Flags().StringVar(&runCacheDir, "cache-dir", "", "Cache directory (default: cache.dir from .dea.yaml)")
	cmd.Flags().BoolVar(&showSummary, "summary", false, "Include summary statistics with a bootstrap confidence interval")
	cmd.Flags().Float64Var(&confidenceLevel, "confidence", 0, "Confidence level for the summary interval")
	cmd.Flags().Int64Var(&seed, "seed", -1, "Bootstrap seed (negative for a random seed)")
	cmd.Flags().BoolVar(&interpret, "interpret", false, "Print a plain-language interpretation of the results")
	cmd.MarkFlagsMutuallyExclusive("cache", "no-cache")

	return cmd
}

// runSettings is the effective configuration after merging flags over
// .dea.yaml.
type runSettings struct {
	format          reporting.Format
	chart           bool
	workers         int
	tolerance       float64
	decimals        int
	timeout         time.Duration
	cacheEnabled    bool
	cacheDir        string
	summary         bool
	confidenceLevel float64
	seed            int64
}

func resolveRunSettings(cmd *cobra.Command, cfg *projectconfig.ProjectConfig) (*runSettings, error) {
	flags := cmd.Flags()

	s := &runSettings{
		chart:           *cfg.Output.Chart,
		workers:         cfg.Solver.Workers,
		tolerance:       cfg.Solver.Tolerance,
		decimals:        *cfg.Solver.Decimals,
		timeout:         cfg.Solver.Timeout,
		cacheEnabled:    *cfg.Cache.Enabled,
		cacheDir:        cfg.Resolve(cfg.Cache.Dir),
		summary:         *cfg.Output.Summary,
		confidenceLevel: cfg.Output.ConfidenceLevel,
		seed:            seed,
	}

	formatName := cfg.Output.Format
	switch {
	case flags.Changed("format"):
		formatName = format
	case outputPath != "":
		if f, ok := formatFromPath(outputPath); ok {
			formatName = string(f)
		}
	}
	f, err := reporting.ParseFormat(formatName)
	if err != nil {
		return nil, err
	}
	s.format = f

	if flags.Changed("chart") {
		s.chart = showChart
	}
	if flags.Changed("workers") {
		if workers < 1 {
			return nil, fmt.Errorf("--workers must be at least 1, got %d", workers)
		}
		s.workers = workers
	}
	if flags.Changed("tolerance") {
		if tolerance < 0 {
			return nil, fmt.Errorf("--tolerance must not be negative, got %g", tolerance)
		}
		s.tolerance = tolerance
	}
	if flags.Changed("decimals") {
		if decimals < 0 || decimals > 15 {
			return nil, fmt.Errorf("--decimals must be between 0 and 15, got %d", decimals)
		}
		s.decimals = decimals
	}
	if flags.Changed("timeout") {
		if timeout < 0 {
			return nil, fmt.Errorf("--timeout must not be negative, got %s", timeout)
		}
		s.timeout = timeout
	}
	if enableCache {
		s.cacheEnabled = true
	}
	if disableCache {
		s.cacheEnabled = false
	}
	if runCacheDir != "" {
		s.cacheDir = runCacheDir
	}
	if flags.Changed("summary") {
		s.summary = showSummary
	}
	if flags.Changed("confidence") {
		if confidenceLevel <= 0 || confidenceLevel >= 1 {
			return nil, fmt.Errorf("--confidence must be in (0, 1), got %g", confidenceLevel)
		}
		s.confidenceLevel = confidenceLevel
		s.summary = true
	}
	return s, nil
}

func (s *runSettings) runnerOptions() []orchestration.RunnerOption {
	opts := []orchestration.RunnerOption{
		orchestration.WithWorkers(s.workers),
		orchestration.WithTolerance(s.tolerance),
		orchestration.WithDecimals(s.decimals),
		orchestration.WithTimeout(s.timeout),
		orchestration.WithLogger(slog.Default()),
	}
	if s.cacheEnabled {
		opts = append(opts, orchestration.WithCache(cache.New(s.cacheDir)))
	}
	if s.summary {
		opts = append(opts, orchestration.WithSummary(s.confidenceLevel, s.seed))
	}
	return opts
}

// formatFromPath infers the output format from a file extension.
func formatFromPath(path string) (reporting.Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return reporting.CSVFormat, true
	case ".json":
		return reporting.JSONFormat, true
	case ".md":
		return reporting.MarkdownFormat, true
	case ".html", ".htm":
		return reporting.HTMLFormat, true
	case ".xml":
		return reporting.JUnitFormat, true
	}
	return "", false
}

func runCommandE(cmd *cobra.Command, args []string) error {
	cfg, err := projectconfig.Load(".")
	if err != nil {
		return err
	}

	settings, err := resolveRunSettings(cmd, cfg)
	if err != nil {
		return err
	}

	table, source, err := loadTable(cmd, cfg, args)
	if err != nil {
		return err
	}
	slog.Debug("loaded table", "source", source, "dmus", table.Len(),
		"inputs", table.NumInputs(), "outputs", table.NumOutputs())

	runner := orchestration.NewRunner(settings.runnerOptions()...)
	runner.OnProgress(debugProgressListener)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	// Debug logs already narrate progress line by line.
	var spin *spinner.Spinner
	if isTerminal(cmd.ErrOrStderr()) && !slog.Default().Enabled(ctx, slog.LevelDebug) {
		spin = spinner.Start(cmd.ErrOrStderr(), fmt.Sprintf("Evaluating %d DMUs", table.Len()))
		runner.OnProgress(func(event orchestration.ProgressEvent) {
			if event.EventType == orchestration.EventDMUComplete || event.EventType == orchestration.EventDMUSkipped {
				spin.Update(fmt.Sprintf("Evaluating DMUs %d/%d", event.Done, event.Total))
			}
		})
	}

	outcome, err := runner.Run(ctx, table)
	if spin != nil {
		spin.Stop()
	}
	if err != nil {
		if errors.Is(err, ccr.ErrBatchAborted) {
			return fmt.Errorf("evaluating %s: %w", source, err)
		}
		return err
	}

	if outputPath != "" {
		if err := saveOutcome(outcome, settings, outputPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Results saved to: %s\n", outputPath) //nolint:errcheck
	} else if err := writeOutcome(cmd.OutOrStdout(), outcome, settings); err != nil {
		return err
	}

	// Tables already list skipped DMUs inline; other formats may be piped
	// somewhere, so report them on stderr as well.
	if settings.format != reporting.TableFormat || outputPath != "" {
		for _, w := range outcome.Warnings {
			fmt.Fprintf(cmd.ErrOrStderr(), "⚠ skipped %s: %s\n", w.DMU, w.Message) //nolint:errcheck
		}
	}

	if interpret {
		fmt.Fprint(cmd.OutOrStdout(), reporting.FormatSummaryReport(outcome)) //nolint:errcheck
	}

	if n := outcome.Skipped(); n > 0 {
		return &SkippedDMUsError{
			Message: fmt.Sprintf("evaluation completed with %d of %d DMU(s) skipped", n, outcome.Setup.DMUs),
		}
	}
	return nil
}

// loadTable reads the table named by args, stdin for "-", or the project's
// data file when no argument is given. It returns a label for log messages.
func loadTable(cmd *cobra.Command, cfg *projectconfig.ProjectConfig, args []string) (*models.Table, string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, "", fmt.Errorf("reading stdin: %w", err)
		}
		table, err := dataset.ParseBytes(data)
		if err != nil {
			return nil, "", fmt.Errorf("stdin: %w", err)
		}
		return table, "stdin", nil
	}

	var path string
	if len(args) == 1 {
		path = args[0]
	} else {
		path = cfg.Resolve(cfg.Data)
		if path == "" {
			return nil, "", errors.New("no data file given and none configured in " + projectconfig.FileName)
		}
	}

	table, err := dataset.LoadFile(path)
	if err != nil {
		var shapeErr *models.ShapeError
		var dataErr *models.DataError
		if errors.As(err, &shapeErr) || errors.As(err, &dataErr) {
			return nil, "", fmt.Errorf("%s: %w", path, err)
		}
		return nil, "", err
	}
	return table, path, nil
}

func writeOutcome(w io.Writer, outcome *models.Outcome, settings *runSettings) error {
	if err := reporting.Write(w, settings.format, outcome); err != nil {
		return fmt.Errorf("writing %s output: %w", settings.format, err)
	}
	if settings.chart && settings.format == reporting.TableFormat {
		fmt.Fprintln(w) //nolint:errcheck
		if err := reporting.WriteChart(w, outcome.Records, reporting.ChartWidth(w)); err != nil {
			return fmt.Errorf("writing chart: %w", err)
		}
	}
	return nil
}

func saveOutcome(outcome *models.Outcome, settings *runSettings, path string) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close output file: %w", cerr)
		}
	}()

	return writeOutcome(f, outcome, settings)
}

func debugProgressListener(event orchestration.ProgressEvent) {
	switch event.EventType {
	case orchestration.EventBatchStart:
		slog.Debug("evaluating DMUs", "total", event.Total)
	case orchestration.EventBatchCached:
		slog.Debug("using cached outcome", "dmus", event.Total)
	case orchestration.EventDMUComplete:
		slog.Debug("DMU evaluated", "dmu", event.DMU, "efficiency", event.Efficiency,
			"done", event.Done, "total", event.Total)
	case orchestration.EventDMUSkipped:
		slog.Debug("DMU skipped", "dmu", event.DMU, "reason", event.Message,
			"done", event.Done, "total", event.Total)
	case orchestration.EventBatchComplete:
		slog.Debug("batch complete", "dmus", event.Total, "duration_ms", event.DurationMs)
	case orchestration.EventBatchStopped:
		slog.Warn("batch stopped", "done", event.Done, "total", event.Total, "reason", event.Message)
	}
}
