// Package orchestrator runs a batch sweep end to end.
// It coordinates: series building -> entry resolution and sweep -> persistence
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"exit-strategy-lab/internal/backtest"
	"exit-strategy-lab/internal/domain"
	"exit-strategy-lab/internal/execution"
	"exit-strategy-lab/internal/lookup"
	"exit-strategy-lab/internal/mint"
	"exit-strategy-lab/internal/observability"
	"exit-strategy-lab/internal/progress"
	"exit-strategy-lab/internal/storage"
	"exit-strategy-lab/internal/strategy"
)

// ErrNoSeriesSource is returned when no series source is configured.
var ErrNoSeriesSource = errors.New("orchestrator requires a series source")

// SeriesSource builds bar series for a set of tokens.
type SeriesSource interface {
	BuildAll(ctx context.Context, tokens []string, workers int) (map[string]domain.BarSeries, map[string]error, error)
}

// ProgressReporter hands out per-stage progress callbacks.
type ProgressReporter interface {
	Reporter(runID, stage string) func(done, total int)
}

// Orchestrator coordinates one sweep run.
type Orchestrator struct {
	series  SeriesSource
	exec    domain.ExecConfig
	model   *execution.Model
	horizon int
	policy  lookup.Policy
	workers int

	runStore       storage.RunStore
	resultStore    storage.ResultStore
	aggregateStore storage.AggregateStore

	progress ProgressReporter
	newRunID func() string
	now      func() time.Time
	logger   *zap.Logger
}

// Options for creating an Orchestrator. Stores are optional; a nil store
// skips its persistence phase.
type Options struct {
	Series  SeriesSource
	Exec    domain.ExecConfig
	Horizon int // <= 0 means the engine default
	Policy  lookup.Policy
	Workers int

	RunStore       storage.RunStore
	ResultStore    storage.ResultStore
	AggregateStore storage.AggregateStore

	Progress ProgressReporter
	NewRunID func() string // default uuid.NewString
	Now      func() time.Time
	Logger   *zap.Logger
}

// New creates an Orchestrator. The execution config is validated here so a
// bad configuration fails before any data is fetched.
func New(opts Options) (*Orchestrator, error) {
	if opts.Series == nil {
		return nil, ErrNoSeriesSource
	}
	model, err := execution.NewModel(opts.Exec)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		series:         opts.Series,
		exec:           opts.Exec,
		model:          model,
		horizon:        opts.Horizon,
		policy:         opts.Policy,
		workers:        opts.Workers,
		runStore:       opts.RunStore,
		resultStore:    opts.ResultStore,
		aggregateStore: opts.AggregateStore,
		progress:       opts.Progress,
		newRunID:       opts.NewRunID,
		now:            opts.Now,
		logger:         opts.Logger,
	}
	if o.newRunID == nil {
		o.newRunID = uuid.NewString
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o, nil
}

// Request is one batch to sweep.
type Request struct {
	RunID    string // empty means a generated ID
	Signals  []domain.Signal
	Grid     strategy.Grid
	Rejected []strategy.Rejection
}

// RunResult contains results from orchestrator execution.
type RunResult struct {
	Run              *domain.SweepRun
	Outcome          *backtest.SweepOutcome
	ResultsStored    int
	AggregatesStored int
	Errors           []string // non-fatal problems, in phase order
}

// Run executes the sweep.
// Phases:
//  1. Build one series per distinct token
//  2. Resolve entries and sweep the grid
//  3. Persist the run, its results and its ranked aggregates
//
// Only cancellation, an empty grid and a failed run insert are fatal.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*RunResult, error) {
	runID := req.RunID
	if runID == "" {
		runID = o.newRunID()
	}
	run := &domain.SweepRun{
		RunID:     runID,
		StartedAt: o.now().UTC(),
		Exec:      o.exec,
		Horizon:   o.horizon,
	}
	logger := o.logger.With(zap.String("run_id", run.RunID))
	result := &RunResult{Run: run}

	// Phase 1: series
	logger.Info("building series", zap.Int("signals", len(req.Signals)))
	phaseStart := time.Now()
	prepared, err := o.buildSeries(ctx, run.RunID, req.Signals)
	o.recordPhase("series", phaseStart, err)
	if err != nil {
		return nil, fmt.Errorf("phase 1 (series) failed: %w", err)
	}

	// Phase 2: sweep
	phaseStart = time.Now()
	outcome, err := o.sweep(ctx, run.RunID, prepared, req)
	o.recordPhase("sweep", phaseStart, err)
	if err != nil {
		return nil, fmt.Errorf("phase 2 (sweep) failed: %w", err)
	}
	result.Outcome = outcome
	result.Errors = append(result.Errors, outcome.Summary.Errors...)
	outcome.Summary.ApplyTo(run)
	run.FinishedAt = o.now().UTC()
	o.recordSweep(outcome, time.Since(phaseStart))
	logger.Info("sweep finished", zap.Stringer("summary", outcome.Summary))

	// Phase 3: persistence
	phaseStart = time.Now()
	persistErr := o.persist(ctx, run, outcome, result)
	o.recordPhase("persist", phaseStart, persistErr)
	if persistErr != nil {
		return nil, fmt.Errorf("phase 3 (persist) failed: %w", persistErr)
	}

	o.report(run.RunID, progress.StageComplete)(outcome.Summary.Pairs, outcome.Summary.Pairs)
	observability.RecordPipelineRun("total", "success", time.Since(run.StartedAt).Seconds())

	logger.Info("run completed",
		zap.Int("results_stored", result.ResultsStored),
		zap.Int("aggregates_stored", result.AggregatesStored),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

// buildSeries pairs every signal with its token's series. Tokens without data
// become unavailable signals rather than failing the run.
func (o *Orchestrator) buildSeries(ctx context.Context, runID string, signals []domain.Signal) ([]backtest.PreparedSignal, error) {
	tokens := make([]string, len(signals))
	for i, s := range signals {
		tokens[i] = s.Token
	}

	series, errs, err := o.series.BuildAll(ctx, tokens, o.workers)
	if err != nil {
		return nil, err
	}

	report := o.report(runID, progress.StageSeries)
	prepared := make([]backtest.PreparedSignal, len(signals))
	for i, s := range signals {
		key := mint.Canonical(s.Token)
		ps := backtest.PreparedSignal{Index: i, Signal: s}
		if e, failed := errs[key]; failed {
			ps.Err = e
		} else if sr, ok := series[key]; ok {
			ps.Series = sr
		} else {
			ps.Err = fmt.Errorf("no series built for %s", s.Token)
		}
		prepared[i] = ps
		report(i+1, len(signals))
	}
	for token, e := range errs {
		o.logger.Warn("series unavailable", zap.String("token", token), zap.Error(e))
	}
	return prepared, nil
}

func (o *Orchestrator) sweep(ctx context.Context, runID string, prepared []backtest.PreparedSignal, req Request) (*backtest.SweepOutcome, error) {
	runner, err := backtest.NewRunner(backtest.RunnerOptions{
		Engine:   strategy.NewEngine(o.horizon),
		Model:    o.model,
		Policy:   o.policy,
		Workers:  o.workers,
		Progress: backtest.ProgressFunc(o.report(runID, progress.StageSweep)),
	})
	if err != nil {
		return nil, err
	}
	return runner.Sweep(ctx, backtest.SweepInput{
		RunID:    runID,
		Signals:  prepared,
		Grid:     req.Grid,
		Rejected: req.Rejected,
	})
}

// persist writes the run first so results and aggregates can reference it.
func (o *Orchestrator) persist(ctx context.Context, run *domain.SweepRun, outcome *backtest.SweepOutcome, result *RunResult) error {
	report := o.report(run.RunID, progress.StagePersist)
	report(0, 3)

	if o.runStore != nil {
		if err := o.runStore.Insert(ctx, run); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
	}
	report(1, 3)

	if o.resultStore != nil && len(outcome.Results) > 0 {
		if err := o.resultStore.InsertBulk(ctx, outcome.Results); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("store results: %v", err))
		} else {
			result.ResultsStored = len(outcome.Results)
		}
	}
	report(2, 3)

	if o.aggregateStore != nil && len(outcome.Ranking) > 0 {
		if err := o.aggregateStore.InsertBulk(ctx, outcome.Ranking); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("store aggregates: %v", err))
		} else {
			result.AggregatesStored = len(outcome.Ranking)
		}
	}
	report(3, 3)
	return nil
}

func (o *Orchestrator) report(runID, stage string) func(done, total int) {
	if o.progress == nil {
		return func(int, int) {}
	}
	return o.progress.Reporter(runID, stage)
}

func (o *Orchestrator) recordPhase(phase string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	observability.RecordPipelineRun(phase, status, time.Since(start).Seconds())
}

func (o *Orchestrator) recordSweep(outcome *backtest.SweepOutcome, elapsed time.Duration) {
	s := outcome.Summary
	observability.RecordSweep(elapsed.Seconds())
	observability.RecordPairs(s.Pairs, s.PairErrors)
	observability.RecordSkipped("unmatched", s.Unmatched)
	observability.RecordSkipped("unavailable", s.Unavailable)
	observability.RecordRejected(s.Rejected)
	for _, r := range outcome.Results {
		observability.RecordExit(string(r.ExitReason))
	}
}
