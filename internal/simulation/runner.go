package simulation

import (
	"context"
	"errors"

	"exit-strategy-lab/internal/domain"
	"exit-strategy-lab/internal/execution"
	"exit-strategy-lab/internal/idhash"
	"exit-strategy-lab/internal/lookup"
	"exit-strategy-lab/internal/storage"
	"exit-strategy-lab/internal/strategy"
)

// Runner errors
var (
	ErrMissingModel = errors.New("runner requires an execution model")
)

// Runner simulates one signal against one strategy.
type Runner struct {
	engine      *strategy.Engine
	model       *execution.Model
	policy      lookup.Policy
	resultStore storage.ResultStore
	runID       string
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Engine      *strategy.Engine // nil means the default horizon
	Model       *execution.Model
	Policy      lookup.Policy
	ResultStore storage.ResultStore // optional
	RunID       string
}

// NewRunner creates a simulation runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Model == nil {
		return nil, ErrMissingModel
	}
	engine := opts.Engine
	if engine == nil {
		engine = strategy.NewEngine(0)
	}
	return &Runner{
		engine:      engine,
		model:       opts.Model,
		policy:      opts.Policy,
		resultStore: opts.ResultStore,
		runID:       opts.RunID,
	}, nil
}

// Run executes a simulation for one signal.
// Steps:
//  1. Resolve the entry bar from the signal's wall-clock minute
//  2. Run the partial-exit engine from that bar
//  3. Stamp run, token and a deterministic result ID
//  4. Persist the Result when a store is configured
//
// Unmatched signals return lookup.ErrNotFound and nothing is stored.
func (r *Runner) Run(ctx context.Context, signalIndex int, signal domain.Signal, series domain.BarSeries, strat domain.Strategy) (*domain.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	match, err := ResolveEntry(series, signal, r.policy)
	if err != nil {
		return nil, err
	}

	result, err := r.engine.Simulate(series, match.Index, strat, r.model, signal.Notional)
	if err != nil {
		return nil, err
	}

	result.RunID = r.runID
	result.Token = signal.Token
	result.SignalIndex = signalIndex
	result.ResultID = idhash.ComputeResultID(r.runID, result.StrategyID, signal.Token, signalIndex, result.EntryTimestamp)

	if r.resultStore != nil {
		if err := r.resultStore.Insert(ctx, result); err != nil {
			return nil, err
		}
	}

	return result, nil
}
