package verification

import (
	"context"
	"errors"
	"fmt"

	"exit-strategy-lab/internal/domain"
	"exit-strategy-lab/internal/execution"
	"exit-strategy-lab/internal/idhash"
	"exit-strategy-lab/internal/storage"
	"exit-strategy-lab/internal/strategy"
)

// Replay errors
var (
	ErrRunNotFound     = errors.New("run not found")
	ErrNoResults       = errors.New("run has no stored results")
	ErrSeriesMissing   = errors.New("no bar series for token")
	ErrEntryMissing    = errors.New("entry bar not in series")
	ErrUnknownStrategy = errors.New("strategy not in grid")
)

// ReplayVerifier implements Verifier from stored runs and results.
type ReplayVerifier struct {
	runStore    storage.RunStore
	resultStore storage.ResultStore
}

// ReplayVerifierOptions contains configuration for creating a ReplayVerifier.
type ReplayVerifierOptions struct {
	RunStore    storage.RunStore
	ResultStore storage.ResultStore
}

// Compile-time interface check.
var _ Verifier = (*ReplayVerifier)(nil)

// NewReplayVerifier creates a ReplayVerifier.
func NewReplayVerifier(opts ReplayVerifierOptions) *ReplayVerifier {
	return &ReplayVerifier{
		runStore:    opts.RunStore,
		resultStore: opts.ResultStore,
	}
}

// VerifyRun replays every stored result of runID with the run's execution
// config and horizon.
func (v *ReplayVerifier) VerifyRun(ctx context.Context, runID string, series map[string]domain.BarSeries, grid strategy.Grid) (*VerificationReport, error) {
	run, err := v.runStore.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}

	model, err := execution.NewModel(run.Exec)
	if err != nil {
		return nil, fmt.Errorf("run %s exec config: %w", runID, err)
	}
	engine := strategy.NewEngine(run.Horizon)

	stored, err := v.resultStore.GetByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoResults, runID)
	}

	report := &VerificationReport{
		RunID:   runID,
		Total:   len(stored),
		Results: make([]VerificationResult, 0, len(stored)),
	}

	for _, s := range stored {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res := VerificationResult{
			ResultID:    s.ResultID,
			StrategyID:  s.StrategyID,
			SignalIndex: s.SignalIndex,
			StoredPnL:   s.PnLUSD,
		}

		replayed, err := replayResult(s, series, grid, engine, model)
		switch {
		case err != nil:
			res.Err = err
			report.Failed++
		default:
			res.ReplayedPnL = replayed.PnLUSD
			res.Divergences = CompareResults(s, replayed)
			res.Match = len(res.Divergences) == 0
			if res.Match {
				report.Matched++
			} else {
				report.Divergent++
			}
		}
		report.Results = append(report.Results, res)
	}

	return report, nil
}

// replayResult re-executes one pair from its stored entry bar.
func replayResult(
	stored *domain.Result,
	series map[string]domain.BarSeries,
	grid strategy.Grid,
	engine *strategy.Engine,
	model *execution.Model,
) (*domain.Result, error) {
	s, ok := series[stored.Token]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSeriesMissing, stored.Token)
	}
	idx := s.IndexOf(stored.EntryTimestamp)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s at %d", ErrEntryMissing, stored.Token, stored.EntryTimestamp)
	}
	strat, ok := grid.Lookup(stored.StrategyID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, stored.StrategyID)
	}

	replayed, err := engine.Simulate(s, idx, strat, model, stored.Notional)
	if err != nil {
		return nil, err
	}
	replayed.RunID = stored.RunID
	replayed.Token = stored.Token
	replayed.SignalIndex = stored.SignalIndex
	replayed.ResultID = idhash.ComputeResultID(stored.RunID, replayed.StrategyID, stored.Token, stored.SignalIndex, replayed.EntryTimestamp)
	return replayed, nil
}
