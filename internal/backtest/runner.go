package backtest

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"exit-strategy-lab/internal/domain"
	"exit-strategy-lab/internal/execution"
	"exit-strategy-lab/internal/idhash"
	"exit-strategy-lab/internal/lookup"
	"exit-strategy-lab/internal/metrics"
	"exit-strategy-lab/internal/simulation"
	"exit-strategy-lab/internal/strategy"
)

// Runner errors
var (
	ErrMissingModel = errors.New("sweep requires an execution model")
	ErrEmptyGrid    = errors.New("strategy grid is empty")
)

// PreparedSignal is a batch signal paired with its bar series.
// Err is set when no series could be obtained; the signal is then counted as
// unavailable and never simulated.
type PreparedSignal struct {
	Index  int
	Signal domain.Signal
	Series domain.BarSeries
	Err    error
}

// SweepInput is one sweep: every grid strategy against every matched signal.
type SweepInput struct {
	RunID    string
	Signals  []PreparedSignal
	Grid     strategy.Grid
	Rejected []strategy.Rejection // reported in the summary, never simulated
}

// SweepOutcome is the ranked result of a sweep.
type SweepOutcome struct {
	RunID   string
	Ranking []*domain.StrategyAggregate // rank 1 first
	Results []*domain.Result            // grid order, then signal order
	Entries []Entry                     // resolved entries in signal order
	Summary Summary
}

// Entry records how a signal's entry bar was resolved.
type Entry struct {
	Index int
	Token string
	Match lookup.Match
}

// ProgressFunc is called after every simulated pair.
// Calls are serialized.
type ProgressFunc func(done, total int)

// Runner sweeps strategy grids over prepared signals.
type Runner struct {
	engine   *strategy.Engine
	model    *execution.Model
	policy   lookup.Policy
	workers  int
	progress ProgressFunc
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Engine   *strategy.Engine // nil means the default horizon
	Model    *execution.Model
	Policy   lookup.Policy
	Workers  int // <= 0 means runtime.NumCPU()
	Progress ProgressFunc
}

// NewRunner creates a sweep runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Model == nil {
		return nil, ErrMissingModel
	}
	engine := opts.Engine
	if engine == nil {
		engine = strategy.NewEngine(0)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Runner{
		engine:   engine,
		model:    opts.Model,
		policy:   opts.Policy,
		workers:  workers,
		progress: opts.Progress,
	}, nil
}

// pairSlot holds the outcome of one (strategy, signal) pair.
type pairSlot struct {
	result *domain.Result
	err    error
}

// Sweep runs every strategy of the grid against every signal whose entry bar
// resolves. Pairs run on a bounded worker pool; results are written into
// fixed slots so aggregation and ranking do not depend on scheduling.
func (r *Runner) Sweep(ctx context.Context, in SweepInput) (*SweepOutcome, error) {
	if len(in.Grid) == 0 {
		return nil, ErrEmptyGrid
	}

	summary := Summary{
		Signals:    len(in.Signals),
		Rejected:   len(in.Rejected),
		Strategies: len(in.Grid),
	}
	for _, rej := range in.Rejected {
		summary.Errors = append(summary.Errors, fmt.Sprintf("rejected %s: %v", rej.Params, rej.Err))
	}

	// Entry bars do not depend on the strategy: resolve once per signal.
	var (
		matched []PreparedSignal
		entries []Entry
	)
	for _, ps := range in.Signals {
		if ps.Err != nil {
			summary.Unavailable++
			summary.Errors = append(summary.Errors, fmt.Sprintf("signal %d %s: %v", ps.Index, ps.Signal.Token, ps.Err))
			continue
		}
		m, err := simulation.ResolveEntry(ps.Series, ps.Signal, r.policy)
		if err != nil {
			summary.Unmatched++
			continue
		}
		matched = append(matched, ps)
		entries = append(entries, Entry{Index: ps.Index, Token: ps.Signal.Token, Match: m})
	}
	summary.Matched = len(matched)

	total := len(in.Grid) * len(matched)
	slots := make([]pairSlot, total)

	var (
		mu   sync.Mutex
		done int
	)
	report := func() {
		if r.progress == nil {
			return
		}
		mu.Lock()
		done++
		r.progress(done, total)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for si, strat := range in.Grid {
		for mi := range matched {
			slot := si*len(matched) + mi
			ps := matched[mi]
			entryIdx := entries[mi].Match.Index
			strat := strat

			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				res, err := r.engine.Simulate(ps.Series, entryIdx, strat, r.model, ps.Signal.Notional)
				if err != nil {
					slots[slot] = pairSlot{err: err}
				} else {
					res.RunID = in.RunID
					res.Token = ps.Signal.Token
					res.SignalIndex = ps.Index
					res.ResultID = idhash.ComputeResultID(in.RunID, res.StrategyID, ps.Signal.Token, ps.Index, res.EntryTimestamp)
					slots[slot] = pairSlot{result: res}
				}
				report()
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	outcome := &SweepOutcome{RunID: in.RunID, Entries: entries}
	aggs := make([]*domain.StrategyAggregate, 0, len(in.Grid))

	for si, strat := range in.Grid {
		var stratResults []*domain.Result
		for mi := range matched {
			s := slots[si*len(matched)+mi]
			if s.err != nil {
				summary.PairErrors++
				summary.Errors = append(summary.Errors, fmt.Sprintf("%s signal %d: %v", strat.ID(), matched[mi].Index, s.err))
				continue
			}
			stratResults = append(stratResults, s.result)
		}
		summary.Pairs += len(stratResults)
		outcome.Results = append(outcome.Results, stratResults...)
		aggs = append(aggs, metrics.ComputeAggregate(in.RunID, strat.ID(), stratResults))
	}

	metrics.Rank(aggs)
	outcome.Ranking = aggs
	outcome.Summary = summary
	return outcome, nil
}
