package backtest

import (
	"fmt"

	"exit-strategy-lab/internal/domain"
	"exit-strategy-lab/internal/metrics"
)

// Summary discloses the population a sweep's totals were computed over.
type Summary struct {
	Signals     int // signals in the batch
	Matched     int // entry bar resolved
	Unmatched   int // series present, no acceptable entry bar
	Unavailable int // no series from the data source
	Rejected    int // grid combinations rejected at construction
	Strategies  int // strategies simulated
	Pairs       int // (signal, strategy) pairs simulated
	PairErrors  int // pairs that failed closed, e.g. non-positive prices
	Errors      []string
}

// Skipped returns the number of signals that contributed nothing.
func (s Summary) Skipped() int {
	return s.Unmatched + s.Unavailable
}

// String renders a one-line summary.
func (s Summary) String() string {
	return fmt.Sprintf("matched %d of %d signals (unmatched %d, unavailable %d); %d strategies, %d rejected; %d pairs, %d failed",
		s.Matched, s.Signals, s.Unmatched, s.Unavailable, s.Strategies, s.Rejected, s.Pairs, s.PairErrors)
}

// TopN returns the n best-ranked strategies. n <= 0 returns all.
func (o *SweepOutcome) TopN(n int) []*domain.StrategyAggregate {
	return metrics.TopN(o.Ranking, n)
}

// ApplyTo copies the summary counts onto a run record.
func (s Summary) ApplyTo(run *domain.SweepRun) {
	run.Signals = s.Signals
	run.Matched = s.Matched
	run.Unmatched = s.Unmatched
	run.Unavailable = s.Unavailable
	run.Rejected = s.Rejected
	run.Strategies = s.Strategies
	run.Pairs = s.Pairs
	run.PairErrors = s.PairErrors
}
