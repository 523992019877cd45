package reporting

import (
	"time"

	"exit-strategy-lab/internal/domain"
)

// Report is everything rendered for one sweep run.
type Report struct {
	GeneratedAt time.Time
	Run         *domain.SweepRun

	// Ranking is ordered by rank; TopN limits console and markdown tables.
	Ranking []*domain.StrategyAggregate
	TopN    int

	// Results of the run ordered by (strategy_id, signal_index).
	Results []*domain.Result

	// Notes are non-fatal problems met while producing the run.
	Notes []string
}

// Top returns the first TopN ranked rows, or all when TopN <= 0.
func (r *Report) Top() []*domain.StrategyAggregate {
	if r.TopN <= 0 || r.TopN >= len(r.Ranking) {
		return r.Ranking
	}
	return r.Ranking[:r.TopN]
}

// ExitTotals sums exit reasons over the whole ranking.
func (r *Report) ExitTotals() map[domain.ExitReason]int {
	out := make(map[domain.ExitReason]int)
	for _, a := range r.Ranking {
		for reason, n := range a.ExitCounts {
			out[reason] += n
		}
	}
	return out
}

// exitOrder is the display order of exit reasons.
var exitOrder = []domain.ExitReason{
	domain.ExitReasonTakeProfit,
	domain.ExitReasonStopLoss,
	domain.ExitReasonTrailingStop,
	domain.ExitReasonTime,
}
