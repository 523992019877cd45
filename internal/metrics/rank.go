package metrics

import (
	"sort"

	"exit-strategy-lab/internal/domain"
)

// Rank orders aggregates by TotalPnL descending and assigns 1-based ranks.
// The sort is stable: equal totals keep their input order, which callers set
// to grid order.
func Rank(aggs []*domain.StrategyAggregate) {
	sort.SliceStable(aggs, func(i, j int) bool {
		return aggs[i].TotalPnL > aggs[j].TotalPnL
	})
	for i, a := range aggs {
		a.Rank = i + 1
	}
}

// TopN returns the first n ranked aggregates. n <= 0 returns all.
func TopN(aggs []*domain.StrategyAggregate, n int) []*domain.StrategyAggregate {
	if n <= 0 || n >= len(aggs) {
		return aggs
	}
	return aggs[:n]
}
