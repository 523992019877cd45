package metrics

import (
	"context"
	"errors"
	"sort"

	"exit-strategy-lab/internal/domain"
	"exit-strategy-lab/internal/storage"
)

// ErrNoResults is returned when a run has no results to aggregate.
var ErrNoResults = errors.New("no results available for aggregation")

// Aggregator computes strategy aggregates from stored results.
type Aggregator struct {
	resultStore storage.ResultStore
	aggStore    storage.AggregateStore
}

// NewAggregator creates a new metrics aggregator.
func NewAggregator(resultStore storage.ResultStore, aggStore storage.AggregateStore) *Aggregator {
	return &Aggregator{
		resultStore: resultStore,
		aggStore:    aggStore,
	}
}

// ComputeRun computes ranked aggregates for every strategy in a run.
// order lists strategy IDs in grid order and breaks PnL ties; strategies not
// in order follow in ID order. Returns ErrNoResults if the run is empty.
func (a *Aggregator) ComputeRun(ctx context.Context, runID string, order []string) ([]*domain.StrategyAggregate, error) {
	results, err := a.resultStore.GetByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, ErrNoResults
	}

	byStrategy := make(map[string][]*domain.Result)
	for _, r := range results {
		byStrategy[r.StrategyID] = append(byStrategy[r.StrategyID], r)
	}

	aggs := make([]*domain.StrategyAggregate, 0, len(byStrategy))
	for _, id := range orderedIDs(byStrategy, order) {
		aggs = append(aggs, ComputeAggregate(runID, id, byStrategy[id]))
	}

	Rank(aggs)
	return aggs, nil
}

// ComputeAndStore computes and persists a run's aggregates.
// Returns storage.ErrDuplicateKey if the run was already aggregated (append-only).
func (a *Aggregator) ComputeAndStore(ctx context.Context, runID string, order []string) ([]*domain.StrategyAggregate, error) {
	aggs, err := a.ComputeRun(ctx, runID, order)
	if err != nil {
		return nil, err
	}

	if err := a.aggStore.InsertBulk(ctx, aggs); err != nil {
		return nil, err
	}

	return aggs, nil
}

// orderedIDs lists the keys of byStrategy, those in order first.
func orderedIDs(byStrategy map[string][]*domain.Result, order []string) []string {
	ids := make([]string, 0, len(byStrategy))
	seen := make(map[string]struct{}, len(byStrategy))

	for _, id := range order {
		if _, ok := byStrategy[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	var rest []string
	for id := range byStrategy {
		if _, ok := seen[id]; !ok {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)

	return append(ids, rest...)
}
