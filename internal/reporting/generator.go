package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"exit-strategy-lab/internal/storage"
)

// Generator builds reports from stored runs.
type Generator struct {
	runStore       storage.RunStore
	resultStore    storage.ResultStore
	aggregateStore storage.AggregateStore
	now            func() time.Time
}

// NewGenerator creates a report generator. resultStore may be nil to skip
// per-pair results.
func NewGenerator(runStore storage.RunStore, resultStore storage.ResultStore, aggStore storage.AggregateStore) *Generator {
	return &Generator{
		runStore:       runStore,
		resultStore:    resultStore,
		aggregateStore: aggStore,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets the clock stamped on generated reports.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate loads a run with its ranking and results.
func (g *Generator) Generate(ctx context.Context, runID string, topN int) (*Report, error) {
	run, err := g.runStore.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}

	aggs, err := g.aggregateStore.GetByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load aggregates: %w", err)
	}
	sort.SliceStable(aggs, func(i, j int) bool {
		ri, rj := aggs[i].Rank, aggs[j].Rank
		if (ri == 0) != (rj == 0) {
			return rj == 0
		}
		return ri < rj
	})

	r := &Report{
		GeneratedAt: g.now(),
		Run:         run,
		Ranking:     aggs,
		TopN:        topN,
	}

	if g.resultStore != nil {
		if r.Results, err = g.resultStore.GetByRun(ctx, runID); err != nil {
			return nil, fmt.Errorf("load results: %w", err)
		}
	}
	return r, nil
}
