package replay

import (
	"context"

	"exit-strategy-lab/internal/domain"
	"exit-strategy-lab/internal/storage"
)

// Runner loads stored bars for replay.
type Runner struct {
	barStore storage.BarStore
}

// NewRunner creates a new replay runner.
func NewRunner(barStore storage.BarStore) *Runner {
	return &Runner{barStore: barStore}
}

// Load returns the stored series for a pool, verified for ordering.
func (r *Runner) Load(ctx context.Context, network, pool string) (domain.BarSeries, error) {
	if err := ctx.Err(); err != nil {
		return domain.BarSeries{}, err
	}
	series, err := r.barStore.GetSeries(ctx, network, pool)
	if err != nil {
		return domain.BarSeries{}, err
	}
	if err := CheckOrdering(series.Bars); err != nil {
		return domain.BarSeries{}, err
	}
	return series, nil
}
