package ingestion

import (
	"context"

	"exit-strategy-lab/internal/domain"
	"exit-strategy-lab/internal/normalization"
)

// BarSource pages minute bars for one pool back to a cutoff.
type BarSource interface {
	FetchSince(ctx context.Context, network, pool string, cutoff int64, maxPages int) ([]normalization.RawBar, error)
}

// PoolFinder maps a token to its trading pool.
type PoolFinder interface {
	Resolve(ctx context.Context, token string) (domain.Pool, error)
}

// SeriesCache is a read-through cache of built series.
type SeriesCache interface {
	Get(network, pool string) (domain.BarSeries, bool)
	Put(series domain.BarSeries) error
}
