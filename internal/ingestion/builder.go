// Package ingestion turns a token into a normalized minute bar series.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"exit-strategy-lab/internal/domain"
	"exit-strategy-lab/internal/gecko"
	"exit-strategy-lab/internal/mint"
	"exit-strategy-lab/internal/normalization"
	"exit-strategy-lab/internal/observability"
	"exit-strategy-lab/internal/storage"
)

// ErrDataUnavailable is returned when no usable series can be built for a token.
// The cause is wrapped alongside it.
var ErrDataUnavailable = errors.New("data unavailable")

// Lookback windows accepted by the builder.
const (
	Lookback48h = 48 * time.Hour
	Lookback7d  = 7 * 24 * time.Hour
)

// SeriesBuilder resolves, fetches, normalizes and caches bar series.
type SeriesBuilder struct {
	pools    PoolFinder
	source   BarSource
	cache    SeriesCache
	store    storage.BarStore
	lookback time.Duration
	now      func() time.Time
	logger   *zap.Logger

	group singleflight.Group
}

// BuilderOptions configures a SeriesBuilder.
type BuilderOptions struct {
	Pools    PoolFinder
	Source   BarSource
	Cache    SeriesCache      // optional
	Store    storage.BarStore // optional; write-through and fallback
	Lookback time.Duration    // 0 means Lookback48h
	Now      func() time.Time
	Logger   *zap.Logger
}

// NewSeriesBuilder creates a builder.
func NewSeriesBuilder(opts BuilderOptions) *SeriesBuilder {
	lookback := opts.Lookback
	if lookback <= 0 {
		lookback = Lookback48h
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SeriesBuilder{
		pools:    opts.Pools,
		source:   opts.Source,
		cache:    opts.Cache,
		store:    opts.Store,
		lookback: lookback,
		now:      now,
		logger:   logger,
	}
}

// ParseLookback accepts "48h" or "7d".
func ParseLookback(s string) (time.Duration, error) {
	switch s {
	case "48h", "":
		return Lookback48h, nil
	case "7d":
		return Lookback7d, nil
	default:
		return 0, fmt.Errorf("unknown lookback %q (want 48h or 7d)", s)
	}
}

// Build returns the series for token. Concurrent calls for the same token
// share one fetch.
func (b *SeriesBuilder) Build(ctx context.Context, token string) (domain.BarSeries, error) {
	token = mint.Canonical(token)
	v, err, _ := b.group.Do(token, func() (any, error) {
		return b.build(ctx, token)
	})
	if err != nil {
		return domain.BarSeries{}, err
	}
	return v.(domain.BarSeries), nil
}

func (b *SeriesBuilder) build(ctx context.Context, token string) (domain.BarSeries, error) {
	pool, err := b.pools.Resolve(ctx, token)
	if err != nil {
		return domain.BarSeries{}, fmt.Errorf("%w: resolve pool for %s: %w", ErrDataUnavailable, token, err)
	}

	now := b.now()
	if b.cache != nil {
		// A cached series can hold bars older than the lookback when the
		// cache never expires; an entry with nothing left counts as a miss.
		series, ok := b.cache.Get(pool.Network, pool.Address)
		if ok {
			series = normalization.WithinLookback(series, now, b.lookback)
			ok = series.Len() > 0
		}
		observability.RecordCacheLookup(ok)
		if ok {
			b.logger.Debug("bar cache hit",
				zap.String("token", token),
				zap.String("pool", pool.Address),
				zap.Int("bars", series.Len()),
			)
			return series, nil
		}
	}

	series, fetchErr := b.fetch(ctx, pool, now)
	if fetchErr != nil {
		if ctx.Err() != nil {
			return domain.BarSeries{}, ctx.Err()
		}
		stored, ok := b.fromStore(ctx, pool, now)
		if !ok {
			return domain.BarSeries{}, fmt.Errorf("%w: %s: %w", ErrDataUnavailable, token, fetchErr)
		}
		b.logger.Warn("provider failed, using stored bars",
			zap.String("token", token),
			zap.String("pool", pool.Address),
			zap.Int("bars", stored.Len()),
			zap.Error(fetchErr),
		)
		return stored, nil
	}

	if b.cache != nil {
		if err := b.cache.Put(series); err != nil {
			b.logger.Warn("bar cache put failed", zap.String("pool", pool.Address), zap.Error(err))
		}
	}
	if b.store != nil {
		inserted, err := b.store.InsertNew(ctx, series)
		if err != nil {
			b.logger.Warn("bar store write failed", zap.String("pool", pool.Address), zap.Error(err))
		} else {
			b.logger.Debug("bars stored", zap.String("pool", pool.Address), zap.Int("inserted", inserted))
		}
	}
	return series, nil
}

func (b *SeriesBuilder) fetch(ctx context.Context, pool domain.Pool, now time.Time) (domain.BarSeries, error) {
	cutoff := now.Add(-b.lookback).Unix()
	raws, err := b.source.FetchSince(ctx, pool.Network, pool.Address, cutoff, gecko.PagesFor(b.lookback))
	if err != nil {
		return domain.BarSeries{}, err
	}

	series, stats, err := normalization.NormalizeBars(pool.Network, pool.Address, raws)
	if err != nil {
		return domain.BarSeries{}, err
	}
	if stats.Malformed+stats.Invalid > 0 {
		b.logger.Debug("dropped provider bars",
			zap.String("pool", pool.Address),
			zap.Int("malformed", stats.Malformed),
			zap.Int("invalid", stats.Invalid),
			zap.Int("duplicates", stats.Duplicates),
		)
	}

	series = normalization.WithinLookback(series, now, b.lookback)
	if series.Len() == 0 {
		return domain.BarSeries{}, normalization.ErrNoValidBars
	}
	return series, nil
}

func (b *SeriesBuilder) fromStore(ctx context.Context, pool domain.Pool, now time.Time) (domain.BarSeries, bool) {
	if b.store == nil {
		return domain.BarSeries{}, false
	}
	series, err := b.store.GetSeries(ctx, pool.Network, pool.Address)
	if err != nil {
		return domain.BarSeries{}, false
	}
	series = normalization.WithinLookback(series, now, b.lookback)
	return series, series.Len() > 0
}

// BuildAll builds the series of every distinct token with at most workers
// concurrent builds. Tokens that fail are reported in errs and absent from
// series. Only context cancellation aborts the whole call.
func (b *SeriesBuilder) BuildAll(ctx context.Context, tokens []string, workers int) (map[string]domain.BarSeries, map[string]error, error) {
	if workers <= 0 {
		workers = 1
	}

	distinct := make([]string, 0, len(tokens))
	seen := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		t = mint.Canonical(t)
		if !seen[t] {
			seen[t] = true
			distinct = append(distinct, t)
		}
	}

	var mu sync.Mutex
	series := make(map[string]domain.BarSeries, len(distinct))
	errs := make(map[string]error)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, token := range distinct {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, err := b.Build(gctx, token)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[token] = err
				return nil
			}
			series[token] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return series, errs, nil
}
