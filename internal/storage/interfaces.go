package storage

import (
	"context"

	"exit-strategy-lab/internal/domain"
)

// BarStore provides access to minute bars keyed by (network, pool, timestamp).
type BarStore interface {
	// InsertNew stores bars whose minute is not yet present and returns how many
	// were written. Existing minutes keep their first-seen values.
	InsertNew(ctx context.Context, series domain.BarSeries) (int, error)

	// GetRange retrieves bars within [from, to] (inclusive), ordered by timestamp ASC.
	GetRange(ctx context.Context, network, pool string, from, to int64) ([]domain.Bar, error)

	// GetSeries retrieves every stored bar for a pool. Returns ErrNotFound if none.
	GetSeries(ctx context.Context, network, pool string) (domain.BarSeries, error)
}

// ResultStore provides access to simulated (signal, strategy) results.
type ResultStore interface {
	// Insert adds a new result. Returns ErrDuplicateKey if result_id exists.
	Insert(ctx context.Context, r *domain.Result) error

	// InsertBulk adds multiple results atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, results []*domain.Result) error

	// GetByID retrieves a result by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, resultID string) (*domain.Result, error)

	// GetByRun retrieves all results of a run ordered by (strategy_id, signal_index).
	GetByRun(ctx context.Context, runID string) ([]*domain.Result, error)

	// GetByRunAndStrategy retrieves one strategy's results ordered by signal_index.
	GetByRunAndStrategy(ctx context.Context, runID, strategyID string) ([]*domain.Result, error)
}

// AggregateStore provides access to per-strategy aggregates of a run.
type AggregateStore interface {
	// InsertBulk adds aggregates atomically. Returns ErrDuplicateKey if any
	// (run_id, strategy_id) exists.
	InsertBulk(ctx context.Context, aggregates []*domain.StrategyAggregate) error

	// GetByKey retrieves one aggregate. Returns ErrNotFound if not exists.
	GetByKey(ctx context.Context, runID, strategyID string) (*domain.StrategyAggregate, error)

	// GetByRun retrieves a run's aggregates ordered by rank ASC.
	GetByRun(ctx context.Context, runID string) ([]*domain.StrategyAggregate, error)
}

// RunStore provides access to sweep run records.
type RunStore interface {
	// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, run *domain.SweepRun) error

	// GetByID retrieves a run. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID string) (*domain.SweepRun, error)

	// List returns up to limit runs, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]*domain.SweepRun, error)
}

// PoolStore caches the pool chosen for a token.
// This lets repeated runs skip provider discovery.
type PoolStore interface {
	// Get returns the pool for a token. Returns ErrNotFound if none is stored.
	Get(ctx context.Context, token string) (*domain.Pool, error)

	// Put stores the pool for a token. Returns ErrDuplicateKey if one exists.
	Put(ctx context.Context, p *domain.Pool) error
}
