// Package app wires configuration into the stores, clients and builders the
// commands share.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"exit-strategy-lab/internal/config"
	"exit-strategy-lab/internal/storage"
	chstore "exit-strategy-lab/internal/storage/clickhouse"
	"exit-strategy-lab/internal/storage/memory"
	"exit-strategy-lab/internal/storage/migrations"
	pgstore "exit-strategy-lab/internal/storage/postgres"
)

// Stores holds every store a command may need. Runs, results and pools live
// in Postgres when a DSN is configured; bars and aggregates in ClickHouse.
// Anything without a DSN falls back to memory.
type Stores struct {
	Runs       storage.RunStore
	Results    storage.ResultStore
	Pools      storage.PoolStore
	Bars       storage.BarStore
	Aggregates storage.AggregateStore

	Postgres   bool
	ClickHouse bool

	closers []func()
}

// OpenStores connects the configured databases. With migrate set the embedded
// schema is applied first.
func OpenStores(ctx context.Context, cfg *config.Config, migrate bool, logger *zap.Logger) (*Stores, error) {
	s := &Stores{}

	if cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		s.closers = append(s.closers, pool.Close)
		if migrate {
			if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
				s.Close()
				return nil, fmt.Errorf("postgres migrations: %w", err)
			}
		}
		s.Runs = pgstore.NewRunStore(pool)
		s.Results = pgstore.NewResultStore(pool)
		s.Pools = pgstore.NewPoolStore(pool)
		s.Postgres = true
		logger.Info("using postgres", zap.Bool("migrated", migrate))
	} else {
		s.Runs = memory.NewRunStore()
		s.Results = memory.NewResultStore()
		s.Pools = memory.NewPoolStore()
	}

	if cfg.ClickHouseDSN != "" {
		var (
			conn *chstore.Conn
			err  error
		)
		if migrate {
			conn, err = migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		} else {
			conn, err = chstore.NewConn(ctx, cfg.ClickHouseDSN)
		}
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		s.closers = append(s.closers, func() { _ = conn.Close() })
		s.Bars = chstore.NewBarStore(conn)
		s.Aggregates = chstore.NewStrategyAggregateStore(conn)
		s.ClickHouse = true
		logger.Info("using clickhouse", zap.Bool("migrated", migrate))
	} else {
		s.Bars = memory.NewBarStore()
		s.Aggregates = memory.NewStrategyAggregateStore()
	}

	return s, nil
}

// Persistent reports whether any store outlives the process.
func (s *Stores) Persistent() bool {
	return s.Postgres || s.ClickHouse
}

// Close releases connections in reverse order of opening.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
