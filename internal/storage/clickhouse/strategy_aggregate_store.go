package clickhouse

import (
	"context"
	"fmt"
	"time"

	"exit-strategy-lab/internal/domain"
	"exit-strategy-lab/internal/storage"
)

// StrategyAggregateStore implements storage.AggregateStore using ClickHouse.
type StrategyAggregateStore struct {
	conn *Conn
}

// NewStrategyAggregateStore creates a new StrategyAggregateStore.
func NewStrategyAggregateStore(conn *Conn) *StrategyAggregateStore {
	return &StrategyAggregateStore{conn: conn}
}

// Compile-time interface check.
var _ storage.AggregateStore = (*StrategyAggregateStore)(nil)

const aggregateColumns = `
	run_id, strategy_id, rank,
	trades, wins, losses, win_rate,
	total_pnl, mean_pnl, median_pnl, min_pnl, max_pnl, stddev_pnl,
	mean_return_pct, profit_factor, sharpe, max_drawdown,
	mean_hold_minutes, avg_mfe, exit_counts
`

// InsertBulk adds multiple aggregates atomically. Fails entire batch on any duplicate.
func (s *StrategyAggregateStore) InsertBulk(ctx context.Context, aggregates []*domain.StrategyAggregate) (err error) {
	defer observe("insert_aggregates", time.Now(), &err)

	if len(aggregates) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[string]struct{})
	for _, a := range aggregates {
		if a == nil || a.RunID == "" || a.StrategyID == "" {
			return storage.ErrInvalidInput
		}
		key := a.RunID + "|" + a.StrategyID
		if _, exists := seen[key]; exists {
			return storage.ErrDuplicateKey
		}
		seen[key] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, a := range aggregates {
		exists, err := s.exists(ctx, a.RunID, a.StrategyID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO strategy_aggregates (`+aggregateColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, a := range aggregates {
		err = batch.Append(
			a.RunID, a.StrategyID, uint32(a.Rank),
			uint32(a.Trades), uint32(a.Wins), uint32(a.Losses), a.WinRate,
			a.TotalPnL, a.MeanPnL, a.MedianPnL, a.MinPnL, a.MaxPnL, a.StddevPnL,
			a.MeanReturnPct, a.ProfitFactor, a.Sharpe, a.MaxDrawdown,
			a.MeanHoldMinutes, a.AvgMFE, encodeExitCounts(a.ExitCounts),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByKey retrieves one aggregate. Returns ErrNotFound if not exists.
func (s *StrategyAggregateStore) GetByKey(ctx context.Context, runID, strategyID string) (_ *domain.StrategyAggregate, err error) {
	defer observe("get_aggregate", time.Now(), &err)

	query := `SELECT ` + aggregateColumns + ` FROM strategy_aggregates FINAL
		WHERE run_id = ? AND strategy_id = ?
		LIMIT 1`

	rows, err := s.conn.Query(ctx, query, runID, strategyID)
	if err != nil {
		return nil, fmt.Errorf("query aggregate: %w", err)
	}
	defer rows.Close()

	aggs, err := scanStrategyAggregates(rows)
	if err != nil {
		return nil, err
	}
	if len(aggs) == 0 {
		return nil, storage.ErrNotFound
	}
	return aggs[0], nil
}

// GetByRun retrieves a run's aggregates ordered by rank ASC.
func (s *StrategyAggregateStore) GetByRun(ctx context.Context, runID string) (_ []*domain.StrategyAggregate, err error) {
	defer observe("get_aggregates_by_run", time.Now(), &err)

	query := `SELECT ` + aggregateColumns + ` FROM strategy_aggregates FINAL
		WHERE run_id = ?
		ORDER BY rank ASC, strategy_id ASC`

	rows, err := s.conn.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query by run: %w", err)
	}
	defer rows.Close()

	return scanStrategyAggregates(rows)
}

// exists checks if an aggregate with the given key exists.
func (s *StrategyAggregateStore) exists(ctx context.Context, runID, strategyID string) (bool, error) {
	query := `
		SELECT count(*) FROM strategy_aggregates FINAL
		WHERE run_id = ? AND strategy_id = ?
	`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, runID, strategyID).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func encodeExitCounts(counts map[domain.ExitReason]int) map[string]uint32 {
	out := make(map[string]uint32, len(counts))
	for reason, n := range counts {
		out[string(reason)] = uint32(n)
	}
	return out
}

// Rows interface for scanning
type chRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// scanStrategyAggregates scans multiple rows into a slice.
func scanStrategyAggregates(rows chRows) ([]*domain.StrategyAggregate, error) {
	var aggregates []*domain.StrategyAggregate

	for rows.Next() {
		var (
			a            domain.StrategyAggregate
			rank, trades uint32
			wins, losses uint32
			exitCounts   map[string]uint32
		)
		err := rows.Scan(
			&a.RunID, &a.StrategyID, &rank,
			&trades, &wins, &losses, &a.WinRate,
			&a.TotalPnL, &a.MeanPnL, &a.MedianPnL, &a.MinPnL, &a.MaxPnL, &a.StddevPnL,
			&a.MeanReturnPct, &a.ProfitFactor, &a.Sharpe, &a.MaxDrawdown,
			&a.MeanHoldMinutes, &a.AvgMFE, &exitCounts,
		)
		if err != nil {
			return nil, fmt.Errorf("scan aggregate row: %w", err)
		}

		a.Rank, a.Trades, a.Wins, a.Losses = int(rank), int(trades), int(wins), int(losses)
		a.ExitCounts = make(map[domain.ExitReason]int, len(exitCounts))
		for reason, n := range exitCounts {
			a.ExitCounts[domain.ExitReason(reason)] = int(n)
		}
		aggregates = append(aggregates, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregate rows: %w", err)
	}

	return aggregates, nil
}
