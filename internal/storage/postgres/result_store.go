package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"exit-strategy-lab/internal/domain"
	"exit-strategy-lab/internal/storage"
)

// ResultStore implements storage.ResultStore using PostgreSQL.
type ResultStore struct {
	pool *Pool
}

// NewResultStore creates a new ResultStore.
func NewResultStore(pool *Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ResultStore = (*ResultStore)(nil)

const resultColumns = `
	result_id, run_id, token, strategy_id, signal_index,
	entry_timestamp, raw_entry, paid_entry, notional, quantity, buy_fee,
	proceeds, sell_fees, pnl_usd, return_pct, hold_minutes,
	max_favorable_multiple, exit_reason, exit_timestamp, fills
`

const insertResultQuery = `
	INSERT INTO sweep_results (` + resultColumns + `) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9, $10, $11,
		$12, $13, $14, $15, $16,
		$17, $18, $19, $20
	)
`

// fillRow is the JSONB shape of one fill.
type fillRow struct {
	Kind      string  `json:"kind"`
	Level     int     `json:"level,omitempty"`
	Timestamp int64   `json:"ts"`
	RawPrice  float64 `json:"raw_price"`
	Quantity  float64 `json:"qty"`
	Proceeds  float64 `json:"proceeds"`
	Fee       float64 `json:"fee"`
}

func encodeFills(fills []domain.Fill) ([]byte, error) {
	rows := make([]fillRow, len(fills))
	for i, f := range fills {
		rows[i] = fillRow{
			Kind:      string(f.Kind),
			Level:     f.Level,
			Timestamp: f.Timestamp,
			RawPrice:  f.RawPrice,
			Quantity:  f.Quantity,
			Proceeds:  f.Proceeds,
			Fee:       f.Fee,
		}
	}
	return json.Marshal(rows)
}

func decodeFills(data []byte) ([]domain.Fill, error) {
	var rows []fillRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	fills := make([]domain.Fill, len(rows))
	for i, r := range rows {
		fills[i] = domain.Fill{
			Kind:      domain.FillKind(r.Kind),
			Level:     r.Level,
			Timestamp: r.Timestamp,
			RawPrice:  r.RawPrice,
			Quantity:  r.Quantity,
			Proceeds:  r.Proceeds,
			Fee:       r.Fee,
		}
	}
	return fills, nil
}

func resultArgs(r *domain.Result) ([]any, error) {
	fills, err := encodeFills(r.Fills)
	if err != nil {
		return nil, fmt.Errorf("encode fills: %w", err)
	}
	return []any{
		r.ResultID, r.RunID, r.Token, r.StrategyID, r.SignalIndex,
		r.EntryTimestamp, r.RawEntry, r.PaidEntry, r.Notional, r.Quantity, r.BuyFee,
		r.Proceeds, r.SellFees, r.PnLUSD, r.ReturnPct, r.HoldMinutes,
		r.MaxFavorableMultiple, string(r.ExitReason), r.ExitTimestamp, fills,
	}, nil
}

// Insert adds a new result. Returns ErrDuplicateKey if result_id exists.
func (s *ResultStore) Insert(ctx context.Context, r *domain.Result) (err error) {
	defer observe("insert_result", time.Now(), &err)

	if r == nil || r.ResultID == "" {
		return storage.ErrInvalidInput
	}

	args, err := resultArgs(r)
	if err != nil {
		return err
	}

	if _, err := s.pool.Exec(ctx, insertResultQuery, args...); err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// InsertBulk adds multiple results atomically. Fails entire batch on any duplicate.
func (s *ResultStore) InsertBulk(ctx context.Context, results []*domain.Result) (err error) {
	defer observe("insert_results", time.Now(), &err)

	if len(results) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, r := range results {
		if r == nil || r.ResultID == "" {
			return storage.ErrInvalidInput
		}
		args, err := resultArgs(r)
		if err != nil {
			return err
		}
		batch.Queue(insertResultQuery, args...)
	}

	br := tx.SendBatch(ctx, batch)
	for range results {
		if _, err := br.Exec(); err != nil {
			br.Close()
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert result in bulk: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByID retrieves a result by its ID. Returns ErrNotFound if not exists.
func (s *ResultStore) GetByID(ctx context.Context, resultID string) (_ *domain.Result, err error) {
	defer observe("get_result", time.Now(), &err)

	query := `SELECT ` + resultColumns + ` FROM sweep_results WHERE result_id = $1`

	r, err := scanResult(s.pool.QueryRow(ctx, query, resultID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get result by id: %w", err)
	}
	return r, nil
}

// GetByRun retrieves all results of a run ordered by (strategy_id, signal_index).
func (s *ResultStore) GetByRun(ctx context.Context, runID string) (_ []*domain.Result, err error) {
	defer observe("get_results_by_run", time.Now(), &err)

	query := `SELECT ` + resultColumns + ` FROM sweep_results
		WHERE run_id = $1
		ORDER BY strategy_id ASC, signal_index ASC, result_id ASC`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get results by run: %w", err)
	}
	defer rows.Close()

	return scanResults(rows)
}

// GetByRunAndStrategy retrieves one strategy's results ordered by signal_index.
func (s *ResultStore) GetByRunAndStrategy(ctx context.Context, runID, strategyID string) (_ []*domain.Result, err error) {
	defer observe("get_results_by_strategy", time.Now(), &err)

	query := `SELECT ` + resultColumns + ` FROM sweep_results
		WHERE run_id = $1 AND strategy_id = $2
		ORDER BY signal_index ASC, result_id ASC`

	rows, err := s.pool.Query(ctx, query, runID, strategyID)
	if err != nil {
		return nil, fmt.Errorf("get results by run and strategy: %w", err)
	}
	defer rows.Close()

	return scanResults(rows)
}

// scanResult scans a single row into a Result.
func scanResult(row pgx.Row) (*domain.Result, error) {
	var (
		r      domain.Result
		reason string
		fills  []byte
	)

	err := row.Scan(
		&r.ResultID, &r.RunID, &r.Token, &r.StrategyID, &r.SignalIndex,
		&r.EntryTimestamp, &r.RawEntry, &r.PaidEntry, &r.Notional, &r.Quantity, &r.BuyFee,
		&r.Proceeds, &r.SellFees, &r.PnLUSD, &r.ReturnPct, &r.HoldMinutes,
		&r.MaxFavorableMultiple, &reason, &r.ExitTimestamp, &fills,
	)
	if err != nil {
		return nil, err
	}

	r.ExitReason = domain.ExitReason(reason)
	if r.Fills, err = decodeFills(fills); err != nil {
		return nil, fmt.Errorf("decode fills: %w", err)
	}
	return &r, nil
}

// scanResults scans multiple rows into a slice of Result.
func scanResults(rows pgx.Rows) ([]*domain.Result, error) {
	var results []*domain.Result

	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate result rows: %w", err)
	}

	return results, nil
}
