package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"exit-strategy-lab/internal/domain"
	"exit-strategy-lab/internal/storage"
)

// RunStore implements storage.RunStore using PostgreSQL.
type RunStore struct {
	pool *Pool
}

// NewRunStore creates a new RunStore.
func NewRunStore(pool *Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RunStore = (*RunStore)(nil)

const runColumns = `
	run_id, started_at, finished_at,
	slippage, slippage_mode, slippage_side, buy_fee, sell_fee, horizon,
	signals, matched, unmatched, unavailable, rejected, strategies, pairs, pair_errors
`

// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
func (s *RunStore) Insert(ctx context.Context, run *domain.SweepRun) (err error) {
	defer observe("insert_run", time.Now(), &err)

	if run == nil || run.RunID == "" {
		return storage.ErrInvalidInput
	}

	query := `INSERT INTO sweep_runs (` + runColumns + `) VALUES (
		$1, $2, $3,
		$4, $5, $6, $7, $8, $9,
		$10, $11, $12, $13, $14, $15, $16, $17
	)`

	_, err = s.pool.Exec(ctx, query,
		run.RunID, run.StartedAt.UTC(), run.FinishedAt.UTC(),
		run.Exec.Slippage, string(run.Exec.SlippageMode), string(run.Exec.SlippageSide),
		run.Exec.BuyFee, run.Exec.SellFee, run.Horizon,
		run.Signals, run.Matched, run.Unmatched, run.Unavailable, run.Rejected, run.Strategies, run.Pairs, run.PairErrors,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetByID retrieves a run. Returns ErrNotFound if not exists.
func (s *RunStore) GetByID(ctx context.Context, runID string) (_ *domain.SweepRun, err error) {
	defer observe("get_run", time.Now(), &err)

	query := `SELECT ` + runColumns + ` FROM sweep_runs WHERE run_id = $1`

	run, err := scanRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get run by id: %w", err)
	}
	return run, nil
}

// List returns up to limit runs, newest first. limit <= 0 means all.
func (s *RunStore) List(ctx context.Context, limit int) (_ []*domain.SweepRun, err error) {
	defer observe("list_runs", time.Now(), &err)

	query := `SELECT ` + runColumns + ` FROM sweep_runs ORDER BY started_at DESC, run_id ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.SweepRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (*domain.SweepRun, error) {
	var (
		run        domain.SweepRun
		mode, side string
	)

	err := row.Scan(
		&run.RunID, &run.StartedAt, &run.FinishedAt,
		&run.Exec.Slippage, &mode, &side, &run.Exec.BuyFee, &run.Exec.SellFee, &run.Horizon,
		&run.Signals, &run.Matched, &run.Unmatched, &run.Unavailable, &run.Rejected, &run.Strategies, &run.Pairs, &run.PairErrors,
	)
	if err != nil {
		return nil, err
	}

	run.Exec.SlippageMode = domain.SlippageMode(mode)
	run.Exec.SlippageSide = domain.SlippageSide(side)
	run.StartedAt = run.StartedAt.UTC()
	run.FinishedAt = run.FinishedAt.UTC()
	return &run, nil
}
