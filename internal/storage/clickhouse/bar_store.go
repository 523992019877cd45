package clickhouse

import (
	"context"
	"fmt"
	"time"

	"exit-strategy-lab/internal/domain"
	"exit-strategy-lab/internal/storage"
)

// BarStore implements storage.BarStore using ClickHouse.
type BarStore struct {
	conn *Conn
}

// NewBarStore creates a new BarStore.
func NewBarStore(conn *Conn) *BarStore {
	return &BarStore{conn: conn}
}

// Compile-time interface check.
var _ storage.BarStore = (*BarStore)(nil)

// InsertNew stores bars whose minute is not yet present for the pool.
// Existing minutes keep their first-seen values.
func (s *BarStore) InsertNew(ctx context.Context, series domain.BarSeries) (_ int, err error) {
	defer observe("insert_bars", time.Now(), &err)

	if series.Network == "" || series.Pool == "" {
		return 0, storage.ErrInvalidInput
	}
	if len(series.Bars) == 0 {
		return 0, nil
	}

	from, to := series.Bars[0].Timestamp, series.Bars[0].Timestamp
	for _, b := range series.Bars {
		from = min(from, b.Timestamp)
		to = max(to, b.Timestamp)
	}

	existing, err := s.timestamps(ctx, series.Network, series.Pool, from, to)
	if err != nil {
		return 0, fmt.Errorf("check existing bars: %w", err)
	}

	var fresh []domain.Bar
	for _, b := range series.Bars {
		if _, ok := existing[b.Timestamp]; ok {
			continue
		}
		existing[b.Timestamp] = struct{}{}
		fresh = append(fresh, b)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO bars (
			network, pool, timestamp, open, high, low, close, volume
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare batch: %w", err)
	}

	for _, b := range fresh {
		err = batch.Append(
			series.Network, series.Pool, b.Timestamp,
			b.Open, b.High, b.Low, b.Close, b.Volume,
		)
		if err != nil {
			return 0, fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("send batch: %w", err)
	}

	return len(fresh), nil
}

// GetRange retrieves bars within [from, to] (inclusive), ordered by timestamp ASC.
func (s *BarStore) GetRange(ctx context.Context, network, pool string, from, to int64) (_ []domain.Bar, err error) {
	defer observe("get_bar_range", time.Now(), &err)

	query := `
		SELECT timestamp, open, high, low, close, volume
		FROM bars FINAL
		WHERE network = ? AND pool = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`

	rows, err := s.conn.Query(ctx, query, network, pool, from, to)
	if err != nil {
		return nil, fmt.Errorf("query bar range: %w", err)
	}
	defer rows.Close()

	return scanBars(rows)
}

// GetSeries retrieves every stored bar for a pool. Returns ErrNotFound if none.
func (s *BarStore) GetSeries(ctx context.Context, network, pool string) (_ domain.BarSeries, err error) {
	defer observe("get_series", time.Now(), &err)

	query := `
		SELECT timestamp, open, high, low, close, volume
		FROM bars FINAL
		WHERE network = ? AND pool = ?
		ORDER BY timestamp ASC
	`

	rows, err := s.conn.Query(ctx, query, network, pool)
	if err != nil {
		return domain.BarSeries{}, fmt.Errorf("query bar series: %w", err)
	}
	defer rows.Close()

	bars, err := scanBars(rows)
	if err != nil {
		return domain.BarSeries{}, err
	}
	if len(bars) == 0 {
		return domain.BarSeries{}, storage.ErrNotFound
	}

	return domain.BarSeries{Network: network, Pool: pool, Bars: bars}, nil
}

// timestamps returns the stored minutes of a pool within [from, to].
func (s *BarStore) timestamps(ctx context.Context, network, pool string, from, to int64) (map[int64]struct{}, error) {
	query := `
		SELECT DISTINCT timestamp FROM bars
		WHERE network = ? AND pool = ? AND timestamp >= ? AND timestamp <= ?
	`

	rows, err := s.conn.Query(ctx, query, network, pool, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[int64]struct{})
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		seen[ts] = struct{}{}
	}
	return seen, rows.Err()
}

func scanBars(rows chRows) ([]domain.Bar, error) {
	var bars []domain.Bar

	for rows.Next() {
		var b domain.Bar
		if err := rows.Scan(&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar row: %w", err)
		}
		bars = append(bars, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bar rows: %w", err)
	}

	return bars, nil
}
