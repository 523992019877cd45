package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"exit-strategy-lab/internal/domain"
	"exit-strategy-lab/internal/storage"
)

// BarStore is an in-memory implementation of storage.BarStore.
type BarStore struct {
	mu   sync.RWMutex
	data map[string]map[int64]domain.Bar // keyed by (network, pool), then timestamp
}

// NewBarStore creates a new in-memory bar store.
func NewBarStore() *BarStore {
	return &BarStore{
		data: make(map[string]map[int64]domain.Bar),
	}
}

// seriesKey generates a unique key for a pool's series.
func seriesKey(network, pool string) string {
	return fmt.Sprintf("%s|%s", network, pool)
}

// InsertNew stores bars for minutes not yet present. Existing minutes are kept.
func (s *BarStore) InsertNew(_ context.Context, series domain.BarSeries) (int, error) {
	if series.Network == "" || series.Pool == "" {
		return 0, storage.ErrInvalidInput
	}
	if len(series.Bars) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := seriesKey(series.Network, series.Pool)
	bars, ok := s.data[key]
	if !ok {
		bars = make(map[int64]domain.Bar, len(series.Bars))
		s.data[key] = bars
	}

	inserted := 0
	for _, b := range series.Bars {
		if _, exists := bars[b.Timestamp]; exists {
			continue
		}
		bars[b.Timestamp] = copyBar(b)
		inserted++
	}

	return inserted, nil
}

// GetRange retrieves bars within [from, to] (inclusive), ordered by timestamp ASC.
func (s *BarStore) GetRange(_ context.Context, network, pool string, from, to int64) ([]domain.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Bar
	for ts, b := range s.data[seriesKey(network, pool)] {
		if ts >= from && ts <= to {
			result = append(result, copyBar(b))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp < result[j].Timestamp
	})

	return result, nil
}

// GetSeries retrieves every bar for a pool. Returns ErrNotFound if none.
func (s *BarStore) GetSeries(_ context.Context, network, pool string) (domain.BarSeries, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bars := s.data[seriesKey(network, pool)]
	if len(bars) == 0 {
		return domain.BarSeries{}, storage.ErrNotFound
	}

	result := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		result = append(result, copyBar(b))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp < result[j].Timestamp
	})

	return domain.BarSeries{Network: network, Pool: pool, Bars: result}, nil
}

// copyBar detaches the optional volume pointer.
func copyBar(b domain.Bar) domain.Bar {
	if b.Volume != nil {
		v := *b.Volume
		b.Volume = &v
	}
	return b
}

var _ storage.BarStore = (*BarStore)(nil)
