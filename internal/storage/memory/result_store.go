package memory

import (
	"context"
	"sort"
	"sync"

	"exit-strategy-lab/internal/domain"
	"exit-strategy-lab/internal/storage"
)

// ResultStore is an in-memory implementation of storage.ResultStore.
type ResultStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Result // keyed by result_id
}

// NewResultStore creates a new in-memory result store.
func NewResultStore() *ResultStore {
	return &ResultStore{
		data: make(map[string]*domain.Result),
	}
}

// Insert adds a new result. Returns ErrDuplicateKey if result_id exists.
func (s *ResultStore) Insert(_ context.Context, r *domain.Result) error {
	if r == nil || r.ResultID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.ResultID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[r.ResultID] = copyResult(r)
	return nil
}

// InsertBulk adds multiple results atomically. Fails entire batch on any duplicate.
func (s *ResultStore) InsertBulk(_ context.Context, results []*domain.Result) error {
	if len(results) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(results))

	for _, r := range results {
		if r == nil || r.ResultID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[r.ResultID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[r.ResultID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[r.ResultID] = struct{}{}
	}

	for _, r := range results {
		s.data[r.ResultID] = copyResult(r)
	}

	return nil
}

// GetByID retrieves a result by its ID. Returns ErrNotFound if not exists.
func (s *ResultStore) GetByID(_ context.Context, resultID string) (*domain.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[resultID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	return copyResult(r), nil
}

// GetByRun retrieves all results of a run ordered by (strategy_id, signal_index).
func (s *ResultStore) GetByRun(_ context.Context, runID string) ([]*domain.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Result
	for _, r := range s.data {
		if r.RunID == runID {
			result = append(result, copyResult(r))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].StrategyID != result[j].StrategyID {
			return result[i].StrategyID < result[j].StrategyID
		}
		return result[i].SignalIndex < result[j].SignalIndex
	})

	return result, nil
}

// GetByRunAndStrategy retrieves one strategy's results ordered by signal_index.
func (s *ResultStore) GetByRunAndStrategy(_ context.Context, runID, strategyID string) ([]*domain.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Result
	for _, r := range s.data {
		if r.RunID == runID && r.StrategyID == strategyID {
			result = append(result, copyResult(r))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].SignalIndex < result[j].SignalIndex
	})

	return result, nil
}

// copyResult returns a deep copy including the fill log.
func copyResult(r *domain.Result) *domain.Result {
	c := *r
	if r.Fills != nil {
		c.Fills = make([]domain.Fill, len(r.Fills))
		copy(c.Fills, r.Fills)
	}
	return &c
}

var _ storage.ResultStore = (*ResultStore)(nil)
