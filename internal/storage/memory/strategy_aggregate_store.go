package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"exit-strategy-lab/internal/domain"
	"exit-strategy-lab/internal/storage"
)

// StrategyAggregateStore is an in-memory implementation of storage.AggregateStore.
type StrategyAggregateStore struct {
	mu   sync.RWMutex
	data map[string]*domain.StrategyAggregate // keyed by (run_id, strategy_id)
}

// NewStrategyAggregateStore creates a new in-memory strategy aggregate store.
func NewStrategyAggregateStore() *StrategyAggregateStore {
	return &StrategyAggregateStore{
		data: make(map[string]*domain.StrategyAggregate),
	}
}

// aggregateKey generates a unique key for an aggregate.
func aggregateKey(runID, strategyID string) string {
	return fmt.Sprintf("%s|%s", runID, strategyID)
}

// InsertBulk adds multiple aggregates atomically. Fails entire batch on any duplicate.
func (s *StrategyAggregateStore) InsertBulk(_ context.Context, aggregates []*domain.StrategyAggregate) error {
	if len(aggregates) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(aggregates))

	// First pass: check for duplicates (existing + intra-batch)
	for _, a := range aggregates {
		if a == nil || a.RunID == "" || a.StrategyID == "" {
			return storage.ErrInvalidInput
		}
		key := aggregateKey(a.RunID, a.StrategyID)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for _, a := range aggregates {
		s.data[aggregateKey(a.RunID, a.StrategyID)] = copyAggregate(a)
	}

	return nil
}

// GetByKey retrieves an aggregate by (run_id, strategy_id). Returns ErrNotFound if not exists.
func (s *StrategyAggregateStore) GetByKey(_ context.Context, runID, strategyID string) (*domain.StrategyAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.data[aggregateKey(runID, strategyID)]
	if !exists {
		return nil, storage.ErrNotFound
	}

	return copyAggregate(a), nil
}

// GetByRun retrieves a run's aggregates ordered by rank, then strategy ID.
func (s *StrategyAggregateStore) GetByRun(_ context.Context, runID string) ([]*domain.StrategyAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.StrategyAggregate
	for _, a := range s.data {
		if a.RunID == runID {
			result = append(result, copyAggregate(a))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Rank != result[j].Rank {
			return result[i].Rank < result[j].Rank
		}
		return result[i].StrategyID < result[j].StrategyID
	})

	return result, nil
}

func copyAggregate(a *domain.StrategyAggregate) *domain.StrategyAggregate {
	c := *a
	if a.ExitCounts != nil {
		c.ExitCounts = make(map[domain.ExitReason]int, len(a.ExitCounts))
		for k, v := range a.ExitCounts {
			c.ExitCounts[k] = v
		}
	}
	return &c
}

var _ storage.AggregateStore = (*StrategyAggregateStore)(nil)
