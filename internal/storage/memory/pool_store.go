package memory

import (
	"context"
	"sync"

	"exit-strategy-lab/internal/domain"
	"exit-strategy-lab/internal/storage"
)

// PoolStore is an in-memory implementation of storage.PoolStore.
type PoolStore struct {
	mu    sync.RWMutex
	pools map[string]domain.Pool // keyed by token
}

// NewPoolStore creates a new in-memory pool store.
func NewPoolStore() *PoolStore {
	return &PoolStore{
		pools: make(map[string]domain.Pool),
	}
}

// Get returns the pool for a token.
func (s *PoolStore) Get(_ context.Context, token string) (*domain.Pool, error) {
	if token == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pools[token]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &p, nil
}

// Put stores the pool for a token.
func (s *PoolStore) Put(_ context.Context, p *domain.Pool) error {
	if p == nil || p.Token == "" || p.Network == "" || p.Address == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pools[p.Token]; exists {
		return storage.ErrDuplicateKey
	}
	s.pools[p.Token] = *p
	return nil
}

var _ storage.PoolStore = (*PoolStore)(nil)
