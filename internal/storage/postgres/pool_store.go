package postgres

import (
	"context"
	"fmt"
	"time"

	"exit-strategy-lab/internal/domain"
	"exit-strategy-lab/internal/storage"
)

// PoolStore implements storage.PoolStore using PostgreSQL.
type PoolStore struct {
	pool *Pool
}

// NewPoolStore creates a new PoolStore.
func NewPoolStore(pool *Pool) *PoolStore {
	return &PoolStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PoolStore = (*PoolStore)(nil)

// Get returns the pool for a token. Returns ErrNotFound if none is stored.
func (s *PoolStore) Get(ctx context.Context, token string) (_ *domain.Pool, err error) {
	defer observe("get_pool", time.Now(), &err)

	query := `
		SELECT token, network, address, discovered_at
		FROM token_pools
		WHERE token = $1
	`

	var p domain.Pool
	err = s.pool.QueryRow(ctx, query, token).Scan(&p.Token, &p.Network, &p.Address, &p.DiscoveredAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get pool: %w", err)
	}
	return &p, nil
}

// Put stores the pool for a token. Returns ErrDuplicateKey if one exists.
func (s *PoolStore) Put(ctx context.Context, p *domain.Pool) (err error) {
	defer observe("put_pool", time.Now(), &err)

	if p == nil || p.Token == "" || p.Address == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO token_pools (token, network, address, discovered_at)
		VALUES ($1, $2, $3, $4)
	`

	if _, err := s.pool.Exec(ctx, query, p.Token, p.Network, p.Address, p.DiscoveredAt); err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("put pool: %w", err)
	}
	return nil
}
