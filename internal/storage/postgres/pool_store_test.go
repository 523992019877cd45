package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exit-strategy-lab/internal/domain"
	"exit-strategy-lab/internal/storage"
)

func TestPoolStore_PutAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPoolStore(pool)

	p := &domain.Pool{
		Token:        "So11111111111111111111111111111111111111112",
		Network:      "solana",
		Address:      "58oQChx4yWmvKdwLLZzBi4ChoCc2fqCUWBkwMihLYQo2",
		DiscoveredAt: 1700000000,
	}
	require.NoError(t, store.Put(ctx, p))

	got, err := store.Get(ctx, p.Token)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	assert.ErrorIs(t, store.Put(ctx, p), storage.ErrDuplicateKey)
}

func TestPoolStore_GetNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := NewPoolStore(pool).Get(context.Background(), "unknown")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPoolStore_PutInvalid(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	err := NewPoolStore(pool).Put(context.Background(), &domain.Pool{Token: "t"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
