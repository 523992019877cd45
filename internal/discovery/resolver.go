// Package discovery finds the trading pool for a token across provider networks.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"exit-strategy-lab/internal/domain"
	"exit-strategy-lab/internal/gecko"
	"exit-strategy-lab/internal/mint"
	"exit-strategy-lab/internal/storage"
)

// DefaultNetworks is the discovery order when none is configured.
var DefaultNetworks = []string{"solana", "bsc", "eth", "base"}

// PoolLister lists pools for a token on one network.
type PoolLister interface {
	TokenPools(ctx context.Context, network, token string) ([]string, error)
}

// PoolResolver maps tokens to pools, consulting a store before the provider.
type PoolResolver struct {
	client   PoolLister
	store    storage.PoolStore
	networks []string
	now      func() time.Time
	logger   *zap.Logger

	mu   sync.Mutex
	seen map[string]domain.Pool // token -> pool resolved in this process
}

// ResolverOptions configures a PoolResolver.
type ResolverOptions struct {
	Client   PoolLister
	Store    storage.PoolStore // optional
	Networks []string          // empty means DefaultNetworks
	Now      func() time.Time
	Logger   *zap.Logger
}

// NewPoolResolver creates a resolver.
func NewPoolResolver(opts ResolverOptions) *PoolResolver {
	networks := opts.Networks
	if len(networks) == 0 {
		networks = DefaultNetworks
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PoolResolver{
		client:   opts.Client,
		store:    opts.Store,
		networks: networks,
		now:      now,
		logger:   logger,
		seen:     make(map[string]domain.Pool),
	}
}

// Resolve returns the pool for token. The first pool of the first network
// that lists any wins and is stored. Returns gecko.ErrNoPools if no network
// has one.
func (r *PoolResolver) Resolve(ctx context.Context, token string) (domain.Pool, error) {
	token = mint.Canonical(token)

	r.mu.Lock()
	if p, ok := r.seen[token]; ok {
		r.mu.Unlock()
		return p, nil
	}
	r.mu.Unlock()

	if r.store != nil {
		p, err := r.store.Get(ctx, token)
		if err == nil {
			r.remember(*p)
			return *p, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return domain.Pool{}, fmt.Errorf("read pool cache: %w", err)
		}
	}

	kind := mint.Classify(token)
	if kind == mint.KindSolana && !mint.OnCurve(token) {
		r.logger.Debug("token address is off curve", zap.String("token", token))
	}

	for _, network := range mint.NetworkOrder(token, r.networks) {
		pools, err := r.client.TokenPools(ctx, network, token)
		if errors.Is(err, gecko.ErrNoPools) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return domain.Pool{}, ctx.Err()
			}
			r.logger.Warn("pool lookup failed",
				zap.String("token", token),
				zap.String("network", network),
				zap.Error(err),
			)
			continue
		}

		p := domain.Pool{
			Token:        token,
			Network:      network,
			Address:      pools[0],
			DiscoveredAt: r.now().Unix(),
		}
		if err := r.save(ctx, &p); err != nil {
			return domain.Pool{}, err
		}
		r.logger.Info("pool resolved",
			zap.String("token", token),
			zap.String("network", network),
			zap.String("pool", p.Address),
			zap.Stringer("kind", kind),
		)
		return p, nil
	}

	return domain.Pool{}, fmt.Errorf("%w: %s", gecko.ErrNoPools, token)
}

func (r *PoolResolver) save(ctx context.Context, p *domain.Pool) error {
	if r.store != nil {
		err := r.store.Put(ctx, p)
		if errors.Is(err, storage.ErrDuplicateKey) {
			// Another process stored it first; theirs wins.
			stored, getErr := r.store.Get(ctx, p.Token)
			if getErr != nil {
				return fmt.Errorf("read pool cache: %w", getErr)
			}
			*p = *stored
		} else if err != nil {
			return fmt.Errorf("write pool cache: %w", err)
		}
	}
	r.remember(*p)
	return nil
}

func (r *PoolResolver) remember(p domain.Pool) {
	r.mu.Lock()
	r.seen[p.Token] = p
	r.mu.Unlock()
}
