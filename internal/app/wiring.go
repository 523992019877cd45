package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"exit-strategy-lab/internal/barcache"
	"exit-strategy-lab/internal/config"
	"exit-strategy-lab/internal/discovery"
	"exit-strategy-lab/internal/gecko"
	"exit-strategy-lab/internal/ingestion"
	"exit-strategy-lab/internal/observability"
)

// ShutdownTimeout bounds the wait after the first interrupt.
const ShutdownTimeout = 30 * time.Second

// Pipeline bundles the market data path: provider client, pool resolver,
// on-disk cache and the series builder on top of them.
type Pipeline struct {
	Client   *gecko.Client
	Resolver *discovery.PoolResolver
	Cache    *barcache.Cache
	Builder  *ingestion.SeriesBuilder
}

// NewPipeline builds the market data path. An empty cache dir disables the
// on-disk cache.
func NewPipeline(cfg *config.Config, stores *Stores, logger *zap.Logger) (*Pipeline, error) {
	client := gecko.NewClient(cfg.GeckoURL, gecko.WithLogger(logger.Named("gecko")))
	resolver := discovery.NewPoolResolver(discovery.ResolverOptions{
		Client:   client,
		Store:    stores.Pools,
		Networks: cfg.Networks,
		Logger:   logger.Named("discovery"),
	})

	p := &Pipeline{Client: client, Resolver: resolver}
	opts := ingestion.BuilderOptions{
		Pools:    resolver,
		Source:   client,
		Store:    stores.Bars,
		Lookback: cfg.Lookback,
		Logger:   logger.Named("series"),
	}
	if cfg.CacheDir != "" {
		cache, err := barcache.Open(cfg.CacheDir, cfg.CacheTTL, nil)
		if err != nil {
			return nil, err
		}
		p.Cache = cache
		opts.Cache = cache
	}
	p.Builder = ingestion.NewSeriesBuilder(opts)
	return p, nil
}

// Close flushes the cache.
func (p *Pipeline) Close() error {
	if p.Cache == nil {
		return nil
	}
	return p.Cache.Close()
}

// ShutdownContext returns a context cancelled on SIGINT or SIGTERM. A second
// signal, or ShutdownTimeout after the first, exits the process. Call stop
// once the work has returned.
func ShutdownContext(logger *zap.Logger) (ctx context.Context, stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", zap.Stringer("signal", sig))
			cancel()
		case <-done:
			return
		}

		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing exit", zap.Stringer("signal", sig))
			os.Exit(1)
		case <-time.After(ShutdownTimeout):
			logger.Warn("graceful shutdown timed out, forcing exit", zap.Duration("timeout", ShutdownTimeout))
			os.Exit(1)
		case <-done:
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		close(done)
		cancel()
	}
}

// ServeMetrics exposes /metrics and /health on addr in the background.
// An empty addr does nothing.
func ServeMetrics(addr string, logger *zap.Logger) {
	if addr == "" {
		return
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		logger.Info("metrics server listening", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
}
