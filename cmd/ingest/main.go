// Package main prefetches minute bars for a batch file into the bar cache
// and, when configured, ClickHouse.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"exit-strategy-lab/internal/app"
	"exit-strategy-lab/internal/batch"
	"exit-strategy-lab/internal/config"
	"exit-strategy-lab/internal/ingestion"
	"exit-strategy-lab/internal/mint"
)

func main() {
	// Parse flags
	batchFile := flag.String("batch", "", "Batch file whose tokens are fetched")
	tokens := flag.String("tokens", "", "Comma-separated token addresses (in addition to --batch)")
	envFile := flag.String("env", "", "Env file (default .env when present)")
	lookback := flag.String("lookback", "", "Bar lookback: 48h or 7d (empty = TB_LOOKBACK)")
	workers := flag.Int("workers", 0, "Concurrent tokens (0 = TB_WORKERS)")
	interval := flag.Duration("interval", 0, "Refetch interval; 0 fetches once and exits")
	logLevel := flag.String("log-level", "", "Log level (empty = TB_LOG_LEVEL)")
	dev := flag.Bool("dev", false, "Human readable logs")
	flag.Parse()

	cfg, logger, err := app.Bootstrap("ingest", *envFile, *logLevel, *dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *lookback != "" {
		d, err := ingestion.ParseLookback(*lookback)
		if err != nil {
			logger.Fatal("invalid lookback", zap.Error(err))
		}
		cfg.Lookback = d
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}

	list, err := collectTokens(*batchFile, *tokens, cfg)
	if err != nil {
		logger.Fatal("read tokens", zap.Error(err))
	}
	if len(list) == 0 {
		logger.Fatal("no tokens given; use --batch or --tokens")
	}
	logger.Info("tokens to fetch", zap.Int("count", len(list)), zap.Duration("lookback", cfg.Lookback))

	ctx, stop := app.ShutdownContext(logger)
	defer stop()

	app.ServeMetrics(cfg.MetricsAddr, logger)

	err = run(ctx, cfg, logger, list, *interval)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("ingest failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// collectTokens merges batch tokens and explicit ones, canonical and sorted.
func collectTokens(batchFile, tokens string, cfg *config.Config) ([]string, error) {
	seen := make(map[string]bool)
	if batchFile != "" {
		signals, lineErrs, err := batch.ParseFile(batchFile, batch.Defaults{Timezone: cfg.InputTZ})
		if err != nil {
			return nil, err
		}
		if len(lineErrs) > 0 {
			fmt.Fprintf(os.Stderr, "%d bad lines in %s\n", len(lineErrs), batchFile)
		}
		for _, s := range signals {
			seen[mint.Canonical(s.Token)] = true
		}
	}
	for _, t := range strings.Split(tokens, ",") {
		if t = mint.Canonical(t); t != "" {
			seen[t] = true
		}
	}

	list := make([]string, 0, len(seen))
	for t := range seen {
		list = append(list, t)
	}
	sort.Strings(list)
	return list, nil
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, tokens []string, interval time.Duration) error {
	stores, err := app.OpenStores(ctx, cfg, true, logger)
	if err != nil {
		return err
	}
	defer stores.Close()
	if !stores.ClickHouse {
		logger.Info("no clickhouse configured, bars go to the cache only")
	}

	market, err := app.NewPipeline(cfg, stores, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := market.Close(); err != nil {
			logger.Warn("flush bar cache", zap.Error(err))
		}
	}()

	if err := fetchOnce(ctx, cfg, logger, market, tokens); err != nil || interval <= 0 {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := fetchOnce(ctx, cfg, logger, market, tokens); err != nil {
				return err
			}
		}
	}
}

// fetchOnce builds every series and flushes the cache so a crash between
// rounds loses nothing already fetched.
func fetchOnce(ctx context.Context, cfg *config.Config, logger *zap.Logger, market *app.Pipeline, tokens []string) error {
	start := time.Now()
	series, errs, err := market.Builder.BuildAll(ctx, tokens, cfg.Workers)
	if err != nil {
		return err
	}

	bars := 0
	for token, s := range series {
		bars += s.Len()
		logger.Debug("series ready",
			zap.String("token", token),
			zap.String("network", s.Network),
			zap.String("pool", s.Pool),
			zap.Int("bars", s.Len()),
		)
	}
	for token, e := range errs {
		logger.Warn("series unavailable", zap.String("token", token), zap.Error(e))
	}

	if market.Cache != nil {
		if err := market.Cache.Flush(); err != nil {
			logger.Warn("flush bar cache", zap.Error(err))
		}
	}

	logger.Info("fetch round complete",
		zap.Int("ok", len(series)),
		zap.Int("failed", len(errs)),
		zap.Int("bars", bars),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}
