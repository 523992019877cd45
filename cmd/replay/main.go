// Package main re-simulates a stored run from stored bars and reports any
// result that does not reproduce exactly.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"exit-strategy-lab/internal/app"
	"exit-strategy-lab/internal/barcache"
	"exit-strategy-lab/internal/domain"
	"exit-strategy-lab/internal/mint"
	"exit-strategy-lab/internal/replay"
	"exit-strategy-lab/internal/strategy"
	"exit-strategy-lab/internal/verification"
)

func main() {
	// Parse flags
	runID := flag.String("run", "", "Run ID to verify (required)")
	outputJSON := flag.Bool("json", false, "Output as JSON")
	showAll := flag.Bool("all", false, "Print matching results too")
	envFile := flag.String("env", "", "Env file (default .env when present)")
	logLevel := flag.String("log-level", "", "Log level (empty = TB_LOG_LEVEL)")
	dev := flag.Bool("dev", false, "Human readable logs")
	flag.Parse()

	if *runID == "" {
		fmt.Fprintln(os.Stderr, "--run is required")
		os.Exit(2)
	}

	cfg, logger, err := app.Bootstrap("replay", *envFile, *logLevel, *dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := app.ShutdownContext(logger)
	defer stop()

	stores, err := app.OpenStores(ctx, cfg, false, logger)
	if err != nil {
		logger.Fatal("open stores", zap.Error(err))
	}
	defer stores.Close()

	var cache *barcache.Cache
	if cfg.CacheDir != "" {
		if cache, err = barcache.Open(cfg.CacheDir, 0, nil); err != nil {
			logger.Fatal("open bar cache", zap.Error(err))
		}
		defer cache.Close()
	}

	results, err := stores.Results.GetByRun(ctx, *runID)
	if err != nil {
		logger.Fatal("load results", zap.Error(err))
	}
	series := loadSeries(ctx, stores, cache, tokensOf(results), logger)

	verifier := verification.NewReplayVerifier(verification.ReplayVerifierOptions{
		RunStore:    stores.Runs,
		ResultStore: stores.Results,
	})
	report, err := verifier.VerifyRun(ctx, *runID, series, allPresets())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		logger.Fatal("verify run", zap.Error(err))
	}

	if *outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			logger.Fatal("encode report", zap.Error(err))
		}
	} else {
		printReport(os.Stdout, report, *showAll)
	}

	if !report.OK() {
		os.Exit(1)
	}
}

func tokensOf(results []*domain.Result) []string {
	seen := make(map[string]bool)
	var tokens []string
	for _, r := range results {
		if !seen[r.Token] {
			seen[r.Token] = true
			tokens = append(tokens, r.Token)
		}
	}
	return tokens
}

// loadSeries reads each token's bars from the bar store, then the cache.
// Nothing is fetched: a fresh download would cover a different window.
func loadSeries(ctx context.Context, stores *app.Stores, cache *barcache.Cache, tokens []string, logger *zap.Logger) map[string]domain.BarSeries {
	loader := replay.NewRunner(stores.Bars)
	out := make(map[string]domain.BarSeries, len(tokens))
	for _, token := range tokens {
		pool, err := stores.Pools.Get(ctx, mint.Canonical(token))
		if err != nil {
			logger.Warn("no pool recorded", zap.String("token", token), zap.Error(err))
			continue
		}
		s, err := loader.Load(ctx, pool.Network, pool.Address)
		if err == nil && s.Len() > 0 {
			out[token] = s
			continue
		}
		if errors.Is(err, replay.ErrInvalidOrdering) {
			logger.Warn("stored bars out of order", zap.String("token", token), zap.Error(err))
		}
		if cache != nil {
			if s, ok := cache.Get(pool.Network, pool.Address); ok && replay.CheckOrdering(s.Bars) == nil {
				out[token] = s
				continue
			}
		}
		logger.Warn("no stored bars", zap.String("token", token), zap.String("pool", pool.Address))
	}
	return out
}

// allPresets merges every preset grid in every fill mode so any stored
// strategy ID can be looked up.
func allPresets() strategy.Grid {
	var grid strategy.Grid
	seen := make(map[string]bool)
	for _, mode := range []domain.FillMode{domain.FillOptimistic, domain.FillRealistic, domain.FillPessimistic} {
		for _, name := range []string{strategy.PresetParamSweep, strategy.PresetFinder, strategy.PresetOptimizer} {
			gb, _ := strategy.PresetGrid(name, mode)
			g, _ := gb.Build()
			for _, s := range g {
				if id := s.ID(); !seen[id] {
					seen[id] = true
					grid = append(grid, s)
				}
			}
		}
	}
	return grid
}

func printReport(w io.Writer, r *verification.VerificationReport, showAll bool) {
	fmt.Fprintf(w, "Run %s: %d results, %d match, %d diverge, %d failed\n",
		r.RunID, r.Total, r.Matched, r.Divergent, r.Failed)
	for _, res := range r.Results {
		switch {
		case res.Err != nil:
			fmt.Fprintf(w, "  FAIL  %s signal %d: %v\n", res.StrategyID, res.SignalIndex, res.Err)
		case !res.Match:
			fmt.Fprintf(w, "  DIFF  %s signal %d:\n", res.StrategyID, res.SignalIndex)
			for _, d := range res.Divergences {
				fmt.Fprintf(w, "        %s\n", d)
			}
		case showAll:
			fmt.Fprintf(w, "  OK    %s signal %d pnl=%g\n", res.StrategyID, res.SignalIndex, res.StoredPnL)
		}
	}
	if r.OK() {
		fmt.Fprintln(w, "deterministic: yes")
	} else {
		fmt.Fprintln(w, "deterministic: no")
	}
}
