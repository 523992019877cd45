// Package main runs a batch sweep end to end.
// Executes: batch parse → series build → sweep → persistence → reporting
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"exit-strategy-lab/internal/app"
	"exit-strategy-lab/internal/batch"
	"exit-strategy-lab/internal/config"
	"exit-strategy-lab/internal/domain"
	"exit-strategy-lab/internal/ingestion"
	"exit-strategy-lab/internal/orchestrator"
	"exit-strategy-lab/internal/reporting"
	"exit-strategy-lab/internal/strategy"
)

func main() {
	// Parse flags
	batchFile := flag.String("batch", "", "Batch file, one signal per line (required)")
	envFile := flag.String("env", "", "Env file (default .env when present)")
	gridName := flag.String("grid", strategy.PresetParamSweep, "Strategy grid: sweep, finder or optimizer")
	mode := flag.String("mode", string(domain.FillRealistic), "Fill mode: optimistic, realistic or pessimistic")
	topN := flag.Int("top", 0, "Ranked strategies to print (0 = TB_TOP_N)")
	outputDir := flag.String("output-dir", "output", "Directory for CSV and markdown output")
	workers := flag.Int("workers", 0, "Worker count (0 = TB_WORKERS)")
	lookback := flag.String("lookback", "", "Bar lookback: 48h or 7d (empty = TB_LOOKBACK)")
	tz := flag.String("tz", "", "Timezone for batch times: UTC or KHI (empty = TB_INPUT_TZ)")
	strict := flag.Bool("strict", false, "Exact-minute entry matching only")
	logLevel := flag.String("log-level", "", "Log level (empty = TB_LOG_LEVEL)")
	dev := flag.Bool("dev", false, "Human readable logs")
	flag.Parse()

	if *batchFile == "" {
		fmt.Fprintln(os.Stderr, "--batch is required")
		os.Exit(2)
	}

	cfg, logger, err := app.Bootstrap("pipeline", *envFile, *logLevel, *dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := applyOverrides(cfg, *topN, *workers, *lookback, *tz, *strict); err != nil {
		logger.Fatal("invalid flags", zap.Error(err))
	}

	fillMode, err := domain.ParseFillMode(*mode)
	if err != nil {
		logger.Fatal("invalid fill mode", zap.Error(err))
	}
	gb, ok := strategy.PresetGrid(*gridName, fillMode)
	if !ok {
		logger.Fatal("unknown grid", zap.String("grid", *gridName))
	}
	grid, rejected := gb.Build()

	ctx, stop := app.ShutdownContext(logger)
	defer stop()

	app.ServeMetrics(cfg.MetricsAddr, logger)

	if err := run(ctx, cfg, logger, *batchFile, *outputDir, grid, rejected); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("pipeline cancelled")
			os.Exit(130)
		}
		logger.Fatal("pipeline failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, batchFile, outputDir string, grid strategy.Grid, rejected []strategy.Rejection) error {
	signals, lineErrs, err := batch.ParseFile(batchFile, batch.Defaults{Timezone: cfg.InputTZ})
	if err != nil {
		return err
	}
	for _, le := range lineErrs {
		logger.Warn("skipping batch line", zap.Int("line", le.Line), zap.Error(le.Err))
	}
	if len(signals) == 0 {
		return fmt.Errorf("no valid signals in %s", batchFile)
	}
	logger.Info("batch loaded",
		zap.Int("signals", len(signals)),
		zap.Int("bad_lines", len(lineErrs)),
		zap.Int("strategies", len(grid)),
		zap.Int("rejected", len(rejected)),
	)

	stores, err := app.OpenStores(ctx, cfg, true, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	market, err := app.NewPipeline(cfg, stores, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := market.Close(); err != nil {
			logger.Warn("flush bar cache", zap.Error(err))
		}
	}()

	orch, err := orchestrator.New(orchestrator.Options{
		Series:         market.Builder,
		Exec:           cfg.Exec,
		Horizon:        cfg.HorizonBars,
		Policy:         cfg.Policy(),
		Workers:        cfg.Workers,
		RunStore:       stores.Runs,
		ResultStore:    stores.Results,
		AggregateStore: stores.Aggregates,
		Logger:         logger.Named("orchestrator"),
	})
	if err != nil {
		return err
	}

	result, err := orch.Run(ctx, orchestrator.Request{Signals: signals, Grid: grid, Rejected: rejected})
	if err != nil {
		return err
	}

	report, err := reporting.NewGenerator(stores.Runs, stores.Results, stores.Aggregates).
		Generate(ctx, result.Run.RunID, cfg.TopN)
	if err != nil {
		return fmt.Errorf("generate report: %w", err)
	}
	for _, le := range lineErrs {
		report.Notes = append(report.Notes, le.Error())
	}
	report.Notes = append(report.Notes, result.Errors...)

	if err := reporting.RenderConsole(os.Stdout, report); err != nil {
		return err
	}
	return writeOutputs(outputDir, report, logger)
}

// applyOverrides lets non-zero flags replace configured values.
func applyOverrides(cfg *config.Config, topN, workers int, lookback, tz string, strict bool) error {
	if topN > 0 {
		cfg.TopN = topN
	}
	if workers > 0 {
		cfg.Workers = workers
	}
	if lookback != "" {
		d, err := ingestion.ParseLookback(lookback)
		if err != nil {
			return err
		}
		cfg.Lookback = d
	}
	if tz != "" {
		tag, err := domain.ParseTimezone(tz)
		if err != nil {
			return err
		}
		cfg.InputTZ = tag
	}
	if strict {
		cfg.StrictExact = true
	}
	return nil
}

func writeOutputs(dir string, report *reporting.Report, logger *zap.Logger) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	files := map[string]string{
		"ranking.csv": reporting.RenderRankingCSV(report),
		"results.csv": reporting.RenderResultsCSV(report),
		"REPORT.md":   reporting.RenderMarkdown(report),
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		logger.Info("wrote output", zap.String("path", path))
	}
	return nil
}
