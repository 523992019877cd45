// Package main renders a stored sweep run as console, CSV and markdown output.
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
	"exit-strategy-lab/internal/metrics"
	"exit-strategy-lab/internal/reporting"
)

// ErrNoRuns is returned when no run is stored.
var ErrNoRuns = errors.New("no stored runs")

func main() {
	// Parse flags
	runID := flag.String("run", "", "Run ID (default: most recent run)")
	list := flag.Int("list", 0, "List the N most recent runs and exit")
	topN := flag.Int("top", 0, "Ranked strategies to print (0 = TB_TOP_N)")
	outputDir := flag.String("output-dir", "", "Write ranking.csv, results.csv and REPORT.md here")
	recompute := flag.Bool("recompute", false, "Rebuild aggregates from stored results")
	envFile := flag.String("env", "", "Env file (default .env when present)")
	logLevel := flag.String("log-level", "", "Log level (empty = TB_LOG_LEVEL)")
	dev := flag.Bool("dev", false, "Human readable logs")
	flag.Parse()

	cfg, logger, err := app.Bootstrap("report", *envFile, *logLevel, *dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *topN > 0 {
		cfg.TopN = *topN
	}

	ctx := context.Background()
	stores, err := app.OpenStores(ctx, cfg, false, logger)
	if err != nil {
		logger.Fatal("open stores", zap.Error(err))
	}
	defer stores.Close()
	if !stores.Persistent() {
		logger.Fatal("TB_POSTGRES_DSN and TB_CLICKHOUSE_DSN are empty; nothing to report")
	}

	if *list > 0 {
		if err := listRuns(ctx, stores, *list); err != nil {
			logger.Fatal("list runs", zap.Error(err))
		}
		return
	}

	id := *runID
	if id == "" {
		if id, err = latestRun(ctx, stores); err != nil {
			logger.Fatal("find latest run", zap.Error(err))
		}
	}

	report, err := buildReport(ctx, stores, id, cfg.TopN, *recompute, logger)
	if err != nil {
		logger.Fatal("build report", zap.String("run_id", id), zap.Error(err))
	}

	if err := reporting.RenderConsole(os.Stdout, report); err != nil {
		logger.Fatal("render", zap.Error(err))
	}
	if *outputDir != "" {
		if err := writeOutputs(*outputDir, report); err != nil {
			logger.Fatal("write outputs", zap.Error(err))
		}
		logger.Info("report written", zap.String("dir", *outputDir))
	}
}

func listRuns(ctx context.Context, stores *app.Stores, n int) error {
	runs, err := stores.Runs.List(ctx, n)
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Printf("%s  %s  signals=%d matched=%d strategies=%d pairs=%d\n",
			r.RunID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Signals, r.Matched, r.Strategies, r.Pairs)
	}
	return nil
}

func latestRun(ctx context.Context, stores *app.Stores) (string, error) {
	runs, err := stores.Runs.List(ctx, 1)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", ErrNoRuns
	}
	return runs[0].RunID, nil
}

// buildReport loads a run. Aggregates missing from the store are rebuilt from
// results and stored; with recompute set they are rebuilt in memory even
// when stored ones exist.
func buildReport(ctx context.Context, stores *app.Stores, runID string, topN int, recompute bool, logger *zap.Logger) (*reporting.Report, error) {
	gen := reporting.NewGenerator(stores.Runs, stores.Results, stores.Aggregates)
	report, err := gen.Generate(ctx, runID, topN)
	if err != nil {
		return nil, err
	}

	agg := metrics.NewAggregator(stores.Results, stores.Aggregates)
	switch {
	case len(report.Ranking) == 0:
		logger.Info("no stored aggregates, computing from results")
		aggs, err := agg.ComputeAndStore(ctx, runID, nil)
		if err != nil {
			return nil, fmt.Errorf("compute aggregates: %w", err)
		}
		report.Ranking = aggs
	case recompute:
		aggs, err := agg.ComputeRun(ctx, runID, strategyOrder(report))
		if err != nil {
			return nil, fmt.Errorf("recompute aggregates: %w", err)
		}
		report.Ranking = aggs
	}
	return report, nil
}

// strategyOrder lists strategy IDs in the order the result store returns
// them, which breaks PnL ties the same way on every recompute.
func strategyOrder(r *reporting.Report) []string {
	seen := make(map[string]bool)
	var order []string
	for _, res := range r.Results {
		if !seen[res.StrategyID] {
			seen[res.StrategyID] = true
			order = append(order, res.StrategyID)
		}
	}
	return order
}

func writeOutputs(dir string, report *reporting.Report) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	outputs := []struct {
		name    string
		content string
	}{
		{"ranking.csv", reporting.RenderRankingCSV(report)},
		{"results.csv", reporting.RenderResultsCSV(report)},
		{"REPORT.md", reporting.RenderMarkdown(report)},
	}
	for _, o := range outputs {
		if err := os.WriteFile(filepath.Join(dir, o.name), []byte(o.content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", o.name, err)
		}
	}
	return nil
}
