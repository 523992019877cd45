// Package main simulates one signal against one strategy and prints the fill log.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"exit-strategy-lab/internal/app"
	"exit-strategy-lab/internal/batch"
	"exit-strategy-lab/internal/config"
	"exit-strategy-lab/internal/domain"
	"exit-strategy-lab/internal/execution"
	"exit-strategy-lab/internal/lookup"
	"exit-strategy-lab/internal/reporting"
	"exit-strategy-lab/internal/simulation"
	"exit-strategy-lab/internal/strategy"
)

type options struct {
	token   string
	hhmm    string
	tz      string
	invest  float64
	tp1     float64
	tp1Size float64
	tp2     float64
	tp2Size float64
	stop    float64
	kind    string
	mode    string
	strict  bool
}

func main() {
	var opts options
	flag.StringVar(&opts.token, "token", "", "Token mint or contract address (required)")
	flag.StringVar(&opts.hhmm, "time", "", "Signal time HH:MM (required)")
	flag.StringVar(&opts.tz, "tz", "", "Timezone: UTC or KHI (empty = TB_INPUT_TZ)")
	flag.Float64Var(&opts.invest, "invest", 100, "USD invested")
	flag.Float64Var(&opts.tp1, "tp1", 100, "First take-profit, percent above entry")
	flag.Float64Var(&opts.tp1Size, "tp1-size", 50, "First take-profit size, percent of position")
	flag.Float64Var(&opts.tp2, "tp2", 200, "Second take-profit, percent above entry")
	flag.Float64Var(&opts.tp2Size, "tp2-size", 50, "Second take-profit size, percent of position (0 = single rung)")
	flag.Float64Var(&opts.stop, "sl", 30, "Stop distance, percent")
	flag.StringVar(&opts.kind, "stop", string(domain.FixedStop), "Stop kind: SL or TSL")
	flag.StringVar(&opts.mode, "mode", string(domain.FillRealistic), "Fill mode: optimistic, realistic or pessimistic")
	flag.BoolVar(&opts.strict, "strict", false, "Exact-minute entry matching only")
	envFile := flag.String("env", "", "Env file (default .env when present)")
	logLevel := flag.String("log-level", "", "Log level (empty = TB_LOG_LEVEL)")
	dev := flag.Bool("dev", true, "Human readable logs")
	flag.Parse()

	if opts.token == "" || opts.hhmm == "" {
		fmt.Fprintln(os.Stderr, "--token and --time are required")
		os.Exit(2)
	}

	cfg, logger, err := app.Bootstrap("backtest", *envFile, *logLevel, *dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	signal, strat, err := buildInputs(opts, cfg)
	if err != nil {
		logger.Fatal("invalid input", zap.Error(err))
	}
	if opts.strict {
		cfg.StrictExact = true
	}

	ctx, stop := app.ShutdownContext(logger)
	defer stop()

	if err := run(ctx, cfg, logger, signal, strat, os.Stdout); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		logger.Fatal("backtest failed", zap.Error(err))
	}
}

// buildInputs turns flags into a signal and a validated strategy.
func buildInputs(opts options, cfg *config.Config) (domain.Signal, domain.Strategy, error) {
	tz := cfg.InputTZ
	if opts.tz != "" {
		tag, err := domain.ParseTimezone(opts.tz)
		if err != nil {
			return domain.Signal{}, domain.Strategy{}, err
		}
		tz = tag
	}
	hour, minute, err := batch.ParseHHMM(opts.hhmm)
	if err != nil {
		return domain.Signal{}, domain.Strategy{}, err
	}
	mode, err := domain.ParseFillMode(opts.mode)
	if err != nil {
		return domain.Signal{}, domain.Strategy{}, err
	}

	params := strategy.Params{
		StopKind: domain.StopKind(opts.kind),
		Ups:      []float64{opts.tp1 / 100},
		Sizes:    []float64{opts.tp1Size / 100},
		Stop:     opts.stop / 100,
		FillMode: mode,
	}
	if opts.tp2Size > 0 {
		params.Ups = append(params.Ups, opts.tp2/100)
		params.Sizes = append(params.Sizes, opts.tp2Size/100)
	}
	strat, err := strategy.FromParams(params)
	if err != nil {
		return domain.Signal{}, domain.Strategy{}, err
	}

	signal := domain.Signal{
		Token:    opts.token,
		Hour:     hour,
		Minute:   minute,
		Timezone: tz,
		Notional: opts.invest,
		FillMode: mode,
	}
	return signal, strat, nil
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, signal domain.Signal, strat domain.Strategy, out io.Writer) error {
	stores, err := app.OpenStores(ctx, cfg, false, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	market, err := app.NewPipeline(cfg, stores, logger)
	if err != nil {
		return err
	}
	defer market.Close()

	series, err := market.Builder.Build(ctx, signal.Token)
	if err != nil {
		return err
	}

	model, err := execution.NewModel(cfg.Exec)
	if err != nil {
		return err
	}
	runner, err := simulation.NewRunner(simulation.RunnerOptions{
		Engine: strategy.NewEngine(cfg.HorizonBars),
		Model:  model,
		Policy: cfg.Policy(),
	})
	if err != nil {
		return err
	}

	match, err := simulation.ResolveEntry(series, signal, cfg.Policy())
	if err != nil {
		return fmt.Errorf("resolve entry for %s %s: %w", signal.Token, signal.HHMM(), err)
	}
	result, err := runner.Run(ctx, 0, signal, series, strat)
	if err != nil {
		return err
	}

	return printResult(out, series, match, strat, result)
}

func printResult(out io.Writer, series domain.BarSeries, match lookup.Match, strat domain.Strategy, r *domain.Result) error {
	fmt.Fprintf(out, "Strategy: %s\n", strat.ID())
	fmt.Fprintf(out, "Pool:     %s/%s (%d bars)\n", series.Network, series.Pool, series.Len())
	fmt.Fprintf(out, "Entry:    %s via %s (delta %+d min)\n",
		formatTS(match.Bar.Timestamp), match.Method, match.DeltaMinutes)
	fmt.Fprintf(out, "Raw/paid: %g / %g\n\n", r.RawEntry, r.PaidEntry)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tKIND\tLEVEL\tPRICE\tQTY\tUSD\tFEE")
	for _, f := range r.Fills {
		level := "-"
		if f.Level > 0 {
			level = fmt.Sprint(f.Level)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%g\t%g\t%s\t%s\n",
			formatTS(f.Timestamp), f.Kind, level, f.RawPrice, f.Quantity,
			reporting.USD(f.Proceeds), reporting.USD(f.Fee))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nExit:     %s after %d min\n", r.ExitReason, r.HoldMinutes)
	fmt.Fprintf(out, "PnL:      %s (%.2f%%)\n", reporting.USD(r.PnLUSD), r.ReturnPct)
	fmt.Fprintf(out, "Max fav:  %.2fx\n", r.MaxFavorableMultiple)
	return nil
}

func formatTS(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("2006-01-02 15:04")
}
