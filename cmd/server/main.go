// Package main serves stored runs, sweep submission and a live progress feed:
// - GET  /runs, /runs/{id}
// - POST /sweeps, GET /sweeps/{id}
// - GET  /ws/progress (websocket)
// - GET  /health, /metrics
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"exit-strategy-lab/internal/api"
	"exit-strategy-lab/internal/app"
	"exit-strategy-lab/internal/orchestrator"
	"exit-strategy-lab/internal/progress"
)

func main() {
	// Parse flags
	addr := flag.String("addr", ":8080", "HTTP listen address")
	envFile := flag.String("env", "", "Env file (default .env when present)")
	logLevel := flag.String("log-level", "", "Log level (empty = TB_LOG_LEVEL)")
	dev := flag.Bool("dev", false, "Human readable logs")
	flag.Parse()

	cfg, logger, err := app.Bootstrap("server", *envFile, *logLevel, *dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := app.ShutdownContext(logger)
	defer stop()

	stores, err := app.OpenStores(ctx, cfg, true, logger)
	if err != nil {
		logger.Fatal("open stores", zap.Error(err))
	}
	defer stores.Close()
	if !stores.Persistent() {
		logger.Warn("no database configured, runs are kept in memory")
	}

	market, err := app.NewPipeline(cfg, stores, logger)
	if err != nil {
		logger.Fatal("build market data pipeline", zap.Error(err))
	}
	defer func() {
		if err := market.Close(); err != nil {
			logger.Warn("flush bar cache", zap.Error(err))
		}
	}()

	hub := progress.NewHub(progress.HubOptions{Logger: logger.Named("progress")})
	defer hub.Close()

	orch, err := orchestrator.New(orchestrator.Options{
		Series:         market.Builder,
		Exec:           cfg.Exec,
		Horizon:        cfg.HorizonBars,
		Policy:         cfg.Policy(),
		Workers:        cfg.Workers,
		RunStore:       stores.Runs,
		ResultStore:    stores.Results,
		AggregateStore: stores.Aggregates,
		Progress:       hub,
		Logger:         logger.Named("orchestrator"),
	})
	if err != nil {
		logger.Fatal("build orchestrator", zap.Error(err))
	}

	srv := api.NewServer(api.Options{
		Runs:       stores.Runs,
		Results:    stores.Results,
		Aggregates: stores.Aggregates,
		Sweeper:    orch,
		Progress:   hub,
		Timezone:   cfg.InputTZ,
		TopN:       cfg.TopN,
		Logger:     logger.Named("api"),
	})

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", *addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("sweeps did not stop in time", zap.Error(err))
	}
	hub.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
