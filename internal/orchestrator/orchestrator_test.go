package orchestrator

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"exit-strategy-lab/internal/domain"
	"exit-strategy-lab/internal/lookup"
	"exit-strategy-lab/internal/storage/memory"
	"exit-strategy-lab/internal/strategy"
)

var errNoPool = errors.New("no pool")

// trendSeries rises for half the window, then falls.
func trendSeries(pool string, n int) domain.BarSeries {
	start := int64(1700006400 + 9*3600)
	bars := make([]domain.Bar, n)
	for i := range bars {
		p := 100 + 20*math.Sin(float64(i)/40)
		bars[i] = domain.Bar{
			Timestamp: start + int64(i)*60,
			Open:      p,
			High:      p + 0.5,
			Low:       p - 0.5,
			Close:     p,
		}
	}
	return domain.BarSeries{Network: "solana", Pool: pool, Bars: bars}
}

type fakeSeries struct {
	series map[string]domain.BarSeries
	errs   map[string]error
	fatal  error
	calls  [][]string
}

func (f *fakeSeries) BuildAll(ctx context.Context, tokens []string, workers int) (map[string]domain.BarSeries, map[string]error, error) {
	f.calls = append(f.calls, tokens)
	if f.fatal != nil {
		return nil, nil, f.fatal
	}
	out := make(map[string]domain.BarSeries)
	errs := make(map[string]error)
	for _, t := range tokens {
		if e, ok := f.errs[t]; ok {
			errs[t] = e
			continue
		}
		if s, ok := f.series[t]; ok {
			out[t] = s
		}
	}
	return out, errs, nil
}

type recordingProgress struct {
	mu     sync.Mutex
	stages map[string]int
}

func (r *recordingProgress) Reporter(runID, stage string) func(done, total int) {
	return func(done, total int) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.stages == nil {
			r.stages = make(map[string]int)
		}
		r.stages[stage]++
	}
}

type failingResultStore struct {
	*memory.ResultStore
}

func (failingResultStore) InsertBulk(ctx context.Context, results []*domain.Result) error {
	return errors.New("disk full")
}

type testStores struct {
	runs    *memory.RunStore
	results *memory.ResultStore
	aggs    *memory.StrategyAggregateStore
}

func newTestStores() testStores {
	return testStores{
		runs:    memory.NewRunStore(),
		results: memory.NewResultStore(),
		aggs:    memory.NewStrategyAggregateStore(),
	}
}

func testSignals() []domain.Signal {
	return []domain.Signal{
		{Token: "TokenA", Hour: 9, Minute: 5, Timezone: domain.TimezoneUTC, Notional: 100, Line: 1},
		{Token: "TokenB", Hour: 9, Minute: 20, Timezone: domain.TimezoneUTC, Notional: 50, Line: 2},
		{Token: "TokenA", Hour: 11, Minute: 0, Timezone: domain.TimezoneUTC, Notional: 100, Line: 3},
		{Token: "Missing", Hour: 9, Minute: 0, Timezone: domain.TimezoneUTC, Notional: 100, Line: 4},
	}
}

func newTestOrchestrator(t *testing.T, src SeriesSource, stores testStores, progress ProgressReporter) *Orchestrator {
	t.Helper()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	orch, err := New(Options{
		Series:         src,
		Exec:           domain.DefaultExecConfig,
		Horizon:        300,
		Policy:         lookup.DefaultPolicy(),
		Workers:        2,
		RunStore:       stores.runs,
		ResultStore:    stores.results,
		AggregateStore: stores.aggs,
		Progress:       progress,
		NewRunID:       func() string { return "run-fixed" },
		Now:            func() time.Time { return fixed },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return orch
}

func TestNew_RequiresSeries(t *testing.T) {
	if _, err := New(Options{Exec: domain.DefaultExecConfig}); !errors.Is(err, ErrNoSeriesSource) {
		t.Errorf("expected ErrNoSeriesSource, got %v", err)
	}
}

func TestNew_InvalidExec(t *testing.T) {
	exec := domain.DefaultExecConfig
	exec.Slippage = -0.5
	if _, err := New(Options{Series: &fakeSeries{}, Exec: exec}); err == nil {
		t.Error("expected error for negative slippage")
	}
}

func TestOrchestrator_Run(t *testing.T) {
	ctx := context.Background()
	stores := newTestStores()
	src := &fakeSeries{
		series: map[string]domain.BarSeries{
			"TokenA": trendSeries("PoolA", 400),
			"TokenB": trendSeries("PoolB", 400),
		},
		errs: map[string]error{"Missing": errNoPool},
	}
	progress := &recordingProgress{}
	orch := newTestOrchestrator(t, src, stores, progress)

	grid, rejected := strategy.FinderGrid(domain.FillRealistic).Build()
	res, err := orch.Run(ctx, Request{Signals: testSignals(), Grid: grid, Rejected: rejected})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	run := res.Run
	if run.RunID != "run-fixed" {
		t.Errorf("expected run-fixed, got %s", run.RunID)
	}
	if run.Signals != 4 || run.Matched != 3 || run.Unavailable != 1 {
		t.Errorf("unexpected counts: signals=%d matched=%d unavailable=%d", run.Signals, run.Matched, run.Unavailable)
	}
	if run.Strategies != len(grid) {
		t.Errorf("expected %d strategies, got %d", len(grid), run.Strategies)
	}
	if run.Pairs != 3*len(grid) {
		t.Errorf("expected %d pairs, got %d", 3*len(grid), run.Pairs)
	}

	if res.ResultsStored != len(res.Outcome.Results) {
		t.Errorf("expected %d results stored, got %d", len(res.Outcome.Results), res.ResultsStored)
	}
	if res.AggregatesStored != len(grid) {
		t.Errorf("expected %d aggregates stored, got %d", len(grid), res.AggregatesStored)
	}

	stored, err := stores.runs.GetByID(ctx, "run-fixed")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Pairs != run.Pairs {
		t.Errorf("stored run pairs %d, want %d", stored.Pairs, run.Pairs)
	}
	results, err := stores.results.GetByRun(ctx, "run-fixed")
	if err != nil {
		t.Fatalf("GetByRun results: %v", err)
	}
	if len(results) != res.ResultsStored {
		t.Errorf("expected %d stored results, got %d", res.ResultsStored, len(results))
	}
	aggs, err := stores.aggs.GetByRun(ctx, "run-fixed")
	if err != nil {
		t.Fatalf("GetByRun aggregates: %v", err)
	}
	if len(aggs) != len(grid) {
		t.Errorf("expected %d aggregates, got %d", len(grid), len(aggs))
	}

	missing := 0
	for _, e := range res.Errors {
		if strings.Contains(e, "Missing") {
			missing++
		}
	}
	if missing != 1 {
		t.Errorf("expected one error naming Missing, got %v", res.Errors)
	}

	// Tokens are built once per signal list; the source dedupes.
	if len(src.calls) != 1 || len(src.calls[0]) != 4 {
		t.Errorf("expected one BuildAll call with 4 tokens, got %v", src.calls)
	}

	for _, stage := range []string{"series", "sweep", "persist", "complete"} {
		if progress.stages[stage] == 0 {
			t.Errorf("expected progress for stage %s", stage)
		}
	}
}

func TestOrchestrator_Run_NoStores(t *testing.T) {
	src := &fakeSeries{series: map[string]domain.BarSeries{"TokenA": trendSeries("PoolA", 400)}}
	orch, err := New(Options{Series: src, Exec: domain.DefaultExecConfig, Policy: lookup.DefaultPolicy()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	grid, _ := strategy.FinderGrid(domain.FillOptimistic).Build()
	signals := []domain.Signal{{Token: "TokenA", Hour: 9, Minute: 0, Timezone: domain.TimezoneUTC, Notional: 10}}
	res, err := orch.Run(context.Background(), Request{Signals: signals, Grid: grid})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ResultsStored != 0 || res.AggregatesStored != 0 {
		t.Errorf("expected nothing stored, got %d/%d", res.ResultsStored, res.AggregatesStored)
	}
	if len(res.Outcome.Ranking) != len(grid) {
		t.Errorf("expected %d ranked strategies, got %d", len(grid), len(res.Outcome.Ranking))
	}
	if res.Run.RunID == "" {
		t.Error("expected generated run id")
	}

	res, err = orch.Run(context.Background(), Request{RunID: "chosen", Signals: signals, Grid: grid})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Run.RunID != "chosen" {
		t.Errorf("expected requested run id, got %s", res.Run.RunID)
	}
}

func TestOrchestrator_Run_EmptyGrid(t *testing.T) {
	src := &fakeSeries{series: map[string]domain.BarSeries{"TokenA": trendSeries("PoolA", 100)}}
	orch := newTestOrchestrator(t, src, newTestStores(), nil)

	_, err := orch.Run(context.Background(), Request{Signals: testSignals()[:1]})
	if err == nil {
		t.Fatal("expected error for empty grid")
	}
	if !strings.Contains(err.Error(), "phase 2") {
		t.Errorf("expected sweep phase error, got %v", err)
	}
}

func TestOrchestrator_Run_SeriesFailure(t *testing.T) {
	src := &fakeSeries{fatal: context.Canceled}
	orch := newTestOrchestrator(t, src, newTestStores(), nil)

	grid, _ := strategy.FinderGrid(domain.FillRealistic).Build()
	_, err := orch.Run(context.Background(), Request{Signals: testSignals(), Grid: grid})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestOrchestrator_Run_ResultStoreFailure(t *testing.T) {
	stores := newTestStores()
	src := &fakeSeries{series: map[string]domain.BarSeries{"TokenA": trendSeries("PoolA", 400)}}
	orch, err := New(Options{
		Series:         src,
		Exec:           domain.DefaultExecConfig,
		Policy:         lookup.DefaultPolicy(),
		RunStore:       stores.runs,
		ResultStore:    failingResultStore{stores.results},
		AggregateStore: stores.aggs,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	grid, _ := strategy.FinderGrid(domain.FillRealistic).Build()
	signals := []domain.Signal{{Token: "TokenA", Hour: 9, Minute: 0, Timezone: domain.TimezoneUTC, Notional: 10}}
	res, err := orch.Run(context.Background(), Request{Signals: signals, Grid: grid})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ResultsStored != 0 {
		t.Errorf("expected no results stored, got %d", res.ResultsStored)
	}
	if res.AggregatesStored != len(grid) {
		t.Errorf("aggregates should still be stored, got %d", res.AggregatesStored)
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "disk full") {
		t.Errorf("expected store error recorded, got %v", res.Errors)
	}
}

func TestOrchestrator_Run_DegeneratePairsFailClosed(t *testing.T) {
	stores := newTestStores()
	flat := trendSeries("PoolZero", 100)
	for i := range flat.Bars {
		flat.Bars[i].Open, flat.Bars[i].High, flat.Bars[i].Low, flat.Bars[i].Close = 0, 0, 0, 0
	}
	src := &fakeSeries{series: map[string]domain.BarSeries{"TokenA": flat}}
	orch := newTestOrchestrator(t, src, stores, nil)

	grid, _ := strategy.FinderGrid(domain.FillRealistic).Build()
	grid = grid[:1]
	res, err := orch.Run(context.Background(), Request{Signals: testSignals()[:1], Grid: grid})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Run.Pairs != 0 || res.Run.PairErrors != 1 {
		t.Errorf("expected 0 pairs and 1 failed pair, got %d/%d", res.Run.Pairs, res.Run.PairErrors)
	}
	if len(res.Outcome.Results) != 0 {
		t.Errorf("failed pairs must not produce results, got %d", len(res.Outcome.Results))
	}
	if len(res.Errors) != 1 {
		t.Errorf("expected the failed pair reported, got %v", res.Errors)
	}

	stored, err := stores.runs.GetByID(context.Background(), "run-fixed")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.PairErrors != 1 {
		t.Errorf("stored run must record failed pairs, got %d", stored.PairErrors)
	}
}
