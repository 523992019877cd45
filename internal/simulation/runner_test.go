package simulation

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"exit-strategy-lab/internal/domain"
	"exit-strategy-lab/internal/execution"
	"exit-strategy-lab/internal/lookup"
	"exit-strategy-lab/internal/storage"
	"exit-strategy-lab/internal/storage/memory"
)

// day0 is 2023-11-15 00:00:00 UTC.
const day0 = int64(1700006400)

// makeSeries builds n bars from 07:00 UTC, rising one unit per minute.
func makeSeries(n int) domain.BarSeries {
	bars := make([]domain.Bar, n)
	start := day0 + 7*3600
	for i := range bars {
		p := 100 + float64(i)
		bars[i] = domain.Bar{Timestamp: start + int64(i)*60, Open: p, High: p + 2, Low: p - 1, Close: p + 1}
	}
	return domain.BarSeries{Network: "solana", Pool: "pool1", Bars: bars}
}

func newModel(t *testing.T) *execution.Model {
	t.Helper()
	m, err := execution.NewModel(domain.ExecConfig{SlippageMode: domain.SlippageAmount, SlippageSide: domain.SlippageSell})
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	return m
}

func newStrategy(t *testing.T) domain.Strategy {
	t.Helper()
	s, err := domain.NewStrategy(domain.FixedStop, []domain.TakeProfitLevel{{Up: 0.03, Fraction: 1}}, 0.05, domain.FillOptimistic)
	if err != nil {
		t.Fatalf("NewStrategy: %v", err)
	}
	return s
}

func signalAt(hour, minute int, tz domain.TimezoneTag) domain.Signal {
	return domain.Signal{Token: "mint1", Hour: hour, Minute: minute, Timezone: tz, Notional: 1000, FillMode: domain.FillOptimistic}
}

func TestRunner_Run_PersistsResult(t *testing.T) {
	ctx := context.Background()
	store := memory.NewResultStore()

	runner, err := NewRunner(RunnerOptions{
		Model:       newModel(t),
		Policy:      lookup.DefaultPolicy(),
		ResultStore: store,
		RunID:       "run-1",
	})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	// 12:02 KHI -> 07:02 UTC, bar index 2 (open 102).
	r, err := runner.Run(ctx, 3, signalAt(12, 2, domain.TimezoneKHI), makeSeries(10), newStrategy(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if r.RawEntry != 102 {
		t.Errorf("expected entry at 102, got %v", r.RawEntry)
	}
	if r.RunID != "run-1" || r.Token != "mint1" || r.SignalIndex != 3 || len(r.ResultID) != 64 {
		t.Errorf("result not stamped: %+v", r)
	}

	stored, err := store.GetByID(ctx, r.ResultID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !reflect.DeepEqual(stored, r) {
		t.Errorf("stored result differs:\n got %+v\nwant %+v", stored, r)
	}
}

func TestRunner_Run_UnmatchedSignal(t *testing.T) {
	store := memory.NewResultStore()
	runner, err := NewRunner(RunnerOptions{Model: newModel(t), Policy: lookup.StrictPolicy(), ResultStore: store, RunID: "r"})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	_, err = runner.Run(context.Background(), 0, signalAt(15, 0, domain.TimezoneUTC), makeSeries(10), newStrategy(t))
	if !errors.Is(err, lookup.ErrNotFound) {
		t.Fatalf("expected lookup.ErrNotFound, got %v", err)
	}

	results, err := store.GetByRun(context.Background(), "r")
	if err != nil {
		t.Fatalf("GetByRun: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected nothing stored, got %d", len(results))
	}
}

func TestRunner_Run_DuplicateInsert(t *testing.T) {
	ctx := context.Background()
	store := memory.NewResultStore()
	runner, err := NewRunner(RunnerOptions{Model: newModel(t), Policy: lookup.DefaultPolicy(), ResultStore: store, RunID: "r"})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	sig := signalAt(7, 0, domain.TimezoneUTC)
	if _, err := runner.Run(ctx, 0, sig, makeSeries(10), newStrategy(t)); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if _, err := runner.Run(ctx, 0, sig, makeSeries(10), newStrategy(t)); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestRunner_Run_Deterministic(t *testing.T) {
	var first *domain.Result

	for run := 0; run < 5; run++ {
		runner, err := NewRunner(RunnerOptions{Model: newModel(t), Policy: lookup.DefaultPolicy(), RunID: "r"})
		if err != nil {
			t.Fatalf("NewRunner: %v", err)
		}
		r, err := runner.Run(context.Background(), 0, signalAt(7, 4, domain.TimezoneUTC), makeSeries(30), newStrategy(t))
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		if first == nil {
			first = r
			continue
		}
		if !reflect.DeepEqual(first, r) {
			t.Errorf("run %d differs", run)
		}
	}

	// Entry 104, TP trigger 107.12 is first reached by the 07:06 high of 108.
	if first.ExitReason != domain.ExitReasonTakeProfit {
		t.Errorf("expected TP, got %s", first.ExitReason)
	}
	if math.IsNaN(first.PnLUSD) {
		t.Error("PnL is NaN")
	}
}

func TestRunner_Run_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner, err := NewRunner(RunnerOptions{Model: newModel(t), Policy: lookup.DefaultPolicy()})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	if _, err := runner.Run(ctx, 0, signalAt(7, 0, domain.TimezoneUTC), makeSeries(3), newStrategy(t)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNewRunner_RequiresModel(t *testing.T) {
	if _, err := NewRunner(RunnerOptions{}); !errors.Is(err, ErrMissingModel) {
		t.Errorf("expected ErrMissingModel, got %v", err)
	}
}
