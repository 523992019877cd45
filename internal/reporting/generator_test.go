package reporting

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"exit-strategy-lab/internal/domain"
	"exit-strategy-lab/internal/storage"
	"exit-strategy-lab/internal/storage/memory"
)

var fixedTime = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func setupTestData(t *testing.T) *Generator {
	t.Helper()
	ctx := context.Background()

	runStore := memory.NewRunStore()
	resultStore := memory.NewResultStore()
	aggStore := memory.NewStrategyAggregateStore()

	run := &domain.SweepRun{
		RunID:       "run-1",
		StartedAt:   fixedTime.Add(-time.Minute),
		FinishedAt:  fixedTime,
		Exec:        domain.DefaultExecConfig,
		Horizon:     2000,
		Signals:     5,
		Matched:     3,
		Unmatched:   1,
		Unavailable: 1,
		Rejected:    2,
		Strategies:  2,
		Pairs:       6,
		PairErrors:  1,
	}
	if err := runStore.Insert(ctx, run); err != nil {
		t.Fatalf("Insert run: %v", err)
	}

	results := []*domain.Result{
		{ResultID: "r1", RunID: "run-1", Token: "TokenA", StrategyID: "SL8_tp5x100_realistic", SignalIndex: 0,
			EntryTimestamp: 1700000040, RawEntry: 1, PaidEntry: 1, Notional: 100, Quantity: 99.5, BuyFee: 0.5,
			Proceeds: 104, SellFees: 0.52, PnLUSD: 3.5, ReturnPct: 0.035, HoldMinutes: 4, MaxFavorableMultiple: 1.06,
			ExitReason: domain.ExitReasonTakeProfit, ExitTimestamp: 1700000280},
		{ResultID: "r2", RunID: "run-1", Token: "TokenB", StrategyID: "TSL5_tpnone_realistic", SignalIndex: 1,
			EntryTimestamp: 1700000100, RawEntry: 2, PaidEntry: 2, Notional: 100, Quantity: 49.75, BuyFee: 0.5,
			Proceeds: 94, SellFees: 0.47, PnLUSD: -6.5, ReturnPct: -0.065, HoldMinutes: 12, MaxFavorableMultiple: 1.01,
			ExitReason: domain.ExitReasonTrailingStop, ExitTimestamp: 1700000820},
	}
	if err := resultStore.InsertBulk(ctx, results); err != nil {
		t.Fatalf("InsertBulk results: %v", err)
	}

	aggs := []*domain.StrategyAggregate{
		{RunID: "run-1", StrategyID: "TSL5_tpnone_realistic", Rank: 2, Trades: 3, Wins: 1, Losses: 2, WinRate: 1.0 / 3,
			TotalPnL: -12.345, MeanPnL: -4.115, ProfitFactor: 0.4, Sharpe: -0.8, MaxDrawdown: 15,
			MeanHoldMinutes: 9, ExitCounts: map[domain.ExitReason]int{domain.ExitReasonTrailingStop: 2, domain.ExitReasonTime: 1}},
		{RunID: "run-1", StrategyID: "SL8_tp5x100_realistic", Rank: 1, Trades: 3, Wins: 3, WinRate: 1,
			TotalPnL: 1234.565, MeanPnL: 411.52, ProfitFactor: math.Inf(1), Sharpe: 2.5,
			MeanHoldMinutes: 4, ExitCounts: map[domain.ExitReason]int{domain.ExitReasonTakeProfit: 3}},
	}
	if err := aggStore.InsertBulk(ctx, aggs); err != nil {
		t.Fatalf("InsertBulk aggregates: %v", err)
	}

	return NewGenerator(runStore, resultStore, aggStore).WithClock(func() time.Time { return fixedTime })
}

func TestGenerate(t *testing.T) {
	g := setupTestData(t)

	r, err := g.Generate(context.Background(), "run-1", 1)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !r.GeneratedAt.Equal(fixedTime) {
		t.Errorf("expected fixed clock, got %v", r.GeneratedAt)
	}
	if len(r.Ranking) != 2 || r.Ranking[0].Rank != 1 || r.Ranking[1].Rank != 2 {
		t.Fatalf("ranking should be ordered by rank, got %+v", r.Ranking)
	}
	if len(r.Top()) != 1 || r.Top()[0].StrategyID != "SL8_tp5x100_realistic" {
		t.Errorf("unexpected top rows %+v", r.Top())
	}
	if len(r.Results) != 2 {
		t.Errorf("expected 2 results, got %d", len(r.Results))
	}
	totals := r.ExitTotals()
	if totals[domain.ExitReasonTakeProfit] != 3 || totals[domain.ExitReasonTrailingStop] != 2 || totals[domain.ExitReasonTime] != 1 {
		t.Errorf("unexpected exit totals %v", totals)
	}
}

func TestGenerate_UnknownRun(t *testing.T) {
	g := setupTestData(t)
	if _, err := g.Generate(context.Background(), "missing", 3); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	g := setupTestData(t)

	var first string
	for i := 0; i < 5; i++ {
		r, err := g.Generate(context.Background(), "run-1", 3)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		out := RenderMarkdown(r) + RenderRankingCSV(r) + RenderResultsCSV(r)
		if i == 0 {
			first = out
			continue
		}
		if out != first {
			t.Fatalf("run %d output differs", i)
		}
	}
}

func TestRenderRankingCSV(t *testing.T) {
	r, err := setupTestData(t).Generate(context.Background(), "run-1", 0)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(RenderRankingCSV(r)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(lines))
	}
	header := strings.Split(lines[0], ",")
	for i, line := range lines[1:] {
		if cols := strings.Split(line, ","); len(cols) != len(header) {
			t.Errorf("row %d has %d columns, header has %d", i, len(cols), len(header))
		}
	}
	if !strings.HasPrefix(lines[1], "1,SL8_tp5x100_realistic,3,3,0,1.000000,1234.56,") {
		t.Errorf("unexpected first row %q", lines[1])
	}
	if !strings.Contains(lines[1], ",inf,") {
		t.Errorf("profit factor without losses should render inf: %q", lines[1])
	}
	if !strings.HasSuffix(lines[1], ",3,0,0,0") || !strings.HasSuffix(lines[2], ",0,0,2,1") {
		t.Errorf("unexpected exit columns:\n%s\n%s", lines[1], lines[2])
	}
}

func TestRenderResultsCSV(t *testing.T) {
	r, err := setupTestData(t).Generate(context.Background(), "run-1", 0)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	csv := RenderResultsCSV(r)
	if !strings.HasPrefix(csv, "result_id,strategy_id,signal_index,token,") {
		t.Errorf("unexpected header: %q", strings.SplitN(csv, "\n", 2)[0])
	}
	if !strings.Contains(csv, ",-6.50,-0.065000,12,") {
		t.Errorf("expected loss row with cents and return, got:\n%s", csv)
	}
}

func TestRenderConsole(t *testing.T) {
	r, err := setupTestData(t).Generate(context.Background(), "run-1", 2)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	r.Notes = []string{"TokenC: data unavailable"}

	var buf bytes.Buffer
	if err := RenderConsole(&buf, r); err != nil {
		t.Fatalf("RenderConsole: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"matched 3 of 5 signals (unmatched 1, unavailable 1)",
		"Rejected 2 strategy combinations",
		"1 pairs failed and are excluded from totals",
		"$1,234.56",
		"-$12.34",
		"TP:3",
		"TSL:2 TIME:1",
		"note: TokenC: data unavailable",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("console output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderConsole_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderConsole(&buf, &Report{}); err != nil {
		t.Fatalf("RenderConsole: %v", err)
	}
	if !strings.Contains(buf.String(), "No ranked strategies.") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestRenderMarkdown(t *testing.T) {
	r, err := setupTestData(t).Generate(context.Background(), "run-1", 1)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	md := RenderMarkdown(r)

	for _, want := range []string{
		"# Strategy Sweep Report",
		"Generated: 2024-01-15T12:00:00Z",
		"| Skipped: no entry bar | 1 |",
		"| Skipped: no data | 1 |",
		"| Rejected strategies | 2 |",
		"| Failed pairs | 1 |",
		"| 1 | SL8_tp5x100_realistic | $1,234.56 |",
		"Showing 1 of 2 strategies.",
		"| TSL | 2 |",
		"| Buy fee | 0.5% |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestUSD(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "$0.00"},
		{2.345, "$2.34"},
		{2.355, "$2.36"},
		{1234567.891, "$1,234,567.89"},
		{-5, "-$5.00"},
		{-0.001, "$0.00"},
		{math.Inf(1), "+Inf"},
	}
	for _, tt := range tests {
		if got := USD(tt.in); got != tt.want {
			t.Errorf("USD(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRatioAndPercent(t *testing.T) {
	if got := Ratio(math.Inf(1)); got != "inf" {
		t.Errorf("Ratio(+Inf) = %q", got)
	}
	if got := Ratio(1.234); got != "1.23" {
		t.Errorf("Ratio(1.234) = %q", got)
	}
	if got := Percent(0.125); got != "12.5%" {
		t.Errorf("Percent(0.125) = %q", got)
	}
	if got := Count(1234567); got != "1,234,567" {
		t.Errorf("Count = %q", got)
	}
}
