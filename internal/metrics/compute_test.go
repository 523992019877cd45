package metrics

import (
	"math"
	"testing"

	"exit-strategy-lab/internal/domain"
)

func result(idx int, pnl float64, reason domain.ExitReason) *domain.Result {
	return &domain.Result{
		ResultID:             string(rune('a' + idx)),
		StrategyID:           "s1",
		SignalIndex:          idx,
		Notional:             100,
		PnLUSD:               pnl,
		ReturnPct:            pnl,
		HoldMinutes:          10 * (idx + 1),
		MaxFavorableMultiple: 1 + float64(idx)/10,
		ExitReason:           reason,
	}
}

func TestComputeAggregate_Basic(t *testing.T) {
	results := []*domain.Result{
		result(2, -5, domain.ExitReasonStopLoss),
		result(0, 10, domain.ExitReasonTakeProfit),
		result(1, 20, domain.ExitReasonTakeProfit),
		result(3, 15, domain.ExitReasonTime),
	}

	agg := ComputeAggregate("run1", "s1", results)

	if agg.Trades != 4 || agg.Wins != 3 || agg.Losses != 1 {
		t.Errorf("counts: trades %d wins %d losses %d", agg.Trades, agg.Wins, agg.Losses)
	}
	if agg.WinRate != 0.75 {
		t.Errorf("expected win rate 0.75, got %v", agg.WinRate)
	}
	if agg.TotalPnL != 40 || agg.MeanPnL != 10 {
		t.Errorf("expected total 40 mean 10, got %v / %v", agg.TotalPnL, agg.MeanPnL)
	}
	// sorted: -5, 10, 15, 20 -> median 12.5
	if agg.MedianPnL != 12.5 || agg.MinPnL != -5 || agg.MaxPnL != 20 {
		t.Errorf("distribution: median %v min %v max %v", agg.MedianPnL, agg.MinPnL, agg.MaxPnL)
	}
	// 45 / 5
	if agg.ProfitFactor != 9 {
		t.Errorf("expected profit factor 9, got %v", agg.ProfitFactor)
	}
	// cumulative in signal order: 10, 30, 25, 40 -> drawdown 5
	if agg.MaxDrawdown != 5 {
		t.Errorf("expected drawdown 5, got %v", agg.MaxDrawdown)
	}
	if agg.MeanHoldMinutes != 25 {
		t.Errorf("expected mean hold 25, got %v", agg.MeanHoldMinutes)
	}
	if math.Abs(agg.AvgMFE-1.15) > 1e-12 {
		t.Errorf("expected avg MFE 1.15, got %v", agg.AvgMFE)
	}
	if agg.ExitCounts[domain.ExitReasonTakeProfit] != 2 || agg.ExitCounts[domain.ExitReasonTime] != 1 {
		t.Errorf("unexpected exit counts: %v", agg.ExitCounts)
	}
	if agg.RunID != "run1" || agg.StrategyID != "s1" {
		t.Errorf("keys not set: %s %s", agg.RunID, agg.StrategyID)
	}
}

func TestComputeAggregate_Sharpe(t *testing.T) {
	results := []*domain.Result{
		result(0, 1, domain.ExitReasonTakeProfit),
		result(1, 3, domain.ExitReasonTakeProfit),
	}

	agg := ComputeAggregate("run1", "s1", results)

	// mean 2, sample stddev sqrt(2)
	want := 2 / math.Sqrt(2)
	if math.Abs(agg.Sharpe-want) > 1e-12 {
		t.Errorf("expected Sharpe %v, got %v", want, agg.Sharpe)
	}
	if !math.IsInf(agg.ProfitFactor, 1) {
		t.Errorf("expected +Inf profit factor with no losses, got %v", agg.ProfitFactor)
	}
}

func TestComputeAggregate_Empty(t *testing.T) {
	agg := ComputeAggregate("run1", "s1", nil)

	if agg.Trades != 0 || agg.TotalPnL != 0 || agg.ExitCounts == nil {
		t.Errorf("unexpected empty aggregate: %+v", agg)
	}
}

func TestComputeProfitFactor(t *testing.T) {
	tests := []struct {
		name string
		pnls []float64
		want float64
	}{
		{"no wins", []float64{-1, -2}, 0},
		{"all flat", []float64{0, 0}, 0},
		{"mixed", []float64{6, -2, -1}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := computeProfitFactor(tt.pnls); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestComputePercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5}

	if got := computePercentile(sorted, 0.5); got != 3 {
		t.Errorf("expected median 3, got %v", got)
	}
	if got := computePercentile(sorted, 0.1); math.Abs(got-1.4) > 1e-12 {
		t.Errorf("expected p10 1.4, got %v", got)
	}
	if got := computePercentile([]float64{7}, 0.9); got != 7 {
		t.Errorf("expected 7, got %v", got)
	}
	if got := computePercentile(nil, 0.5); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
}

func TestComputeStddev(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	mean := computeMean(values)

	// sample variance = 32/7
	want := math.Sqrt(32.0 / 7.0)
	if got := computeStddev(values, mean); math.Abs(got-want) > 1e-12 {
		t.Errorf("expected %v, got %v", want, got)
	}
	if got := computeStddev([]float64{1}, 1); got != 0 {
		t.Errorf("expected 0 for single sample, got %v", got)
	}
}

func TestRank_StableTies(t *testing.T) {
	aggs := []*domain.StrategyAggregate{
		{StrategyID: "a", TotalPnL: 10},
		{StrategyID: "b", TotalPnL: 30},
		{StrategyID: "c", TotalPnL: 10},
		{StrategyID: "d", TotalPnL: 30},
	}

	Rank(aggs)

	want := []string{"b", "d", "a", "c"}
	for i, id := range want {
		if aggs[i].StrategyID != id || aggs[i].Rank != i+1 {
			t.Errorf("position %d: expected %s rank %d, got %s rank %d", i, id, i+1, aggs[i].StrategyID, aggs[i].Rank)
		}
	}

	if top := TopN(aggs, 2); len(top) != 2 || top[1].StrategyID != "d" {
		t.Errorf("unexpected TopN: %+v", top)
	}
	if all := TopN(aggs, 0); len(all) != 4 {
		t.Errorf("TopN(0) should return all, got %d", len(all))
	}
}
