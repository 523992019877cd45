package metrics

import (
	"math"
	"sort"

	"exit-strategy-lab/internal/domain"
)

// ComputeAggregate calculates all metrics for one strategy's results.
// Results are sorted by SignalIndex ASC, ResultID ASC before computing
// order-dependent metrics (MaxDrawdown), so the input order does not matter.
func ComputeAggregate(runID, strategyID string, results []*domain.Result) *domain.StrategyAggregate {
	agg := &domain.StrategyAggregate{
		RunID:      runID,
		StrategyID: strategyID,
		ExitCounts: make(map[domain.ExitReason]int),
	}

	n := len(results)
	if n == 0 {
		return agg
	}

	sorted := make([]*domain.Result, n)
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].SignalIndex != sorted[j].SignalIndex {
			return sorted[i].SignalIndex < sorted[j].SignalIndex
		}
		return sorted[i].ResultID < sorted[j].ResultID
	})

	pnls := make([]float64, n)
	returns := make([]float64, n)
	holds := make([]float64, n)
	mfes := make([]float64, n)
	wins := 0
	for i, r := range sorted {
		pnls[i] = r.PnLUSD
		returns[i] = r.ReturnPct
		holds[i] = float64(r.HoldMinutes)
		mfes[i] = r.MaxFavorableMultiple
		if r.IsWin() {
			wins++
		}
		agg.ExitCounts[r.ExitReason]++
	}

	sortedPnLs := make([]float64, n)
	copy(sortedPnLs, pnls)
	sort.Float64s(sortedPnLs)

	mean := computeMean(pnls)
	meanReturn := computeMean(returns)

	agg.Trades = n
	agg.Wins = wins
	agg.Losses = n - wins
	agg.WinRate = computeWinRate(wins, n)

	agg.TotalPnL = computeSum(pnls)
	agg.MeanPnL = mean
	agg.MedianPnL = computePercentile(sortedPnLs, 0.50)
	agg.MinPnL = sortedPnLs[0]
	agg.MaxPnL = sortedPnLs[n-1]
	agg.StddevPnL = computeStddev(pnls, mean)

	agg.MeanReturnPct = meanReturn
	agg.ProfitFactor = computeProfitFactor(pnls)
	agg.Sharpe = computeSharpe(returns, meanReturn)
	agg.MaxDrawdown = computeMaxDrawdown(pnls)

	agg.MeanHoldMinutes = computeMean(holds)
	agg.AvgMFE = computeMean(mfes)

	return agg
}

// computeWinRate calculates win rate as wins / total.
func computeWinRate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}

func computeSum(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum
}

// computeMean calculates arithmetic mean.
func computeMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return computeSum(values) / float64(len(values))
}

// computeStddev calculates sample standard deviation (n-1 denominator).
func computeStddev(values []float64, mean float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// computePercentile uses linear interpolation.
// sorted must be pre-sorted ASC.
// p is percentile (0.10 = 10th percentile).
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// computeProfitFactor is gross profit / gross loss.
// +Inf when there are profits and no losses, 0 when there are no profits.
func computeProfitFactor(pnls []float64) float64 {
	gains, losses := 0.0, 0.0
	for _, p := range pnls {
		if p > 0 {
			gains += p
		} else {
			losses -= p
		}
	}
	if gains == 0 {
		return 0
	}
	if losses == 0 {
		return math.Inf(1)
	}
	return gains / losses
}

// computeSharpe is mean return / sample stddev of returns, 0 when undefined.
func computeSharpe(returns []float64, mean float64) float64 {
	sd := computeStddev(returns, mean)
	if sd == 0 {
		return 0
	}
	return mean / sd
}

// computeMaxDrawdown calculates worst peak-to-trough on cumulative PnL.
// Values must be in signal order.
func computeMaxDrawdown(pnls []float64) float64 {
	cumulative := 0.0
	peak := 0.0
	maxDrawdown := 0.0

	for _, p := range pnls {
		cumulative += p
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > maxDrawdown {
			maxDrawdown = dd
		}
	}
	return maxDrawdown
}
