package domain

// StrategyAggregate holds per-strategy metrics for one sweep run.
type StrategyAggregate struct {
	RunID      string
	StrategyID string
	Rank       int // 1-based position in the ranking, 0 if unranked

	// Counts
	Trades  int
	Wins    int
	Losses  int
	WinRate float64

	// PnL distribution (USD)
	TotalPnL  float64
	MeanPnL   float64
	MedianPnL float64
	MinPnL    float64
	MaxPnL    float64
	StddevPnL float64

	// Risk / quality
	MeanReturnPct float64
	ProfitFactor  float64 // +Inf when there are wins and no losses
	Sharpe        float64 // mean return / stddev return
	MaxDrawdown   float64 // worst peak-to-trough of cumulative PnL

	// Behaviour
	MeanHoldMinutes float64
	AvgMFE          float64
	ExitCounts      map[ExitReason]int
}
