package domain

// ExitReason is the reason the final quantity left the position.
type ExitReason string

const (
	ExitReasonTakeProfit   ExitReason = "TP"
	ExitReasonStopLoss     ExitReason = "SL"
	ExitReasonTrailingStop ExitReason = "TSL"
	ExitReasonTime         ExitReason = "TIME"
)

// FillKind labels one leg in the fill log.
type FillKind string

const (
	FillKindBuy          FillKind = "BUY"
	FillKindTakeProfit   FillKind = "TP"
	FillKindStopLoss     FillKind = "SL"
	FillKindTrailingStop FillKind = "TSL"
	FillKindTime         FillKind = "TIME"
)

// Fill is one execution in a simulated trade.
type Fill struct {
	Kind      FillKind
	Level     int // 1-based ladder rung for TP fills, 0 otherwise
	Timestamp int64
	RawPrice  float64 // bar price before slippage
	Quantity  float64
	Proceeds  float64 // USD received (sell) or spent net of fee (buy)
	Fee       float64
}

// Position is the mutable state of one simulation run.
type Position struct {
	OriginalQty       float64
	RemainingFraction float64 // in [0, 1]
	RealizedProceeds  float64
	RealizedFees      float64
	TrailPeak         float64
}

// Result is the immutable outcome of one (signal, strategy) pair.
type Result struct {
	ResultID    string // deterministic hash
	RunID       string
	Token       string
	StrategyID  string
	SignalIndex int // position of the signal in its batch

	EntryTimestamp int64
	RawEntry       float64 // fill-estimator price
	PaidEntry      float64 // after buy-side slippage
	Notional       float64
	Quantity       float64
	BuyFee         float64

	Proceeds float64 // sum of all sell proceeds
	SellFees float64

	PnLUSD               float64
	ReturnPct            float64
	HoldMinutes          int
	MaxFavorableMultiple float64 // max high / raw entry
	ExitReason           ExitReason
	ExitTimestamp        int64

	Fills []Fill
}

// IsWin reports whether the trade made money.
func (r *Result) IsWin() bool {
	return r.PnLUSD > 0
}
