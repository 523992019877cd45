package strategy

import (
	"exit-strategy-lab/internal/domain"
	"exit-strategy-lab/internal/execution"
)

// buildResult constructs the immutable Result from a closed tracker.
// PnL = sell proceeds - notional - buy fee.
func buildResult(
	strat domain.Strategy,
	notional float64,
	entry domain.Bar,
	raw float64,
	buy execution.BuyFill,
	t *tracker,
) *domain.Result {
	exitTs := entry.Timestamp
	if n := len(t.fills); n > 0 {
		exitTs = t.fills[n-1].Timestamp
	}

	hold := int((exitTs - entry.Timestamp) / domain.SecondsPerMinute)
	if hold < 0 {
		hold = 0
	}

	mfe := 0.0
	if raw > 0 {
		mfe = t.maxHigh / raw
	}

	pnl := t.pos.RealizedProceeds - notional - buy.Fee

	fills := make([]domain.Fill, len(t.fills))
	copy(fills, t.fills)

	return &domain.Result{
		StrategyID:           strat.ID(),
		EntryTimestamp:       entry.Timestamp,
		RawEntry:             raw,
		PaidEntry:            buy.PaidPrice,
		Notional:             notional,
		Quantity:             buy.Quantity,
		BuyFee:               buy.Fee,
		Proceeds:             t.pos.RealizedProceeds,
		SellFees:             t.pos.RealizedFees,
		PnLUSD:               pnl,
		ReturnPct:            pnl / notional * 100,
		HoldMinutes:          hold,
		MaxFavorableMultiple: mfe,
		ExitReason:           t.reason,
		ExitTimestamp:        exitTs,
		Fills:                fills,
	}
}
