package strategy

import (
	"math"

	"exit-strategy-lab/internal/domain"
	"exit-strategy-lab/internal/execution"
	"exit-strategy-lab/internal/replay"
)

// dustFraction is the remaining share of the original quantity treated as zero.
const dustFraction = 1e-12

// tracker is the per-trade state of the partial-exit engine.
// ENTERED and PARTIALLY_FILLED are both !closed; CLOSED is closed.
type tracker struct {
	strat domain.Strategy
	model *execution.Model

	pos       domain.Position
	remaining float64 // quantity still held

	tpTriggers []float64
	tpFilled   []bool
	stopPrice  float64 // current stop trigger, recomputed per bar for trailing stops

	maxHigh float64
	fills   []domain.Fill
	reason  domain.ExitReason
	closed  bool
	err     error
}

func newTracker(strat domain.Strategy, model *execution.Model, entry domain.Bar, raw float64, buy execution.BuyFill) *tracker {
	t := &tracker{
		strat: strat,
		model: model,
		pos: domain.Position{
			OriginalQty:       buy.Quantity,
			RemainingFraction: 1,
			TrailPeak:         buy.PaidPrice,
		},
		remaining:  buy.Quantity,
		tpTriggers: make([]float64, len(strat.TakeProfits)),
		tpFilled:   make([]bool, len(strat.TakeProfits)),
		stopPrice:  buy.PaidPrice * (1 - strat.StopFraction),
		maxHigh:    entry.High,
	}

	for i, level := range strat.TakeProfits {
		t.tpTriggers[i] = buy.PaidPrice * (1 + level.Up)
	}

	t.fills = append(t.fills, domain.Fill{
		Kind:      domain.FillKindBuy,
		Timestamp: entry.Timestamp,
		RawPrice:  raw,
		Quantity:  buy.Quantity,
		Proceeds:  buy.Quantity * buy.PaidPrice,
		Fee:       buy.Fee,
	})

	return t
}

// OnBar advances the state machine by one bar.
func (t *tracker) OnBar(offset int, bar domain.Bar) bool {
	t.maxHigh = math.Max(t.maxHigh, bar.High)
	if offset == 0 {
		return false
	}

	if t.strat.StopKind == domain.TrailingStop {
		t.pos.TrailPeak = math.Max(t.pos.TrailPeak, bar.High)
		t.stopPrice = t.pos.TrailPeak * (1 - t.strat.StopFraction)
	}

	for i, level := range t.strat.TakeProfits {
		if t.tpFilled[i] || level.Fraction <= 0 {
			continue
		}
		if bar.High < t.tpTriggers[i] {
			continue
		}

		qty := math.Min(level.Fraction*t.pos.OriginalQty, t.remaining)
		t.tpFilled[i] = true
		if qty <= 0 {
			continue
		}
		if t.sell(bar, bar.Open, qty, domain.FillKindTakeProfit, i+1) != nil {
			return true
		}
		if t.remaining <= dustFraction*t.pos.OriginalQty {
			t.close(domain.ExitReasonTakeProfit)
			return true
		}
	}

	if bar.Low <= t.stopPrice {
		kind, reason := domain.FillKindStopLoss, domain.ExitReasonStopLoss
		if t.strat.StopKind == domain.TrailingStop {
			kind, reason = domain.FillKindTrailingStop, domain.ExitReasonTrailingStop
		}
		_ = t.liquidate(bar, bar.Open, kind, reason)
		return true
	}

	return false
}

// liquidate sells everything still held at price and closes the trade.
func (t *tracker) liquidate(bar domain.Bar, price float64, kind domain.FillKind, reason domain.ExitReason) error {
	if t.remaining > 0 {
		if err := t.sell(bar, price, t.remaining, kind, 0); err != nil {
			return err
		}
	}
	t.close(reason)
	return nil
}

func (t *tracker) sell(bar domain.Bar, price, qty float64, kind domain.FillKind, level int) error {
	out, err := t.model.Sell(price, qty)
	if err != nil {
		t.err = err
		return err
	}

	t.remaining -= qty
	t.pos.RealizedProceeds += out.Proceeds
	t.pos.RealizedFees += out.Fee
	t.pos.RemainingFraction = math.Max(0, t.remaining/t.pos.OriginalQty)

	t.fills = append(t.fills, domain.Fill{
		Kind:      kind,
		Level:     level,
		Timestamp: bar.Timestamp,
		RawPrice:  price,
		Quantity:  qty,
		Proceeds:  out.Proceeds,
		Fee:       out.Fee,
	})
	return nil
}

func (t *tracker) close(reason domain.ExitReason) {
	t.remaining = 0
	t.pos.RemainingFraction = 0
	t.reason = reason
	t.closed = true
}

var _ replay.BarEngine = (*tracker)(nil)
