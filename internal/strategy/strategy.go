// Package strategy walks a position forward through minute bars under a
// take-profit ladder and a fixed or trailing stop, and builds strategy grids.
package strategy

import (
	"errors"
	"fmt"

	"exit-strategy-lab/internal/domain"
	"exit-strategy-lab/internal/execution"
	"exit-strategy-lab/internal/fill"
	"exit-strategy-lab/internal/replay"
)

// ErrNilModel is returned when Simulate is called without an execution model.
var ErrNilModel = errors.New("execution model is nil")

// Engine runs the partial-exit state machine for one (signal, strategy) pair.
// It holds no per-trade state and is safe for concurrent use.
type Engine struct {
	Horizon int // bars followed including the entry bar; <= 0 means replay.DefaultHorizon
}

// NewEngine creates an engine with the given horizon.
func NewEngine(horizon int) *Engine {
	return &Engine{Horizon: horizon}
}

// Simulate enters at series.Bars[entryIdx] and follows the position until the
// ladder and stop close it or the horizon runs out.
//
// The entry bar sets the raw entry price and counts toward the horizon and the
// favorable excursion; exits are evaluated from the following bar onwards.
// Take-profit levels are checked in ladder order before the stop, so a bar that
// breaches both fills the take-profits first.
func (e *Engine) Simulate(
	series domain.BarSeries,
	entryIdx int,
	strat domain.Strategy,
	model *execution.Model,
	notional float64,
) (*domain.Result, error) {
	if model == nil {
		return nil, ErrNilModel
	}

	window, err := replay.NewWindow(series, entryIdx, e.Horizon)
	if err != nil {
		return nil, fmt.Errorf("simulate: %w", err)
	}

	entry := window.First()
	raw, err := fill.Estimate(entry, strat.FillMode)
	if err != nil {
		return nil, fmt.Errorf("simulate: %w", err)
	}

	buy, err := model.Buy(raw, notional)
	if err != nil {
		return nil, fmt.Errorf("simulate: %w", err)
	}

	t := newTracker(strat, model, entry, raw, buy)
	window.Run(t)
	if t.err != nil {
		return nil, fmt.Errorf("simulate: %w", t.err)
	}

	if !t.closed {
		last := window.Last()
		if err := t.liquidate(last, last.Close, domain.FillKindTime, domain.ExitReasonTime); err != nil {
			return nil, fmt.Errorf("simulate: %w", err)
		}
	}

	return buildResult(strat, notional, entry, raw, buy, t), nil
}
