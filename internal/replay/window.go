package replay

import (
	"fmt"

	"exit-strategy-lab/internal/domain"
)

// DefaultHorizon is the maximum number of bars a trade is followed for,
// counting the entry bar.
const DefaultHorizon = 2000

// Window is a bounded, read-only view of a series starting at one bar.
type Window struct {
	bars  []domain.Bar
	start int // index of the first bar in the parent series
}

// NewWindow returns bars [start, start+horizon) of series, truncated at the end
// of data. horizon <= 0 means DefaultHorizon.
func NewWindow(series domain.BarSeries, start, horizon int) (Window, error) {
	if start < 0 || start >= series.Len() {
		return Window{}, fmt.Errorf("%w: start %d, len %d", ErrStartOutOfRange, start, series.Len())
	}
	if horizon <= 0 {
		horizon = DefaultHorizon
	}

	end := start + horizon
	if end > series.Len() {
		end = series.Len()
	}

	return Window{bars: series.Bars[start:end:end], start: start}, nil
}

// Len returns the number of bars in the window.
func (w Window) Len() int {
	return len(w.bars)
}

// Start returns the parent series index of the first bar.
func (w Window) Start() int {
	return w.start
}

// First returns the first bar, the entry bar for a trade window.
func (w Window) First() domain.Bar {
	return w.bars[0]
}

// Last returns the final bar of the window.
func (w Window) Last() domain.Bar {
	return w.bars[len(w.bars)-1]
}

// Run feeds the window's bars to engine until it asks to stop or the window
// ends. Returns the offset of the last bar delivered and whether the engine stopped.
func (w Window) Run(engine BarEngine) (last int, stopped bool) {
	for i, b := range w.bars {
		if engine.OnBar(i, b) {
			return i, true
		}
	}
	return len(w.bars) - 1, false
}
