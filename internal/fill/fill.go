// Package fill estimates a single intrabar execution price for an entry.
package fill

import (
	"fmt"
	"math"

	"exit-strategy-lab/internal/domain"
)

// ErrUnknownMode is returned for a fill mode outside optimistic|realistic|pessimistic.
var ErrUnknownMode = domain.ErrUnknownFillMode

// RangeShare is how far into the bar range a realistic fill moves against the buyer.
const RangeShare = 0.30

// Estimate returns the assumed execution price inside bar for mode.
// The result is always clamped to [bar.Low, bar.High].
func Estimate(bar domain.Bar, mode domain.FillMode) (float64, error) {
	var raw float64

	switch mode {
	case domain.FillOptimistic:
		raw = bar.Open
	case domain.FillPessimistic:
		raw = bar.High
	case domain.FillRealistic:
		if bar.IsBullish() {
			raw = bar.Open + RangeShare*(bar.High-bar.Open)
		} else {
			raw = bar.Open - RangeShare*(bar.Open-bar.Low)
		}
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	return clamp(raw, bar.Low, bar.High), nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
