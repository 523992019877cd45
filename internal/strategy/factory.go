package strategy

import (
	"errors"
	"fmt"

	"exit-strategy-lab/internal/domain"
)

// Factory errors
var (
	ErrLadderMismatch = errors.New("take-profit ups and sizes differ in length")

	// ErrDuplicateStrategy marks a combination whose ID is already in the grid.
	ErrDuplicateStrategy = errors.New("duplicate strategy id")
)

// Params is the flat form of a strategy as it appears in grids and batch lines.
// Ups and Sizes are fractions (0.05 = 5%).
type Params struct {
	StopKind domain.StopKind
	Ups      []float64
	Sizes    []float64
	Stop     float64
	FillMode domain.FillMode
}

// String renders params for rejection reports.
func (p Params) String() string {
	return fmt.Sprintf("%s stop=%g ups=%v sizes=%v mode=%s", p.StopKind, p.Stop, p.Ups, p.Sizes, p.FillMode)
}

// FromParams validates params and builds a domain.Strategy.
// Oversubscribed ladders fail with domain.ErrFractionOverflow; nothing is clamped.
func FromParams(p Params) (domain.Strategy, error) {
	if len(p.Ups) != len(p.Sizes) {
		return domain.Strategy{}, fmt.Errorf("%w: %d ups, %d sizes", ErrLadderMismatch, len(p.Ups), len(p.Sizes))
	}

	levels := make([]domain.TakeProfitLevel, len(p.Ups))
	for i := range p.Ups {
		levels[i] = domain.TakeProfitLevel{Up: p.Ups[i], Fraction: p.Sizes[i]}
	}

	return domain.NewStrategy(p.StopKind, levels, p.Stop, p.FillMode)
}
