package strategy

import (
	"fmt"

	"exit-strategy-lab/internal/domain"
)

// Ladder is one take-profit ladder: trigger ups and their position sizes.
type Ladder struct {
	Ups   []float64
	Sizes []float64
}

// Rejection is a grid combination that failed validation.
type Rejection struct {
	Params Params
	Err    error
}

// Grid is an ordered list of validated strategies.
// Order is the builder's enumeration order and is the ranking tie-break.
type Grid []domain.Strategy

// GridBuilder enumerates the Cartesian product
// ladders x stop kinds x stop fractions x fill modes, in that nesting order.
type GridBuilder struct {
	Ladders       []Ladder
	StopKinds     []domain.StopKind
	StopFractions []float64
	FillModes     []domain.FillMode
}

// NewGridBuilder returns a builder with a fixed stop and realistic fills.
func NewGridBuilder() *GridBuilder {
	return &GridBuilder{
		StopKinds: []domain.StopKind{domain.FixedStop},
		FillModes: []domain.FillMode{domain.FillRealistic},
	}
}

// WithLadders appends ladders.
func (b *GridBuilder) WithLadders(ladders ...Ladder) *GridBuilder {
	b.Ladders = append(b.Ladders, ladders...)
	return b
}

// WithStopKinds replaces the stop kinds.
func (b *GridBuilder) WithStopKinds(kinds ...domain.StopKind) *GridBuilder {
	b.StopKinds = kinds
	return b
}

// WithStopFractions replaces the stop fractions.
func (b *GridBuilder) WithStopFractions(stops ...float64) *GridBuilder {
	b.StopFractions = stops
	return b
}

// WithFillModes replaces the fill modes.
func (b *GridBuilder) WithFillModes(modes ...domain.FillMode) *GridBuilder {
	b.FillModes = modes
	return b
}

// Build validates every combination through FromParams.
// Invalid combinations are returned as rejections, never dropped silently.
// A combination whose ID repeats an earlier one is rejected with
// ErrDuplicateStrategy; the first occurrence stays in the grid.
func (b *GridBuilder) Build() (Grid, []Rejection) {
	var (
		grid     Grid
		rejected []Rejection
		seen     = make(map[string]struct{})
	)

	for _, ladder := range b.Ladders {
		for _, kind := range b.StopKinds {
			for _, stop := range b.StopFractions {
				for _, mode := range b.FillModes {
					p := Params{
						StopKind: kind,
						Ups:      ladder.Ups,
						Sizes:    ladder.Sizes,
						Stop:     stop,
						FillMode: mode,
					}
					s, err := FromParams(p)
					if err != nil {
						rejected = append(rejected, Rejection{Params: p, Err: err})
						continue
					}
					if _, dup := seen[s.ID()]; dup {
						rejected = append(rejected, Rejection{
							Params: p,
							Err:    fmt.Errorf("%w: %s", ErrDuplicateStrategy, s.ID()),
						})
						continue
					}
					seen[s.ID()] = struct{}{}
					grid = append(grid, s)
				}
			}
		}
	}

	return grid, rejected
}

// IDs returns the strategy IDs in grid order.
func (g Grid) IDs() []string {
	ids := make([]string, len(g))
	for i, s := range g {
		ids[i] = s.ID()
	}
	return ids
}

// Lookup returns the strategy with the given ID.
func (g Grid) Lookup(id string) (domain.Strategy, bool) {
	for _, s := range g {
		if s.ID() == id {
			return s, true
		}
	}
	return domain.Strategy{}, false
}
