package strategy

import "exit-strategy-lab/internal/domain"

// Optimizer search ranges, as fractions.
var (
	OptimizerTakeProfits = []float64{0.1, 0.2, 0.3, 0.5, 0.7, 1.0, 1.5, 2.0, 3.0, 5.0}
	OptimizerStops       = []float64{0.05, 0.1, 0.15, 0.2, 0.3, 0.5, 0.7, 1.0}
)

// Preset names accepted by PresetGrid.
const (
	PresetParamSweep = "sweep"
	PresetFinder     = "finder"
	PresetOptimizer  = "optimizer"
)

// ParamSweepGrid is TP1 at 5/8/12% sized 30/50/70%, alone or followed by
// TP2 at 15% sized 70/50/30%, with fixed stops at 5/8/10%.
// TP1+TP2 sizes above 100% come back from Build as rejections.
func ParamSweepGrid(mode domain.FillMode) *GridBuilder {
	b := NewGridBuilder().
		WithStopFractions(0.05, 0.08, 0.10).
		WithFillModes(mode)

	ups := []float64{0.05, 0.08, 0.12}
	sizes := []float64{0.3, 0.5, 0.7}

	for _, up1 := range ups {
		for _, sz1 := range sizes {
			b.WithLadders(Ladder{Ups: []float64{up1}, Sizes: []float64{sz1}})
		}
	}
	for _, up1 := range ups {
		for _, sz1 := range sizes {
			for _, sz2 := range []float64{0.7, 0.5, 0.3} {
				b.WithLadders(Ladder{Ups: []float64{up1, 0.15}, Sizes: []float64{sz1, sz2}})
			}
		}
	}
	return b
}

// FinderGrid is one, two and three level ladders with fixed and trailing
// stops at 5/8/10%.
func FinderGrid(mode domain.FillMode) *GridBuilder {
	return NewGridBuilder().
		WithLadders(
			Ladder{Ups: []float64{0.05}, Sizes: []float64{1.0}},
			Ladder{Ups: []float64{0.05}, Sizes: []float64{0.7}},
			Ladder{Ups: []float64{0.05}, Sizes: []float64{0.5}},
			Ladder{Ups: []float64{0.05, 0.15}, Sizes: []float64{0.5, 0.5}},
			Ladder{Ups: []float64{0.05, 0.15}, Sizes: []float64{0.7, 0.3}},
			Ladder{Ups: []float64{0.05, 0.15, 0.30}, Sizes: []float64{0.4, 0.3, 0.3}},
			Ladder{Ups: []float64{0.05, 0.15, 0.30}, Sizes: []float64{0.5, 0.3, 0.2}},
		).
		WithStopKinds(domain.FixedStop, domain.TrailingStop).
		WithStopFractions(0.05, 0.08, 0.10).
		WithFillModes(mode)
}

// OptimizerGrid is a single full-size take-profit from OptimizerTakeProfits
// against every stop in OptimizerStops, fixed and trailing.
func OptimizerGrid(mode domain.FillMode) *GridBuilder {
	b := NewGridBuilder().
		WithStopKinds(domain.FixedStop, domain.TrailingStop).
		WithStopFractions(OptimizerStops...).
		WithFillModes(mode)

	for _, up := range OptimizerTakeProfits {
		b.WithLadders(Ladder{Ups: []float64{up}, Sizes: []float64{1.0}})
	}
	return b
}

// PresetGrid returns the builder for a preset name, or false if unknown.
func PresetGrid(name string, mode domain.FillMode) (*GridBuilder, bool) {
	switch name {
	case PresetParamSweep:
		return ParamSweepGrid(mode), true
	case PresetFinder:
		return FinderGrid(mode), true
	case PresetOptimizer:
		return OptimizerGrid(mode), true
	default:
		return nil, false
	}
}
