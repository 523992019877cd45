package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Strategy errors
var (
	ErrFractionOverflow = errors.New("take-profit fractions sum above 1.0")
	ErrInvalidStrategy  = errors.New("invalid strategy")
	ErrUnknownFillMode  = errors.New("unknown fill mode")
)

// FractionEpsilon is the tolerance on the take-profit fraction sum.
const FractionEpsilon = 1e-9

// FillMode selects where inside a bar an entry is assumed to execute.
type FillMode string

const (
	FillOptimistic  FillMode = "optimistic"
	FillRealistic   FillMode = "realistic"
	FillPessimistic FillMode = "pessimistic"
)

// ParseFillMode parses a fill mode. Unknown values are an error, never defaulted.
func ParseFillMode(s string) (FillMode, error) {
	switch m := FillMode(strings.ToLower(strings.TrimSpace(s))); m {
	case FillOptimistic, FillRealistic, FillPessimistic:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFillMode, s)
	}
}

// StopKind selects a fixed or trailing stop.
type StopKind string

const (
	FixedStop    StopKind = "SL"
	TrailingStop StopKind = "TSL"
)

// TakeProfitLevel is one rung of the ladder.
type TakeProfitLevel struct {
	Up       float64 // trigger = paid_entry * (1 + Up)
	Fraction float64 // fraction of the original quantity sold at this rung
}

// Strategy is an immutable exit configuration. Build it with NewStrategy.
type Strategy struct {
	StopKind     StopKind
	TakeProfits  []TakeProfitLevel
	StopFraction float64
	FillMode     FillMode
}

// NewStrategy validates and builds a Strategy.
// The ladder is copied so callers cannot mutate it afterwards.
func NewStrategy(kind StopKind, levels []TakeProfitLevel, stop float64, mode FillMode) (Strategy, error) {
	if kind != FixedStop && kind != TrailingStop {
		return Strategy{}, fmt.Errorf("%w: stop kind %q", ErrInvalidStrategy, kind)
	}
	if _, err := ParseFillMode(string(mode)); err != nil {
		return Strategy{}, err
	}
	if !(stop > 0 && stop <= 1) {
		return Strategy{}, fmt.Errorf("%w: stop fraction %v outside (0, 1]", ErrInvalidStrategy, stop)
	}

	sum := 0.0
	for i, l := range levels {
		if math.IsNaN(l.Up) || l.Up < 0 {
			return Strategy{}, fmt.Errorf("%w: level %d up %v", ErrInvalidStrategy, i+1, l.Up)
		}
		if math.IsNaN(l.Fraction) || l.Fraction < 0 {
			return Strategy{}, fmt.Errorf("%w: level %d fraction %v", ErrInvalidStrategy, i+1, l.Fraction)
		}
		sum += l.Fraction
	}
	if sum > 1.0+FractionEpsilon {
		return Strategy{}, fmt.Errorf("%w: %.6f", ErrFractionOverflow, sum)
	}

	ladder := make([]TakeProfitLevel, len(levels))
	copy(ladder, levels)

	return Strategy{
		StopKind:     kind,
		TakeProfits:  ladder,
		StopFraction: stop,
		FillMode:     mode,
	}, nil
}

// FractionSum returns the total ladder fraction.
func (s Strategy) FractionSum() float64 {
	sum := 0.0
	for _, l := range s.TakeProfits {
		sum += l.Fraction
	}
	return sum
}

// ID returns a readable deterministic identifier, e.g.
// "TSL8_tp5x50-15x50_realistic".
func (s Strategy) ID() string {
	var sb strings.Builder
	sb.WriteString(string(s.StopKind))
	sb.WriteString(pct(s.StopFraction))
	sb.WriteString("_tp")
	if len(s.TakeProfits) == 0 {
		sb.WriteString("none")
	}
	for i, l := range s.TakeProfits {
		if i > 0 {
			sb.WriteByte('-')
		}
		sb.WriteString(pct(l.Up))
		sb.WriteByte('x')
		sb.WriteString(pct(l.Fraction))
	}
	sb.WriteByte('_')
	sb.WriteString(string(s.FillMode))
	return sb.String()
}

// pct renders a fraction as a compact percentage: 0.05 -> "5", 0.125 -> "12.5".
func pct(f float64) string {
	return strconv.FormatFloat(math.Round(f*1e6)/1e4, 'f', -1, 64)
}
