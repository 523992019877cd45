package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidExecConfig is returned for out-of-range execution settings.
var ErrInvalidExecConfig = errors.New("invalid execution config")

// SlippageMode selects how slippage degrades a fill.
type SlippageMode string

const (
	SlippagePrice  SlippageMode = "price"  // execution price moves against the trader
	SlippageAmount SlippageMode = "amount" // cash or proceeds are haircut
)

// SlippageSide selects which legs slippage applies to.
type SlippageSide string

const (
	SlippageBoth SlippageSide = "both"
	SlippageBuy  SlippageSide = "buy"
	SlippageSell SlippageSide = "sell"
)

// ExecConfig holds fee and slippage settings threaded through every
// buy and sell of a run.
type ExecConfig struct {
	Slippage     float64
	SlippageMode SlippageMode
	SlippageSide SlippageSide
	BuyFee       float64
	SellFee      float64
}

// DefaultExecConfig mirrors the TB_* environment defaults.
var DefaultExecConfig = ExecConfig{
	Slippage:     0,
	SlippageMode: SlippageAmount,
	SlippageSide: SlippageSell,
	BuyFee:       0.005,
	SellFee:      0.005,
}

// AppliesToBuy reports whether slippage affects the buy leg.
func (c ExecConfig) AppliesToBuy() bool {
	return c.SlippageSide == SlippageBoth || c.SlippageSide == SlippageBuy
}

// AppliesToSell reports whether slippage affects sell legs.
func (c ExecConfig) AppliesToSell() bool {
	return c.SlippageSide == SlippageBoth || c.SlippageSide == SlippageSell
}

// Validate checks that fractions are in [0, 1) and enums are known.
func (c ExecConfig) Validate() error {
	fractions := []struct {
		name  string
		value float64
	}{
		{"slippage", c.Slippage},
		{"buy fee", c.BuyFee},
		{"sell fee", c.SellFee},
	}
	for _, f := range fractions {
		if math.IsNaN(f.value) || f.value < 0 || f.value >= 1 {
			return fmt.Errorf("%w: %s %v outside [0, 1)", ErrInvalidExecConfig, f.name, f.value)
		}
	}
	switch c.SlippageMode {
	case SlippagePrice, SlippageAmount:
	default:
		return fmt.Errorf("%w: slippage mode %q", ErrInvalidExecConfig, c.SlippageMode)
	}
	switch c.SlippageSide {
	case SlippageBoth, SlippageBuy, SlippageSell:
	default:
		return fmt.Errorf("%w: slippage side %q", ErrInvalidExecConfig, c.SlippageSide)
	}
	return nil
}

// ParseSlippageMode parses "price" or "amount".
func ParseSlippageMode(s string) (SlippageMode, error) {
	m := SlippageMode(strings.ToLower(strings.TrimSpace(s)))
	if m != SlippagePrice && m != SlippageAmount {
		return "", fmt.Errorf("%w: slippage mode %q", ErrInvalidExecConfig, s)
	}
	return m, nil
}

// ParseSlippageSide parses "both", "buy" or "sell".
func ParseSlippageSide(s string) (SlippageSide, error) {
	side := SlippageSide(strings.ToLower(strings.TrimSpace(s)))
	switch side {
	case SlippageBoth, SlippageBuy, SlippageSell:
		return side, nil
	default:
		return "", fmt.Errorf("%w: slippage side %q", ErrInvalidExecConfig, s)
	}
}
