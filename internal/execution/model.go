// Package execution converts raw prices into quantities and proceeds
// under the fee and slippage settings of a run.
package execution

import (
	"errors"
	"fmt"
	"math"

	"exit-strategy-lab/internal/domain"
)

// Execution errors
var (
	ErrInvalidConfig       = domain.ErrInvalidExecConfig
	ErrNonPositivePrice    = errors.New("execution price must be positive and finite")
	ErrNonPositiveNotional = errors.New("notional must be positive and finite")
	ErrNonPositiveQuantity = errors.New("sell quantity must be positive and finite")
)

// BuyFill is the outcome of the entry leg.
type BuyFill struct {
	Quantity  float64
	PaidPrice float64 // raw price after buy-side price slippage
	Fee       float64 // USD, charged on notional
}

// SellFill is the outcome of one exit leg.
type SellFill struct {
	Proceeds float64 // USD received
	Fee      float64 // USD
}

// Model applies one ExecConfig to every leg of a run.
// It is stateless; callers accumulate fills.
type Model struct {
	cfg domain.ExecConfig
}

// NewModel validates cfg and returns a Model.
func NewModel(cfg domain.ExecConfig) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Model{cfg: cfg}, nil
}

// Config returns the settings the model was built with.
func (m *Model) Config() domain.ExecConfig {
	return m.cfg
}

// Buy converts notional USD into a quantity at raw.
// The fee is taken from notional before conversion.
func (m *Model) Buy(raw, notional float64) (BuyFill, error) {
	if !positive(raw) {
		return BuyFill{}, fmt.Errorf("buy: %w: %v", ErrNonPositivePrice, raw)
	}
	if !positive(notional) {
		return BuyFill{}, fmt.Errorf("buy: %w: %v", ErrNonPositiveNotional, notional)
	}

	fee := notional * m.cfg.BuyFee
	cash := notional - fee

	if m.cfg.Slippage > 0 && m.cfg.AppliesToBuy() {
		if m.cfg.SlippageMode == domain.SlippagePrice {
			paid := raw * (1 + m.cfg.Slippage)
			return BuyFill{Quantity: cash / paid, PaidPrice: paid, Fee: fee}, nil
		}
		return BuyFill{Quantity: cash * (1 - m.cfg.Slippage) / raw, PaidPrice: raw, Fee: fee}, nil
	}

	return BuyFill{Quantity: cash / raw, PaidPrice: raw, Fee: fee}, nil
}

// Sell converts qty into USD at raw.
func (m *Model) Sell(raw, qty float64) (SellFill, error) {
	if !positive(raw) {
		return SellFill{}, fmt.Errorf("sell: %w: %v", ErrNonPositivePrice, raw)
	}
	if !positive(qty) {
		return SellFill{}, fmt.Errorf("sell: %w: %v", ErrNonPositiveQuantity, qty)
	}

	gross := qty * raw
	fee := gross * m.cfg.SellFee

	if m.cfg.Slippage > 0 && m.cfg.AppliesToSell() {
		if m.cfg.SlippageMode == domain.SlippagePrice {
			recv := raw * (1 - m.cfg.Slippage)
			return SellFill{
				Proceeds: qty * recv * (1 - m.cfg.SellFee),
				Fee:      qty * recv * m.cfg.SellFee,
			}, nil
		}
		return SellFill{Proceeds: (gross - fee) * (1 - m.cfg.Slippage), Fee: fee}, nil
	}

	return SellFill{Proceeds: gross - fee, Fee: fee}, nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}
