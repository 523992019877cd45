// Package verification re-simulates stored results and reports any field that
// differs. Replay is deterministic, so values must match exactly.
package verification

import (
	"context"
	"encoding/json"
	"fmt"

	"exit-strategy-lab/internal/domain"
	"exit-strategy-lab/internal/strategy"
)

// FieldDivergence is a mismatch between a stored and a replayed value.
type FieldDivergence struct {
	Field    string
	Expected any // stored
	Actual   any // replayed
}

func (d FieldDivergence) String() string {
	return fmt.Sprintf("%s: stored %v, replayed %v", d.Field, d.Expected, d.Actual)
}

// VerificationResult is the outcome for one stored result.
type VerificationResult struct {
	ResultID    string
	StrategyID  string
	SignalIndex int
	Match       bool
	Divergences []FieldDivergence
	StoredPnL   float64
	ReplayedPnL float64
	Err         error // replay could not run
}

// MarshalJSON renders Err as its message.
func (r VerificationResult) MarshalJSON() ([]byte, error) {
	type plain VerificationResult
	var msg string
	if r.Err != nil {
		msg = r.Err.Error()
	}
	return json.Marshal(struct {
		plain
		Err string `json:",omitempty"`
	}{plain(r), msg})
}

// VerificationReport covers every result of a run.
type VerificationReport struct {
	RunID     string
	Total     int
	Matched   int
	Divergent int
	Failed    int // replay errors, e.g. missing series or strategy
	Results   []VerificationResult
}

// OK reports whether every result replayed identically.
func (r *VerificationReport) OK() bool {
	return r.Total > 0 && r.Matched == r.Total
}

// Verifier replays stored runs.
type Verifier interface {
	// VerifyRun replays all results of runID against series keyed by token
	// and the grid the run swept.
	VerifyRun(ctx context.Context, runID string, series map[string]domain.BarSeries, grid strategy.Grid) (*VerificationReport, error)
}

// CompareResults lists every field of replayed that differs from stored.
func CompareResults(stored, replayed *domain.Result) []FieldDivergence {
	var out []FieldDivergence
	add := func(field string, expected, actual any) {
		out = append(out, FieldDivergence{Field: field, Expected: expected, Actual: actual})
	}

	if stored.ResultID != replayed.ResultID {
		add("ResultID", stored.ResultID, replayed.ResultID)
	}
	if stored.StrategyID != replayed.StrategyID {
		add("StrategyID", stored.StrategyID, replayed.StrategyID)
	}
	if stored.EntryTimestamp != replayed.EntryTimestamp {
		add("EntryTimestamp", stored.EntryTimestamp, replayed.EntryTimestamp)
	}
	if stored.RawEntry != replayed.RawEntry {
		add("RawEntry", stored.RawEntry, replayed.RawEntry)
	}
	if stored.PaidEntry != replayed.PaidEntry {
		add("PaidEntry", stored.PaidEntry, replayed.PaidEntry)
	}
	if stored.Quantity != replayed.Quantity {
		add("Quantity", stored.Quantity, replayed.Quantity)
	}
	if stored.BuyFee != replayed.BuyFee {
		add("BuyFee", stored.BuyFee, replayed.BuyFee)
	}
	if stored.Proceeds != replayed.Proceeds {
		add("Proceeds", stored.Proceeds, replayed.Proceeds)
	}
	if stored.SellFees != replayed.SellFees {
		add("SellFees", stored.SellFees, replayed.SellFees)
	}
	if stored.PnLUSD != replayed.PnLUSD {
		add("PnLUSD", stored.PnLUSD, replayed.PnLUSD)
	}
	if stored.HoldMinutes != replayed.HoldMinutes {
		add("HoldMinutes", stored.HoldMinutes, replayed.HoldMinutes)
	}
	if stored.MaxFavorableMultiple != replayed.MaxFavorableMultiple {
		add("MaxFavorableMultiple", stored.MaxFavorableMultiple, replayed.MaxFavorableMultiple)
	}
	if stored.ExitReason != replayed.ExitReason {
		add("ExitReason", stored.ExitReason, replayed.ExitReason)
	}
	if stored.ExitTimestamp != replayed.ExitTimestamp {
		add("ExitTimestamp", stored.ExitTimestamp, replayed.ExitTimestamp)
	}

	if len(stored.Fills) != len(replayed.Fills) {
		add("Fills", len(stored.Fills), len(replayed.Fills))
		return out
	}
	for i := range stored.Fills {
		if stored.Fills[i] != replayed.Fills[i] {
			add(fmt.Sprintf("Fills[%d]", i), stored.Fills[i], replayed.Fills[i])
		}
	}
	return out
}
