package api

import (
	"encoding/json"
	"math"
	"time"

	"exit-strategy-lab/internal/domain"
)

// jsonFloat encodes NaN and infinities as null.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// aggregateView is the JSON form of a ranked strategy. ProfitFactor is null
// when a strategy never lost.
type aggregateView struct {
	Rank            int                       `json:"rank"`
	StrategyID      string                    `json:"strategy_id"`
	Trades          int                       `json:"trades"`
	Wins            int                       `json:"wins"`
	Losses          int                       `json:"losses"`
	WinRate         jsonFloat                 `json:"win_rate"`
	TotalPnL        jsonFloat                 `json:"total_pnl"`
	MeanPnL         jsonFloat                 `json:"mean_pnl"`
	MedianPnL       jsonFloat                 `json:"median_pnl"`
	MinPnL          jsonFloat                 `json:"min_pnl"`
	MaxPnL          jsonFloat                 `json:"max_pnl"`
	MeanReturnPct   jsonFloat                 `json:"mean_return_pct"`
	ProfitFactor    jsonFloat                 `json:"profit_factor"`
	Sharpe          jsonFloat                 `json:"sharpe"`
	MaxDrawdown     jsonFloat                 `json:"max_drawdown"`
	MeanHoldMinutes jsonFloat                 `json:"mean_hold_minutes"`
	AvgMFE          jsonFloat                 `json:"avg_mfe"`
	ExitCounts      map[domain.ExitReason]int `json:"exit_counts"`
}

func newAggregateView(a *domain.StrategyAggregate) aggregateView {
	return aggregateView{
		Rank:            a.Rank,
		StrategyID:      a.StrategyID,
		Trades:          a.Trades,
		Wins:            a.Wins,
		Losses:          a.Losses,
		WinRate:         jsonFloat(a.WinRate),
		TotalPnL:        jsonFloat(a.TotalPnL),
		MeanPnL:         jsonFloat(a.MeanPnL),
		MedianPnL:       jsonFloat(a.MedianPnL),
		MinPnL:          jsonFloat(a.MinPnL),
		MaxPnL:          jsonFloat(a.MaxPnL),
		MeanReturnPct:   jsonFloat(a.MeanReturnPct),
		ProfitFactor:    jsonFloat(a.ProfitFactor),
		Sharpe:          jsonFloat(a.Sharpe),
		MaxDrawdown:     jsonFloat(a.MaxDrawdown),
		MeanHoldMinutes: jsonFloat(a.MeanHoldMinutes),
		AvgMFE:          jsonFloat(a.AvgMFE),
		ExitCounts:      a.ExitCounts,
	}
}

// runView is the JSON form of a stored run.
type runView struct {
	RunID       string            `json:"run_id"`
	StartedAt   string            `json:"started_at"`
	FinishedAt  string            `json:"finished_at,omitempty"`
	Exec        domain.ExecConfig `json:"exec"`
	Horizon     int               `json:"horizon"`
	Signals     int               `json:"signals"`
	Matched     int               `json:"matched"`
	Unmatched   int               `json:"unmatched"`
	Unavailable int               `json:"unavailable"`
	Rejected    int               `json:"rejected"`
	Strategies  int               `json:"strategies"`
	Pairs       int               `json:"pairs"`
	PairErrors  int               `json:"pair_errors"`
}

func newRunView(r *domain.SweepRun) runView {
	v := runView{
		RunID:       r.RunID,
		StartedAt:   r.StartedAt.UTC().Format(time.RFC3339),
		Exec:        r.Exec,
		Horizon:     r.Horizon,
		Signals:     r.Signals,
		Matched:     r.Matched,
		Unmatched:   r.Unmatched,
		Unavailable: r.Unavailable,
		Rejected:    r.Rejected,
		Strategies:  r.Strategies,
		Pairs:       r.Pairs,
		PairErrors:  r.PairErrors,
	}
	if !r.FinishedAt.IsZero() {
		v.FinishedAt = r.FinishedAt.UTC().Format(time.RFC3339)
	}
	return v
}
