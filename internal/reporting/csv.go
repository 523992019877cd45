package reporting

import (
	"fmt"
	"strings"
)

// RenderRankingCSV renders ranked strategy aggregates as CSV.
func RenderRankingCSV(r *Report) string {
	var sb strings.Builder

	sb.WriteString("rank,strategy_id,trades,wins,losses,win_rate,total_pnl_usd,mean_pnl_usd,median_pnl_usd,")
	sb.WriteString("min_pnl_usd,max_pnl_usd,mean_return_pct,profit_factor,sharpe,max_drawdown_usd,")
	sb.WriteString("mean_hold_min,avg_mfe,exits_tp,exits_sl,exits_tsl,exits_time\n")

	for _, a := range r.Ranking {
		sb.WriteString(fmt.Sprintf("%d,%s,%d,%d,%d,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s",
			a.Rank,
			a.StrategyID,
			a.Trades,
			a.Wins,
			a.Losses,
			csvFloat(a.WinRate),
			csvUSD(a.TotalPnL),
			csvUSD(a.MeanPnL),
			csvUSD(a.MedianPnL),
			csvUSD(a.MinPnL),
			csvUSD(a.MaxPnL),
			csvFloat(a.MeanReturnPct),
			csvFloat(a.ProfitFactor),
			csvFloat(a.Sharpe),
			csvUSD(a.MaxDrawdown),
			csvFloat(a.MeanHoldMinutes),
			csvFloat(a.AvgMFE),
		))
		for _, reason := range exitOrder {
			sb.WriteString(fmt.Sprintf(",%d", a.ExitCounts[reason]))
		}
		sb.WriteByte('\n')
	}

	return sb.String()
}

// RenderResultsCSV renders per-pair results as CSV.
func RenderResultsCSV(r *Report) string {
	var sb strings.Builder

	sb.WriteString("result_id,strategy_id,signal_index,token,entry_ts,raw_entry,paid_entry,notional_usd,")
	sb.WriteString("quantity,buy_fee_usd,proceeds_usd,sell_fees_usd,pnl_usd,return_pct,hold_min,mfe,")
	sb.WriteString("exit_reason,exit_ts,fills\n")

	for _, res := range r.Results {
		sb.WriteString(fmt.Sprintf("%s,%s,%d,%s,%d,%s,%s,%s,%s,%s,%s,%s,%s,%s,%d,%s,%s,%d,%d\n",
			res.ResultID,
			res.StrategyID,
			res.SignalIndex,
			res.Token,
			res.EntryTimestamp,
			csvFloat(res.RawEntry),
			csvFloat(res.PaidEntry),
			csvUSD(res.Notional),
			csvFloat(res.Quantity),
			csvUSD(res.BuyFee),
			csvUSD(res.Proceeds),
			csvUSD(res.SellFees),
			csvUSD(res.PnLUSD),
			csvFloat(res.ReturnPct),
			res.HoldMinutes,
			csvFloat(res.MaxFavorableMultiple),
			res.ExitReason,
			res.ExitTimestamp,
			len(res.Fills),
		))
	}

	return sb.String()
}
