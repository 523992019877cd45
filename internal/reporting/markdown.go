package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders the report as Markdown.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	sb.WriteString("# Strategy Sweep Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	if run := r.Run; run != nil {
		sb.WriteString(fmt.Sprintf("Run: `%s` | Started: %s | Horizon: %d bars\n\n",
			run.RunID, run.StartedAt.UTC().Format(time.RFC3339), run.Horizon))

		sb.WriteString("## Execution\n\n")
		sb.WriteString("| Setting | Value |\n")
		sb.WriteString("|---------|-------|\n")
		sb.WriteString(fmt.Sprintf("| Slippage | %s (%s, %s) |\n", Percent(run.Exec.Slippage), run.Exec.SlippageMode, run.Exec.SlippageSide))
		sb.WriteString(fmt.Sprintf("| Buy fee | %s |\n", Percent(run.Exec.BuyFee)))
		sb.WriteString(fmt.Sprintf("| Sell fee | %s |\n", Percent(run.Exec.SellFee)))
		sb.WriteString("\n")

		sb.WriteString("## Population\n\n")
		sb.WriteString("| Metric | Value |\n")
		sb.WriteString("|--------|-------|\n")
		sb.WriteString(fmt.Sprintf("| Signals | %s |\n", Count(run.Signals)))
		sb.WriteString(fmt.Sprintf("| Matched | %s |\n", Count(run.Matched)))
		sb.WriteString(fmt.Sprintf("| Skipped: no entry bar | %s |\n", Count(run.Unmatched)))
		sb.WriteString(fmt.Sprintf("| Skipped: no data | %s |\n", Count(run.Unavailable)))
		sb.WriteString(fmt.Sprintf("| Strategies | %s |\n", Count(run.Strategies)))
		sb.WriteString(fmt.Sprintf("| Rejected strategies | %s |\n", Count(run.Rejected)))
		sb.WriteString(fmt.Sprintf("| Pairs | %s |\n", Count(run.Pairs)))
		sb.WriteString(fmt.Sprintf("| Failed pairs | %s |\n", Count(run.PairErrors)))
		sb.WriteString("\n")
	}

	sb.WriteString("## Ranking\n\n")
	top := r.Top()
	if len(top) > 0 {
		sb.WriteString("| # | Strategy | Total PnL | Mean PnL | Win Rate | Trades | PF | Sharpe | Max DD | Hold | Exits |\n")
		sb.WriteString("|---|----------|-----------|----------|----------|--------|----|--------|--------|------|-------|\n")
		for _, a := range top {
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s | %d | %s | %s | %s | %.1f | %s |\n",
				a.Rank, a.StrategyID, USD(a.TotalPnL), USD(a.MeanPnL), Percent(a.WinRate), a.Trades,
				Ratio(a.ProfitFactor), Ratio(a.Sharpe), USD(a.MaxDrawdown), a.MeanHoldMinutes, exitSummary(a.ExitCounts)))
		}
		if len(top) < len(r.Ranking) {
			sb.WriteString(fmt.Sprintf("\nShowing %d of %d strategies.\n", len(top), len(r.Ranking)))
		}
	} else {
		sb.WriteString("No ranked strategies.\n")
	}
	sb.WriteString("\n")

	sb.WriteString("## Exit Reasons\n\n")
	totals := r.ExitTotals()
	if len(totals) > 0 {
		sb.WriteString("| Reason | Count |\n")
		sb.WriteString("|--------|-------|\n")
		for _, reason := range exitOrder {
			sb.WriteString(fmt.Sprintf("| %s | %s |\n", reason, Count(totals[reason])))
		}
	} else {
		sb.WriteString("No exits recorded.\n")
	}
	sb.WriteString("\n")

	if len(r.Notes) > 0 {
		sb.WriteString("## Notes\n\n")
		for _, n := range r.Notes {
			sb.WriteString(fmt.Sprintf("- %s\n", n))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
