package reporting

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"exit-strategy-lab/internal/domain"
)

// RenderConsole writes the top-ranked strategies as an aligned table.
func RenderConsole(w io.Writer, r *Report) error {
	if r.Run != nil {
		run := r.Run
		fmt.Fprintf(w, "Run %s: matched %s of %s signals (unmatched %s, unavailable %s), %s strategies, %s pairs\n",
			run.RunID, Count(run.Matched), Count(run.Signals), Count(run.Unmatched), Count(run.Unavailable),
			Count(run.Strategies), Count(run.Pairs))
		if run.PairErrors > 0 {
			fmt.Fprintf(w, "%s pairs failed and are excluded from totals\n", Count(run.PairErrors))
		}
		if run.Rejected > 0 {
			fmt.Fprintf(w, "Rejected %s strategy combinations at grid build\n", Count(run.Rejected))
		}
	}

	top := r.Top()
	if len(top) == 0 {
		_, err := fmt.Fprintln(w, "No ranked strategies.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "#\tstrategy\ttotal\tmean\twin\ttrades\tPF\tsharpe\tmaxDD\thold\texits\t")
	for _, a := range top {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\t%.0fm\t%s\t\n",
			a.Rank,
			a.StrategyID,
			USD(a.TotalPnL),
			USD(a.MeanPnL),
			Percent(a.WinRate),
			a.Trades,
			Ratio(a.ProfitFactor),
			Ratio(a.Sharpe),
			USD(a.MaxDrawdown),
			a.MeanHoldMinutes,
			exitSummary(a.ExitCounts),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, n := range r.Notes {
		fmt.Fprintf(w, "note: %s\n", n)
	}
	return nil
}

// exitSummary renders exit counts as "TP:3 SL:1".
func exitSummary(counts map[domain.ExitReason]int) string {
	var parts []string
	for _, reason := range exitOrder {
		if n := counts[reason]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s:%d", reason, n))
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}
