package simulation

import (
	"exit-strategy-lab/internal/domain"
	"exit-strategy-lab/internal/lookup"
)

// ResolveEntry maps a signal's wall-clock minute to its entry bar.
// Returns lookup.ErrNotFound when the series has no acceptable bar.
func ResolveEntry(series domain.BarSeries, signal domain.Signal, policy lookup.Policy) (lookup.Match, error) {
	return lookup.Resolve(series, lookup.Request{
		Hour:     signal.Hour,
		Minute:   signal.Minute,
		Timezone: signal.Timezone,
	}, policy)
}
