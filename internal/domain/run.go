package domain

import "time"

// SweepRun records one sweep execution and the population it covered.
type SweepRun struct {
	RunID      string // UUID
	StartedAt  time.Time
	FinishedAt time.Time
	Exec       ExecConfig
	Horizon    int

	Signals     int // batch lines parsed
	Matched     int // entry bar resolved
	Unmatched   int // no entry bar
	Unavailable int // no bar series from the provider
	Rejected    int // strategies rejected at grid build
	Strategies  int // strategies simulated
	Pairs       int // (signal, strategy) pairs simulated
	PairErrors  int // pairs that failed closed
}
