package replay

import "errors"

// Replay errors
var (
	// ErrInvalidOrdering is returned when bars are not strictly increasing by timestamp.
	ErrInvalidOrdering = errors.New("bars are not in deterministic order")

	// ErrStartOutOfRange is returned when a window starts outside its series.
	ErrStartOutOfRange = errors.New("window start outside series")
)
