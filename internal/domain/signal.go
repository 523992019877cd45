package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownTimezone is returned for unsupported timezone tags.
var ErrUnknownTimezone = errors.New("unknown timezone tag")

// TimezoneTag names the convention a requested HH:MM is written in.
type TimezoneTag string

const (
	TimezoneUTC TimezoneTag = "UTC"
	TimezoneKHI TimezoneTag = "KHI" // Karachi, UTC+5
)

// OffsetHours returns the fixed offset from UTC.
func (tz TimezoneTag) OffsetHours() int {
	if tz == TimezoneKHI {
		return 5
	}
	return 0
}

// ParseTimezone parses a tag case-insensitively. Empty means UTC.
func ParseTimezone(s string) (TimezoneTag, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "UTC":
		return TimezoneUTC, nil
	case "KHI":
		return TimezoneKHI, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTimezone, s)
	}
}

// Signal is one batch entry: a token and the wall-clock minute it was called.
type Signal struct {
	Token         string
	Hour          int
	Minute        int
	Timezone      TimezoneTag
	Notional      float64 // USD invested
	FillMode      FillMode
	MarketCapHint string // informational, never used in math
	Line          int    // source line in the batch file, 0 if not from a file
}

// HHMM formats the requested time.
func (s Signal) HHMM() string {
	return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
}
