package lookup

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"exit-strategy-lab/internal/domain"
)

// ErrNotFound is returned when no bar matches the requested time.
// Callers skip the signal and count it as unmatched.
var ErrNotFound = errors.New("no entry bar for requested time")

// DefaultTolerance is the minute window searched on either side.
const DefaultTolerance = 5

const (
	minutesPerHour = 60
	hoursPerDay    = 24
	minutesPerDay  = minutesPerHour * hoursPerDay
)

// Method records which rule produced a match.
type Method string

const (
	MethodExact        Method = "exact"
	MethodTolerance    Method = "tolerance"
	MethodNearestHour  Method = "nearest_hour"
	MethodHourFallback Method = "hour_fallback"
)

// Policy controls how far the resolver may move from the requested minute.
type Policy struct {
	Strict      bool // exact minute only, no fallback
	Tolerance   int  // minutes searched either side when not strict
	NearestHour bool // retry at the closest present hour when not strict
}

// DefaultPolicy is the non-strict policy: +-5 minutes, then nearest hour.
func DefaultPolicy() Policy {
	return Policy{Tolerance: DefaultTolerance, NearestHour: true}
}

// StrictPolicy matches the exact minute only.
func StrictPolicy() Policy {
	return Policy{Strict: true}
}

// Request is the wall-clock minute of a signal.
type Request struct {
	Hour     int
	Minute   int
	Timezone domain.TimezoneTag
}

// Match is a resolved entry bar.
type Match struct {
	Index        int // position in the series
	Bar          domain.Bar
	Method       Method
	TargetHour   int // requested hour normalized to UTC
	TargetMinute int
	DeltaMinutes int // matched minute minus target, circular, in (-720, 720]
}

// UTCHour converts a wall-clock hour to UTC: (hour - offset) mod 24.
func UTCHour(hour int, tz domain.TimezoneTag) int {
	return mod(hour-tz.OffsetHours(), hoursPerDay)
}

// Resolve maps a requested HH:MM to one bar of the series.
// It is a pure function of its inputs and never panics.
func Resolve(series domain.BarSeries, req Request, policy Policy) (Match, error) {
	if req.Hour < 0 || req.Hour >= hoursPerDay || req.Minute < 0 || req.Minute >= minutesPerHour {
		return Match{}, fmt.Errorf("%w: invalid time %02d:%02d", ErrNotFound, req.Hour, req.Minute)
	}
	if series.Len() == 0 {
		return Match{}, fmt.Errorf("%w: empty series", ErrNotFound)
	}

	idx := buildMinuteIndex(series)
	hour := UTCHour(req.Hour, req.Timezone)
	minute := req.Minute

	tolerance := 0
	if !policy.Strict {
		tolerance = policy.Tolerance
		if tolerance < 0 {
			tolerance = 0
		}
	}

	if i, d, ok := idx.search(hour, minute, tolerance); ok {
		method := MethodTolerance
		if d == 0 {
			method = MethodExact
		}
		return newMatch(series, i, method, hour, minute), nil
	}

	if policy.Strict || !policy.NearestHour {
		return Match{}, fmt.Errorf("%w: %02d:%02d UTC", ErrNotFound, hour, minute)
	}

	best, ok := idx.nearestHour(hour)
	if !ok {
		return Match{}, fmt.Errorf("%w: %02d:%02d UTC", ErrNotFound, hour, minute)
	}
	if i, _, ok := idx.search(best, minute, tolerance); ok {
		return newMatch(series, i, MethodNearestHour, hour, minute), nil
	}
	if i, ok := idx.earliestInHour(best); ok {
		return newMatch(series, i, MethodHourFallback, hour, minute), nil
	}

	return Match{}, fmt.Errorf("%w: %02d:%02d UTC", ErrNotFound, hour, minute)
}

func newMatch(series domain.BarSeries, i int, method Method, hour, minute int) Match {
	bar := series.Bars[i]
	t := time.Unix(bar.Timestamp, 0).UTC()
	delta := mod(t.Hour()*minutesPerHour+t.Minute()-(hour*minutesPerHour+minute), minutesPerDay)
	if delta > minutesPerDay/2 {
		delta -= minutesPerDay
	}
	return Match{
		Index:        i,
		Bar:          bar,
		Method:       method,
		TargetHour:   hour,
		TargetMinute: minute,
		DeltaMinutes: delta,
	}
}

// minuteIndex maps minute-of-day to the most recent bar index at that minute.
type minuteIndex map[int]int

func buildMinuteIndex(series domain.BarSeries) minuteIndex {
	idx := make(minuteIndex, series.Len())
	for i, b := range series.Bars {
		t := time.Unix(b.Timestamp, 0).UTC()
		idx[t.Hour()*minutesPerHour+t.Minute()] = i
	}
	return idx
}

// search probes offsets 0, +1..+tol, -1..-tol with wraparound.
// Returns the bar index and the offset that hit.
func (m minuteIndex) search(hour, minute, tol int) (int, int, bool) {
	base := hour*minutesPerHour + minute
	if i, ok := m[mod(base, minutesPerDay)]; ok {
		return i, 0, true
	}
	for d := 1; d <= tol; d++ {
		if i, ok := m[mod(base+d, minutesPerDay)]; ok {
			return i, d, true
		}
	}
	for d := 1; d <= tol; d++ {
		if i, ok := m[mod(base-d, minutesPerDay)]; ok {
			return i, -d, true
		}
	}
	return 0, 0, false
}

// nearestHour returns the present hour with the smallest circular
// distance to target. Ties go to the lower hour.
func (m minuteIndex) nearestHour(target int) (int, bool) {
	present := make(map[int]struct{})
	for k := range m {
		present[k/minutesPerHour] = struct{}{}
	}
	if len(present) == 0 {
		return 0, false
	}

	hours := make([]int, 0, len(present))
	for h := range present {
		hours = append(hours, h)
	}
	sort.Ints(hours)

	best := hours[0]
	for _, h := range hours[1:] {
		if HourDistance(h, target) < HourDistance(best, target) {
			best = h
		}
	}
	return best, true
}

// earliestInHour returns the bar at the smallest minute present in hour.
func (m minuteIndex) earliestInHour(hour int) (int, bool) {
	for minute := 0; minute < minutesPerHour; minute++ {
		if i, ok := m[hour*minutesPerHour+minute]; ok {
			return i, true
		}
	}
	return 0, false
}

// HourDistance is the circular distance between two hours of the day.
func HourDistance(a, b int) int {
	d := mod(a-b, hoursPerDay)
	if hoursPerDay-d < d {
		return hoursPerDay - d
	}
	return d
}

func mod(a, n int) int {
	r := a % n
	if r < 0 {
		r += n
	}
	return r
}
