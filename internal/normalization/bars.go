package normalization

import (
	"errors"
	"time"

	"exit-strategy-lab/internal/domain"
)

// ErrNoValidBars is returned when no raw bar survives conversion.
var ErrNoValidBars = errors.New("no valid bars")

// Stats counts what canonicalization dropped.
type Stats struct {
	Input      int
	Malformed  int // could not be decoded
	Invalid    int // failed the OHLC envelope check
	Duplicates int // later bar for an already-seen minute
	Output     int
}

// ToBar converts one raw bar into the canonical type.
// The timestamp is floored to the minute.
func ToBar(r RawBar) (domain.Bar, error) {
	ts, err := r.Timestamp()
	if err != nil {
		return domain.Bar{}, err
	}
	o, h, l, c, vol, err := r.ohlcv()
	if err != nil {
		return domain.Bar{}, err
	}
	return domain.Bar{
		Timestamp: ts - ts%domain.SecondsPerMinute,
		Open:      o,
		High:      h,
		Low:       l,
		Close:     c,
		Volume:    vol,
	}, nil
}

// NormalizeBars resolves raw provider bars into a BarSeries:
// converted, minute aligned, ascending, one bar per minute (first seen wins).
func NormalizeBars(network, pool string, raws []RawBar) (domain.BarSeries, Stats, error) {
	stats := Stats{Input: len(raws)}
	bars := make([]domain.Bar, 0, len(raws))

	for _, r := range raws {
		b, err := ToBar(r)
		if err != nil {
			stats.Malformed++
			continue
		}
		if err := b.Validate(); err != nil {
			stats.Invalid++
			continue
		}
		bars = append(bars, b)
	}

	SortBars(bars)
	bars, stats.Duplicates = dedupeMinutes(bars)
	stats.Output = len(bars)

	series := domain.BarSeries{Network: network, Pool: pool, Bars: bars}
	if len(bars) == 0 {
		return series, stats, ErrNoValidBars
	}
	return series, stats, nil
}

// dedupeMinutes keeps the first bar for each timestamp.
// bars must be stably sorted so "first" means first seen in input order.
func dedupeMinutes(bars []domain.Bar) ([]domain.Bar, int) {
	if len(bars) < 2 {
		return bars, 0
	}
	out := bars[:1]
	dropped := 0
	for _, b := range bars[1:] {
		if b.Timestamp == out[len(out)-1].Timestamp {
			dropped++
			continue
		}
		out = append(out, b)
	}
	return out, dropped
}

// WithinLookback returns the bars with now-lookback <= ts <= now.
// The returned series shares no backing array with the input.
func WithinLookback(series domain.BarSeries, now time.Time, lookback time.Duration) domain.BarSeries {
	end := now.Unix()
	cutoff := end - int64(lookback/time.Second)

	out := domain.BarSeries{Network: series.Network, Pool: series.Pool}
	for _, b := range series.Bars {
		if b.Timestamp >= cutoff && b.Timestamp <= end {
			out.Bars = append(out.Bars, b)
		}
	}
	return out
}

// Merge combines two series for the same pool, preferring bars from a on
// duplicate minutes.
func Merge(a, b domain.BarSeries) domain.BarSeries {
	bars := make([]domain.Bar, 0, len(a.Bars)+len(b.Bars))
	bars = append(bars, a.Bars...)
	bars = append(bars, b.Bars...)
	SortBars(bars)
	bars, _ = dedupeMinutes(bars)
	return domain.BarSeries{Network: a.Network, Pool: a.Pool, Bars: bars}
}
