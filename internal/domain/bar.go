package domain

import (
	"errors"
	"fmt"
	"math"
)

// Bar errors
var (
	ErrInvalidBar       = errors.New("invalid bar")
	ErrUnorderedSeries  = errors.New("bar series not strictly increasing")
	ErrEmptySeries      = errors.New("bar series is empty")
	ErrIndexOutOfBounds = errors.New("bar index out of bounds")
)

// SecondsPerMinute is the bar interval.
const SecondsPerMinute = 60

// Bar is one minute OHLCV candle.
// Timestamp is Unix seconds (UTC) aligned to the minute.
type Bar struct {
	Timestamp int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    *float64 // nil when the provider omits volume
}

// IsBullish reports whether the bar closed at or above its open.
func (b Bar) IsBullish() bool {
	return b.Close >= b.Open
}

// Validate checks the OHLC envelope: low <= open,close <= high.
func (b Bar) Validate() error {
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite price at ts=%d", ErrInvalidBar, b.Timestamp)
		}
	}
	if b.Timestamp%SecondsPerMinute != 0 {
		return fmt.Errorf("%w: ts=%d not minute aligned", ErrInvalidBar, b.Timestamp)
	}
	if b.Low > b.High {
		return fmt.Errorf("%w: low %v > high %v at ts=%d", ErrInvalidBar, b.Low, b.High, b.Timestamp)
	}
	if b.Open < b.Low || b.Open > b.High || b.Close < b.Low || b.Close > b.High {
		return fmt.Errorf("%w: open/close outside [low, high] at ts=%d", ErrInvalidBar, b.Timestamp)
	}
	return nil
}

// BarSeries is an ordered, deduplicated minute series for one pool.
// Read-only once built.
type BarSeries struct {
	Network string
	Pool    string
	Bars    []Bar
}

// Len returns the number of bars.
func (s BarSeries) Len() int {
	return len(s.Bars)
}

// Last returns the final bar. ok is false on an empty series.
func (s BarSeries) Last() (Bar, bool) {
	if len(s.Bars) == 0 {
		return Bar{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

// IndexOf returns the index of the bar with the exact timestamp, or -1.
func (s BarSeries) IndexOf(ts int64) int {
	lo, hi := 0, len(s.Bars)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if s.Bars[mid].Timestamp < ts {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(s.Bars) && s.Bars[lo].Timestamp == ts {
		return lo
	}
	return -1
}

// Key identifies the series in caches and stores.
func (s BarSeries) Key() string {
	return s.Network + "_" + s.Pool
}

// Validate checks every bar and strict timestamp ordering.
func (s BarSeries) Validate() error {
	for i, b := range s.Bars {
		if err := b.Validate(); err != nil {
			return err
		}
		if i > 0 && b.Timestamp <= s.Bars[i-1].Timestamp {
			return fmt.Errorf("%w: ts=%d after ts=%d", ErrUnorderedSeries, b.Timestamp, s.Bars[i-1].Timestamp)
		}
	}
	return nil
}
