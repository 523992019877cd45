package normalization

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ErrMalformedBar is returned when a raw bar cannot be converted.
var ErrMalformedBar = errors.New("malformed raw bar")

// msThreshold separates second from millisecond timestamps.
const msThreshold = 10_000_000_000

// maxRawTimestamp bounds raw values before integer conversion.
// 1e15 ms is past the year 30000.
const maxRawTimestamp = 1e15

// Shape identifies which variant of RawBar is populated.
type Shape int

const (
	ShapeTuple  Shape = iota + 1 // [ts, o, h, l, c, v?]
	ShapeRecord                  // {"ts": .., "open": .., ...}
)

// Keys accepted for each field of a keyed record, in lookup order.
var (
	timestampKeys = []string{"ts", "timestamp", "time", "t", "open_time", "openTime"}
	openKeys      = []string{"o", "open"}
	highKeys      = []string{"h", "high"}
	lowKeys       = []string{"l", "low"}
	closeKeys     = []string{"c", "close"}
	volumeKeys    = []string{"v", "volume"}
)

// RawBar is a provider bar before canonicalization.
// Exactly one of Tuple or Record is meaningful, selected by Shape.
type RawBar struct {
	Shape  Shape
	Tuple  []float64
	Record map[string]float64
}

// TupleBar builds a tuple-shaped raw bar.
func TupleBar(values ...float64) RawBar {
	return RawBar{Shape: ShapeTuple, Tuple: values}
}

// RecordBar builds a record-shaped raw bar.
func RecordBar(fields map[string]float64) RawBar {
	return RawBar{Shape: ShapeRecord, Record: fields}
}

// UnmarshalJSON accepts either a JSON array or a JSON object.
// Numbers may be encoded as JSON numbers or numeric strings.
func (r *RawBar) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("%w: empty", ErrMalformedBar)
	}

	switch data[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedBar, err)
		}
		vals := make([]float64, len(items))
		for i, item := range items {
			v, ok := parseNumber(item)
			if !ok {
				v = math.NaN()
			}
			vals[i] = v
		}
		*r = TupleBar(vals...)
		return nil

	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(data, &fields); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedBar, err)
		}
		rec := make(map[string]float64, len(fields))
		for k, item := range fields {
			if v, ok := parseNumber(item); ok {
				rec[k] = v
			}
		}
		*r = RecordBar(rec)
		return nil

	default:
		return fmt.Errorf("%w: unexpected %q", ErrMalformedBar, data[0])
	}
}

// MarshalJSON writes the bar back in its original shape.
func (r RawBar) MarshalJSON() ([]byte, error) {
	if r.Shape == ShapeRecord {
		return json.Marshal(r.Record)
	}
	return json.Marshal(r.Tuple)
}

func parseNumber(raw json.RawMessage) (float64, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

// Timestamp returns the bar time in Unix seconds, converting milliseconds.
func (r RawBar) Timestamp() (int64, error) {
	var v float64
	switch r.Shape {
	case ShapeTuple:
		if len(r.Tuple) == 0 {
			return 0, fmt.Errorf("%w: empty tuple", ErrMalformedBar)
		}
		v = r.Tuple[0]
	case ShapeRecord:
		found := false
		v, found = lookup(r.Record, timestampKeys)
		if !found {
			return 0, fmt.Errorf("%w: no timestamp key", ErrMalformedBar)
		}
	default:
		return 0, fmt.Errorf("%w: unknown shape %d", ErrMalformedBar, r.Shape)
	}

	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 || v >= maxRawTimestamp {
		return 0, fmt.Errorf("%w: timestamp %v", ErrMalformedBar, v)
	}
	ts := int64(v)
	if ts > msThreshold {
		ts /= 1000
	}
	return ts, nil
}

// ohlcv extracts prices and optional volume.
func (r RawBar) ohlcv() (o, h, l, c float64, vol *float64, err error) {
	switch r.Shape {
	case ShapeTuple:
		if len(r.Tuple) < 5 {
			return 0, 0, 0, 0, nil, fmt.Errorf("%w: tuple has %d fields", ErrMalformedBar, len(r.Tuple))
		}
		o, h, l, c = r.Tuple[1], r.Tuple[2], r.Tuple[3], r.Tuple[4]
		if len(r.Tuple) > 5 && !math.IsNaN(r.Tuple[5]) {
			v := r.Tuple[5]
			vol = &v
		}
		return o, h, l, c, vol, nil

	case ShapeRecord:
		var ok [4]bool
		o, ok[0] = lookup(r.Record, openKeys)
		h, ok[1] = lookup(r.Record, highKeys)
		l, ok[2] = lookup(r.Record, lowKeys)
		c, ok[3] = lookup(r.Record, closeKeys)
		for _, present := range ok {
			if !present {
				return 0, 0, 0, 0, nil, fmt.Errorf("%w: record missing price field", ErrMalformedBar)
			}
		}
		if v, found := lookup(r.Record, volumeKeys); found {
			vol = &v
		}
		return o, h, l, c, vol, nil

	default:
		return 0, 0, 0, 0, nil, fmt.Errorf("%w: unknown shape %d", ErrMalformedBar, r.Shape)
	}
}

func lookup(m map[string]float64, keys []string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return 0, false
}
