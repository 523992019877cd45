// Package batch reads signal batch files.
//
// One signal per line, fields separated by '|' (or ',' when no '|' is present):
//
//	mint|HH:MM|invest|tp1_up|tp1_sz|tp2_up|tp2_sz|sl|mode
//	mint|HH:MM|mc|invest|tp1_up|tp1_sz|tp2_up|tp2_sz|sl|mode
//
// Ladder and stop values are percentages. Blank lines and lines starting with
// '#' are skipped.
package batch

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"exit-strategy-lab/internal/domain"
	"exit-strategy-lab/internal/strategy"
)

// Line errors
var (
	ErrFieldCount = errors.New("unexpected field count")
	ErrBadTime    = errors.New("bad HH:MM")
	ErrBadNumber  = errors.New("bad number")
)

const (
	shortFields = 9
	longFields  = 10
)

// LineError reports a rejected line.
type LineError struct {
	Line int
	Text string
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Defaults apply to every parsed signal.
type Defaults struct {
	Timezone domain.TimezoneTag // empty means UTC
}

// Line is a parsed batch line.
type Line struct {
	Number int
	Parts  []string
	Signal domain.Signal
}

// Parse reads signals from r. Rejected lines are returned, never dropped.
func Parse(r io.Reader, d Defaults) ([]domain.Signal, []*LineError) {
	lines, errs := ParseLines(r, d)
	signals := make([]domain.Signal, len(lines))
	for i, l := range lines {
		signals[i] = l.Signal
	}
	return signals, errs
}

// ParseFile parses the batch file at path.
func ParseFile(path string, d Defaults) ([]domain.Signal, []*LineError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open batch file: %w", err)
	}
	defer f.Close()

	signals, lineErrs := Parse(f, d)
	return signals, lineErrs, nil
}

// ParseLines is Parse keeping the raw fields of each line.
// A leading byte order mark is honoured, so UTF-16 files decode too.
func ParseLines(r io.Reader, d Defaults) ([]Line, []*LineError) {
	tz := d.Timezone
	if tz == "" {
		tz = domain.TimezoneUTC
	}

	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	scanner := bufio.NewScanner(decoded)

	var (
		lines []Line
		errs  []*LineError
		n     int
	)
	for scanner.Scan() {
		n++
		text := scanner.Text()
		parts := SplitFields(text)
		if parts == nil {
			continue
		}

		sig, err := lineSignal(parts)
		if err != nil {
			errs = append(errs, &LineError{Line: n, Text: text, Err: err})
			continue
		}
		sig.Timezone = tz
		sig.Line = n
		lines = append(lines, Line{Number: n, Parts: parts, Signal: sig})
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, &LineError{Line: n + 1, Err: err})
	}
	return lines, errs
}

// SplitFields returns the trimmed, non-empty fields of a line, or nil for
// blank and comment lines.
func SplitFields(line string) []string {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}

	sep := ","
	if strings.Contains(line, "|") {
		sep = "|"
	}

	var parts []string
	for _, p := range strings.Split(line, sep) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// fields maps a line onto named positions regardless of layout.
type fields struct {
	mint, hhmm, mc, invest string
	ladder                 []string // tp1_up, tp1_sz, tp2_up, tp2_sz, sl
	mode                   string
}

func splitLayout(parts []string) (fields, error) {
	switch {
	case len(parts) == shortFields:
		return fields{mint: parts[0], hhmm: parts[1], invest: parts[2], ladder: parts[3:8], mode: parts[8]}, nil
	case len(parts) >= longFields:
		return fields{mint: parts[0], hhmm: parts[1], mc: parts[2], invest: parts[3], ladder: parts[4:9], mode: parts[9]}, nil
	default:
		return fields{}, fmt.Errorf("%w: %d (want %d or %d+)", ErrFieldCount, len(parts), shortFields, longFields)
	}
}

func lineSignal(parts []string) (domain.Signal, error) {
	f, err := splitLayout(parts)
	if err != nil {
		return domain.Signal{}, err
	}

	hour, minute, err := ParseHHMM(f.hhmm)
	if err != nil {
		return domain.Signal{}, err
	}
	invest, err := parseAmount(f.invest)
	if err != nil {
		return domain.Signal{}, fmt.Errorf("invest: %w", err)
	}
	if invest <= 0 {
		return domain.Signal{}, fmt.Errorf("invest: %w: %v must be positive", ErrBadNumber, invest)
	}
	mode, err := domain.ParseFillMode(f.mode)
	if err != nil {
		return domain.Signal{}, err
	}

	return domain.Signal{
		Token:         f.mint,
		Hour:          hour,
		Minute:        minute,
		Notional:      invest,
		FillMode:      mode,
		MarketCapHint: f.mc,
	}, nil
}

// ParseHHMM parses a 24-hour "HH:MM".
func ParseHHMM(s string) (int, int, error) {
	hs, ms, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadTime, s)
	}
	h, err1 := strconv.Atoi(hs)
	m, err2 := strconv.Atoi(ms)
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadTime, s)
	}
	return h, m, nil
}

// LineStrategy builds the fixed-stop strategy written on a batch line.
// A second rung with size 0 is left out.
func LineStrategy(parts []string) (domain.Strategy, error) {
	f, err := splitLayout(parts)
	if err != nil {
		return domain.Strategy{}, err
	}

	vals := make([]float64, len(f.ladder))
	for i, s := range f.ladder {
		v, err := parseAmount(s)
		if err != nil {
			return domain.Strategy{}, fmt.Errorf("ladder field %d: %w", i+1, err)
		}
		vals[i] = v / 100
	}
	mode, err := domain.ParseFillMode(f.mode)
	if err != nil {
		return domain.Strategy{}, err
	}

	p := strategy.Params{
		StopKind: domain.FixedStop,
		Ups:      []float64{vals[0]},
		Sizes:    []float64{vals[1]},
		Stop:     vals[4],
		FillMode: mode,
	}
	if vals[3] > 0 {
		p.Ups = append(p.Ups, vals[2])
		p.Sizes = append(p.Sizes, vals[3])
	}
	return strategy.FromParams(p)
}

var amountReplacer = strings.NewReplacer("$", "", "%", "", ",", "", "_", "")

// parseAmount accepts plain numbers with an optional "$" and "%" and
// thousands separators.
func parseAmount(s string) (float64, error) {
	clean := amountReplacer.Replace(strings.TrimSpace(s))
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q", ErrBadNumber, s)
	}
	return v, nil
}
