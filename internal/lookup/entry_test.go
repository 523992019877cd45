package lookup

import (
	"errors"
	"testing"

	"exit-strategy-lab/internal/domain"
)

// day0 is 2023-11-15 00:00:00 UTC.
const day0 = int64(1700006400)

func at(day, hour, minute int) int64 {
	return day0 + int64(day)*86400 + int64(hour)*3600 + int64(minute)*60
}

func makeSeries(timestamps ...int64) domain.BarSeries {
	bars := make([]domain.Bar, len(timestamps))
	for i, ts := range timestamps {
		bars[i] = domain.Bar{Timestamp: ts, Open: 1, High: 1, Low: 1, Close: 1}
	}
	return domain.BarSeries{Network: "solana", Pool: "pool", Bars: bars}
}

func TestResolve_Exact(t *testing.T) {
	series := makeSeries(at(0, 12, 0), at(0, 12, 1))

	m, err := Resolve(series, Request{Hour: 12, Minute: 1, Timezone: domain.TimezoneUTC}, StrictPolicy())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if m.Index != 1 || m.Method != MethodExact || m.DeltaMinutes != 0 {
		t.Errorf("unexpected match: %+v", m)
	}
}

func TestResolve_StrictMiss(t *testing.T) {
	series := makeSeries(at(0, 12, 3))

	_, err := Resolve(series, Request{Hour: 12, Minute: 0}, StrictPolicy())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestResolve_KarachiTolerance(t *testing.T) {
	// 12:00 KHI is 07:00 UTC; only 07:03 exists.
	series := makeSeries(at(0, 7, 3))

	m, err := Resolve(series, Request{Hour: 12, Minute: 0, Timezone: domain.TimezoneKHI}, DefaultPolicy())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if m.Bar.Timestamp != at(0, 7, 3) {
		t.Errorf("expected 07:03 bar, got ts %d", m.Bar.Timestamp)
	}
	if m.Method != MethodTolerance || m.DeltaMinutes != 3 || m.TargetHour != 7 {
		t.Errorf("unexpected match: %+v", m)
	}
}

func TestResolve_ForwardOffsetsBeforeBackward(t *testing.T) {
	// Both 11:58 (-2) and 12:04 (+4) exist; the whole + range is tried first.
	series := makeSeries(at(0, 11, 58), at(0, 12, 4))

	m, err := Resolve(series, Request{Hour: 12, Minute: 0}, DefaultPolicy())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if m.DeltaMinutes != 4 {
		t.Errorf("expected +4 to win, got %d", m.DeltaMinutes)
	}
}

func TestResolve_HourWraparound(t *testing.T) {
	series := makeSeries(at(1, 0, 2))

	m, err := Resolve(series, Request{Hour: 23, Minute: 58}, DefaultPolicy())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if m.DeltaMinutes != 4 {
		t.Errorf("expected +4 across midnight, got %d", m.DeltaMinutes)
	}
}

func TestUTCHour_Wraps(t *testing.T) {
	if got := UTCHour(3, domain.TimezoneKHI); got != 22 {
		t.Errorf("expected 03 KHI -> 22 UTC, got %d", got)
	}
}

func TestResolve_NearestHourRetry(t *testing.T) {
	// Nothing at 10:xx; 13:02 and 08:30 exist. 08 is 2h away, 13 is 3h away.
	series := makeSeries(at(0, 8, 2), at(0, 8, 30), at(0, 13, 2))

	m, err := Resolve(series, Request{Hour: 10, Minute: 0}, DefaultPolicy())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if m.Method != MethodNearestHour || m.Bar.Timestamp != at(0, 8, 2) {
		t.Errorf("expected nearest-hour match at 08:02, got %+v", m)
	}
}

func TestResolve_EarliestMinuteFallback(t *testing.T) {
	series := makeSeries(at(0, 9, 20), at(0, 9, 45))

	m, err := Resolve(series, Request{Hour: 10, Minute: 0}, DefaultPolicy())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if m.Method != MethodHourFallback || m.Bar.Timestamp != at(0, 9, 20) {
		t.Errorf("expected hour fallback to 09:20, got %+v", m)
	}
}

func TestResolve_NearestHourTieGoesLow(t *testing.T) {
	series := makeSeries(at(0, 8, 0), at(0, 12, 0))

	m, err := Resolve(series, Request{Hour: 10, Minute: 30}, DefaultPolicy())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if m.Bar.Timestamp != at(0, 8, 0) {
		t.Errorf("expected tie to resolve to hour 08, got ts %d", m.Bar.Timestamp)
	}
}

func TestResolve_NoFallbackWhenDisabled(t *testing.T) {
	series := makeSeries(at(0, 9, 20))

	_, err := Resolve(series, Request{Hour: 10, Minute: 0}, Policy{Tolerance: 5})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestResolve_MostRecentDayWins(t *testing.T) {
	series := makeSeries(at(0, 12, 0), at(0, 13, 0), at(1, 12, 0))

	m, err := Resolve(series, Request{Hour: 12, Minute: 0}, StrictPolicy())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if m.Index != 2 {
		t.Errorf("expected most recent 12:00 bar (index 2), got %d", m.Index)
	}
}

func TestResolve_InvalidRequestAndEmpty(t *testing.T) {
	series := makeSeries(at(0, 12, 0))

	if _, err := Resolve(series, Request{Hour: 24, Minute: 0}, DefaultPolicy()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for hour 24, got %v", err)
	}
	if _, err := Resolve(domain.BarSeries{}, Request{Hour: 12}, DefaultPolicy()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for empty series, got %v", err)
	}
}

func TestResolve_Deterministic(t *testing.T) {
	series := makeSeries(at(0, 6, 55), at(0, 7, 3), at(0, 7, 59))
	req := Request{Hour: 12, Minute: 0, Timezone: domain.TimezoneKHI}

	first, err := Resolve(series, req, DefaultPolicy())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	for run := 0; run < 5; run++ {
		got, err := Resolve(series, req, DefaultPolicy())
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		if got != first {
			t.Errorf("run %d: got %+v, want %+v", run, got, first)
		}
	}
}

func TestHourDistance(t *testing.T) {
	cases := []struct{ a, b, want int }{
		{0, 0, 0},
		{1, 23, 2},
		{23, 1, 2},
		{6, 18, 12},
		{10, 13, 3},
	}
	for _, c := range cases {
		if got := HourDistance(c.a, c.b); got != c.want {
			t.Errorf("HourDistance(%d, %d) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
