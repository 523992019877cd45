package memory

import (
	"context"
	"errors"
	"testing"

	"exit-strategy-lab/internal/domain"
	"exit-strategy-lab/internal/storage"
)

func makeBars(start int64, prices ...float64) []domain.Bar {
	bars := make([]domain.Bar, len(prices))
	for i, p := range prices {
		bars[i] = domain.Bar{Timestamp: start + int64(i)*60, Open: p, High: p, Low: p, Close: p}
	}
	return bars
}

func TestBarStore_InsertNewKeepsFirstSeen(t *testing.T) {
	store := NewBarStore()
	ctx := context.Background()

	n, err := store.InsertNew(ctx, domain.BarSeries{Network: "solana", Pool: "p1", Bars: makeBars(0, 1, 2, 3)})
	if err != nil {
		t.Fatalf("InsertNew failed: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 inserted, got %d", n)
	}

	// Overlapping window: minute 120 already stored with price 3.
	n, err = store.InsertNew(ctx, domain.BarSeries{Network: "solana", Pool: "p1", Bars: makeBars(120, 99, 4)})
	if err != nil {
		t.Fatalf("InsertNew failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 inserted, got %d", n)
	}

	series, err := store.GetSeries(ctx, "solana", "p1")
	if err != nil {
		t.Fatalf("GetSeries failed: %v", err)
	}
	if series.Len() != 4 {
		t.Fatalf("expected 4 bars, got %d", series.Len())
	}
	if series.Bars[2].Close != 3 {
		t.Errorf("first-seen bar overwritten: close %v", series.Bars[2].Close)
	}
	if err := series.Validate(); err != nil {
		t.Errorf("stored series invalid: %v", err)
	}
}

func TestBarStore_GetRange(t *testing.T) {
	store := NewBarStore()
	ctx := context.Background()

	if _, err := store.InsertNew(ctx, domain.BarSeries{Network: "solana", Pool: "p1", Bars: makeBars(0, 1, 2, 3, 4, 5)}); err != nil {
		t.Fatalf("InsertNew failed: %v", err)
	}
	if _, err := store.InsertNew(ctx, domain.BarSeries{Network: "bsc", Pool: "p1", Bars: makeBars(0, 9)}); err != nil {
		t.Fatalf("InsertNew failed: %v", err)
	}

	bars, err := store.GetRange(ctx, "solana", "p1", 60, 180)
	if err != nil {
		t.Fatalf("GetRange failed: %v", err)
	}
	if len(bars) != 3 || bars[0].Timestamp != 60 || bars[2].Timestamp != 180 {
		t.Errorf("unexpected range: %+v", bars)
	}
}

func TestBarStore_NotFoundAndInvalid(t *testing.T) {
	store := NewBarStore()
	ctx := context.Background()

	if _, err := store.GetSeries(ctx, "solana", "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := store.InsertNew(ctx, domain.BarSeries{Pool: "p1", Bars: makeBars(0, 1)}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestBarStore_CopiesVolume(t *testing.T) {
	store := NewBarStore()
	ctx := context.Background()

	vol := 10.0
	bars := makeBars(0, 1)
	bars[0].Volume = &vol
	if _, err := store.InsertNew(ctx, domain.BarSeries{Network: "solana", Pool: "p1", Bars: bars}); err != nil {
		t.Fatalf("InsertNew failed: %v", err)
	}
	vol = 99

	series, err := store.GetSeries(ctx, "solana", "p1")
	if err != nil {
		t.Fatalf("GetSeries failed: %v", err)
	}
	if *series.Bars[0].Volume != 10 {
		t.Errorf("stored volume aliased caller memory: %v", *series.Bars[0].Volume)
	}
}
