package gecko

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(url string, opts ...ClientOption) *Client {
	base := []ClientOption{
		WithRetryDelay(5 * time.Millisecond),
		WithMaxDelay(20 * time.Millisecond),
		WithRequestPause(0),
	}
	return NewClient(url, append(base, opts...)...)
}

func TestClient_TokenPools(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/networks/solana/tokens/MintA/pools" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("missing accept header")
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":[
			{"id":"solana_PoolA","attributes":{"address":"PoolA"}},
			{"id":"solana_PoolB","attributes":{"address":"PoolB"}}
		]}`)
	}))
	defer server.Close()

	pools, err := newTestClient(server.URL).TokenPools(context.Background(), "solana", "MintA")
	if err != nil {
		t.Fatalf("TokenPools: %v", err)
	}
	if len(pools) != 2 || pools[0] != "PoolA" || pools[1] != "PoolB" {
		t.Errorf("unexpected pools: %v", pools)
	}
}

func TestClient_TokenPools_None(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"empty list", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, `{"data":[]}`) }},
		{"404", func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			_, err := newTestClient(server.URL).TokenPools(context.Background(), "bsc", "0xabc")
			if !errors.Is(err, ErrNoPools) {
				t.Errorf("expected ErrNoPools, got %v", err)
			}
		})
	}
}

func TestClient_MinuteBars(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/networks/solana/pools/PoolA/ohlcv/minute" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("aggregate") != "1" || q.Get("limit") != "500" || q.Get("before_timestamp") != "1700000600" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"data":{"attributes":{"ohlcv_list":[
			[1700000540, 1.1, 1.2, 1.0, 1.15, 300],
			[1700000480, "1.0", "1.1", "0.9", "1.05", "250"]
		]}}}`)
	}))
	defer server.Close()

	bars, err := newTestClient(server.URL).MinuteBars(context.Background(), "solana", "PoolA", 1700000600, 0)
	if err != nil {
		t.Fatalf("MinuteBars: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	ts, err := bars[1].Timestamp()
	if err != nil || ts != 1700000480 {
		t.Errorf("expected second bar at 1700000480, got %d (%v)", ts, err)
	}
}

func TestClient_FetchSince_PagesUntilCutoff(t *testing.T) {
	now := int64(1700100000)
	var requests atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		before, _ := strconv.ParseInt(r.URL.Query().Get("before_timestamp"), 10, 64)

		// Three bars per page, newest first, strictly before the cursor.
		var rows []string
		for i := int64(1); i <= 3; i++ {
			rows = append(rows, fmt.Sprintf("[%d,1,1,1,1,1]", before-i*60))
		}
		fmt.Fprintf(w, `{"data":{"attributes":{"ohlcv_list":[%s]}}}`, strings.Join(rows, ","))
	}))
	defer server.Close()

	client := newTestClient(server.URL, WithClock(func() time.Time { return time.Unix(now, 0) }))

	// Cutoff eight minutes back: pages end at -180 and -360, the third reaches -540.
	bars, err := client.FetchSince(context.Background(), "solana", "PoolA", now-480, 10)
	if err != nil {
		t.Fatalf("FetchSince: %v", err)
	}
	if requests.Load() != 3 {
		t.Errorf("expected 3 requests, got %d", requests.Load())
	}
	if len(bars) != 9 {
		t.Errorf("expected 9 bars, got %d", len(bars))
	}
}

func TestClient_FetchSince_MaxPages(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		before, _ := strconv.ParseInt(r.URL.Query().Get("before_timestamp"), 10, 64)
		fmt.Fprintf(w, `{"data":{"attributes":{"ohlcv_list":[[%d,1,1,1,1]]}}}`, before-60)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).FetchSince(context.Background(), "solana", "PoolA", 0, 2)
	if err != nil {
		t.Fatalf("FetchSince: %v", err)
	}
	if requests.Load() != 2 {
		t.Errorf("expected 2 requests, got %d", requests.Load())
	}
}

func TestClient_FetchSince_EmptyPageStops(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"attributes":{"ohlcv_list":[]}}}`)
	}))
	defer server.Close()

	bars, err := newTestClient(server.URL).FetchSince(context.Background(), "solana", "PoolA", 0, 5)
	if err != nil {
		t.Fatalf("FetchSince: %v", err)
	}
	if len(bars) != 0 {
		t.Errorf("expected no bars, got %d", len(bars))
	}
}

func TestClient_Retry(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch attempts.Add(1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusBadGateway)
		default:
			fmt.Fprint(w, `{"data":[{"attributes":{"address":"PoolA"}}]}`)
		}
	}))
	defer server.Close()

	pools, err := newTestClient(server.URL, WithMaxRetries(3)).TokenPools(context.Background(), "solana", "MintA")
	if err != nil {
		t.Fatalf("TokenPools: %v", err)
	}
	if len(pools) != 1 {
		t.Errorf("expected 1 pool, got %v", pools)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestClient_RetriesExhausted(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, WithMaxRetries(2)).MinuteBars(context.Background(), "solana", "PoolA", 1, 10)
	if err == nil || !strings.Contains(err.Error(), "max retries exceeded") {
		t.Fatalf("expected max retries error, got %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestClient_ClientErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "bad network", http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).MinuteBars(context.Background(), "nope", "PoolA", 1, 10)

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %T %v", err, err)
	}
	if statusErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", statusErr.Code)
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts.Load())
	}
}

func TestClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(server.URL).TokenPools(ctx, "solana", "MintA")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPagesFor(t *testing.T) {
	if got := PagesFor(48 * time.Hour); got != 6 {
		t.Errorf("48h: expected 6 pages, got %d", got)
	}
	if got := PagesFor(7 * 24 * time.Hour); got != 21 {
		t.Errorf("7d: expected 21 pages, got %d", got)
	}
}
