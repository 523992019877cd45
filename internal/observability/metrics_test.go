package observability

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestRecordProviderRequest(t *testing.T) {
	RecordProviderRequest("ohlcv", 0.2, nil)
	RecordProviderRequest("ohlcv", 0.3, errors.New("boom"))

	body := scrape(t)
	if !strings.Contains(body, `exit_strategy_lab_provider_request_errors_total{endpoint="ohlcv"}`) {
		t.Error("expected provider error counter for ohlcv")
	}
	if !strings.Contains(body, `exit_strategy_lab_provider_request_latency_seconds_count{endpoint="ohlcv"}`) {
		t.Error("expected provider latency histogram for ohlcv")
	}
}

func TestRecordSkipped_IgnoresZero(t *testing.T) {
	RecordSkipped("never_used_reason", 0)
	RecordSkipped("unavailable", 2)

	body := scrape(t)
	if strings.Contains(body, "never_used_reason") {
		t.Error("zero skips should not create a series")
	}
	if !strings.Contains(body, `exit_strategy_lab_sweep_signals_skipped_total{reason="unavailable"}`) {
		t.Error("expected unavailable skip counter")
	}
}

func TestHandler_ExposesNamespace(t *testing.T) {
	RecordCacheLookup(true)
	RecordPipelineRun("sweep", "success", 1.5)

	body := scrape(t)
	for _, name := range []string{
		"exit_strategy_lab_barcache_lookups_total",
		"exit_strategy_lab_pipeline_runs_total",
		"exit_strategy_lab_health_last_successful_pipeline_timestamp",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("expected %s in exposition", name)
		}
	}
}
