package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestObserveStageExported(t *testing.T) {
	EnableMetrics()
	m := GetMetrics()
	m.ObserveStage("waybackurls", 2*time.Second, 10, 7, "")
	m.ObserveStage("gau", time.Second, 0, 0, "timeout")
	m.ObserveDomain("ok", 3*time.Second)
	m.SetWorkerBusy(0, true)

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)

	for _, want := range []string{
		`rxurls_records_added_total{adapter="waybackurls"} 7`,
		`rxurls_candidates_total{adapter="waybackurls"} 10`,
		`rxurls_adapter_failures_total{adapter="gau",reason="timeout"} 1`,
		`rxurls_domains_processed_total{outcome="ok"} 1`,
		`rxurls_worker_busy{worker_id="0"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestStartMetricsServerBadAddress(t *testing.T) {
	EnableMetrics()
	if err := StartMetricsServer("256.0.0.1:bad"); err == nil {
		t.Fatal("expected listen error for invalid address")
	}
}
