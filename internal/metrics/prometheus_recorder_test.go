package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveSyncDuration(150 * time.Millisecond)
	pr.IncSyncFile("index.html", ResultSuccess)
	pr.IncSyncFile("logo.png", ResultFailed)
	pr.IncSyncRun(ResultSuccess)
	pr.ObserveProxyDuration(20 * time.Millisecond)
	pr.IncProxyRequest(ResultError)
	pr.IncServerStart(ResultSuccess)
	pr.SetServerState("running")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) == 0 {
		t.Fatalf("expected metrics, got none")
	}

	if got := testutil.ToFloat64(pr.syncFiles.WithLabelValues("logo.png", string(ResultFailed))); got != 1 {
		t.Fatalf("expected 1 failed logo.png sync, got %v", got)
	}
	if got := testutil.ToFloat64(pr.serverState.WithLabelValues("running")); got != 1 {
		t.Fatalf("expected running gauge 1, got %v", got)
	}
	if got := testutil.ToFloat64(pr.serverState.WithLabelValues("stopped")); got != 0 {
		t.Fatalf("expected stopped gauge 0, got %v", got)
	}
}

func TestNilPrometheusRecorderIsSafe(t *testing.T) {
	var pr *PrometheusRecorder
	pr.IncSyncRun(ResultFailed)
	pr.SetServerState("failed")
}

func TestOrNoop(t *testing.T) {
	if _, ok := OrNoop(nil).(NoopRecorder); !ok {
		t.Fatalf("expected NoopRecorder for nil input")
	}
	pr := NewPrometheusRecorder(nil)
	if OrNoop(pr) != Recorder(pr) {
		t.Fatalf("expected recorder to pass through")
	}
}

func TestHTTPHandler(t *testing.T) {
	reg := NewRegistry()
	NewPrometheusRecorder(reg).IncSyncRun(ResultSuccess)

	rec := httptest.NewRecorder()
	HTTPHandler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "wayfind_sync_runs_total") {
		t.Fatalf("expected wayfind metrics in scrape output")
	}
}
