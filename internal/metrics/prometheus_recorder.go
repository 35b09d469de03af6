package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// serverStates lists every supervisor state so the state gauge can be one-hot.
var serverStates = []string{"stopped", "starting", "running", "failed"}

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	syncDuration  prom.Histogram
	syncFiles     *prom.CounterVec
	syncRuns      *prom.CounterVec
	proxyDuration prom.Histogram
	proxyRequests *prom.CounterVec
	serverState   *prom.GaugeVec
	serverStarts  *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers the wayfind metrics on reg. A nil
// registry gets a fresh one.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		syncDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "wayfind",
			Name:      "sync_duration_seconds",
			Help:      "Duration of a full asset sync run",
			Buckets:   prom.DefBuckets,
		}),
		syncFiles: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "wayfind",
			Name:      "sync_files_total",
			Help:      "Per-file asset sync results",
		}, []string{"file", "result"}),
		syncRuns: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "wayfind",
			Name:      "sync_runs_total",
			Help:      "Asset sync runs by outcome",
		}, []string{"result"}),
		proxyDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "wayfind",
			Name:      "events_proxy_duration_seconds",
			Help:      "Upstream events fetch duration",
			Buckets:   prom.DefBuckets,
		}),
		proxyRequests: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "wayfind",
			Name:      "events_proxy_requests_total",
			Help:      "Events proxy requests by outcome",
		}, []string{"result"}),
		serverState: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "wayfind",
			Name:      "server_state",
			Help:      "Current supervisor state (1 for the active state)",
		}, []string{"state"}),
		serverStarts: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "wayfind",
			Name:      "server_starts_total",
			Help:      "Server start attempts by outcome",
		}, []string{"result"}),
	}
	reg.MustRegister(pr.syncDuration, pr.syncFiles, pr.syncRuns, pr.proxyDuration, pr.proxyRequests, pr.serverState, pr.serverStarts)
	pr.SetServerState("stopped")
	return pr
}

func (p *PrometheusRecorder) ObserveSyncDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.syncDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncSyncFile(file string, result ResultLabel) {
	if p == nil {
		return
	}
	p.syncFiles.WithLabelValues(file, string(result)).Inc()
}

func (p *PrometheusRecorder) IncSyncRun(result ResultLabel) {
	if p == nil {
		return
	}
	p.syncRuns.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveProxyDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.proxyDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncProxyRequest(result ResultLabel) {
	if p == nil {
		return
	}
	p.proxyRequests.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) SetServerState(state string) {
	if p == nil {
		return
	}
	for _, s := range serverStates {
		v := 0.0
		if s == state {
			v = 1
		}
		p.serverState.WithLabelValues(s).Set(v)
	}
}

func (p *PrometheusRecorder) IncServerStart(result ResultLabel) {
	if p == nil {
		return
	}
	p.serverStarts.WithLabelValues(string(result)).Inc()
}
