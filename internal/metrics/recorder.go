package metrics

import "time"

// ResultLabel enumerates outcome labels for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFailed  ResultLabel = "failed"
	ResultError   ResultLabel = "error"
)

// Recorder defines observability hooks. Implementations may forward to Prometheus.
type Recorder interface {
	ObserveSyncDuration(d time.Duration)
	IncSyncFile(file string, result ResultLabel)
	IncSyncRun(result ResultLabel)
	ObserveProxyDuration(d time.Duration)
	IncProxyRequest(result ResultLabel)
	SetServerState(state string)
	IncServerStart(result ResultLabel)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveSyncDuration(time.Duration) {}
func (NoopRecorder) IncSyncFile(string, ResultLabel) {}
func (NoopRecorder) IncSyncRun(ResultLabel) {}
func (NoopRecorder) ObserveProxyDuration(time.Duration) {}
func (NoopRecorder) IncProxyRequest(ResultLabel) {}
func (NoopRecorder) SetServerState(string) {}
func (NoopRecorder) IncServerStart(ResultLabel) {}

// OrNoop returns r, or NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
