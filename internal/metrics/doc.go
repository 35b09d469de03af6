// Package metrics provides observability hooks for asset sync, the events proxy, and
// the server supervisor.
//
// Components receive a Recorder through their options and default to NoopRecorder,
// so no nil checks are needed at call sites:
//
//	syncer := assetsync.New(assetsync.Options{Recorder: metrics.NoopRecorder{}})
//
// The supervise command swaps in a PrometheusRecorder and exposes it through the
// control API's /metrics endpoint.
package metrics
