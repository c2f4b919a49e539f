// Package metrics defines the observability hooks used by the aggregator and the command channel.
//
// Components receive a Recorder and default to NoopRecorder, so no call site needs a nil check.
// When the admin API enables metrics, the daemon swaps in a PrometheusRecorder backed by its
// own registry and serves it with HTTPHandler.
package metrics
