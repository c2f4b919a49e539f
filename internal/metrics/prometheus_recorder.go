package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "dashlink"

// PrometheusRecorder implements Recorder using Prometheus collectors.
type PrometheusRecorder struct {
	events          *prom.CounterVec
	flushes         *prom.CounterVec
	flushDuration   prom.Histogram
	dispatchedPaths *prom.CounterVec
	commands        *prom.CounterVec
	commandLatency  prom.Histogram
	channelOpen     prom.Gauge
	pendingRequests prom.Gauge
	heartbeats      *prom.CounterVec
	anomalies       *prom.CounterVec
}

// NewPrometheusRecorder creates the collectors and registers them on reg (a fresh registry when nil).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		events: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "watch_events_total",
			Help:      "Filesystem events observed by kind and whether they changed pending state",
		}, []string{"kind", "accepted"}),
		flushes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_total",
			Help:      "Aggregator flush cycles by outcome",
		}, []string{"outcome"}),
		flushDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_duration_seconds",
			Help:      "Duration of aggregator flush cycles including consumer dispatch",
			Buckets:   prom.DefBuckets,
		}),
		dispatchedPaths: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "dispatched_paths_total",
			Help:      "Paths handed to the build consumer by action",
		}, []string{"action"}),
		commands: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "channel_commands_total",
			Help:      "Channel commands by outcome",
		}, []string{"outcome"}),
		commandLatency: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "channel_command_latency_seconds",
			Help:      "Time from command write to reply",
			Buckets:   prom.DefBuckets,
		}),
		channelOpen: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_open",
			Help:      "1 while a peer is connected",
		}),
		pendingRequests: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_pending_requests",
			Help:      "Requests awaiting a reply",
		}),
		heartbeats: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "channel_heartbeats_total",
			Help:      "Keep-alive frames sent by result",
		}, []string{"result"}),
		anomalies: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "channel_anomalies_total",
			Help:      "Inbound frames that matched no pending request or failed to parse",
		}, []string{"reason"}),
	}
	reg.MustRegister(pr.events, pr.flushes, pr.flushDuration, pr.dispatchedPaths, pr.commands,
		pr.commandLatency, pr.channelOpen, pr.pendingRequests, pr.heartbeats, pr.anomalies)
	return pr
}

func (p *PrometheusRecorder) IncEvent(kind string, accepted bool) {
	p.events.WithLabelValues(kind, boolLabel(accepted, "true", "false")).Inc()
}

func (p *PrometheusRecorder) IncFlush(outcome FlushOutcome) {
	p.flushes.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) ObserveFlushDuration(d time.Duration) {
	p.flushDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) AddDispatchedPaths(action string, n int) {
	p.dispatchedPaths.WithLabelValues(action).Add(float64(n))
}

func (p *PrometheusRecorder) IncCommand(outcome CommandOutcome) {
	p.commands.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) ObserveCommandLatency(d time.Duration) {
	p.commandLatency.Observe(d.Seconds())
}

func (p *PrometheusRecorder) SetChannelOpen(open bool) {
	if open {
		p.channelOpen.Set(1)
		return
	}
	p.channelOpen.Set(0)
}

func (p *PrometheusRecorder) SetPendingRequests(n int) {
	p.pendingRequests.Set(float64(n))
}

func (p *PrometheusRecorder) IncHeartbeat(success bool) {
	p.heartbeats.WithLabelValues(boolLabel(success, "success", "failed")).Inc()
}

func (p *PrometheusRecorder) IncAnomaly(reason string) {
	p.anomalies.WithLabelValues(reason).Inc()
}

func boolLabel(b bool, t, f string) string {
	if b {
		return t
	}
	return f
}
