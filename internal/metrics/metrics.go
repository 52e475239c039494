// Package metrics exposes the SDK's self-observability surface: a small
// set of Prometheus gauges/counters over the batch processor, export
// adapters, and CLI transport, following the same willnorris/imageproxy
// and kubernetes-dns pattern of instrumenting a hot path with
// prometheus/client_golang rather than hand-rolled counters.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the SDK's metrics so a single instance can be wired
// through the batch processor, adapters, and transport, and optionally
// registered with a host application's own Prometheus registry.
type Registry struct {
	QueueDepth      prometheus.Gauge
	BatchesFlushed  prometheus.Counter
	FlushLatency    prometheus.Histogram
	SpansDropped    *prometheus.CounterVec // label: reason
	ExportFailures  *prometheus.CounterVec // label: adapter
	BlockedTraces   prometheus.Counter
	TransportState  prometheus.Gauge // 0=closed 1=connecting 2=ready
}

// New builds a Registry. Callers register it with prometheus.Registerer
// via Register if they want it scraped; an unregistered Registry still
// works for in-process inspection via the exposed metric handles.
func New() *Registry {
	return &Registry{
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tusk_drift",
			Name:      "span_queue_depth",
			Help:      "Number of finished spans waiting to be batched.",
		}),
		BatchesFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tusk_drift",
			Name:      "batches_flushed_total",
			Help:      "Number of span batches flushed to adapters.",
		}),
		FlushLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tusk_drift",
			Name:      "flush_latency_seconds",
			Help:      "Time spent exporting one batch across all adapters.",
		}),
		SpansDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tusk_drift",
			Name:      "spans_dropped_total",
			Help:      "Spans dropped before export, by reason.",
		}, []string{"reason"}),
		ExportFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tusk_drift",
			Name:      "export_failures_total",
			Help:      "Failed adapter export calls, by adapter name.",
		}, []string{"adapter"}),
		BlockedTraces: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tusk_drift",
			Name:      "blocked_traces_total",
			Help:      "Traces blocked due to error or size overflow.",
		}),
		TransportState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tusk_drift",
			Name:      "transport_state",
			Help:      "CLI transport connection state: 0=closed 1=connecting 2=ready.",
		}),
	}
}

// Register adds every collector in r to reg. Safe to call with a
// prometheus.NewRegistry() in tests so metrics don't collide with the
// global DefaultRegisterer across parallel test runs.
func (r *Registry) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		r.QueueDepth, r.BatchesFlushed, r.FlushLatency,
		r.SpansDropped, r.ExportFailures, r.BlockedTraces, r.TransportState,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
