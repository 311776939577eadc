package iprewriter

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus instrumentation a Rewriter reports
// through when attached via WithMetrics. A Rewriter with no Metrics
// attached runs with no instrumentation overhead.
type Metrics struct {
	PacketsRewritten *prometheus.CounterVec
	PacketsDropped   *prometheus.CounterVec
	ActiveMappings   *prometheus.GaugeVec
	GCSweepDuration  prometheus.Histogram
}

// NewMetrics builds a Metrics instance and registers it with reg.
// Passing prometheus.DefaultRegisterer registers it process-wide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PacketsRewritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iprewriter",
			Name:      "packets_rewritten_total",
			Help:      "Packets successfully rewritten, by protocol.",
		}, []string{"protocol"}),
		PacketsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iprewriter",
			Name:      "packets_dropped_total",
			Help:      "Packets dropped on the rewrite path, by reason.",
		}, []string{"reason"}),
		ActiveMappings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "iprewriter",
			Name:      "active_mappings",
			Help:      "Mapping table entries currently live, by protocol.",
		}, []string{"protocol"}),
		GCSweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "iprewriter",
			Name:      "gc_sweep_duration_seconds",
			Help:      "Wall time spent in one mapping-table GC sweep.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.PacketsRewritten, m.PacketsDropped, m.ActiveMappings, m.GCSweepDuration)
	return m
}
