package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the audit subsystem. Dropped
// entries are the observable trace of the write path's degrade-silently
// policy: persistence failures never reach the originating caller, so the
// counter is the only place they surface.
type Metrics struct {
	EntriesWritten       prometheus.Counter
	EntriesDropped       prometheus.Counter
	QueueOverflows       prometheus.Counter
	QueueDepth           prometheus.Gauge
	WriteDurationSeconds prometheus.Histogram
	KafkaPublishFailures prometheus.Counter
}

// New creates and registers audit metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers audit metrics on the given registerer. Tests pass a fresh
// registry so multiple writers can be constructed without collisions.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EntriesWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "helpdesk_audit_entries_written_total",
			Help: "Total number of audit entries persisted",
		}),
		EntriesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "helpdesk_audit_entries_dropped_total",
			Help: "Total number of audit entries dropped due to persistence failures",
		}),
		QueueOverflows: factory.NewCounter(prometheus.CounterOpts{
			Name: "helpdesk_audit_queue_overflows_total",
			Help: "Total number of audit submissions rejected because the queue was full",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "helpdesk_audit_queue_depth",
			Help: "Current number of audit submissions waiting to be written",
		}),
		WriteDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "helpdesk_audit_write_duration_seconds",
			Help:    "Latency of audit entry persistence",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		KafkaPublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "helpdesk_audit_kafka_publish_failures_total",
			Help: "Total number of audit entries that failed to publish to Kafka",
		}),
	}
}

// IncWritten increments the persisted entry counter by 1.
func (m *Metrics) IncWritten() { m.EntriesWritten.Inc() }

// IncDropped increments the dropped entry counter by 1.
func (m *Metrics) IncDropped() { m.EntriesDropped.Inc() }

// IncQueueOverflow increments the queue overflow counter by 1.
func (m *Metrics) IncQueueOverflow() { m.QueueOverflows.Inc() }

// IncKafkaFailure increments the Kafka publish failure counter by 1.
func (m *Metrics) IncKafkaFailure() { m.KafkaPublishFailures.Inc() }
