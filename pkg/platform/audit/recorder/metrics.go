package recorder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for audit recording.
type Metrics struct {
	Recorded        prometheus.Counter
	PersistFailures prometheus.Counter
	Degraded        prometheus.Counter
	PersistDuration prometheus.Histogram
}

// NewMetrics creates a Metrics instance registered on the default registry.
// Call once per process.
func NewMetrics() *Metrics {
	return &Metrics{
		Recorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cradle_audit_recorded_total",
			Help: "Total number of audit entries durably recorded",
		}),
		PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cradle_audit_persist_failures_total",
			Help: "Total number of audit entry persistence failures",
		}),
		Degraded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cradle_audit_degraded_total",
			Help: "Total number of audit entries diverted to the fallback sink",
		}),
		PersistDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "cradle_audit_persist_duration_seconds",
			Help:    "Latency of durable audit writes",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// IncRecorded increments the recorded counter.
func (m *Metrics) IncRecorded() {
	m.Recorded.Inc()
}

// IncPersistFailures increments the persist failures counter.
func (m *Metrics) IncPersistFailures() {
	m.PersistFailures.Inc()
}

// IncDegraded increments the degraded counter.
func (m *Metrics) IncDegraded() {
	m.Degraded.Inc()
}

// ObservePersistDuration records one write latency in seconds.
func (m *Metrics) ObservePersistDuration(seconds float64) {
	m.PersistDuration.Observe(seconds)
}
