package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit stream publisher.
type Metrics struct {
	Published       prometheus.Counter
	PublishFailures prometheus.Counter
	BufferDropped   prometheus.Counter
	SampledOut      prometheus.Counter
	BreakerDropped  prometheus.Counter
	BreakerState    prometheus.Gauge
}

// NewMetrics registers the stream metrics on the default registry.
// Call once per process.
func NewMetrics() *Metrics {
	return &Metrics{
		Published: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cradle_audit_stream_published_total",
			Help: "Total number of audit entries published to the stream",
		}),
		PublishFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cradle_audit_stream_publish_failures_total",
			Help: "Total number of audit entries that failed to publish",
		}),
		BufferDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cradle_audit_stream_buffer_dropped_total",
			Help: "Total number of audit entries dropped from a full buffer",
		}),
		SampledOut: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cradle_audit_stream_sampled_out_total",
			Help: "Total number of audit entries dropped by sampling",
		}),
		BreakerDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cradle_audit_stream_breaker_dropped_total",
			Help: "Total number of audit entries dropped while the breaker was open",
		}),
		BreakerState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "cradle_audit_stream_breaker_state",
			Help: "Stream breaker state (0=closed/healthy, 1=open/unhealthy)",
		}),
	}
}

// IncPublished increments the published counter.
func (m *Metrics) IncPublished() {
	m.Published.Inc()
}

// IncPublishFailures increments the publish failures counter.
func (m *Metrics) IncPublishFailures() {
	m.PublishFailures.Inc()
}

// IncBufferDropped increments the buffer dropped counter.
func (m *Metrics) IncBufferDropped() {
	m.BufferDropped.Inc()
}

// IncSampledOut increments the sampled out counter.
func (m *Metrics) IncSampledOut() {
	m.SampledOut.Inc()
}

// IncBreakerDropped increments the breaker dropped counter.
func (m *Metrics) IncBreakerDropped() {
	m.BreakerDropped.Inc()
}

// SetBreakerState sets the breaker state gauge.
func (m *Metrics) SetBreakerState(open bool) {
	if open {
		m.BreakerState.Set(1)
	} else {
		m.BreakerState.Set(0)
	}
}
