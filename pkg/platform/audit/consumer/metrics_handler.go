package consumer

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"cradle/internal/platform/kafka/consumer"
	audit "cradle/pkg/platform/audit"
)

// HandlerMetrics holds Prometheus metrics for consumed audit entries.
type HandlerMetrics struct {
	Consumed  *prometheus.CounterVec
	Malformed prometheus.Counter
}

// NewHandlerMetrics registers the consumer metrics on the default registry.
// Call once per process.
func NewHandlerMetrics() *HandlerMetrics {
	return &HandlerMetrics{
		Consumed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cradle_audit_consumed_total",
			Help: "Total number of audit entries consumed from the stream",
		}, []string{"action", "outcome"}),
		Malformed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cradle_audit_consumed_malformed_total",
			Help: "Total number of stream messages skipped because the payload failed to decode",
		}),
	}
}

// MetricsHandler aggregates consumed entries into per-action counters,
// giving operators stream-side visibility without a second database.
type MetricsHandler struct {
	metrics *HandlerMetrics
	logger  *slog.Logger
}

// NewMetricsHandler creates a metrics aggregation handler.
func NewMetricsHandler(m *HandlerMetrics, logger *slog.Logger) *MetricsHandler {
	return &MetricsHandler{metrics: m, logger: logger}
}

// Handle counts one audit entry. Malformed messages are counted separately
// and committed.
func (h *MetricsHandler) Handle(_ context.Context, msg *consumer.Message) error {
	var entry audit.Entry
	if err := json.Unmarshal(msg.Value, &entry); err != nil {
		h.metrics.Malformed.Inc()
		h.logger.Warn("failed to unmarshal audit entry",
			"key", string(msg.Key),
			"error", err,
		)
		return nil // Commit to avoid redelivery
	}

	outcome := "success"
	if !entry.Success {
		outcome = "failure"
	}
	h.metrics.Consumed.WithLabelValues(string(entry.Action), outcome).Inc()
	return nil
}
