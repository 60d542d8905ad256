package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the HTTP layer and user lifecycle.
type Metrics struct {
	// Request counts by method, route and status code
	RequestsTotal *prometheus.CounterVec

	// Request latencies by method and route
	RequestDuration *prometheus.HistogramVec

	UsersCreated prometheus.Counter

	// Login outcomes by result: success, failed, locked
	LoginAttempts *prometheus.CounterVec
}

// New creates a Metrics instance with all metrics registered.
// Call once per process.
func New() *Metrics {
	return &Metrics{
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cradle_http_requests_total",
			Help: "Total HTTP requests by method, route and status code",
		}, []string{"method", "route", "status"}),

		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cradle_http_request_duration_seconds",
			Help:    "Duration of HTTP requests by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route"}),

		UsersCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cradle_users_created_total",
			Help: "Total number of users created in the system",
		}),

		LoginAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cradle_login_attempts_total",
			Help: "Login attempts by result (success, failed, locked)",
		}, []string{"result"}),
	}
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, route, status string, d time.Duration) {
	if m != nil {
		m.RequestsTotal.WithLabelValues(method, route, status).Inc()
		m.RequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
	}
}

// IncrementUsersCreated records a newly registered user.
func (m *Metrics) IncrementUsersCreated() {
	if m != nil {
		m.UsersCreated.Inc()
	}
}

// IncrementLoginAttempt records one login outcome.
func (m *Metrics) IncrementLoginAttempt(result string) {
	if m != nil {
		m.LoginAttempts.WithLabelValues(result).Inc()
	}
}
