package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the user directory. All methods
// are safe on a nil receiver so tests can run without a registry.
type Metrics struct {
	UserMutations       *prometheus.CounterVec
	UserRejections      *prometheus.CounterVec
	OperationDuration   *prometheus.HistogramVec
	AuthFailures        *prometheus.CounterVec
	AgeCutoff           prometheus.Gauge
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		UserMutations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "userdir_user_mutations_total",
			Help: "Accepted user mutations by operation (create, replace, patch, delete)",
		}, []string{"operation"}),
		UserRejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "userdir_user_rejections_total",
			Help: "Rejected user requests by operation and error code",
		}, []string{"operation", "code"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "userdir_user_operation_duration_seconds",
			Help:    "Duration of user service operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
		AuthFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "userdir_auth_failures_total",
			Help: "Failed authentication attempts by scheme",
		}, []string{"scheme"}),
		AgeCutoff: f.NewGauge(prometheus.GaugeOpts{
			Name: "userdir_age_cutoff_timestamp_seconds",
			Help: "Latest accepted birth date as a unix timestamp",
		}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "userdir_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern, method and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
}

func (m *Metrics) IncrementMutation(operation string) {
	if m == nil {
		return
	}
	m.UserMutations.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncrementRejection(operation, code string) {
	if m == nil {
		return
	}
	m.UserRejections.WithLabelValues(operation, code).Inc()
}

// ObserveOperation records the duration of a service operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementAuthFailure(scheme string) {
	if m == nil {
		return
	}
	m.AuthFailures.WithLabelValues(scheme).Inc()
}

// ObserveCutoff satisfies agepolicy.Observer.
func (m *Metrics) ObserveCutoff(cutoff time.Time) {
	if m == nil {
		return
	}
	m.AgeCutoff.Set(float64(cutoff.Unix()))
}

func (m *Metrics) ObserveHTTPRequest(route, method, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(route, method, status).Observe(d.Seconds())
}
