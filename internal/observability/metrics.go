package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus collectors for the service.
type Metrics struct {
	Requests         *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	Errors           *prometheus.CounterVec
	AuditFailures    *prometheus.CounterVec
	BulkAffectedRows *prometheus.CounterVec
	gatherer         prometheus.Gatherer
}

// NewMetrics registers collectors with registry. A nil registry gets a fresh
// isolated one.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "helpdesk_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_http_errors_total",
			Help: "Error responses by route, method and error code.",
		}, []string{"route", "method", "code"}),
		AuditFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_audit_write_failures_total",
			Help: "Audit entries that could not be persisted.",
		}, []string{"action"}),
		BulkAffectedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helpdesk_bulk_affected_rows_total",
			Help: "Rows changed by admin bulk operations.",
		}, []string{"operation"}),
		gatherer: registry,
	}

	registry.MustRegister(m.Requests, m.RequestDuration, m.Errors, m.AuditFailures, m.BulkAffectedRows)
	return m
}

// RecordRequest counts a finished request.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError counts an error response.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(route, method, code).Inc()
}

// AuditWriteFailed counts a lost audit entry.
func (m *Metrics) AuditWriteFailed(action string) {
	if m == nil {
		return
	}
	m.AuditFailures.WithLabelValues(action).Inc()
}

// BulkAffected adds the rows changed by one bulk operation.
func (m *Metrics) BulkAffected(operation string, rows int64) {
	if m == nil || rows <= 0 {
		return
	}
	m.BulkAffectedRows.WithLabelValues(operation).Add(float64(rows))
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
