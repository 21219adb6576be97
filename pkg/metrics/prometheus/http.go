package prometheus

import (
	"strconv"
	"time"

	"github.com/packrat/davgate/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// httpMetrics is the Prometheus implementation of metrics.HTTPMetrics.
type httpMetrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	bytesTransferred *prometheus.CounterVec
	tokensIssued     prometheus.Counter
	auditEvents      *prometheus.CounterVec
}

// NewHTTPMetrics creates a Prometheus-backed HTTPMetrics.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewHTTPMetrics() metrics.HTTPMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopHTTPMetrics()
	}

	return newHTTPMetrics(metrics.GetRegistry())
}

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	return &httpMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "davgate_http_requests_total",
				Help: "Total number of HTTP requests by route, method and status code",
			},
			[]string{"route", "method", "code"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "davgate_http_request_duration_seconds",
				Help: "Duration of HTTP requests in seconds",
				Buckets: []float64{
					0.005, // 5ms
					0.025, // 25ms
					0.1,   // 100ms
					0.5,   // 500ms
					2.5,   // 2.5s
					10.0,  // 10s
				},
			},
			[]string{"route", "method"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "davgate_http_bytes_total",
				Help: "Total bytes transferred by route and direction",
			},
			[]string{"route", "direction"},
		),
		tokensIssued: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "davgate_tokens_issued_total",
				Help: "Total number of capability tokens issued",
			},
		),
		auditEvents: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "davgate_audit_events_total",
				Help: "Total number of audit events by kind and object type",
			},
			[]string{"kind", "object_type"},
		),
	}
}

func (m *httpMetrics) RecordRequest(route, method string, code int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

func (m *httpMetrics) RecordBytes(route, direction string, bytes int64) {
	m.bytesTransferred.WithLabelValues(route, direction).Add(float64(bytes))
}

func (m *httpMetrics) RecordTokenIssued() {
	m.tokensIssued.Inc()
}

func (m *httpMetrics) CountAuditEvent(kind, objectType string) {
	m.auditEvents.WithLabelValues(kind, objectType).Inc()
}
