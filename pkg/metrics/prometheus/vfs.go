// Package prometheus implements the metrics interfaces with client_golang
// collectors registered on the global metrics registry.
package prometheus

import (
	"time"

	"github.com/packrat/davgate/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// vfsMetrics is the Prometheus implementation of metrics.VFSMetrics.
type vfsMetrics struct {
	lookupsTotal       *prometheus.CounterVec
	fanOutDuration     *prometheus.HistogramVec
	lockWaitDuration   *prometheus.HistogramVec
	ingestionsInFlight prometheus.Gauge
	ingestionsTotal    *prometheus.CounterVec
	ingestionDuration  prometheus.Histogram
	ingestionBytes     prometheus.Counter
}

// NewVFSMetrics creates a Prometheus-backed VFSMetrics.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewVFSMetrics() metrics.VFSMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopVFSMetrics()
	}

	return newVFSMetrics(metrics.GetRegistry())
}

func newVFSMetrics(reg prometheus.Registerer) *vfsMetrics {
	return &vfsMetrics{
		lookupsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "davgate_vfs_lookups_total",
				Help: "Total number of resource cache lookups by property and result",
			},
			[]string{"property", "result"},
		),
		fanOutDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "davgate_vfs_fanout_duration_seconds",
				Help: "Duration of system object fan-outs in seconds",
				Buckets: []float64{
					0.001, // 1ms
					0.005, // 5ms
					0.025, // 25ms
					0.1,   // 100ms
					0.5,   // 500ms
					2.5,   // 2.5s
				},
			},
			[]string{"status"},
		),
		lockWaitDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "davgate_vfs_lock_wait_seconds",
				Help: "Time writers waited for a per-object write lock",
				Buckets: []float64{
					0.001, // 1ms
					0.01,  // 10ms
					0.1,   // 100ms
					1.0,   // 1s
					5.0,   // 5s
					10.0,  // 10s
				},
			},
			[]string{"outcome"},
		),
		ingestionsInFlight: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "davgate_vfs_ingestions_in_flight",
				Help: "Current number of uploads being committed",
			},
		),
		ingestionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "davgate_vfs_ingestions_total",
				Help: "Total number of upload commits by status",
			},
			[]string{"status"},
		),
		ingestionDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "davgate_vfs_ingestion_duration_seconds",
				Help: "Duration of upload commits in seconds, lock wait included",
				Buckets: []float64{
					0.01, // 10ms
					0.1,  // 100ms
					0.5,  // 500ms
					1.0,  // 1s
					5.0,  // 5s
					30.0, // 30s
				},
			},
		),
		ingestionBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "davgate_vfs_ingestion_bytes_total",
				Help: "Total bytes committed by successful uploads",
			},
		),
	}
}

func (m *vfsMetrics) RecordLookup(property string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookupsTotal.WithLabelValues(property, result).Inc()
}

func (m *vfsMetrics) ObserveFanOut(duration time.Duration, err error) {
	m.fanOutDuration.WithLabelValues(status(err)).Observe(duration.Seconds())
}

func (m *vfsMetrics) ObserveLockWait(outcome string, wait time.Duration) {
	m.lockWaitDuration.WithLabelValues(outcome).Observe(wait.Seconds())
}

func (m *vfsMetrics) RecordIngestionStart() {
	m.ingestionsInFlight.Inc()
}

func (m *vfsMetrics) RecordIngestionEnd(bytes int64, duration time.Duration, err error) {
	m.ingestionsInFlight.Dec()
	m.ingestionsTotal.WithLabelValues(status(err)).Inc()
	m.ingestionDuration.Observe(duration.Seconds())
	if err == nil {
		m.ingestionBytes.Add(float64(bytes))
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
