// Package metrics defines the observability interfaces of the gateway and
// owns the process-wide Prometheus registry.
//
// Collection is optional. Until InitRegistry is called, the constructors in
// pkg/metrics/prometheus return the no-op implementations from this package.
//
//	metrics.InitRegistry()
//	vfsMetrics := prommetrics.NewVFSMetrics()
//	httpMetrics := prommetrics.NewHTTPMetrics()
package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	registry     atomic.Pointer[prometheus.Registry]
	registryOnce sync.Once
)

// InitRegistry creates the global registry with the Go runtime and process
// collectors attached. Later calls are ignored.
// Safe for concurrent use with GetRegistry.
func InitRegistry() {
	registryOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		registry.Store(reg)
	})
}

// GetRegistry returns the global registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry.Load()
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
