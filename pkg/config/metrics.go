package config

import (
	"github.com/packrat/davgate/pkg/metrics"
	promMetrics "github.com/packrat/davgate/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// VFSMetrics instruments the virtual filesystem (never nil, no-op if disabled)
	VFSMetrics metrics.VFSMetrics

	// HTTPMetrics instruments the HTTP adapter (never nil, no-op if disabled)
	HTTPMetrics metrics.HTTPMetrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed metrics instances for all components
//
// If metrics are disabled:
//   - Returns nil server
//   - Returns no-op metrics implementations (zero overhead)
//
// Call at most once per process: the Prometheus collectors register on
// the global registry.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{
			VFSMetrics:  metrics.NewNoopVFSMetrics(),
			HTTPMetrics: metrics.NewNoopHTTPMetrics(),
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port: cfg.Metrics.Port,
	})

	return &MetricsResult{
		Server:      server,
		VFSMetrics:  promMetrics.NewVFSMetrics(),
		HTTPMetrics: promMetrics.NewHTTPMetrics(),
	}
}
