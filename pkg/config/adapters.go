package config

import (
	"fmt"

	"github.com/packrat/davgate/pkg/adapter"
	"github.com/packrat/davgate/pkg/adapter/webdav"
	"github.com/packrat/davgate/pkg/metrics"
)

// The metrics server runs alongside protocol adapters under the same
// lifecycle.
var _ adapter.Adapter = (*metrics.Server)(nil)

// CreateAdapters creates all enabled protocol adapters from the configuration.
//
// Parameters:
//   - cfg: The complete davgate configuration
//   - httpDeps: Collaborators of the HTTP adapter (filesystem, tokens, audit, metrics)
//
// Returns:
//   - []adapter.Adapter: List of enabled adapters ready to be added to the server
//   - error: Any error during adapter creation
func CreateAdapters(cfg *Config, httpDeps webdav.Deps) ([]adapter.Adapter, error) {
	var adapters []adapter.Adapter

	if cfg.Adapters.HTTP.Enabled {
		httpAdapter, err := webdav.New(cfg.Adapters.HTTP, httpDeps)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP adapter: %w", err)
		}
		adapters = append(adapters, httpAdapter)
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters enabled in configuration")
	}

	return adapters, nil
}
