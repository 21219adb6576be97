package metrics

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run with -race: readers race the one-time initialization.
func TestInitRegistry_ConcurrentReaders(t *testing.T) {
	var (
		wg   sync.WaitGroup
		seen = make([]*prometheus.Registry, 16)
	)
	for i := range seen {
		wg.Add(2)
		go func() {
			defer wg.Done()
			InitRegistry()
		}()
		go func() {
			defer wg.Done()
			seen[i] = GetRegistry()
		}()
	}
	wg.Wait()

	reg := GetRegistry()
	require.NotNil(t, reg)
	assert.True(t, IsEnabled())
	for _, r := range seen {
		if r != nil {
			assert.Same(t, reg, r)
		}
	}

	InitRegistry()
	assert.Same(t, reg, GetRegistry())
}
