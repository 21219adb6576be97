package prometheus

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/packrat/davgate/pkg/audit"
	"github.com/packrat/davgate/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestVFSMetrics(t *testing.T) {
	m := newVFSMetrics(prometheus.NewRegistry())

	m.RecordLookup("size", true)
	m.RecordLookup("size", true)
	m.RecordLookup("size", false)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.lookupsTotal.WithLabelValues("size", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lookupsTotal.WithLabelValues("size", "miss")))

	m.RecordIngestionStart()
	m.RecordIngestionStart()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ingestionsInFlight))

	m.RecordIngestionEnd(100, time.Millisecond, nil)
	m.RecordIngestionEnd(50, time.Millisecond, errors.New("boom"))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ingestionsInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ingestionsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ingestionsTotal.WithLabelValues("error")))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.ingestionBytes), "failed uploads do not count bytes")
}

func TestHTTPMetrics(t *testing.T) {
	m := newHTTPMetrics(prometheus.NewRegistry())

	m.RecordRequest("download", http.MethodGet, http.StatusOK, time.Millisecond)
	m.RecordRequest("download", http.MethodGet, http.StatusNotFound, time.Millisecond)
	m.RecordBytes("download", "out", 10)
	m.RecordTokenIssued()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("download", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("download", "GET", "404")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.bytesTransferred.WithLabelValues("download", "out")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tokensIssued))
}

func TestHTTPMetrics_CountsAuditEvents(t *testing.T) {
	m := newHTTPMetrics(prometheus.NewRegistry())
	sink := audit.NewCountingSink(m)

	sink.Audit(t.Context(), audit.Event{Kind: audit.KindUpload})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.auditEvents.WithLabelValues("upload", "Unknown")))
}

func TestConstructors_DisabledRegistryIsNoop(t *testing.T) {
	if metrics.IsEnabled() {
		t.Skip("global registry already initialized")
	}
	assert.Equal(t, metrics.NewNoopVFSMetrics(), NewVFSMetrics())
	assert.Equal(t, metrics.NewNoopHTTPMetrics(), NewHTTPMetrics())
}
