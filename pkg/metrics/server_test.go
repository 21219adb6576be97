package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewServer_DefaultPort(t *testing.T) {
	s := NewServer(ServerConfig{})
	assert.Equal(t, DefaultPort, s.Port())

	s = NewServer(ServerConfig{Port: 9191})
	assert.Equal(t, 9191, s.Port())
}

func TestHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if IsEnabled() {
		assert.Equal(t, http.StatusOK, rec.Code)
	} else {
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	}

	rec = httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/other", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
