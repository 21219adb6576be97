package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	protocol string
	port     int
	failWith error

	mu      sync.Mutex
	stopped bool
	stop    chan struct{}
	once    sync.Once
}

func newFakeAdapter(protocol string, port int) *fakeAdapter {
	return &fakeAdapter{protocol: protocol, port: port, stop: make(chan struct{})}
}

func (a *fakeAdapter) Serve(ctx context.Context) error {
	if a.failWith != nil {
		return a.failWith
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-a.stop:
		return nil
	}
}

func (a *fakeAdapter) Stop(ctx context.Context) error {
	a.once.Do(func() {
		a.mu.Lock()
		a.stopped = true
		a.mu.Unlock()
		close(a.stop)
	})
	return nil
}

func (a *fakeAdapter) Protocol() string { return a.protocol }
func (a *fakeAdapter) Port() int        { return a.port }

func (a *fakeAdapter) wasStopped() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopped
}

func TestAddAdapter_Conflicts(t *testing.T) {
	s := New(time.Second)
	require.NoError(t, s.AddAdapter(newFakeAdapter("HTTP", 8080)))

	assert.Error(t, s.AddAdapter(newFakeAdapter("HTTP", 8081)), "duplicate protocol")
	assert.Error(t, s.AddAdapter(newFakeAdapter("OTHER", 8080)), "duplicate port")
	assert.Error(t, s.AddAdapter(nil))
	assert.Len(t, s.Adapters(), 1)
}

func TestServe_NoAdapters(t *testing.T) {
	assert.Error(t, New(0).Serve(context.Background()))
}

func TestServe_CancelStopsAdaptersThenRunsHooks(t *testing.T) {
	s := New(time.Second)
	a := newFakeAdapter("HTTP", 8080)
	require.NoError(t, s.AddAdapter(a))

	var order []string
	s.OnShutdown(func() {
		if a.wasStopped() {
			order = append(order, "after-stop")
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Equal(t, []string{"after-stop"}, order)

	assert.Error(t, s.Serve(context.Background()), "Serve runs once")
	assert.Error(t, s.AddAdapter(newFakeAdapter("LATE", 1)))
}

func TestServe_AdapterFailureStopsOthers(t *testing.T) {
	s := New(time.Second)
	healthy := newFakeAdapter("HTTP", 8080)
	broken := newFakeAdapter("METRICS", 9090)
	broken.failWith = errors.New("bind: address in use")
	require.NoError(t, s.AddAdapter(healthy))
	require.NoError(t, s.AddAdapter(broken))

	err := s.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address in use")
	assert.True(t, healthy.wasStopped())
}
