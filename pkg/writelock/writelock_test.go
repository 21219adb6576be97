package writelock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireIntent_SharesHandleAndCounts(t *testing.T) {
	m := NewManager()

	h1 := m.AcquireIntent(1)
	h2 := m.AcquireIntent(1)
	h3 := m.AcquireIntent(2)

	assert.Same(t, h1, h2)
	assert.NotSame(t, h1, h3)
	assert.Equal(t, 2, m.Active())

	m.Release(1)
	assert.Equal(t, 2, m.Active(), "one writer still holds object 1")

	m.Release(1)
	assert.Equal(t, 1, m.Active())

	m.Release(2)
	assert.Equal(t, 0, m.Active())

	// Releasing an unknown id is harmless
	m.Release(99)
	assert.Equal(t, 0, m.Active())
}

func TestRun_SameObjectNeverOverlaps(t *testing.T) {
	m := NewManager()

	var (
		inside  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.Run(context.Background(), 42, func(context.Context) error {
				n := inside.Add(1)
				for {
					old := maxSeen.Load()
					if n <= old || maxSeen.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				inside.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load())
	assert.Equal(t, 0, m.Active())
}

func TestRun_DifferentObjectsOverlap(t *testing.T) {
	m := NewManager()

	bothInside := make(chan struct{})
	var entered sync.WaitGroup
	entered.Add(2)

	var wg sync.WaitGroup
	for _, id := range []int64{1, 2} {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			err := m.Run(context.Background(), id, func(context.Context) error {
				entered.Done()
				select {
				case <-bothInside:
					return nil
				case <-time.After(2 * time.Second):
					return errors.New("critical sections did not overlap")
				}
			})
			assert.NoError(t, err)
		}(id)
	}

	entered.Wait()
	close(bothInside)
	wg.Wait()
}

func TestRun_TimesOutWhenHeld(t *testing.T) {
	m := NewManager(WithRetry(3, 10*time.Millisecond))

	h := m.AcquireIntent(7)
	require.NoError(t, h.Lock(context.Background()))

	called := false
	err := m.Run(context.Background(), 7, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.False(t, called)

	h.Unlock()
	m.Release(7)
	assert.Equal(t, 0, m.Active())
}

func TestRun_AcquiresAfterHolderReleases(t *testing.T) {
	m := NewManager(WithRetry(5, 50*time.Millisecond))

	h := m.AcquireIntent(3)
	require.NoError(t, h.Lock(context.Background()))
	go func() {
		time.Sleep(70 * time.Millisecond)
		h.Unlock()
		m.Release(3)
	}()

	err := m.Run(context.Background(), 3, func(context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestRun_PropagatesFnError(t *testing.T) {
	m := NewManager()
	boom := errors.New("ingest failed")

	err := m.Run(context.Background(), 1, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, m.Active())
}

func TestRun_CancelledContext(t *testing.T) {
	m := NewManager()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.Run(ctx, 1, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, m.Active())
}

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recordingMetrics) ObserveLockWait(outcome string, _ time.Duration) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, outcome)
	r.mu.Unlock()
}

func TestRun_RecordsMetrics(t *testing.T) {
	rec := &recordingMetrics{}
	m := NewManager(WithRetry(1, 5*time.Millisecond), WithMetrics(rec))

	require.NoError(t, m.Run(context.Background(), 1, func(context.Context) error { return nil }))

	h := m.AcquireIntent(1)
	require.NoError(t, h.Lock(context.Background()))
	assert.ErrorIs(t, m.Run(context.Background(), 1, func(context.Context) error { return nil }), ErrLockTimeout)
	h.Unlock()
	m.Release(1)

	assert.Equal(t, []string{"acquired", "timeout"}, rec.outcomes)
}
