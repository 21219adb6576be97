// Package writelock serializes ingestion per system object.
//
// Two synchronization layers are independent: a mutex guards only the map
// of handles and their reference counts, while each handle is a capacity-1
// semaphore held for the whole critical section. Writers to different
// objects never contend.
package writelock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/packrat/davgate/internal/logger"
	"github.com/packrat/davgate/internal/retry"
	"golang.org/x/sync/semaphore"
)

// ErrLockTimeout is returned by Run when the lock was not acquired within
// the retry budget. Nothing was committed.
var ErrLockTimeout = errors.New("write lock not acquired")

// Defaults for Run.
const (
	DefaultAttempts       = 5
	DefaultAttemptTimeout = 2 * time.Second
)

// Handle is the shared exclusion primitive for one object.
type Handle struct {
	sem  *semaphore.Weighted
	refs int
}

// Lock blocks until the handle is held or ctx ends.
func (h *Handle) Lock(ctx context.Context) error {
	return h.sem.Acquire(ctx, 1)
}

// Unlock releases a held handle.
func (h *Handle) Unlock() {
	h.sem.Release(1)
}

// Metrics observes lock acquisition. Outcome is "acquired" or "timeout".
type Metrics interface {
	ObserveLockWait(outcome string, wait time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ObserveLockWait(string, time.Duration) {}

// Manager owns the handles for every object with active writers.
type Manager struct {
	mu      sync.Mutex
	handles map[int64]*Handle

	attempts       int
	attemptTimeout time.Duration
	metrics        Metrics
}

// Option configures a Manager.
type Option func(*Manager)

// WithRetry overrides the acquisition budget used by Run.
func WithRetry(attempts int, attemptTimeout time.Duration) Option {
	return func(m *Manager) {
		if attempts > 0 {
			m.attempts = attempts
		}
		if attemptTimeout > 0 {
			m.attemptTimeout = attemptTimeout
		}
	}
}

// WithMetrics records lock waits.
func WithMetrics(metrics Metrics) Option {
	return func(m *Manager) {
		if metrics != nil {
			m.metrics = metrics
		}
	}
}

// NewManager creates an empty manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		handles:        make(map[int64]*Handle),
		attempts:       DefaultAttempts,
		attemptTimeout: DefaultAttemptTimeout,
		metrics:        noopMetrics{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AcquireIntent returns the handle for id, creating it on first use, and
// counts the caller as a writer. Every call must be paired with Release.
func (m *Manager) AcquireIntent(id int64) *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.handles[id]
	if !ok {
		h = &Handle{sem: semaphore.NewWeighted(1)}
		m.handles[id] = h
	}
	h.refs++
	return h
}

// Release drops one writer reference and forgets the handle at zero.
func (m *Manager) Release(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.handles[id]
	if !ok {
		return
	}
	h.refs--
	if h.refs <= 0 {
		delete(m.handles, id)
	}
}

// Active returns the number of objects with at least one writer.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}

// Run executes fn while holding the lock for id.
//
// Acquisition is attempted up to the configured number of times, each
// bounded by the per-attempt timeout. When every attempt times out Run
// returns ErrLockTimeout without calling fn. The context passed to fn is
// ctx itself; callers that must not be interrupted pass a non-cancellable
// context.
func (m *Manager) Run(ctx context.Context, id int64, fn func(ctx context.Context) error) error {
	h := m.AcquireIntent(id)
	defer m.Release(id)

	start := time.Now()
	err := retry.Do(ctx, retry.Policy{
		Attempts:       m.attempts,
		AttemptTimeout: m.attemptTimeout,
		OnRetry: func(attempt int, err error) {
			logger.Debug("Write lock for idSystemObject %d busy (attempt %d/%d): %v", id, attempt, m.attempts, err)
		},
	}, h.Lock)
	if err != nil {
		m.metrics.ObserveLockWait("timeout", time.Since(start))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("idSystemObject %d after %d attempts: %w", id, m.attempts, ErrLockTimeout)
	}
	m.metrics.ObserveLockWait("acquired", time.Since(start))
	defer h.Unlock()

	return fn(ctx)
}
