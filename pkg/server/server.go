// Package server runs the protocol adapters of one gateway process and
// coordinates their shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/packrat/davgate/internal/logger"
	"github.com/packrat/davgate/pkg/adapter"
)

// DefaultStopTimeout bounds adapter shutdown.
const DefaultStopTimeout = 30 * time.Second

// Server manages the lifecycle of the registered adapters.
//
// Lifecycle:
//  1. Registration: AddAdapter for each protocol, OnShutdown for work that
//     must finish before exit (pending upload commits)
//  2. Startup: Serve starts every adapter concurrently
//  3. Shutdown: context cancellation or the failure of any adapter stops
//     all adapters in reverse order, then runs the shutdown hooks
//
// Thread safety:
// Safe for concurrent use. Serve may only be called once.
type Server struct {
	mu          sync.Mutex
	adapters    []adapter.Adapter
	hooks       []func()
	served      bool
	stopTimeout time.Duration
}

// New creates a server with no adapters. A non-positive stopTimeout
// selects DefaultStopTimeout.
func New(stopTimeout time.Duration) *Server {
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	return &Server{stopTimeout: stopTimeout}
}

// AddAdapter registers a. Protocols and ports must be unique.
func (s *Server) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		return errors.New("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		return errors.New("cannot add adapter after Serve has been called")
	}
	for _, existing := range s.adapters {
		if existing.Protocol() == a.Protocol() {
			return fmt.Errorf("adapter for protocol %s already registered", a.Protocol())
		}
		if existing.Port() == a.Port() {
			return fmt.Errorf("port %d already in use by %s adapter", a.Port(), existing.Protocol())
		}
	}

	s.adapters = append(s.adapters, a)
	logger.Info("Registered %s adapter on port %d", a.Protocol(), a.Port())
	return nil
}

// OnShutdown registers fn to run after every adapter has stopped. Hooks run
// in registration order.
func (s *Server) OnShutdown(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Adapters returns a snapshot of the registered adapters.
func (s *Server) Adapters() []adapter.Adapter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]adapter.Adapter(nil), s.adapters...)
}

// Serve starts all adapters and blocks until ctx is cancelled or one of
// them fails.
//
// Returns:
//   - ctx.Err() after a shutdown triggered by cancellation
//   - the first adapter error otherwise
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return errors.New("Serve has already been called")
	}
	s.served = true
	adapters := append([]adapter.Adapter(nil), s.adapters...)
	hooks := append([]func(){}, s.hooks...)
	s.mu.Unlock()

	if len(adapters) == 0 {
		return errors.New("no adapters registered")
	}

	logger.Info("Starting server with %d adapter(s)", len(adapters))

	errChan := make(chan error, len(adapters))
	var wg sync.WaitGroup
	for _, a := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()
			err := a.Serve(ctx)
			switch {
			case err == nil || errors.Is(err, context.Canceled) || ctx.Err() != nil:
				logger.Debug("%s adapter stopped", a.Protocol())
			default:
				logger.Error("%s adapter failed: %v", a.Protocol(), err)
				errChan <- fmt.Errorf("%s adapter error: %w", a.Protocol(), err)
			}
		}(a)
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		shutdownErr = ctx.Err()
	case err := <-errChan:
		logger.Error("Stopping all adapters after failure: %v", err)
		shutdownErr = err
	}

	s.stopAll(adapters)
	wg.Wait()

	for _, hook := range hooks {
		hook()
	}

	logger.Info("Server stopped")
	return shutdownErr
}

// stopAll stops adapters in reverse registration order under one deadline.
func (s *Server) stopAll(adapters []adapter.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
	defer cancel()

	for i := len(adapters) - 1; i >= 0; i-- {
		a := adapters[i]
		if err := a.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", a.Protocol(), err)
		}
	}
}
