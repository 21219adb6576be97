// Package gc removes blobs that no asset version references.
//
// Orphans appear when an ingestion stores its blob and then fails before the
// asset version is recorded. A key is only deleted once it has been found
// orphaned by two consecutive runs, so a blob whose version is still being
// written survives the run that first sees it. Ingestions additionally pin
// their blob key for their whole duration; a pinned key is never deleted.
package gc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/packrat/davgate/internal/logger"
	"github.com/packrat/davgate/pkg/store/blob"
	"golang.org/x/sync/errgroup"
)

// KeySource reports the storage keys that are still referenced.
type KeySource interface {
	StorageKeys(ctx context.Context) (map[string]struct{}, error)
}

// Collector performs periodic garbage collection on a blob store.
//
// Thread Safety: Safe for concurrent use. Runs are serialized.
type Collector struct {
	keys   KeySource
	blobs  blob.Store
	config Config

	runMu      sync.Mutex
	candidates map[string]struct{}

	// pinMu guards pins and deleting, which span runs
	pinMu    sync.Mutex
	pins     map[string]int
	deleting map[string]chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// Config contains configuration for the garbage collector.
type Config struct {
	// Enabled controls whether the background worker runs
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Interval is how often to run garbage collection (default: 1h)
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`

	// Concurrency bounds parallel deletes (default: 8)
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`

	// DryRun logs what would be deleted without deleting
	DryRun bool `mapstructure:"dry_run" yaml:"dry_run"`
}

const (
	DefaultInterval    = time.Hour
	DefaultConcurrency = 8

	runTimeout = 10 * time.Minute
)

// NewCollector creates a collector. Call Start to begin background runs.
func NewCollector(keys KeySource, blobs blob.Store, config Config) (*Collector, error) {
	if keys == nil {
		return nil, fmt.Errorf("gc: key source is required")
	}
	if blobs == nil {
		return nil, fmt.Errorf("gc: blob store is required")
	}
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConcurrency
	}

	return &Collector{
		keys:       keys,
		blobs:      blobs,
		config:     config,
		candidates: make(map[string]struct{}),
		pins:       make(map[string]int),
		deleting:   make(map[string]chan struct{}),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

// Start begins background garbage collection. Subsequent calls are no-ops.
func (c *Collector) Start() {
	if !c.config.Enabled {
		logger.Info("Garbage collection disabled")
		return
	}

	c.startOnce.Do(func() {
		logger.Info("Starting garbage collector: interval=%s concurrency=%d dry_run=%v",
			c.config.Interval, c.config.Concurrency, c.config.DryRun)
		c.started.Store(true)
		go c.worker()
	})
}

// Stop signals the worker and waits for an in-progress run to finish or
// ctx to expire. Safe to call multiple times and without Start.
func (c *Collector) Stop(ctx context.Context) error {
	if !c.started.Load() {
		return nil
	}

	c.stopOnce.Do(func() { close(c.stopCh) })

	select {
	case <-c.doneCh:
		logger.Info("Garbage collector stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("Garbage collector shutdown timeout")
		return ctx.Err()
	}
}

// Pin keeps key from being deleted until the returned release is called.
// When a delete of key is already in flight, Pin waits for it to finish so
// the caller observes the blob as absent and stores it again.
func (c *Collector) Pin(key string) (release func()) {
	c.pinMu.Lock()
	c.pins[key]++
	inflight := c.deleting[key]
	c.pinMu.Unlock()

	if inflight != nil {
		<-inflight
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			c.pinMu.Lock()
			if c.pins[key]--; c.pins[key] <= 0 {
				delete(c.pins, key)
			}
			c.pinMu.Unlock()
		})
	}
}

// beginDelete claims key for deletion unless it is pinned. The returned
// done must be called once the delete has finished.
func (c *Collector) beginDelete(key string) (done func(), ok bool) {
	c.pinMu.Lock()
	defer c.pinMu.Unlock()
	if c.pins[key] > 0 {
		return nil, false
	}
	ch := make(chan struct{})
	c.deleting[key] = ch
	return func() {
		c.pinMu.Lock()
		delete(c.deleting, key)
		c.pinMu.Unlock()
		close(ch)
	}, true
}

// RunNow performs one collection run and blocks until it completes.
func (c *Collector) RunNow(ctx context.Context) (*Stats, error) {
	return c.collect(ctx)
}

func (c *Collector) worker() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
			stats, err := c.collect(ctx)
			cancel()

			if err != nil {
				logger.Error("Garbage collection failed: %v", err)
			} else {
				logger.Info("Garbage collection completed: %s", stats.Summary())
			}

		case <-c.stopCh:
			return
		}
	}
}

// collect runs one mark-and-sweep pass:
//  1. Get every key referenced by an asset version
//  2. List every key in the blob store
//  3. Orphans seen by the previous run are deleted, new ones are marked
func (c *Collector) collect(ctx context.Context) (*Stats, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	stats := &Stats{StartTime: time.Now()}
	defer func() { stats.EndTime = time.Now() }()

	referenced, err := c.keys.StorageKeys(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to get referenced keys: %w", err)
	}
	stats.ReferencedCount = len(referenced)

	existing, err := c.blobs.List(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list blobs: %w", err)
	}
	stats.ExistingCount = len(existing)

	next := make(map[string]struct{})
	var doomed []string
	for _, key := range existing {
		if _, ok := referenced[key]; ok {
			continue
		}
		stats.OrphanedCount++
		if _, marked := c.candidates[key]; marked {
			doomed = append(doomed, key)
			continue
		}
		next[key] = struct{}{}
	}
	stats.MarkedCount = len(next)

	if c.config.DryRun {
		for _, key := range doomed {
			logger.Info("GC: dry run, would delete %s", key)
		}
		// keep the marks so a later real run can act on them
		for _, key := range doomed {
			next[key] = struct{}{}
		}
		c.candidates = next
		return stats, nil
	}

	var (
		deleted atomic.Int64
		pinned  atomic.Int64
		keepMu  sync.Mutex
		keep    []string // re-marked for the next run
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Concurrency)
	for _, key := range doomed {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			done, ok := c.beginDelete(key)
			if !ok {
				logger.Debug("GC: %s is pinned by an ingestion, keeping it", key)
				pinned.Add(1)
				keepMu.Lock()
				keep = append(keep, key)
				keepMu.Unlock()
				return nil
			}
			err := c.blobs.Delete(gctx, key)
			done()
			if err != nil {
				logger.Debug("GC: failed to delete %s: %v", key, err)
				keepMu.Lock()
				keep = append(keep, key)
				keepMu.Unlock()
				return nil
			}
			deleted.Add(1)
			return nil
		})
	}
	err = g.Wait()

	stats.DeletedCount = int(deleted.Load())
	stats.PinnedCount = int(pinned.Load())
	stats.FailedCount = len(keep) - stats.PinnedCount
	for _, key := range keep {
		next[key] = struct{}{}
	}
	c.candidates = next
	return stats, err
}

// Stats contains statistics from a garbage collection run.
type Stats struct {
	StartTime       time.Time
	EndTime         time.Time
	ReferencedCount int // keys referenced by asset versions
	ExistingCount   int // keys present in the blob store
	OrphanedCount   int // unreferenced keys seen this run
	MarkedCount     int // orphans first seen this run, deleted next run
	DeletedCount    int
	PinnedCount     int // due for deletion but in use by an ingestion
	FailedCount     int
}

// Duration returns the total collection duration.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary returns a human-readable summary of the collection.
func (s *Stats) Summary() string {
	return fmt.Sprintf("referenced=%d existing=%d orphaned=%d marked=%d deleted=%d pinned=%d failed=%d duration=%s",
		s.ReferencedCount, s.ExistingCount, s.OrphanedCount, s.MarkedCount,
		s.DeletedCount, s.PinnedCount, s.FailedCount, s.Duration())
}
