package vfs

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/packrat/davgate/internal/clock"
	"github.com/packrat/davgate/pkg/audit"
	"github.com/packrat/davgate/pkg/storage"
	"github.com/packrat/davgate/pkg/storage/engine"
	blobmemory "github.com/packrat/davgate/pkg/store/blob/memory"
	"github.com/packrat/davgate/pkg/store/repository"
	repomemory "github.com/packrat/davgate/pkg/store/repository/memory"
	"github.com/packrat/davgate/pkg/vocabulary"
	"github.com/stretchr/testify/require"
)

const (
	typeScene    int64 = 101
	typeGeometry int64 = 102
	typeOther    int64 = 103
)

type harness struct {
	repo    *repomemory.Store
	blobs   *blobmemory.Store
	engine  *recordingEngine
	audit   *audit.Recorder
	clock   *clock.Fake
	metrics *recordingMetrics
	fs      *FileSystem
}

type harnessOption func(*Deps, *Config)

func withAssetTypes(types map[string]int64) harnessOption {
	return func(d *Deps, _ *Config) {
		d.Vocabulary = vocabulary.NewStatic(vocabulary.Config{
			ModelExtensions: vocabulary.DefaultModelExtensions,
			AssetTypes:      types,
		})
	}
}

func withMaxUpload(n int64) harnessOption {
	return func(_ *Deps, c *Config) { c.MaxUploadBytes = n }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	h := &harness{
		repo:    repomemory.New(),
		blobs:   blobmemory.New(),
		audit:   &audit.Recorder{},
		clock:   clock.NewFake(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)),
		metrics: &recordingMetrics{},
	}
	h.engine = &recordingEngine{Engine: engine.New(h.repo, h.blobs, engine.WithClock(h.clock))}

	deps := Deps{
		Repository: h.repo,
		Engine:     h.engine,
		Vocabulary: vocabulary.NewStatic(vocabulary.Config{
			ModelExtensions: vocabulary.DefaultModelExtensions,
			AssetTypes: map[string]int64{
				"scene":          typeScene,
				"model_geometry": typeGeometry,
				"other":          typeOther,
			},
		}),
		Audit:   h.audit,
		Metrics: h.metrics,
		Clock:   h.clock,
	}
	var cfg Config
	for _, opt := range opts {
		opt(&deps, &cfg)
	}

	fs, err := New(deps, cfg)
	require.NoError(t, err)
	h.fs = fs
	t.Cleanup(fs.Wait)
	return h
}

func (h *harness) systemObject(t *testing.T) int64 {
	t.Helper()
	so := &repository.SystemObject{ObjectType: repository.ObjectTypeModel, IDObject: 1}
	require.NoError(t, h.repo.CreateSystemObject(context.Background(), so))
	return so.IDSystemObject
}

// ingest stores content at filePath/fileName under owner, bypassing the
// filesystem.
func (h *harness) ingest(t *testing.T, owner int64, filePath, fileName, content string) *repository.AssetVersion {
	t.Helper()
	so, err := h.repo.GetSystemObject(context.Background(), owner)
	require.NoError(t, err)

	versions, err := h.engine.Engine.IngestStreamOrFile(context.Background(), &storage.IngestDescriptor{
		Reader:        strings.NewReader(content),
		Size:          int64(len(content)),
		FileName:      fileName,
		FilePath:      filePath,
		IDAssetType:   typeOther,
		IDUserCreator: 1,
		Owner:         so,
	})
	require.NoError(t, err)
	require.Len(t, versions, 1)
	return versions[0]
}

// upload writes content through the filesystem and waits for the commit.
func (h *harness) upload(t *testing.T, p, content string) {
	t.Helper()
	w, err := h.fs.OpenWriteStream(context.Background(), p, RequestInfo{UserID: 9, Authenticated: true, URL: p})
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	h.fs.Wait()
}

// recordingEngine records descriptors and tracks how many ingestions
// overlap per owner set. gate, when set, is called inside each ingestion.
type recordingEngine struct {
	storage.Engine

	mu    sync.Mutex
	descs []storage.IngestDescriptor

	active    atomic.Int32
	maxActive atomic.Int32
	gate      func()
}

func (e *recordingEngine) IngestStreamOrFile(ctx context.Context, desc *storage.IngestDescriptor) ([]*repository.AssetVersion, error) {
	n := e.active.Add(1)
	defer e.active.Add(-1)
	for {
		m := e.maxActive.Load()
		if n <= m || e.maxActive.CompareAndSwap(m, n) {
			break
		}
	}

	e.mu.Lock()
	e.descs = append(e.descs, *desc)
	gate := e.gate
	e.mu.Unlock()

	if gate != nil {
		gate()
	}
	return e.Engine.IngestStreamOrFile(ctx, desc)
}

func (e *recordingEngine) descriptors() []storage.IngestDescriptor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]storage.IngestDescriptor(nil), e.descs...)
}

type recordingMetrics struct {
	mu          sync.Mutex
	hits        map[string]int
	misses      map[string]int
	ingestions  int
	failed      int
	lockResults []string
}

func (m *recordingMetrics) RecordLookup(property string, hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hits == nil {
		m.hits, m.misses = map[string]int{}, map[string]int{}
	}
	if hit {
		m.hits[property]++
	} else {
		m.misses[property]++
	}
}

func (m *recordingMetrics) ObserveFanOut(time.Duration, error) {}

func (m *recordingMetrics) ObserveLockWait(outcome string, _ time.Duration) {
	m.mu.Lock()
	m.lockResults = append(m.lockResults, outcome)
	m.mu.Unlock()
}

func (m *recordingMetrics) RecordIngestionStart() {}

func (m *recordingMetrics) RecordIngestionEnd(_ int64, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ingestions++
	if err != nil {
		m.failed++
	}
}
