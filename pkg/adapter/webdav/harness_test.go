package webdav

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/packrat/davgate/internal/clock"
	"github.com/packrat/davgate/pkg/audit"
	"github.com/packrat/davgate/pkg/storage"
	"github.com/packrat/davgate/pkg/storage/engine"
	blobmemory "github.com/packrat/davgate/pkg/store/blob/memory"
	"github.com/packrat/davgate/pkg/store/repository"
	repomemory "github.com/packrat/davgate/pkg/store/repository/memory"
	"github.com/packrat/davgate/pkg/token"
	"github.com/packrat/davgate/pkg/vfs"
	"github.com/packrat/davgate/pkg/vocabulary"
	"github.com/stretchr/testify/require"
)

const testUser int64 = 7

type recordedRequest struct {
	route  string
	method string
	status int
}

type recordingHTTPMetrics struct {
	mu       sync.Mutex
	requests []recordedRequest
	bytes    map[string]int64
	issued   int
}

func (m *recordingHTTPMetrics) RecordRequest(route, method string, status int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, recordedRequest{route: route, method: method, status: status})
}

func (m *recordingHTTPMetrics) RecordBytes(route, direction string, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bytes == nil {
		m.bytes = make(map[string]int64)
	}
	m.bytes[route+"/"+direction] += n
}

func (m *recordingHTTPMetrics) RecordTokenIssued() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issued++
}

func (m *recordingHTTPMetrics) CountAuditEvent(string, string) {}

func (m *recordingHTTPMetrics) snapshot() []recordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]recordedRequest(nil), m.requests...)
}

type env struct {
	repo    *repomemory.Store
	engine  storage.Engine
	fs      *vfs.FileSystem
	tokens  *token.Store
	audit   *audit.Recorder
	clock   *clock.Fake
	metrics *recordingHTTPMetrics
	adapter *Adapter
	srv     *httptest.Server
}

type envOption func(*Config, *vfs.Config)

func withConfig(fn func(*Config)) envOption {
	return func(c *Config, _ *vfs.Config) { fn(c) }
}

func withMaxUpload(n int64) envOption {
	return func(_ *Config, c *vfs.Config) { c.MaxUploadBytes = n }
}

func newEnv(t *testing.T, opts ...envOption) *env {
	t.Helper()

	e := &env{
		repo:    repomemory.New(),
		audit:   &audit.Recorder{},
		clock:   clock.NewFake(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)),
		metrics: &recordingHTTPMetrics{},
	}
	e.engine = engine.New(e.repo, blobmemory.New(), engine.WithClock(e.clock))
	e.tokens = token.NewStore(token.WithClock(e.clock))

	var (
		cfg    Config
		vfsCfg vfs.Config
	)
	for _, opt := range opts {
		opt(&cfg, &vfsCfg)
	}

	fs, err := vfs.New(vfs.Deps{
		Repository: e.repo,
		Engine:     e.engine,
		Vocabulary: vocabulary.NewStatic(vocabulary.Config{
			ModelExtensions: vocabulary.DefaultModelExtensions,
			AssetTypes:      map[string]int64{"scene": 101, "model_geometry": 102, "other": 103},
		}),
		Audit: e.audit,
		Clock: e.clock,
	}, vfsCfg)
	require.NoError(t, err)
	e.fs = fs
	t.Cleanup(fs.Wait)

	e.adapter, err = New(cfg, Deps{
		FileSystem: fs,
		Tokens:     e.tokens,
		Audit:      e.audit,
		Metrics:    e.metrics,
		Clock:      e.clock,
	})
	require.NoError(t, err)

	e.srv = httptest.NewServer(e.adapter.Handler())
	t.Cleanup(e.srv.Close)
	return e
}

func (e *env) systemObject(t *testing.T) int64 {
	t.Helper()
	so := &repository.SystemObject{ObjectType: repository.ObjectTypeModel, IDObject: 1}
	require.NoError(t, e.repo.CreateSystemObject(context.Background(), so))
	return so.IDSystemObject
}

func (e *env) ingest(t *testing.T, owner int64, filePath, fileName, content string) *repository.AssetVersion {
	t.Helper()
	so, err := e.repo.GetSystemObject(context.Background(), owner)
	require.NoError(t, err)

	versions, err := e.engine.IngestStreamOrFile(context.Background(), &storage.IngestDescriptor{
		Reader:        strings.NewReader(content),
		Size:          int64(len(content)),
		FileName:      fileName,
		FilePath:      filePath,
		IDAssetType:   103,
		IDUserCreator: 1,
		Owner:         so,
	})
	require.NoError(t, err)
	require.Len(t, versions, 1)
	return versions[0]
}

// do sends a request as testUser unless headers override the identity.
func (e *env) do(t *testing.T, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, body)
	require.NoError(t, err)
	req.Header.Set("X-User-Id", strconv.FormatInt(testUser, 10))
	for k, v := range headers {
		if v == "" {
			req.Header.Del(k)
			continue
		}
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// anonymous removes the proxy identity header.
var anonymous = map[string]string{"X-User-Id": ""}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func soPath(prefix string, so int64) string {
	return prefix + vfs.SystemObjectDir(so)
}
