package engine

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/packrat/davgate/internal/clock"
	"github.com/packrat/davgate/pkg/storage"
	"github.com/packrat/davgate/pkg/store/blob"
	blobmemory "github.com/packrat/davgate/pkg/store/blob/memory"
	"github.com/packrat/davgate/pkg/store/repository"
	repomemory "github.com/packrat/davgate/pkg/store/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	repo   *repomemory.Store
	blobs  *blobmemory.Store
	engine *Engine
	owner  *repository.SystemObject
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := repomemory.New()
	blobs := blobmemory.New()
	owner := &repository.SystemObject{ObjectType: repository.ObjectTypeSubject, IDObject: 1}
	require.NoError(t, repo.CreateSystemObject(context.Background(), owner))

	fake := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	return &fixture{repo: repo, blobs: blobs, owner: owner, engine: New(repo, blobs, WithClock(fake))}
}

func (f *fixture) ingest(t *testing.T, dir, name, data string) *repository.AssetVersion {
	t.Helper()
	versions, err := f.engine.IngestStreamOrFile(context.Background(), &storage.IngestDescriptor{
		Reader:        bytes.NewReader([]byte(data)),
		Size:          int64(len(data)),
		FileName:      name,
		FilePath:      dir,
		IDAssetType:   7,
		IDUserCreator: 9,
		Owner:         f.owner,
	})
	require.NoError(t, err)
	require.Len(t, versions, 1)
	return versions[0]
}

func TestIngest_CreatesAssetAndVersion(t *testing.T) {
	f := newFixture(t)

	v := f.ingest(t, "models", "a.obj", "geometry")

	assert.Equal(t, 1, v.Version)
	assert.Equal(t, Hash([]byte("geometry")), v.StorageHash)
	assert.Equal(t, int64(8), v.StorageSize)
	assert.Equal(t, int64(9), v.IDUserCreator)
	assert.True(t, v.Ingested)
	assert.Equal(t, "/models/a.obj", v.NormalizedPath())

	asset, err := f.repo.GetAsset(context.Background(), v.IDAsset)
	require.NoError(t, err)
	assert.Equal(t, int64(7), asset.IDAssetType)
	assert.Equal(t, f.owner.IDSystemObject, asset.IDSystemObjectOwner)
}

func TestIngest_SecondUploadAppendsVersion(t *testing.T) {
	f := newFixture(t)

	v1 := f.ingest(t, "", "scene.svx.json", "{}")
	v2 := f.ingest(t, "", "SCENE.svx.json", `{"v":2}`)

	assert.Equal(t, v1.IDAsset, v2.IDAsset)
	assert.Equal(t, 2, v2.Version)
}

func TestIngest_DeduplicatesBlobs(t *testing.T) {
	f := newFixture(t)

	f.ingest(t, "", "a.txt", "same")
	f.ingest(t, "", "b.txt", "same")

	keys, err := f.blobs.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestIngest_ExistingAsset(t *testing.T) {
	f := newFixture(t)
	v1 := f.ingest(t, "docs", "readme.txt", "one")

	asset, err := f.repo.GetAsset(context.Background(), v1.IDAsset)
	require.NoError(t, err)

	versions, err := f.engine.IngestStreamOrFile(context.Background(), &storage.IngestDescriptor{
		Reader: bytes.NewReader([]byte("two")),
		Size:   -1,
		Asset:  asset,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, versions[0].Version)
	assert.Equal(t, "/docs/readme.txt", versions[0].NormalizedPath())
}

func TestIngest_PinsKeyAroundBlobWrite(t *testing.T) {
	f := newFixture(t)
	var events []string
	pinner := pinRecorder{events: &events}
	blobs := &recordingBlobs{Store: f.blobs, events: &events}
	f.engine = New(f.repo, blobs, WithPinner(pinner))

	v := f.ingest(t, "", "a.obj", "geometry")
	key := Hash([]byte("geometry"))
	assert.Equal(t, key, v.StorageKey)
	assert.Equal(t, []string{"pin " + key, "exists " + key, "put " + key, "release " + key}, events)

	events = nil
	f.ingest(t, "", "b.obj", "geometry")
	assert.Equal(t, []string{"pin " + key, "exists " + key, "release " + key}, events)
}

func TestIngest_RejectsBadDescriptor(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.IngestStreamOrFile(context.Background(), &storage.IngestDescriptor{})
	assert.Error(t, err)

	_, err = f.engine.IngestStreamOrFile(context.Background(), &storage.IngestDescriptor{
		Reader: bytes.NewReader(nil), Owner: f.owner,
	})
	assert.Error(t, err)

	_, err = f.engine.IngestStreamOrFile(context.Background(), &storage.IngestDescriptor{
		Reader: bytes.NewReader([]byte("ab")), Size: 3, FileName: "x", Owner: f.owner,
	})
	assert.Error(t, err)
}

func TestReadAssetVersion(t *testing.T) {
	f := newFixture(t)
	v := f.ingest(t, "", "a.txt", "payload")

	rc, err := f.engine.ReadAssetVersion(context.Background(), v)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	_, err = f.engine.ReadAssetVersion(context.Background(), &repository.AssetVersion{IDAssetVersion: 3})
	assert.ErrorIs(t, err, storage.ErrNotIngested)
}

type pinRecorder struct {
	events *[]string
}

func (p pinRecorder) Pin(key string) func() {
	*p.events = append(*p.events, "pin "+key)
	return func() { *p.events = append(*p.events, "release "+key) }
}

type recordingBlobs struct {
	blob.Store
	events *[]string
}

func (r *recordingBlobs) Exists(ctx context.Context, key string) (bool, error) {
	*r.events = append(*r.events, "exists "+key)
	return r.Store.Exists(ctx, key)
}

func (r *recordingBlobs) Put(ctx context.Context, key string, data io.Reader, size int64) error {
	*r.events = append(*r.events, "put "+key)
	return r.Store.Put(ctx, key, data, size)
}
