package badger

import (
	"context"
	"testing"

	"github.com/packrat/davgate/pkg/store/repository"
	storetest "github.com/packrat/davgate/pkg/store/repository/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	store, err := New(context.Background(), Config{DBPath: dir})
	require.NoError(t, err)
	return store
}

func TestBadgerStore(t *testing.T) {
	suite := &storetest.StoreTestSuite{
		NewStore: func(t *testing.T) repository.Store {
			store := newTestStore(t, t.TempDir())
			t.Cleanup(func() { _ = store.Close() })
			return store
		},
	}
	suite.Run(t)
}

func TestBadgerStore_InMemory(t *testing.T) {
	store, err := New(context.Background(), Config{InMemory: true})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	so := &repository.SystemObject{ObjectType: repository.ObjectTypeScene}
	require.NoError(t, store.CreateSystemObject(context.Background(), so))

	got, err := store.GetSystemObject(context.Background(), so.IDSystemObject)
	require.NoError(t, err)
	assert.Equal(t, repository.ObjectTypeScene, got.ObjectType)
}

func TestBadgerStore_RequiresPath(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}

func TestBadgerStore_Reopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store := newTestStore(t, dir)
	so := &repository.SystemObject{ObjectType: repository.ObjectTypeItem, IDObject: 2}
	require.NoError(t, store.CreateSystemObject(ctx, so))
	asset := &repository.Asset{FileName: "a.obj", IDSystemObjectOwner: so.IDSystemObject}
	require.NoError(t, store.CreateAsset(ctx, asset))
	v := &repository.AssetVersion{IDAsset: asset.IDAsset, FileName: "a.obj", StorageKey: "k"}
	require.NoError(t, store.CreateAssetVersion(ctx, v))
	require.NoError(t, store.Close())

	reopened := newTestStore(t, dir)
	defer func() { _ = reopened.Close() }()

	latest, err := reopened.GetLatestAssetVersion(ctx, asset.IDAsset)
	require.NoError(t, err)
	assert.Equal(t, v.IDAssetVersion, latest.IDAssetVersion)
	assert.Equal(t, 1, latest.Version)

	// Ids keep increasing across restarts
	next := &repository.SystemObject{}
	require.NoError(t, reopened.CreateSystemObject(ctx, next))
	assert.Greater(t, next.IDSystemObject, v.IDAssetVersion)
}

func TestKeys_OrderAndParse(t *testing.T) {
	a := keyAssetVersionIndex(5, 9)
	b := keyAssetVersionIndex(5, 10)
	assert.Less(t, string(a), string(b))

	id, err := trailingID(keyAssetOwnerIndex(3, 42))
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = trailingID([]byte("nocolon"))
	assert.Error(t, err)
}
