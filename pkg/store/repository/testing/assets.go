package testing

import (
	"testing"

	"github.com/packrat/davgate/pkg/store/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunAssetTests covers system objects, assets and asset versions.
func (suite *StoreTestSuite) RunAssetTests(t *testing.T) {
	t.Run("GetSystemObject_NotFound", suite.testGetSystemObjectNotFound)
	t.Run("GetSystemObject_Success", suite.testGetSystemObjectSuccess)
	t.Run("CreateAsset_UnknownOwner", suite.testCreateAssetUnknownOwner)
	t.Run("CreateAsset_Duplicate", suite.testCreateAssetDuplicate)
	t.Run("CreateAssetVersion_Numbering", suite.testVersionNumbering)
	t.Run("CreateAssetVersion_UnknownAsset", suite.testVersionUnknownAsset)
	t.Run("GetLatestAssetVersion_NoVersions", suite.testLatestNoVersions)
	t.Run("LatestVersionsForSystemObject", suite.testLatestForSystemObject)
	t.Run("LatestVersionsForSystemObject_Empty", suite.testLatestForSystemObjectEmpty)
	t.Run("LatestVersionsForSystemObject_Unknown", suite.testLatestForSystemObjectUnknown)
	t.Run("FindAsset_CaseInsensitive", suite.testFindAssetCaseInsensitive)
	t.Run("StorageKeys", suite.testStorageKeys)
}

func (suite *StoreTestSuite) testGetSystemObjectNotFound(t *testing.T) {
	store := suite.NewStore(t)

	_, err := store.GetSystemObject(testContext(), 404)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func (suite *StoreTestSuite) testGetSystemObjectSuccess(t *testing.T) {
	store := suite.NewStore(t)
	id := mustSystemObject(t, store)

	so, err := store.GetSystemObject(testContext(), id)
	require.NoError(t, err)
	assert.Equal(t, id, so.IDSystemObject)
	assert.Equal(t, repository.ObjectTypeSubject, so.ObjectType)
	assert.Equal(t, int64(7), so.IDObject)
}

func (suite *StoreTestSuite) testCreateAssetUnknownOwner(t *testing.T) {
	store := suite.NewStore(t)

	err := store.CreateAsset(testContext(), &repository.Asset{FileName: "a.obj", IDSystemObjectOwner: 999})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func (suite *StoreTestSuite) testCreateAssetDuplicate(t *testing.T) {
	store := suite.NewStore(t)
	owner := mustSystemObject(t, store)
	mustAsset(t, store, owner, "models", "a.obj")

	err := store.CreateAsset(testContext(), &repository.Asset{
		FileName: "A.OBJ", FilePath: "Models", IDSystemObjectOwner: owner,
	})
	assert.ErrorIs(t, err, repository.ErrAlreadyExists)
}

func (suite *StoreTestSuite) testVersionNumbering(t *testing.T) {
	store := suite.NewStore(t)
	owner := mustSystemObject(t, store)
	asset := mustAsset(t, store, owner, "", "a.obj")

	v1 := mustVersion(t, store, asset, "k1", 10)
	v2 := mustVersion(t, store, asset, "k2", 20)
	assert.Equal(t, 1, v1.Version)
	assert.Equal(t, 2, v2.Version)
	assert.False(t, v2.DateCreated.IsZero())

	latest, err := store.GetLatestAssetVersion(testContext(), asset.IDAsset)
	require.NoError(t, err)
	assert.Equal(t, v2.IDAssetVersion, latest.IDAssetVersion)
	assert.Equal(t, int64(20), latest.StorageSize)

	got, err := store.GetAssetVersion(testContext(), v1.IDAssetVersion)
	require.NoError(t, err)
	assert.Equal(t, "k1", got.StorageKey)
	assert.Equal(t, "a.obj", got.FileName)
}

func (suite *StoreTestSuite) testVersionUnknownAsset(t *testing.T) {
	store := suite.NewStore(t)

	err := store.CreateAssetVersion(testContext(), &repository.AssetVersion{IDAsset: 12345})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func (suite *StoreTestSuite) testLatestNoVersions(t *testing.T) {
	store := suite.NewStore(t)
	owner := mustSystemObject(t, store)
	asset := mustAsset(t, store, owner, "", "empty.obj")

	_, err := store.GetLatestAssetVersion(testContext(), asset.IDAsset)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func (suite *StoreTestSuite) testLatestForSystemObject(t *testing.T) {
	store := suite.NewStore(t)
	owner := mustSystemObject(t, store)
	other := mustSystemObject(t, store)

	a := mustAsset(t, store, owner, "", "a.obj")
	b := mustAsset(t, store, owner, "textures", "b.png")
	c := mustAsset(t, store, other, "", "c.obj")
	mustVersion(t, store, a, "a1", 1)
	a2 := mustVersion(t, store, a, "a2", 2)
	b1 := mustVersion(t, store, b, "b1", 3)
	mustVersion(t, store, c, "c1", 4)

	versions, err := store.GetLatestAssetVersionsForSystemObject(testContext(), owner)
	require.NoError(t, err)

	ids := make([]int64, 0, len(versions))
	for _, v := range versions {
		ids = append(ids, v.IDAssetVersion)
	}
	assert.ElementsMatch(t, []int64{a2.IDAssetVersion, b1.IDAssetVersion}, ids)
}

func (suite *StoreTestSuite) testLatestForSystemObjectEmpty(t *testing.T) {
	store := suite.NewStore(t)
	owner := mustSystemObject(t, store)

	versions, err := store.GetLatestAssetVersionsForSystemObject(testContext(), owner)
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func (suite *StoreTestSuite) testLatestForSystemObjectUnknown(t *testing.T) {
	store := suite.NewStore(t)

	_, err := store.GetLatestAssetVersionsForSystemObject(testContext(), 777)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func (suite *StoreTestSuite) testFindAssetCaseInsensitive(t *testing.T) {
	store := suite.NewStore(t)
	owner := mustSystemObject(t, store)
	asset := mustAsset(t, store, owner, "Scenes/Main", "Scene.svx.json")

	found, err := store.FindAsset(testContext(), owner, "scenes/main", "scene.SVX.json")
	require.NoError(t, err)
	assert.Equal(t, asset.IDAsset, found.IDAsset)
	assert.Equal(t, "Scene.svx.json", found.FileName)

	_, err = store.FindAsset(testContext(), owner, "", "Scene.svx.json")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func (suite *StoreTestSuite) testStorageKeys(t *testing.T) {
	store := suite.NewStore(t)
	owner := mustSystemObject(t, store)
	asset := mustAsset(t, store, owner, "", "a.obj")
	mustVersion(t, store, asset, "k1", 1)
	mustVersion(t, store, asset, "k2", 1)

	keys, err := store.StorageKeys(testContext())
	require.NoError(t, err)
	assert.Len(t, keys, 2)
	assert.Contains(t, keys, "k1")
	assert.Contains(t, keys, "k2")
}
