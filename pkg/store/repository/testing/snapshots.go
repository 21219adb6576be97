package testing

import (
	"testing"

	"github.com/packrat/davgate/pkg/store/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSnapshotTests covers system object version snapshots.
func (suite *StoreTestSuite) RunSnapshotTests(t *testing.T) {
	t.Run("Snapshot_CapturesLatest", suite.testSnapshotCapturesLatest)
	t.Run("Snapshot_Empty", suite.testSnapshotEmpty)
	t.Run("Snapshot_NotFound", suite.testSnapshotNotFound)
}

func (suite *StoreTestSuite) testSnapshotCapturesLatest(t *testing.T) {
	store := suite.NewStore(t)
	owner := mustSystemObject(t, store)
	asset := mustAsset(t, store, owner, "", "a.obj")
	v1 := mustVersion(t, store, asset, "k1", 1)

	snap, err := store.SnapshotSystemObject(testContext(), owner)
	require.NoError(t, err)
	assert.Equal(t, owner, snap.IDSystemObject)

	// Later versions do not leak into an existing snapshot
	mustVersion(t, store, asset, "k2", 2)

	versions, err := store.GetAssetVersionsForSystemObjectVersion(testContext(), snap.IDSystemObjectVersion)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, v1.IDAssetVersion, versions[0].IDAssetVersion)
}

func (suite *StoreTestSuite) testSnapshotEmpty(t *testing.T) {
	store := suite.NewStore(t)
	owner := mustSystemObject(t, store)

	snap, err := store.SnapshotSystemObject(testContext(), owner)
	require.NoError(t, err)

	versions, err := store.GetAssetVersionsForSystemObjectVersion(testContext(), snap.IDSystemObjectVersion)
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func (suite *StoreTestSuite) testSnapshotNotFound(t *testing.T) {
	store := suite.NewStore(t)

	_, err := store.SnapshotSystemObject(testContext(), 55)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = store.GetAssetVersionsForSystemObjectVersion(testContext(), 55)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
