// Package testing holds the conformance suite every repository.Store
// implementation runs.
package testing

import (
	"context"
	"testing"

	"github.com/packrat/davgate/pkg/store/repository"
	"github.com/stretchr/testify/require"
)

// StoreTestSuite tests the repository.Store contract, not implementation
// details.
//
// Usage:
//
//	func TestMyStore(t *testing.T) {
//	    suite := &storetest.StoreTestSuite{
//	        NewStore: func(t *testing.T) repository.Store {
//	            return mystore.New()
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore creates a fresh, empty store for each test. Implementations
	// register cleanup with t.
	NewStore func(t *testing.T) repository.Store
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("Assets", suite.RunAssetTests)
	t.Run("Snapshots", suite.RunSnapshotTests)
	t.Run("Workflows", suite.RunWorkflowTests)
	t.Run("JobRuns", suite.RunJobRunTests)
}

func testContext() context.Context {
	return context.Background()
}

// mustSystemObject creates a system object wrapping a Subject.
func mustSystemObject(t *testing.T, store repository.Store) int64 {
	t.Helper()
	so := &repository.SystemObject{ObjectType: repository.ObjectTypeSubject, IDObject: 7}
	require.NoError(t, store.CreateSystemObject(testContext(), so))
	require.NotZero(t, so.IDSystemObject)
	return so.IDSystemObject
}

// mustAsset creates an asset owned by owner.
func mustAsset(t *testing.T, store repository.Store, owner int64, filePath, fileName string) *repository.Asset {
	t.Helper()
	asset := &repository.Asset{
		FileName:            fileName,
		FilePath:            filePath,
		IDAssetType:         1,
		IDSystemObjectOwner: owner,
	}
	require.NoError(t, store.CreateAsset(testContext(), asset))
	require.NotZero(t, asset.IDAsset)
	return asset
}

// mustVersion appends a version to asset.
func mustVersion(t *testing.T, store repository.Store, asset *repository.Asset, key string, size int64) *repository.AssetVersion {
	t.Helper()
	v := &repository.AssetVersion{
		IDAsset:       asset.IDAsset,
		FileName:      asset.FileName,
		FilePath:      asset.FilePath,
		IDUserCreator: 3,
		StorageHash:   key,
		StorageKey:    key,
		StorageSize:   size,
		Ingested:      true,
	}
	require.NoError(t, store.CreateAssetVersion(testContext(), v))
	require.NotZero(t, v.IDAssetVersion)
	return v
}
