// Package testing holds the conformance suite for blob.Store implementations.
package testing

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"sync/atomic"
	"testing"

	"github.com/packrat/davgate/pkg/store/blob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreTestSuite tests the blob.Store contract.
//
// Usage:
//
//	func TestMyBlobStore(t *testing.T) {
//	    suite := &blobtest.StoreTestSuite{
//	        NewStore: func(t *testing.T) blob.Store { return mystore.New() },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore creates a fresh, empty store for each test.
	NewStore func(t *testing.T) blob.Store
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("Get_NotFound", suite.testGetNotFound)
	t.Run("PutGet_RoundTrip", suite.testRoundTrip)
	t.Run("Put_Empty", suite.testPutEmpty)
	t.Run("Put_Large", suite.testPutLarge)
	t.Run("Put_Overwrite", suite.testOverwrite)
	t.Run("Exists", suite.testExists)
	t.Run("Delete", suite.testDelete)
	t.Run("Delete_Missing", suite.testDeleteMissing)
	t.Run("List", suite.testList)
}

var keySeq atomic.Int64

// testKey returns a key unique within the process so suites can share a
// bucket.
func testKey(name string) string {
	return fmt.Sprintf("%s-%d", name, keySeq.Add(1))
}

func testContext() context.Context {
	return context.Background()
}

func mustPut(t *testing.T, store blob.Store, key string, data []byte) {
	t.Helper()
	require.NoError(t, store.Put(testContext(), key, bytes.NewReader(data), int64(len(data))))
}

func mustRead(t *testing.T, store blob.Store, key string) []byte {
	t.Helper()
	rc, err := store.Get(testContext(), key)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data
}

func (suite *StoreTestSuite) testGetNotFound(t *testing.T) {
	store := suite.NewStore(t)

	_, err := store.Get(testContext(), testKey("missing"))
	assert.ErrorIs(t, err, blob.ErrNotFound)
}

func (suite *StoreTestSuite) testRoundTrip(t *testing.T) {
	store := suite.NewStore(t)
	key := testKey("roundtrip")

	mustPut(t, store, key, []byte("Hello, World!"))
	assert.Equal(t, []byte("Hello, World!"), mustRead(t, store, key))
}

func (suite *StoreTestSuite) testPutEmpty(t *testing.T) {
	store := suite.NewStore(t)
	key := testKey("empty")

	mustPut(t, store, key, []byte{})
	assert.Empty(t, mustRead(t, store, key))
}

func (suite *StoreTestSuite) testPutLarge(t *testing.T) {
	store := suite.NewStore(t)
	key := testKey("large")

	data := make([]byte, 3*1024*1024)
	_, err := rand.Read(data)
	require.NoError(t, err)

	mustPut(t, store, key, data)
	assert.Equal(t, data, mustRead(t, store, key))
}

func (suite *StoreTestSuite) testOverwrite(t *testing.T) {
	store := suite.NewStore(t)
	key := testKey("overwrite")

	mustPut(t, store, key, []byte("first"))
	mustPut(t, store, key, []byte("second"))
	assert.Equal(t, []byte("second"), mustRead(t, store, key))
}

func (suite *StoreTestSuite) testExists(t *testing.T) {
	store := suite.NewStore(t)
	key := testKey("exists")

	ok, err := store.Exists(testContext(), key)
	require.NoError(t, err)
	assert.False(t, ok)

	mustPut(t, store, key, []byte("x"))

	ok, err = store.Exists(testContext(), key)
	require.NoError(t, err)
	assert.True(t, ok)
}

func (suite *StoreTestSuite) testDelete(t *testing.T) {
	store := suite.NewStore(t)
	key := testKey("delete")

	mustPut(t, store, key, []byte("x"))
	require.NoError(t, store.Delete(testContext(), key))

	_, err := store.Get(testContext(), key)
	assert.ErrorIs(t, err, blob.ErrNotFound)
}

func (suite *StoreTestSuite) testDeleteMissing(t *testing.T) {
	store := suite.NewStore(t)

	assert.NoError(t, store.Delete(testContext(), testKey("never-written")))
}

func (suite *StoreTestSuite) testList(t *testing.T) {
	store := suite.NewStore(t)
	a, b := testKey("list-a"), testKey("list-b")

	mustPut(t, store, a, []byte("a"))
	mustPut(t, store, b, []byte("b"))

	keys, err := store.List(testContext())
	require.NoError(t, err)
	assert.Contains(t, keys, a)
	assert.Contains(t, keys, b)
}
