package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/packrat/davgate/pkg/store/blob"
	blobtest "github.com/packrat/davgate/pkg/store/blob/testing"
	"github.com/stretchr/testify/assert"
)

func TestMemoryStore(t *testing.T) {
	suite := &blobtest.StoreTestSuite{
		NewStore: func(t *testing.T) blob.Store {
			return New()
		},
	}
	suite.Run(t)
}

func TestMemoryStore_SizeMismatch(t *testing.T) {
	s := New()
	err := s.Put(context.Background(), "k", bytes.NewReader([]byte("abc")), 5)
	assert.Error(t, err)

	ok, _ := s.Exists(context.Background(), "k")
	assert.False(t, ok)
}
