package requestctx

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUser(t *testing.T) {
	_, ok := User(context.Background())
	assert.False(t, ok)

	id, ok := User(WithUser(context.Background(), 42))
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)

	_, ok = User(WithUser(context.Background(), 0))
	assert.False(t, ok)
}

func TestRequestID(t *testing.T) {
	assert.Empty(t, RequestID(context.Background()))

	id := NewRequestID()
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, id, RequestID(WithRequestID(context.Background(), id)))
}
