package token

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/packrat/davgate/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(opts ...Option) (*Store, *clock.Fake) {
	fake := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewStore(append([]Option{WithClock(fake)}, opts...)...), fake
}

func TestGenerate_OpaqueAndUnique(t *testing.T) {
	s, _ := newTestStore()

	a, err := s.Generate(1, 10)
	require.NoError(t, err)
	b, err := s.Generate(1, 10)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	raw, err := base64.RawURLEncoding.DecodeString(a)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
}

func TestValidate_BoundObject(t *testing.T) {
	s, _ := newTestStore()
	tok, err := s.Generate(5, 100)
	require.NoError(t, err)

	user, ok := s.Validate(tok, 100)
	assert.True(t, ok)
	assert.Equal(t, int64(5), user)

	_, ok = s.Validate(tok, 101)
	assert.False(t, ok)

	// A mismatched object does not consume the token
	_, ok = s.Validate(tok, 100)
	assert.True(t, ok)

	_, ok = s.Validate("unknown", 100)
	assert.False(t, ok)
}

func TestValidate_SlidingWindow(t *testing.T) {
	s, fake := newTestStore()
	tok, err := s.Generate(5, 100)
	require.NoError(t, err)

	fake.Advance(59 * time.Minute)
	_, ok := s.Validate(tok, 100)
	assert.True(t, ok, "alive at +59min")

	fake.Advance(60 * time.Minute)
	_, ok = s.Validate(tok, 100)
	assert.True(t, ok, "alive at +119min thanks to the sliding window")

	fake.Advance(time.Hour + time.Second)
	_, ok = s.Validate(tok, 100)
	assert.False(t, ok, "a full TTL of inactivity expires the token")
	assert.Equal(t, 0, s.Len(), "expired token is removed on validation")
}

func TestValidate_ExpiryInstantIsStillLive(t *testing.T) {
	s, fake := newTestStore()
	tok, err := s.Generate(7, 100)
	require.NoError(t, err)

	fake.Advance(DefaultTTL)
	_, ok := s.Validate(tok, 100)
	assert.True(t, ok, "a token is live up to and including its expiry instant")

	fake.Advance(DefaultTTL + time.Nanosecond)
	_, ok = s.Validate(tok, 100)
	assert.False(t, ok)
}

func TestGenerate_SweepKeepsTokenAtExpiryInstant(t *testing.T) {
	s, fake := newTestStore(WithMaxEntries(1), WithTTL(time.Minute))
	first, err := s.Generate(1, 1)
	require.NoError(t, err)

	fake.Advance(time.Minute)
	_, err = s.Generate(2, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len(), "sweep must not drop a token exactly at its expiry")

	_, ok := s.Validate(first, 1)
	assert.True(t, ok)
}

func TestRevoke(t *testing.T) {
	s, _ := newTestStore()
	tok, err := s.Generate(5, 100)
	require.NoError(t, err)

	s.Revoke(tok)
	_, ok := s.Validate(tok, 100)
	assert.False(t, ok)

	s.Revoke(tok)
}

func TestGenerate_SweepsExpiredAtCap(t *testing.T) {
	s, fake := newTestStore(WithMaxEntries(3), WithTTL(time.Minute))

	for i := 0; i < 3; i++ {
		_, err := s.Generate(1, int64(i))
		require.NoError(t, err)
	}
	fake.Advance(2 * time.Minute)

	live, err := s.Generate(2, 9)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())

	_, ok := s.Validate(live, 9)
	assert.True(t, ok)
}

func TestGenerate_CapIsSoft(t *testing.T) {
	s, _ := newTestStore(WithMaxEntries(2))

	for i := 0; i < 5; i++ {
		_, err := s.Generate(1, int64(i))
		require.NoError(t, err)
	}
	assert.Equal(t, 5, s.Len(), "valid tokens are never evicted")
}
