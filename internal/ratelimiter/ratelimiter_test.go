package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/packrat/davgate/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllow_PerKeyBurst(t *testing.T) {
	fake := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	l := New(1, 3, WithClock(fake))

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("alice"), "request %d within burst", i)
	}
	assert.False(t, l.Allow("alice"), "burst exhausted")
	assert.True(t, l.Allow("bob"), "keys are independent")

	fake.Advance(time.Second)
	assert.True(t, l.Allow("alice"), "one token refilled")
	assert.False(t, l.Allow("alice"))
}

func TestAllow_ZeroRateIsUnlimited(t *testing.T) {
	l := New(0, 0)
	for i := 0; i < 1000; i++ {
		require.True(t, l.Allow("k"))
	}
}

func TestIdleKeysAreDropped(t *testing.T) {
	fake := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	l := New(1, 1, WithClock(fake), WithIdleTTL(time.Minute))

	l.Allow("a")
	l.Allow("b")
	assert.Equal(t, 2, l.Len())

	fake.Advance(time.Minute)
	l.Allow("c")
	assert.Equal(t, 1, l.Len())
}

func TestWait_RespectsContext(t *testing.T) {
	l := New(0.001, 1)
	require.True(t, l.Allow("k"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "k"))
}

func TestWait_Immediate(t *testing.T) {
	l := New(10, 1)
	assert.NoError(t, l.Wait(context.Background(), "k"))
}
