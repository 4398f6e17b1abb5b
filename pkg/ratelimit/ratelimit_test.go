package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_BurstThenRefill(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := New(Config{RequestsPerSecond: 2, BurstSize: 3, Clock: clock})

	for i := 0; i < 3; i++ {
		assert.True(t, l.TryAllow(), "burst token %d", i)
	}
	assert.False(t, l.TryAllow())

	clock.Advance(500 * time.Millisecond)
	assert.True(t, l.TryAllow())
	assert.False(t, l.TryAllow())

	clock.Advance(time.Hour)
	assert.Equal(t, 3, l.Available())
}

func TestLimiter_WaitBlocksUntilRefill(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := New(Config{RequestsPerSecond: 1, BurstSize: 1, WaitTimeout: time.Minute, Clock: clock})
	require.True(t, l.TryAllow())

	done := make(chan error, 1)
	go func() { done <- l.Wait(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after refill")
	}
}

func TestLimiter_WaitTimeout(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := New(Config{RequestsPerSecond: 0.1, BurstSize: 1, WaitTimeout: time.Second, Clock: clock})
	require.True(t, l.TryAllow())

	assert.ErrorIs(t, l.Wait(context.Background()), ErrWaitTimeout)
}

func TestLimiter_WaitCancelled(t *testing.T) {
	l := New(Config{RequestsPerSecond: 1, BurstSize: 1, Clock: clockwork.NewFakeClock()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Wait(ctx), context.Canceled)
}

func TestNew_Defaults(t *testing.T) {
	l := New(Config{Clock: clockwork.NewFakeClock()})
	assert.Equal(t, DefaultConfig().BurstSize, l.Available())
}
