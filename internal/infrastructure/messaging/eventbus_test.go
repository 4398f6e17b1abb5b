package messaging

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xpbot/xpbot/internal/domain/shared"
)

var key = shared.MemberKey{GuildID: 1, UserID: 2}

func TestSyncBus_RoutesByType(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{EnableMetrics: true})
	defer bus.Close()

	var levelUps, all int
	require.NoError(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error { levelUps++; return nil }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { all++; return nil }))

	require.NoError(t, bus.Publish(shared.NewLevelUpEvent(key, 0, 1, 155, time.Now())))
	require.NoError(t, bus.Publish(shared.NewVoiceSessionStartedEvent(key, time.Now())))

	assert.Equal(t, 1, levelUps)
	assert.Equal(t, 2, all)

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(2), snap.TotalPublished)
	assert.Equal(t, int64(3), snap.TotalHandlerExecs)
}

func TestSyncBus_HandlerErrorsAndPanicsAreContained(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{EnableMetrics: true})
	defer bus.Close()

	var reached bool
	require.NoError(t, bus.Subscribe(shared.EventXPGained, func(shared.Event) error { return errors.New("boom") }))
	require.NoError(t, bus.Subscribe(shared.EventXPGained, func(shared.Event) error { panic("bad handler") }))
	require.NoError(t, bus.Subscribe(shared.EventXPGained, func(shared.Event) error { reached = true; return nil }))

	require.NoError(t, bus.Publish(shared.NewXPGainedEvent(key, 6, 6, "voice", time.Now())))
	assert.True(t, reached)
	assert.Equal(t, int64(2), bus.Metrics().Snapshot().HandlerFailures)
}

func TestAsyncBus_CloseWaitsForHandlers(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true})

	var handled atomic.Int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		time.Sleep(5 * time.Millisecond)
		handled.Add(1)
		return nil
	}))

	for i := 0; i < 4; i++ {
		require.NoError(t, bus.Publish(shared.NewVoiceSessionStartedEvent(key, time.Now())))
	}
	require.NoError(t, bus.Close())

	assert.Equal(t, int32(4), handled.Load())
	assert.ErrorIs(t, bus.Publish(shared.NewVoiceSessionStartedEvent(key, time.Now())), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestAsyncBus_OrdersEventsPerMember(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true})
	other := shared.MemberKey{GuildID: 1, UserID: 3}

	var mu sync.Mutex
	levels := map[shared.MemberKey][]int{}
	require.NoError(t, bus.Subscribe(shared.EventLevelUp, func(e shared.Event) error {
		ev := e.(shared.LevelUpEvent)
		mu.Lock()
		defer mu.Unlock()
		k := shared.MemberKey{GuildID: ev.GuildID, UserID: ev.UserID}
		levels[k] = append(levels[k], ev.NewLevel)
		return nil
	}))

	for round := 0; round < 50; round++ {
		for lvl := 1; lvl <= 8; lvl++ {
			require.NoError(t, bus.Publish(shared.NewLevelUpEvent(key, lvl-1, lvl, 0, time.Now())))
			require.NoError(t, bus.Publish(shared.NewLevelUpEvent(other, lvl-1, lvl, 0, time.Now())))
		}
	}
	require.NoError(t, bus.Close())

	for _, k := range []shared.MemberKey{key, other} {
		require.Len(t, levels[k], 400)
		for i, lvl := range levels[k] {
			require.Equal(t, i%8+1, lvl, "member %s position %d", k, i)
		}
	}
}

func TestAsyncBus_SlowMemberDoesNotBlockOthers(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true})
	other := shared.MemberKey{GuildID: 1, UserID: 3}

	release := make(chan struct{})
	otherDone := make(chan struct{})
	require.NoError(t, bus.Subscribe(shared.EventVoiceSessionStarted, func(e shared.Event) error {
		ev := e.(shared.VoiceSessionStartedEvent)
		if ev.UserID == key.UserID {
			<-release
			return nil
		}
		close(otherDone)
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewVoiceSessionStartedEvent(key, time.Now())))
	require.NoError(t, bus.Publish(shared.NewVoiceSessionStartedEvent(other, time.Now())))

	select {
	case <-otherDone:
	case <-time.After(2 * time.Second):
		t.Fatal("event of one member waited behind another member's handler")
	}

	close(release)
	require.NoError(t, bus.Close())
}

func TestBus_RejectsNil(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{})
	defer bus.Close()

	assert.Error(t, bus.Subscribe(shared.EventLevelUp, nil))
	assert.Error(t, bus.SubscribeAll(nil))
	assert.Error(t, bus.Publish(nil))
}
