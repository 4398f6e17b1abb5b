package command

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xpbot/xpbot/internal/domain/shared"
	"github.com/xpbot/xpbot/internal/infrastructure/persistence/memory"
)

var (
	member = shared.MemberKey{GuildID: 123456789012345678, UserID: 222222222222222222}
	t0     = time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
)

func newAccumulator(t *testing.T) (*VoiceAccumulator, *memory.MemberProgressRepository, *recordingPublisher) {
	t.Helper()
	repo := memory.NewMemberProgressRepository()
	pub := &recordingPublisher{}
	return NewVoiceAccumulator(repo, pub, nil, nil, VoiceAccumulatorConfig{XPPerMinute: 6}), repo, pub
}

func TestAccumulate_JoinTickLeave(t *testing.T) {
	acc, repo, pub := newAccumulator(t)
	ctx := context.Background()

	res, err := acc.OnVoiceJoin(ctx, member, t0)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Nil(t, res.Before)

	res, err = acc.OnVoiceTick(ctx, member, t0.Add(600*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(600), res.Credit.Seconds)
	assert.Equal(t, int64(60), res.Credit.XP)
	require.True(t, res.After.InVoice())
	assert.Equal(t, t0.Add(600*time.Second), *res.After.LastVoiceJoin)

	res, err = acc.OnVoiceLeave(ctx, member, t0.Add(900*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(300), res.Credit.Seconds)

	stored, err := repo.Get(ctx, member)
	require.NoError(t, err)
	assert.Equal(t, int64(900), stored.TotalVoiceSeconds)
	assert.Equal(t, int64(90), stored.TotalXP)
	assert.False(t, stored.InVoice())

	assert.Equal(t, []shared.EventType{
		shared.EventVoiceSessionStarted,
		shared.EventVoiceSessionClosed, shared.EventXPGained,
		shared.EventVoiceSessionClosed, shared.EventXPGained,
	}, pub.types())
}

func TestAccumulate_DuplicateJoinKeepsStart(t *testing.T) {
	acc, repo, _ := newAccumulator(t)
	ctx := context.Background()

	_, err := acc.OnVoiceJoin(ctx, member, t0)
	require.NoError(t, err)

	res, err := acc.OnVoiceJoin(ctx, member, t0.Add(5*time.Minute))
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Empty(t, res.Events)

	stored, _ := repo.Get(ctx, member)
	assert.Equal(t, t0, *stored.LastVoiceJoin)
}

func TestAccumulate_LeaveWithoutSessionIsNoop(t *testing.T) {
	acc, repo, pub := newAccumulator(t)
	ctx := context.Background()

	res, err := acc.OnVoiceLeave(ctx, member, t0)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Nil(t, res.After)

	stored, err := repo.Get(ctx, member)
	require.NoError(t, err)
	assert.Nil(t, stored, "leave must not create a record")

	res, err = acc.OnVoiceTick(ctx, member, t0)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Empty(t, pub.types())
}

func TestAccumulate_ClockAnomaly(t *testing.T) {
	acc, repo, pub := newAccumulator(t)
	ctx := context.Background()

	_, err := acc.OnVoiceJoin(ctx, member, t0)
	require.NoError(t, err)

	res, err := acc.OnVoiceTick(ctx, member, t0.Add(-30*time.Second))
	require.NoError(t, err)
	assert.True(t, res.Anomaly())
	assert.Equal(t, int64(0), res.Credit.Seconds)
	assert.Equal(t, t0, *res.After.LastVoiceJoin)

	res, err = acc.OnVoiceLeave(ctx, member, t0.Add(-10*time.Second))
	require.NoError(t, err)
	assert.True(t, res.Anomaly())

	stored, _ := repo.Get(ctx, member)
	assert.Equal(t, int64(0), stored.TotalVoiceSeconds)
	assert.Equal(t, int64(0), stored.TotalXP)
	assert.False(t, stored.InVoice())
	assert.Contains(t, pub.types(), shared.EventClockAnomaly)
}

func TestAccumulate_LevelUpEvents(t *testing.T) {
	acc, _, pub := newAccumulator(t)
	ctx := context.Background()

	_, err := acc.OnVoiceJoin(ctx, member, t0)
	require.NoError(t, err)

	// 3750s * 6/60 = 375 XP = 155 + 220
	res, err := acc.OnVoiceLeave(ctx, member, t0.Add(3750*time.Second))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, res.LevelsCrossed())
	assert.True(t, res.LeveledUp())
	assert.Equal(t, 2, res.After.Level)
	assert.Equal(t, int64(0), res.After.XPIntoLevel)

	var ups []shared.LevelUpEvent
	for _, e := range pub.events {
		if up, ok := e.(shared.LevelUpEvent); ok {
			ups = append(ups, up)
		}
	}
	require.Len(t, ups, 2)
	assert.Equal(t, 0, ups[0].OldLevel)
	assert.Equal(t, 1, ups[0].NewLevel)
	assert.Equal(t, 1, ups[1].OldLevel)
	assert.Equal(t, 2, ups[1].NewLevel)
}

func TestAccumulate_FailedWriteLeavesStateUntouched(t *testing.T) {
	acc, repo, pub := newAccumulator(t)
	ctx := context.Background()

	_, err := acc.OnVoiceJoin(ctx, member, t0)
	require.NoError(t, err)
	published := len(pub.types())

	boom := errors.New("connection reset")
	repo.FailPuts(boom)
	_, err = acc.OnVoiceLeave(ctx, member, t0.Add(time.Hour))
	require.ErrorIs(t, err, boom)
	assert.Len(t, pub.types(), published)

	stored, _ := repo.Get(ctx, member)
	assert.True(t, stored.InVoice())
	assert.Equal(t, int64(0), stored.TotalVoiceSeconds)

	repo.FailPuts(nil)
	res, err := acc.OnVoiceLeave(ctx, member, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3600), res.After.TotalVoiceSeconds)
}

func TestAccumulate_Validation(t *testing.T) {
	acc, _, _ := newAccumulator(t)
	ctx := context.Background()

	_, err := acc.Accumulate(ctx, VoiceEvent{GuildID: 1, UserID: 2, Kind: "mute", Timestamp: t0})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = acc.Accumulate(ctx, VoiceEvent{GuildID: 0, UserID: 2, Kind: VoiceJoin, Timestamp: t0})
	assert.ErrorIs(t, err, shared.ErrInvalidID)

	_, err = acc.Accumulate(ctx, VoiceEvent{GuildID: 1, UserID: 2, Kind: VoiceJoin})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestAccumulate_ConcurrentTicksCreditEachSecondOnce(t *testing.T) {
	acc, repo, _ := newAccumulator(t)
	ctx := context.Background()

	_, err := acc.OnVoiceJoin(ctx, member, t0)
	require.NoError(t, err)

	offsets := rand.New(rand.NewSource(7)).Perm(20)
	var wg sync.WaitGroup
	for _, i := range offsets {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := acc.OnVoiceTick(ctx, member, t0.Add(time.Duration(i+1)*time.Minute))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stored, _ := repo.Get(ctx, member)
	assert.Equal(t, int64(20*60), stored.TotalVoiceSeconds)
	assert.Equal(t, int64(120), stored.TotalXP)
	assert.Equal(t, t0.Add(20*time.Minute), *stored.LastVoiceJoin)
}

func TestParseVoiceEventKind(t *testing.T) {
	k, err := ParseVoiceEventKind("leave")
	require.NoError(t, err)
	assert.Equal(t, VoiceLeave, k)

	_, err = ParseVoiceEventKind("deafen")
	assert.ErrorIs(t, err, shared.ErrUnknownVoiceEvent)
}
