package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xpbot/xpbot/internal/domain/progression"
	"github.com/xpbot/xpbot/internal/domain/shared"
	"github.com/xpbot/xpbot/internal/infrastructure/persistence/memory"
)

const guild shared.GuildID = 123456789012345678

func seed(t *testing.T, repo *memory.MemberProgressRepository, user shared.UserID, xp, voice int64) {
	t.Helper()
	p, err := progression.NewMemberProgress(shared.MemberKey{GuildID: guild, UserID: user}, time.Now().UTC())
	require.NoError(t, err)
	adv, err := progression.FromTotalXP(xp)
	require.NoError(t, err)
	p.TotalXP, p.Level, p.XPIntoLevel, p.TotalVoiceSeconds = xp, adv.Level, adv.XPIntoLevel, voice
	require.NoError(t, repo.Put(context.Background(), p))
}

func fixtureRepo(t *testing.T) *memory.MemberProgressRepository {
	repo := memory.NewMemberProgressRepository()
	seed(t, repo, 111111111111111111, 15000, 150000)
	seed(t, repo, 222222222222222222, 12000, 120000)
	seed(t, repo, 333333333333333333, 8500, 85000)
	seed(t, repo, 444444444444444444, 5000, 50000)
	seed(t, repo, 555555555555555555, 5000, 52000)
	return repo
}

func TestGetLeaderboard_OrderAndRanks(t *testing.T) {
	h := NewGetLeaderboardHandler(fixtureRepo(t), nil)

	res, err := h.Handle(context.Background(), guild, 3)
	require.NoError(t, err)
	require.Len(t, res.Entries, 3)
	assert.Equal(t, 5, res.TotalMembers)

	assert.Equal(t, shared.UserID(111111111111111111), res.Entries[0].UserID)
	assert.Equal(t, shared.Rank(1), res.Entries[0].Rank)
	assert.Equal(t, shared.Rank(3), res.Entries[2].Rank)
	assert.Equal(t, "🥇", res.Entries[0].Rank.Medal())
}

func TestGetLeaderboard_VoiceBreaksTies(t *testing.T) {
	h := NewGetLeaderboardHandler(fixtureRepo(t), nil)

	res, err := h.Handle(context.Background(), guild, 0)
	require.NoError(t, err)
	require.Len(t, res.Entries, 5)
	assert.Equal(t, shared.UserID(555555555555555555), res.Entries[3].UserID)
	assert.Equal(t, shared.UserID(444444444444444444), res.Entries[4].UserID)
}

func TestGetLeaderboard_StoreErrors(t *testing.T) {
	repo := fixtureRepo(t)
	h := NewGetLeaderboardHandler(repo, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.Handle(ctx, guild, 2)
	assert.ErrorIs(t, err, shared.ErrExternalService)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGetLeaderboard_ReflectsVoiceOnlyChanges(t *testing.T) {
	repo := fixtureRepo(t)
	h := NewGetLeaderboardHandler(repo, nil)

	before, err := h.Handle(context.Background(), guild, 0)
	require.NoError(t, err)
	assert.Equal(t, shared.UserID(555555555555555555), before.Entries[3].UserID)

	// same XP, more voice time: the tie-break flips without any XP change
	seed(t, repo, 444444444444444444, 5000, 60000)

	after, err := h.Handle(context.Background(), guild, 0)
	require.NoError(t, err)
	assert.Equal(t, shared.UserID(444444444444444444), after.Entries[3].UserID)
	assert.Equal(t, shared.Rank(4), after.Entries[3].Rank)
}

func TestGetLeaderboard_EmptyGuildAndBadInput(t *testing.T) {
	h := NewGetLeaderboardHandler(fixtureRepo(t), nil)

	res, err := h.Handle(context.Background(), guild+1, 10)
	require.NoError(t, err)
	assert.Empty(t, res.Entries)
	assert.Zero(t, res.TotalMembers)

	_, err = h.Handle(context.Background(), 0, 10)
	assert.ErrorIs(t, err, shared.ErrInvalidID)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultLeaderboardLimit, clampLimit(0))
	assert.Equal(t, DefaultLeaderboardLimit, clampLimit(-4))
	assert.Equal(t, 25, clampLimit(25))
	assert.Equal(t, MaxLeaderboardLimit, clampLimit(1000))
}

func TestGetMemberRank(t *testing.T) {
	h := NewGetMemberRankHandler(fixtureRepo(t))

	res, err := h.Handle(context.Background(), guild, 555555555555555555)
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.Equal(t, shared.Rank(4), res.Rank())
	assert.Equal(t, 5, res.TotalMembers)
	assert.Equal(t, int64(5000), res.Entry.XP)
	assert.Equal(t, progression.XPNeededFor(res.Entry.Level+1)-res.XPIntoLevel, res.XPToNextLevel)
}

func TestGetMemberRank_AbsentIsNotAnError(t *testing.T) {
	h := NewGetMemberRankHandler(fixtureRepo(t))

	res, err := h.Handle(context.Background(), guild, 999)
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.True(t, res.Rank().IsUnranked())
	assert.Nil(t, res.Entry)
}
