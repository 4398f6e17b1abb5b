package leaderboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/xpbot/xpbot/internal/domain/progression"
	"github.com/xpbot/xpbot/internal/domain/shared"
)

func entry(user shared.UserID, xp, voice int64) *Entry {
	return &Entry{GuildID: 1, UserID: user, XP: xp, VoiceSeconds: voice}
}

func TestLess_TieBreakers(t *testing.T) {
	assert.True(t, Less(entry(9, 200, 0), entry(1, 100, 9999)), "xp first")
	assert.True(t, Less(entry(9, 100, 500), entry(1, 100, 400)), "voice second")
	assert.True(t, Less(entry(1, 100, 400), entry(2, 100, 400)), "member id last")
	assert.False(t, Less(entry(1, 100, 400), entry(1, 100, 400)))
}

func TestRankOf(t *testing.T) {
	entries := []*Entry{
		entry(3, 100, 10),
		entry(1, 500, 10),
		entry(2, 100, 10),
		entry(4, 100, 20),
	}

	assert.Equal(t, shared.Rank(1), RankOf(entries, 1))
	assert.Equal(t, shared.Rank(2), RankOf(entries, 4))
	assert.Equal(t, shared.Rank(3), RankOf(entries, 2))
	assert.Equal(t, shared.Rank(4), RankOf(entries, 3))
	assert.Equal(t, shared.Unranked, RankOf(entries, 42))
}

func TestTop(t *testing.T) {
	entries := []*Entry{entry(3, 10, 0), entry(1, 30, 0), entry(2, 20, 0)}

	top := Top(entries, 2)
	require.Len(t, top, 2)
	assert.Equal(t, shared.UserID(1), top[0].UserID)
	assert.Equal(t, shared.Rank(1), top[0].Rank)
	assert.Equal(t, shared.UserID(2), top[1].UserID)
	assert.Equal(t, shared.Rank(2), top[1].Rank)

	// input untouched
	assert.Equal(t, shared.UserID(3), entries[0].UserID)
	assert.Equal(t, shared.Unranked, entries[0].Rank)

	assert.Len(t, Top(entries, 10), 3)
	assert.Nil(t, Top(entries, 0))
}

func TestBuild(t *testing.T) {
	now := time.Now()
	records := []*progression.MemberProgress{
		{GuildID: 1, UserID: 10, TotalXP: 50, TotalVoiceSeconds: 500, UpdatedAt: now},
		{GuildID: 1, UserID: 20, TotalXP: 150, Level: 1, TotalVoiceSeconds: 1500, UpdatedAt: now},
		{GuildID: 1, UserID: 30, TotalXP: 50, TotalVoiceSeconds: 700, UpdatedAt: now},
	}

	entries := Build(records)
	require.Len(t, entries, 3)
	for i, want := range []shared.UserID{20, 30, 10} {
		assert.Equal(t, want, entries[i].UserID)
		assert.Equal(t, shared.Rank(i+1), entries[i].Rank)
		assert.Equal(t, entries[i].Rank, RankOf(entries, want))
	}
	assert.Equal(t, int64(1500), entries[0].VoiceSeconds)
	assert.Empty(t, Build(nil))
}

func TestProperty_RankingIsTotalOrder(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 40).Draw(rt, "n")
		ids := rapid.SliceOfNDistinct(rapid.Int64Range(1, 1_000_000), n, n, func(v int64) int64 { return v }).Draw(rt, "ids")

		entries := make([]*Entry, n)
		for i, id := range ids {
			entries[i] = entry(
				shared.UserID(id),
				rapid.Int64Range(0, 50).Draw(rt, "xp"),
				rapid.Int64Range(0, 5).Draw(rt, "voice"),
			)
		}

		sorted := Top(entries, n)
		for i := 1; i < len(sorted); i++ {
			if !Less(sorted[i-1], sorted[i]) {
				rt.Fatalf("entries %v and %v out of order", sorted[i-1], sorted[i])
			}
		}

		// rankOf agrees with the sorted position
		for i, e := range sorted {
			if got := RankOf(entries, e.UserID); got != shared.Rank(i+1) {
				rt.Fatalf("rankOf(%d) = %d, want %d", e.UserID, got, i+1)
			}
		}

		// top-n is a prefix of top-(n+1)
		if n > 0 {
			k := rapid.IntRange(1, n).Draw(rt, "k")
			prefix := Top(entries, k-1)
			full := Top(entries, k)
			for i := range prefix {
				if prefix[i].UserID != full[i].UserID {
					rt.Fatalf("top(%d) is not a prefix of top(%d)", k-1, k)
				}
			}
		}
	})
}
