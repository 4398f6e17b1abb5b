package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xpbot/xpbot/internal/domain/shared"
)

func TestRoleDirectory_PositionsAndCeiling(t *testing.T) {
	cache, _ := setupTestRedis(t)
	dir := NewRoleDirectory(cache)
	ctx := context.Background()

	require.NoError(t, dir.StoreGuild(ctx, GuildSnapshot{
		GuildID:   guild,
		Positions: map[shared.RoleID]int{10: 3, 20: 5},
		Ceiling:   8,
	}))

	positions, err := dir.RolePositions(ctx, guild, []shared.RoleID{10, 20, 99})
	require.NoError(t, err)
	assert.Equal(t, map[shared.RoleID]int{10: 3, 20: 5}, positions)

	ceiling, err := dir.Ceiling(ctx, guild)
	require.NoError(t, err)
	assert.Equal(t, 8, ceiling)
}

func TestRoleDirectory_StoreGuildReplacesHierarchy(t *testing.T) {
	cache, _ := setupTestRedis(t)
	dir := NewRoleDirectory(cache)
	ctx := context.Background()

	require.NoError(t, dir.StoreGuild(ctx, GuildSnapshot{GuildID: guild, Positions: map[shared.RoleID]int{10: 3}, Ceiling: 8}))
	require.NoError(t, dir.StoreGuild(ctx, GuildSnapshot{GuildID: guild, Positions: map[shared.RoleID]int{20: 1}, Ceiling: 2}))

	positions, err := dir.RolePositions(ctx, guild, []shared.RoleID{10, 20})
	require.NoError(t, err)
	assert.Equal(t, map[shared.RoleID]int{20: 1}, positions)
}

func TestRoleDirectory_MissingCeiling(t *testing.T) {
	cache, _ := setupTestRedis(t)
	dir := NewRoleDirectory(cache)

	_, err := dir.Ceiling(context.Background(), guild)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRoleDirectory_MemberRoles(t *testing.T) {
	cache, mr := setupTestRedis(t)
	dir := NewRoleDirectory(cache)
	ctx := context.Background()

	roles, err := dir.MemberRoles(ctx, member)
	require.NoError(t, err)
	assert.Empty(t, roles)

	require.NoError(t, dir.SetMemberRoles(ctx, member, []shared.RoleID{10, 77}))
	roles, err = dir.MemberRoles(ctx, member)
	require.NoError(t, err)
	assert.ElementsMatch(t, []shared.RoleID{10, 77}, roles)

	_, err = mr.SetAdd(MemberRolesKey(member), "not-a-role")
	require.NoError(t, err)
	_, err = dir.MemberRoles(ctx, member)
	assert.ErrorIs(t, err, shared.ErrInvalidFormat)
}

func TestRoleDirectory_MalformedPosition(t *testing.T) {
	cache, mr := setupTestRedis(t)
	dir := NewRoleDirectory(cache)

	mr.HSet(GuildRolesKey(guild), "10", "top")

	_, err := dir.RolePositions(context.Background(), guild, []shared.RoleID{10})
	assert.ErrorIs(t, err, shared.ErrInvalidFormat)
}
