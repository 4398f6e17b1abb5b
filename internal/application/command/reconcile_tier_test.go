package command

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xpbot/xpbot/internal/domain/shared"
	"github.com/xpbot/xpbot/internal/domain/tier"
)

const (
	rookie  shared.RoleID = 10
	regular shared.RoleID = 20
	veteran shared.RoleID = 30
	legend  shared.RoleID = 40
	booster shared.RoleID = 999
)

func reconcilerFixture(t *testing.T, held ...shared.RoleID) (*TierReconciler, *fakeDirectory, *fakeMutator, *recordingPublisher) {
	t.Helper()
	table, err := tier.NewTable(member.GuildID, []tier.Definition{
		{Name: "Rookie", RoleID: rookie, MinMinutes: 60},
		{Name: "Regular", RoleID: regular, MinMinutes: 300},
		{Name: "Veteran", RoleID: veteran, MinMinutes: 1200},
		{Name: "Legend", RoleID: legend, MinMinutes: 3600},
	})
	require.NoError(t, err)

	dir := &fakeDirectory{
		roles:     map[shared.MemberKey][]shared.RoleID{member: held},
		positions: map[shared.RoleID]int{rookie: 2, regular: 3, veteran: 4, legend: 5, booster: 9},
		ceiling:   10,
	}
	mut := &fakeMutator{fail: map[shared.RoleID]bool{}}
	pub := &recordingPublisher{}
	r := NewTierReconciler(staticTables{member.GuildID: table}, dir, mut, pub, nil, nil)
	return r, dir, mut, pub
}

const hour = int64(3600)

func TestReconcile_GrantsEligibleTier(t *testing.T) {
	r, _, mut, pub := reconcilerFixture(t)

	out, err := r.Reconcile(context.Background(), member.GuildID, member.UserID, 5*hour)
	require.NoError(t, err)
	assert.True(t, out.Configured)
	assert.Equal(t, "Regular", out.TargetName())
	assert.Equal(t, []shared.RoleID{regular}, out.Added)
	assert.Empty(t, out.Removed)
	assert.Equal(t, []mutation{{tier.OpAdd, regular}}, mut.calls)
	assert.Equal(t, []shared.EventType{shared.EventTierChanged}, pub.types())
}

func TestReconcile_ReplacesStaleTiersAndKeepsOtherRoles(t *testing.T) {
	r, _, mut, _ := reconcilerFixture(t, rookie, veteran, booster)

	out, err := r.Reconcile(context.Background(), member.GuildID, member.UserID, 5*hour)
	require.NoError(t, err)
	assert.Equal(t, []shared.RoleID{rookie, veteran}, out.Removed)
	assert.Equal(t, []shared.RoleID{regular}, out.Added)
	assert.Equal(t, []mutation{
		{tier.OpRemove, rookie},
		{tier.OpRemove, veteran},
		{tier.OpAdd, regular},
	}, mut.calls)
}

func TestReconcile_AlreadyConverged(t *testing.T) {
	r, _, mut, pub := reconcilerFixture(t, legend, booster)

	out, err := r.Reconcile(context.Background(), member.GuildID, member.UserID, 150*hour)
	require.NoError(t, err)
	assert.True(t, out.Diff.IsEmpty())
	assert.False(t, out.Applied())
	assert.Empty(t, mut.calls)
	assert.Empty(t, pub.types())
}

func TestReconcile_BelowFirstThresholdRemovesAll(t *testing.T) {
	r, _, mut, _ := reconcilerFixture(t, rookie)

	out, err := r.Reconcile(context.Background(), member.GuildID, member.UserID, 59*60)
	require.NoError(t, err)
	assert.Equal(t, "", out.TargetName())
	assert.Equal(t, []mutation{{tier.OpRemove, rookie}}, mut.calls)
}

func TestReconcile_UnconfiguredGuild(t *testing.T) {
	r, _, mut, _ := reconcilerFixture(t)

	out, err := r.Reconcile(context.Background(), member.GuildID+1, member.UserID, 100*hour)
	require.NoError(t, err)
	assert.False(t, out.Configured)
	assert.Empty(t, mut.calls)
}

func TestReconcile_HierarchyViolationMutatesNothing(t *testing.T) {
	r, dir, mut, _ := reconcilerFixture(t, rookie)
	dir.ceiling = 3 // regular sits at 3

	out, err := r.Reconcile(context.Background(), member.GuildID, member.UserID, 5*hour)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrHierarchyViolation)
	assert.True(t, shared.IsRoleRejection(err))
	assert.True(t, out.Diff.IsEmpty())
	assert.Empty(t, mut.calls)

	var rej *tier.RoleRejection
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, regular, rej.RoleID)
}

func TestReconcile_UnresolvedRole(t *testing.T) {
	r, dir, mut, _ := reconcilerFixture(t)
	delete(dir.positions, veteran)

	_, err := r.Reconcile(context.Background(), member.GuildID, member.UserID, 20*hour)
	assert.ErrorIs(t, err, shared.ErrUnresolvedRole)
	assert.Empty(t, mut.calls)
}

func TestReconcile_HierarchyIgnoredWhenDiffEmpty(t *testing.T) {
	r, dir, _, _ := reconcilerFixture(t, legend)
	dir.ceiling = 1

	out, err := r.Reconcile(context.Background(), member.GuildID, member.UserID, 80*hour)
	require.NoError(t, err)
	assert.True(t, out.Diff.IsEmpty())
}

func TestReconcile_PartialApplyFailure(t *testing.T) {
	r, _, mut, pub := reconcilerFixture(t, rookie, veteran)
	mut.fail[rookie] = true

	out, err := r.Reconcile(context.Background(), member.GuildID, member.UserID, 5*hour)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrPartialApply)
	assert.ErrorIs(t, err, errDiscord)

	var partial *tier.PartialApplyFailure
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, []shared.RoleID{rookie}, partial.FailedRoles())
	assert.Equal(t, 2, partial.Applied)

	assert.Equal(t, []shared.RoleID{veteran}, out.Removed)
	assert.Equal(t, []shared.RoleID{regular}, out.Added)
	assert.Len(t, mut.calls, 3, "a failed mutation must not stop the others")
	assert.Equal(t, []shared.EventType{shared.EventTierChanged}, pub.types())
}

func TestReconcile_DirectoryFailure(t *testing.T) {
	r, dir, _, _ := reconcilerFixture(t)
	dir.err = errors.New("redis: connection refused")

	_, err := r.Reconcile(context.Background(), member.GuildID, member.UserID, hour)
	assert.ErrorIs(t, err, shared.ErrExternalService)
	assert.True(t, shared.IsExternalService(err))
}

func TestReconcile_RejectsBadInput(t *testing.T) {
	r, _, _, _ := reconcilerFixture(t)

	_, err := r.Reconcile(context.Background(), 0, member.UserID, hour)
	assert.ErrorIs(t, err, shared.ErrInvalidID)

	_, err = r.Reconcile(context.Background(), member.GuildID, member.UserID, -1)
	assert.ErrorIs(t, err, shared.ErrNegativeValue)
}
