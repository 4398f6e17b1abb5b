package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/xpbot/xpbot/internal/domain/shared"
	"github.com/xpbot/xpbot/internal/domain/tier"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROLE DIRECTORY
// ══════════════════════════════════════════════════════════════════════════════

// RoleDirectory reads the role hierarchy and member roles that the gateway
// mirrors into Redis. StoreGuild and SetMemberRoles serve that mirror and
// `xpbot seed --roles`, which writes a sample hierarchy for local runs.
//
// Layout:
//   - hash   xpbot:guild:{g}:roles            role_id -> position
//   - string xpbot:guild:{g}:ceiling          position of the bot's top role
//   - set    xpbot:guild:{g}:member:{u}:roles role ids held by the member
type RoleDirectory struct {
	cache *Cache
}

var _ tier.RoleDirectory = (*RoleDirectory)(nil)

// NewRoleDirectory creates a RoleDirectory.
func NewRoleDirectory(cache *Cache) *RoleDirectory {
	return &RoleDirectory{cache: cache}
}

// MemberRoles returns every role the member holds.
func (d *RoleDirectory) MemberRoles(ctx context.Context, key shared.MemberKey) ([]shared.RoleID, error) {
	members, err := d.cache.client.SMembers(ctx, MemberRolesKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("role directory: member roles %s: %w", key, err)
	}

	roles := make([]shared.RoleID, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("role directory: member %s holds malformed role %q: %w", key, m, shared.ErrInvalidFormat)
		}
		roles = append(roles, shared.RoleID(id))
	}
	return roles, nil
}

// RolePositions returns positions of the roles that exist in the guild.
func (d *RoleDirectory) RolePositions(ctx context.Context, guildID shared.GuildID, roles []shared.RoleID) (map[shared.RoleID]int, error) {
	out := make(map[shared.RoleID]int, len(roles))
	if len(roles) == 0 {
		return out, nil
	}

	fields := make([]string, len(roles))
	for i, r := range roles {
		fields[i] = r.String()
	}

	values, err := d.cache.client.HMGet(ctx, GuildRolesKey(guildID), fields...).Result()
	if err != nil {
		return nil, fmt.Errorf("role directory: positions for guild %s: %w", guildID, err)
	}

	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// role is not in the guild
			continue
		}
		pos, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("role directory: role %s has malformed position %q: %w", roles[i], s, shared.ErrInvalidFormat)
		}
		out[roles[i]] = pos
	}
	return out, nil
}

// Ceiling returns the position of the bot's highest role in the guild.
func (d *RoleDirectory) Ceiling(ctx context.Context, guildID shared.GuildID) (int, error) {
	ceiling, err := d.cache.client.Get(ctx, GuildCeilingKey(guildID)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, shared.NewDomainError("tier", "Ceiling", shared.ErrNotFound,
				"no role ceiling published for guild "+guildID.String())
		}
		return 0, fmt.Errorf("role directory: ceiling for guild %s: %w", guildID, err)
	}
	return ceiling, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT WRITES
// ══════════════════════════════════════════════════════════════════════════════

// GuildSnapshot is the role state of one guild as reported by the gateway.
type GuildSnapshot struct {
	GuildID   shared.GuildID
	Positions map[shared.RoleID]int
	Ceiling   int
}

// StoreGuild replaces the role hierarchy of a guild.
func (d *RoleDirectory) StoreGuild(ctx context.Context, snap GuildSnapshot) error {
	if !snap.GuildID.IsValid() {
		return shared.ErrInvalidID
	}

	pipe := d.cache.client.TxPipeline()
	pipe.Del(ctx, GuildRolesKey(snap.GuildID))
	if len(snap.Positions) > 0 {
		fields := make(map[string]any, len(snap.Positions))
		for r, pos := range snap.Positions {
			fields[r.String()] = pos
		}
		pipe.HSet(ctx, GuildRolesKey(snap.GuildID), fields)
	}
	pipe.Set(ctx, GuildCeilingKey(snap.GuildID), snap.Ceiling, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("role directory: store guild %s: %w", snap.GuildID, err)
	}
	return nil
}

// SetMemberRoles replaces the role set of a member.
func (d *RoleDirectory) SetMemberRoles(ctx context.Context, key shared.MemberKey, roles []shared.RoleID) error {
	pipe := d.cache.client.TxPipeline()
	pipe.Del(ctx, MemberRolesKey(key))
	if len(roles) > 0 {
		members := make([]any, len(roles))
		for i, r := range roles {
			members[i] = r.String()
		}
		pipe.SAdd(ctx, MemberRolesKey(key), members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("role directory: set member roles %s: %w", key, err)
	}
	return nil
}
