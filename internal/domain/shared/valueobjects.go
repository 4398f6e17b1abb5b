// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"fmt"
	"strconv"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// GuildID identifies a community (a Discord guild snowflake).
type GuildID int64

// IsValid checks if the guild ID is valid (positive number).
func (g GuildID) IsValid() bool {
	return g > 0
}

// Int64 returns the underlying int64 value.
func (g GuildID) Int64() int64 {
	return int64(g)
}

// String returns the string representation.
func (g GuildID) String() string {
	return strconv.FormatInt(int64(g), 10)
}

// ParseGuildID parses a decimal snowflake.
func ParseGuildID(s string) (GuildID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, NewDomainError("shared", "ParseGuildID", ErrInvalidID, fmt.Sprintf("invalid guild id %q", s))
	}
	return GuildID(v), nil
}

// UserID identifies a member within a community.
type UserID int64

// IsValid checks if the user ID is valid (positive number).
func (u UserID) IsValid() bool {
	return u > 0
}

// Int64 returns the underlying int64 value.
func (u UserID) Int64() int64 {
	return int64(u)
}

// String returns the string representation.
func (u UserID) String() string {
	return strconv.FormatInt(int64(u), 10)
}

// ParseUserID parses a decimal snowflake.
func ParseUserID(s string) (UserID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, NewDomainError("shared", "ParseUserID", ErrInvalidID, fmt.Sprintf("invalid user id %q", s))
	}
	return UserID(v), nil
}

// RoleID identifies a role within a community.
type RoleID int64

// IsValid checks if the role ID is valid (positive number).
func (r RoleID) IsValid() bool {
	return r > 0
}

// Int64 returns the underlying int64 value.
func (r RoleID) Int64() int64 {
	return int64(r)
}

// String returns the string representation.
func (r RoleID) String() string {
	return strconv.FormatInt(int64(r), 10)
}

// MemberKey is the composite (community, member) identity of a progress record.
type MemberKey struct {
	GuildID GuildID
	UserID  UserID
}

// String returns "guild:user".
func (k MemberKey) String() string {
	return k.GuildID.String() + ":" + k.UserID.String()
}

// IsValid checks that both halves of the key are set.
func (k MemberKey) IsValid() bool {
	return k.GuildID.IsValid() && k.UserID.IsValid()
}

// ═══════════════════════════════════════════════════════════════════════════
// Rank Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Rank represents a member's position in the leaderboard.
type Rank int

const (
	MinRank  Rank = 1
	Unranked Rank = 0 // No progress record yet
)

// IsValid checks if the rank is valid.
func (r Rank) IsValid() bool {
	return r >= MinRank
}

// Int returns the underlying int value.
func (r Rank) Int() int {
	return int(r)
}

// IsUnranked checks if the member is not ranked.
func (r Rank) IsUnranked() bool {
	return r == Unranked
}

// IsTop returns true if the rank is in the top N.
func (r Rank) IsTop(n int) bool {
	return r.IsValid() && int(r) <= n
}

// Medal returns a medal emoji for top ranks.
func (r Rank) Medal() string {
	switch r {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	default:
		return ""
	}
}

// Label returns the medal for the podium and "#N" otherwise.
func (r Rank) Label() string {
	if m := r.Medal(); m != "" {
		return m
	}
	return fmt.Sprintf("#%d", int(r))
}
