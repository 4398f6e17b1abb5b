package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xpbot/xpbot/internal/domain/progression"
	"github.com/xpbot/xpbot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MEMBER PROGRESS REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// MemberProgressRepository implements progression.Repository for PostgreSQL.
type MemberProgressRepository struct {
	conn *Connection
}

var _ progression.Repository = (*MemberProgressRepository)(nil)

// NewMemberProgressRepository creates a new MemberProgressRepository.
func NewMemberProgressRepository(conn *Connection) *MemberProgressRepository {
	return &MemberProgressRepository{conn: conn}
}

const memberColumns = `guild_id, user_id, total_xp, level, xp_into_level, total_voice_sec, last_voice_join, updated_at`

const leaderboardOrder = `total_xp DESC, total_voice_sec DESC, user_id ASC`

// Get returns the member's record or (nil, nil).
func (r *MemberProgressRepository) Get(ctx context.Context, key shared.MemberKey) (*progression.MemberProgress, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + memberColumns + ` FROM user_stats WHERE guild_id = $1 AND user_id = $2`

	p, err := scanMember(r.conn.QueryRow(ctx, query, key.GuildID.Int64(), key.UserID.Int64()))
	if IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member %s: %w", key, err)
	}
	return p, nil
}

// Put upserts the whole record in one statement.
func (r *MemberProgressRepository) Put(ctx context.Context, p *progression.MemberProgress) error {
	if err := p.Validate(); err != nil {
		return err
	}

	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO user_stats (` + memberColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (guild_id, user_id) DO UPDATE SET
			total_xp = EXCLUDED.total_xp,
			level = EXCLUDED.level,
			xp_into_level = EXCLUDED.xp_into_level,
			total_voice_sec = EXCLUDED.total_voice_sec,
			last_voice_join = EXCLUDED.last_voice_join,
			updated_at = EXCLUDED.updated_at
	`

	var lastJoin *time.Time
	if p.LastVoiceJoin != nil {
		t := p.LastVoiceJoin.UTC()
		lastJoin = &t
	}

	_, err := r.conn.Exec(ctx, query,
		p.GuildID.Int64(),
		p.UserID.Int64(),
		p.TotalXP,
		p.Level,
		p.XPIntoLevel,
		p.TotalVoiceSeconds,
		lastJoin,
		p.UpdatedAt.UTC(),
	)
	if err != nil {
		if IsCheckViolation(err) {
			return shared.WrapError("progression", "Put", shared.ErrNegativeValue, "record rejected by store", err)
		}
		return fmt.Errorf("failed to save member %s: %w", p.Key(), err)
	}
	return nil
}

// TopN returns the first n records of a guild in leaderboard order.
func (r *MemberProgressRepository) TopN(ctx context.Context, guildID shared.GuildID, n int) ([]*progression.MemberProgress, error) {
	if n <= 0 {
		return []*progression.MemberProgress{}, nil
	}

	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + memberColumns + ` FROM user_stats WHERE guild_id = $1 ORDER BY ` + leaderboardOrder + ` LIMIT $2`

	rows, err := r.conn.Query(ctx, query, guildID.Int64(), n)
	if err != nil {
		return nil, fmt.Errorf("failed to query top %d of guild %s: %w", n, guildID, err)
	}
	defer rows.Close()

	out := make([]*progression.MemberProgress, 0, n)
	for rows.Next() {
		p, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Rank returns 1 + the number of records strictly ahead of the member.
func (r *MemberProgressRepository) Rank(ctx context.Context, key shared.MemberKey) (shared.Rank, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	query := `
		WITH me AS (
			SELECT total_xp, total_voice_sec, user_id
			FROM user_stats
			WHERE guild_id = $1 AND user_id = $2
		)
		SELECT 1 + (
			SELECT COUNT(*)
			FROM user_stats s
			WHERE s.guild_id = $1
			  AND (
				s.total_xp > me.total_xp
				OR (s.total_xp = me.total_xp AND s.total_voice_sec > me.total_voice_sec)
				OR (s.total_xp = me.total_xp AND s.total_voice_sec = me.total_voice_sec AND s.user_id < me.user_id)
			  )
		)
		FROM me
	`

	var rank int64
	err := r.conn.QueryRow(ctx, query, key.GuildID.Int64(), key.UserID.Int64()).Scan(&rank)
	if IsNoRows(err) {
		return shared.Unranked, nil
	}
	if err != nil {
		return shared.Unranked, fmt.Errorf("failed to rank member %s: %w", key, err)
	}
	return shared.Rank(rank), nil
}

// Count returns the number of records in a guild.
func (r *MemberProgressRepository) Count(ctx context.Context, guildID shared.GuildID) (int, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	var n int
	err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM user_stats WHERE guild_id = $1`, guildID.Int64()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count guild %s: %w", guildID, err)
	}
	return n, nil
}

// ListOpenSessions returns members currently in voice, ordered by guild then user.
func (r *MemberProgressRepository) ListOpenSessions(ctx context.Context) ([]shared.MemberKey, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	rows, err := r.conn.Query(ctx, `
		SELECT guild_id, user_id
		FROM user_stats
		WHERE last_voice_join IS NOT NULL
		ORDER BY guild_id, user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list open sessions: %w", err)
	}
	defer rows.Close()

	keys := make([]shared.MemberKey, 0)
	for rows.Next() {
		var guildID, userID int64
		if err := rows.Scan(&guildID, &userID); err != nil {
			return nil, fmt.Errorf("failed to scan session key: %w", err)
		}
		keys = append(keys, shared.MemberKey{GuildID: shared.GuildID(guildID), UserID: shared.UserID(userID)})
	}
	return keys, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func scanMember(row pgx.Row) (*progression.MemberProgress, error) {
	var (
		p               progression.MemberProgress
		guildID, userID int64
		lastJoin        *time.Time
	)

	err := row.Scan(
		&guildID,
		&userID,
		&p.TotalXP,
		&p.Level,
		&p.XPIntoLevel,
		&p.TotalVoiceSeconds,
		&lastJoin,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.GuildID = shared.GuildID(guildID)
	p.UserID = shared.UserID(userID)
	p.UpdatedAt = p.UpdatedAt.UTC()
	if lastJoin != nil {
		t := lastJoin.UTC()
		p.LastVoiceJoin = &t
	}
	return &p, nil
}
