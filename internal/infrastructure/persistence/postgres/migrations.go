package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE USER STATS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- One progress record per (guild, member)
CREATE TABLE IF NOT EXISTS user_stats (
    guild_id BIGINT NOT NULL,
    user_id BIGINT NOT NULL,
    total_xp BIGINT NOT NULL DEFAULT 0,
    level INTEGER NOT NULL DEFAULT 0,
    xp_into_level BIGINT NOT NULL DEFAULT 0,
    total_voice_sec BIGINT NOT NULL DEFAULT 0,
    last_voice_join TIMESTAMP WITH TIME ZONE,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (guild_id, user_id),
    CONSTRAINT user_stats_non_negative CHECK (
        total_xp >= 0 AND level >= 0 AND xp_into_level >= 0 AND total_voice_sec >= 0
    )
);

-- Leaderboard order: xp desc, voice desc, user asc
CREATE INDEX IF NOT EXISTS idx_user_stats_leaderboard
    ON user_stats (guild_id, total_xp DESC, total_voice_sec DESC, user_id ASC);
`

const migration001Down = `
DROP INDEX IF EXISTS idx_user_stats_leaderboard;
DROP TABLE IF EXISTS user_stats;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: OPEN SESSION INDEX
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- The voice tick job scans members that are currently in voice
CREATE INDEX IF NOT EXISTS idx_user_stats_open_sessions
    ON user_stats (guild_id, user_id)
    WHERE last_voice_join IS NOT NULL;
`

const migration002Down = `
DROP INDEX IF EXISTS idx_user_stats_open_sessions;
`

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_user_stats",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "index_open_sessions",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
	}
}
