package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/xpbot/xpbot/internal/application/query"
	"github.com/xpbot/xpbot/internal/domain/progression"
	"github.com/xpbot/xpbot/internal/domain/shared"
	"github.com/xpbot/xpbot/internal/domain/tier"
	"github.com/xpbot/xpbot/internal/infrastructure/persistence/postgres"
	"github.com/xpbot/xpbot/internal/infrastructure/persistence/redis"
	"github.com/xpbot/xpbot/internal/infrastructure/tierconfig"
	"github.com/xpbot/xpbot/pkg/logger"
	"github.com/xpbot/xpbot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATE
// ══════════════════════════════════════════════════════════════════════════════

func newMigrateCommand(env *runtimeEnv) *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations (or roll back the latest with --down)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			conn, err := postgres.NewConnection(ctx, postgres.ConfigFrom(env.cfg.Database), env.log)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer conn.Close()

			migrator := postgres.NewMigrator(conn)
			var n int
			if down {
				n, err = migrator.Rollback(ctx)
			} else {
				n, err = migrator.Migrate(ctx)
			}
			if err != nil {
				return err
			}

			status, err := migrator.Status(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			verb := "applied"
			if down {
				verb = "rolled back"
			}
			fmt.Fprintf(out, "%d migration(s) %s\n", n, verb)
			for _, m := range status {
				mark := "✗"
				if m.IsApplied {
					mark = "✓"
				}
				fmt.Fprintf(out, "  %s %03d %s\n", mark, m.Version, m.Name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back the most recent migration")
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// SEED
// ══════════════════════════════════════════════════════════════════════════════

// seedMember - тестовый участник.
type seedMember struct {
	UserID       shared.UserID
	TotalXP      int64
	VoiceSeconds int64
}

var seedMembers = []seedMember{
	{UserID: 111111111111111111, TotalXP: 15000, VoiceSeconds: 150000},
	{UserID: 222222222222222222, TotalXP: 12000, VoiceSeconds: 120000},
	{UserID: 333333333333333333, TotalXP: 8500, VoiceSeconds: 85000},
	{UserID: 444444444444444444, TotalXP: 5000, VoiceSeconds: 50000},
	{UserID: 555555555555555555, TotalXP: 3000, VoiceSeconds: 30000},
	{UserID: 666666666666666666, TotalXP: 1500, VoiceSeconds: 15000},
	{UserID: 777777777777777777, TotalXP: 500, VoiceSeconds: 5000},
	{UserID: 888888888888888888, TotalXP: 150, VoiceSeconds: 1500},
}

// seedRecord строит запись прогресса; уровень выводится из суммарного XP.
func seedRecord(guildID shared.GuildID, m seedMember, now time.Time) (*progression.MemberProgress, error) {
	adv, err := progression.FromTotalXP(m.TotalXP)
	if err != nil {
		return nil, err
	}
	rec := &progression.MemberProgress{
		GuildID:           guildID,
		UserID:            m.UserID,
		TotalXP:           m.TotalXP,
		Level:             adv.Level,
		XPIntoLevel:       adv.XPIntoLevel,
		TotalVoiceSeconds: m.VoiceSeconds,
		UpdatedAt:         now,
	}
	return rec, rec.Validate()
}

// roleSeeder записывает состояние ролей, которое обычно зеркалирует шлюз.
type roleSeeder interface {
	StoreGuild(ctx context.Context, snap redis.GuildSnapshot) error
	SetMemberRoles(ctx context.Context, key shared.MemberKey, roles []shared.RoleID) error
}

// seedRoles записывает иерархию ролей тиров (по возрастанию порога, роль бота
// выше всех) и выдаёт каждому участнику роль его текущего тира.
func seedRoles(ctx context.Context, dir roleSeeder, table *tier.Table, records []*progression.MemberProgress) (redis.GuildSnapshot, error) {
	ids := table.RoleIDs()
	snap := redis.GuildSnapshot{
		GuildID:   table.GuildID(),
		Positions: make(map[shared.RoleID]int, len(ids)),
		Ceiling:   len(ids) + 1,
	}
	for i, id := range ids {
		snap.Positions[id] = i + 1
	}
	if err := dir.StoreGuild(ctx, snap); err != nil {
		return snap, err
	}

	for _, rec := range records {
		var roles []shared.RoleID
		if d, ok := table.EligibleTier(rec.TotalVoiceSeconds); ok {
			roles = []shared.RoleID{d.RoleID}
		}
		if err := dir.SetMemberRoles(ctx, rec.Key(), roles); err != nil {
			return snap, err
		}
	}
	return snap, nil
}

func seedRoleDirectory(ctx context.Context, env *runtimeEnv, guildID shared.GuildID, records []*progression.MemberProgress, out io.Writer) error {
	if env.cfg.Redis.Disabled {
		return fmt.Errorf("--roles needs redis (REDIS_DISABLED is set)")
	}
	registry, err := tierconfig.NewRegistry(env.cfg.Roles.ConfigPath, env.log)
	if err != nil {
		return err
	}
	table, ok := registry.Table(guildID)
	if !ok {
		return fmt.Errorf("no tiers configured for guild %s", guildID)
	}

	cache, err := redis.NewCache(ctx, redis.ConfigFrom(env.cfg.Redis))
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer cache.Close()

	snap, err := seedRoles(ctx, redis.NewRoleDirectory(cache), table, records)
	if err != nil {
		return fmt.Errorf("seed role directory: %w", err)
	}
	fmt.Fprintf(out, "✓ Stored %d tier roles, bot ceiling at position %d\n", len(snap.Positions), snap.Ceiling)
	return nil
}

func newSeedCommand(env *runtimeEnv) *cobra.Command {
	var (
		guild     string
		withRoles bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert eight test members into a guild",
		RunE: func(cmd *cobra.Command, _ []string) error {
			guildID, err := shared.ParseGuildID(guild)
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), env, func(ctx context.Context, repo progression.Repository) error {
				out := cmd.OutOrStdout()
				now := timeutil.Now()
				records := make([]*progression.MemberProgress, 0, len(seedMembers))
				for _, m := range seedMembers {
					rec, err := seedRecord(guildID, m, now)
					if err != nil {
						return fmt.Errorf("build seed member %s: %w", m.UserID, err)
					}
					if err := repo.Put(ctx, rec); err != nil {
						return fmt.Errorf("insert seed member %s: %w", m.UserID, err)
					}
					records = append(records, rec)
					fmt.Fprintf(out, "✓ Inserted user %s: Level %d, %s XP, %.1fh voice\n",
						rec.UserID, rec.Level, timeutil.FormatThousands(rec.TotalXP), rec.VoiceHours())
				}
				fmt.Fprintf(out, "\n%d test users inserted\n", len(seedMembers))

				if !withRoles {
					return nil
				}
				return seedRoleDirectory(ctx, env, guildID, records, out)
			})
		},
	}
	cmd.Flags().StringVar(&guild, "guild", "123456789012345678", "guild id to seed")
	cmd.Flags().BoolVar(&withRoles, "roles", false, "also write a tier role hierarchy and member roles to redis")
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// TIERS
// ══════════════════════════════════════════════════════════════════════════════

func newTiersCommand(env *runtimeEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "tiers",
		Short: "Show the configured tier roles and tier selection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := tierconfig.NewRegistry(env.cfg.Roles.ConfigPath, env.log)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			guilds := registry.Guilds()
			fmt.Fprintf(out, "✓ Loaded config for %d guild(s)\n\n", len(guilds))
			for _, g := range guilds {
				table, ok := registry.Table(g)
				if !ok {
					continue
				}
				writeLines(out, tierLines(table))
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD & RANK
// ══════════════════════════════════════════════════════════════════════════════

func newLeaderboardCommand(env *runtimeEnv) *cobra.Command {
	var (
		guild string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the top members of a guild",
		RunE: func(cmd *cobra.Command, _ []string) error {
			guildID, err := shared.ParseGuildID(guild)
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), env, func(ctx context.Context, repo progression.Repository) error {
				res, err := query.NewGetLeaderboardHandler(repo, env.log).Handle(ctx, guildID, limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(res.Entries) == 0 {
					fmt.Fprintln(out, "No activity recorded yet.")
					return nil
				}
				fmt.Fprintf(out, "Voice leaderboard (%d members)\n", res.TotalMembers)
				for _, e := range res.Entries {
					fmt.Fprintln(out, leaderboardLine(e))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&guild, "guild", "", "guild id")
	cmd.Flags().IntVar(&limit, "limit", query.DefaultLeaderboardLimit, "number of members to show")
	_ = cmd.MarkFlagRequired("guild")
	return cmd
}

func newRankCommand(env *runtimeEnv) *cobra.Command {
	var guild, user string

	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Show a member's level, XP and leaderboard position",
		RunE: func(cmd *cobra.Command, _ []string) error {
			guildID, err := shared.ParseGuildID(guild)
			if err != nil {
				return err
			}
			userID, err := shared.ParseUserID(user)
			if err != nil {
				return err
			}
			return withStore(cmd.Context(), env, func(ctx context.Context, repo progression.Repository) error {
				res, err := query.NewGetMemberRankHandler(repo).Handle(ctx, guildID, userID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), rankSummary(res))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&guild, "guild", "", "guild id")
	cmd.Flags().StringVar(&user, "user", "", "user id")
	_ = cmd.MarkFlagRequired("guild")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// LEVELS
// ══════════════════════════════════════════════════════════════════════════════

func newLevelsCommand(env *runtimeEnv) *cobra.Command {
	var maxLevel int

	cmd := &cobra.Command{
		Use:   "levels",
		Short: "Print the XP and voice hours needed for each level",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rate := env.cfg.Progression.XPPerMinute
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "XP rate: %s XP/min\n\n", strconv.FormatInt(rate, 10))
			writeLines(out, levelLines(progression.Table(maxLevel, rate)))
			return nil
		},
	}
	cmd.Flags().IntVar(&maxLevel, "max", 50, "highest level to show")
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// withStore открывает хранилище, вызывает fn и закрывает соединение.
func withStore(ctx context.Context, env *runtimeEnv, fn func(context.Context, progression.Repository) error) error {
	repo, conn, err := openStore(ctx, env)
	if err != nil {
		return err
	}
	if conn != nil {
		defer conn.Close()
	}
	if err := fn(ctx, repo); err != nil {
		env.log.Error("command failed", logger.Err(err))
		return err
	}
	return nil
}

func writeLines(w io.Writer, lines []string) {
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
}
