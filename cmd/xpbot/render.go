package main

import (
	"fmt"
	"strings"

	"github.com/xpbot/xpbot/internal/application/query"
	"github.com/xpbot/xpbot/internal/domain/leaderboard"
	"github.com/xpbot/xpbot/internal/domain/progression"
	"github.com/xpbot/xpbot/internal/domain/tier"
	"github.com/xpbot/xpbot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RENDERING
// ══════════════════════════════════════════════════════════════════════════════

// tierProbes - контрольные точки для проверки выбора тира.
var tierProbes = []struct {
	Label   string
	Seconds int64
}{
	{"0 minutes", 0},
	{"1 hour", 3600},
	{"5 hours", 5 * 3600},
	{"20 hours", 20 * 3600},
	{"60 hours", 60 * 3600},
	{"150 hours", 150 * 3600},
}

// leaderboardLine форматирует строку лидерборда:
// "🥇 <@111> Level 25 (15,000 XP) • 41.7h".
func leaderboardLine(e *leaderboard.Entry) string {
	return fmt.Sprintf("%s <@%s> Level %d (%s XP) • %s",
		e.Rank.Label(),
		e.UserID,
		e.Level,
		timeutil.FormatThousands(e.XP),
		timeutil.FormatVoiceTime(e.VoiceSeconds),
	)
}

// rankSummary описывает позицию участника.
func rankSummary(res *query.GetMemberRankResult) string {
	if !res.Found || res.Entry == nil {
		return "no progress recorded yet"
	}
	e := res.Entry
	var b strings.Builder
	fmt.Fprintf(&b, "Rank %s of %d\n", e.Rank.Label(), res.TotalMembers)
	fmt.Fprintf(&b, "Level %d (%s XP)\n", e.Level, timeutil.FormatThousands(e.XP))
	fmt.Fprintf(&b, "Next level: %d / %d XP\n", res.XPIntoLevel, res.XPIntoLevel+res.XPToNextLevel)
	fmt.Fprintf(&b, "Voice time: %s", timeutil.FormatVoiceTime(e.VoiceSeconds))
	if res.InVoice {
		b.WriteString(" (in voice now)")
	}
	return b.String()
}

// showLevel - первые три уровня и каждый пятый.
func showLevel(level int) bool {
	return level <= 3 || level%5 == 0
}

// levelLines форматирует таблицу прогрессии.
func levelLines(rows []progression.TableRow) []string {
	lines := []string{fmt.Sprintf("%-6s %-12s %-12s %s", "Level", "XP needed", "Total XP", "Hours")}
	for _, r := range rows {
		if !showLevel(r.Level) {
			continue
		}
		lines = append(lines, fmt.Sprintf("%-6d %-12d %-12d %.1f", r.Level, r.XPToReach, r.TotalXP, r.HoursInVoice))
	}
	return lines
}

// tierLines описывает таблицу тиров одного сообщества.
func tierLines(table *tier.Table) []string {
	lines := []string{
		fmt.Sprintf("Guild %s:", table.GuildID()),
		fmt.Sprintf("  Total tiers: %d", table.Len()),
	}
	for _, d := range table.Tiers() {
		lines = append(lines, fmt.Sprintf("    - %s: %d min (%.1fh) -> Role ID %s",
			d.Name, d.MinMinutes, float64(d.MinMinutes)/60, d.RoleID))
	}

	lines = append(lines, "", "  Tier selection:")
	for _, p := range tierProbes {
		name := "No tier"
		if d, ok := table.EligibleTier(p.Seconds); ok {
			name = d.Name
		}
		lines = append(lines, fmt.Sprintf("    %-15s -> %s", p.Label, name))
	}

	ids := make([]string, 0, table.Len())
	for _, id := range table.RoleIDs() {
		ids = append(ids, id.String())
	}
	lines = append(lines, "", fmt.Sprintf("  All role IDs: [%s]", strings.Join(ids, ", ")))
	return lines
}
