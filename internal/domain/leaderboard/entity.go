// Package leaderboard содержит доменную модель лидерборда сообщества.
// Порядок: XP по убыванию, затем время в голосе по убыванию,
// затем ID участника по возрастанию. Порядок строгий: ничьих нет.
package leaderboard

import (
	"fmt"
	"sort"
	"time"

	"github.com/xpbot/xpbot/internal/domain/progression"
	"github.com/xpbot/xpbot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// Entry представляет одну запись в лидерборде.
type Entry struct {
	// Rank - позиция в рейтинге (с 1). Unranked, пока записи не отсортированы.
	Rank shared.Rank `json:"rank"`

	// GuildID - сообщество.
	GuildID shared.GuildID `json:"guild_id"`

	// UserID - участник.
	UserID shared.UserID `json:"user_id"`

	// XP - суммарный XP.
	XP int64 `json:"xp"`

	// Level - уровень.
	Level int `json:"level"`

	// VoiceSeconds - суммарное время в голосе.
	VoiceSeconds int64 `json:"voice_seconds"`

	// UpdatedAt - время последнего изменения записи прогресса.
	UpdatedAt time.Time `json:"updated_at"`
}

// FromProgress строит запись лидерборда из записи прогресса.
func FromProgress(p *progression.MemberProgress) *Entry {
	return &Entry{
		GuildID:      p.GuildID,
		UserID:       p.UserID,
		XP:           p.TotalXP,
		Level:        p.Level,
		VoiceSeconds: p.TotalVoiceSeconds,
		UpdatedAt:    p.UpdatedAt,
	}
}

// Clone создаёт копию записи.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	clone := *e
	return &clone
}

// String возвращает строковое представление для логирования.
func (e *Entry) String() string {
	return fmt.Sprintf("Entry{Rank: %d, User: %s, XP: %d, Voice: %ds}",
		e.Rank, e.UserID, e.XP, e.VoiceSeconds)
}

// ══════════════════════════════════════════════════════════════════════════════
// ORDERING
// ══════════════════════════════════════════════════════════════════════════════

// Less сообщает, стоит ли a выше b в лидерборде.
func Less(a, b *Entry) bool {
	if a.XP != b.XP {
		return a.XP > b.XP
	}
	if a.VoiceSeconds != b.VoiceSeconds {
		return a.VoiceSeconds > b.VoiceSeconds
	}
	return a.UserID < b.UserID
}

// RankOf возвращает ранг участника: 1 + количество записей строго выше.
// Если участника нет в entries, возвращает shared.Unranked.
func RankOf(entries []*Entry, userID shared.UserID) shared.Rank {
	var target *Entry
	for _, e := range entries {
		if e.UserID == userID {
			target = e
			break
		}
	}
	if target == nil {
		return shared.Unranked
	}

	ahead := 0
	for _, e := range entries {
		if e != target && Less(e, target) {
			ahead++
		}
	}
	return shared.Rank(ahead + 1)
}

// Sort сортирует записи в порядке лидерборда и проставляет ранги.
func Sort(entries []*Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return Less(entries[i], entries[j])
	})
	for i, e := range entries {
		e.Rank = shared.Rank(i + 1)
	}
}

// Top возвращает первые n записей в порядке лидерборда. Исходный срез не меняется.
func Top(entries []*Entry, n int) []*Entry {
	if n <= 0 {
		return nil
	}
	ranked := make([]*Entry, len(entries))
	for i, e := range entries {
		ranked[i] = e.Clone()
	}
	Sort(ranked)
	if n > len(ranked) {
		n = len(ranked)
	}
	return ranked[:n]
}

// Build строит лидерборд из записей прогресса: записи в порядке
// лидерборда с проставленными рангами.
func Build(records []*progression.MemberProgress) []*Entry {
	entries := make([]*Entry, 0, len(records))
	for _, p := range records {
		entries = append(entries, FromProgress(p))
	}
	Sort(entries)
	return entries
}
