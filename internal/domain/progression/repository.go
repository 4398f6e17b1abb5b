package progression

import (
	"context"

	"github.com/xpbot/xpbot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MEMBER PROGRESS REPOSITORY INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет контракт хранилища записей прогресса.
// Реализации находятся в infrastructure слое (PostgreSQL, in-memory).
//
// Порядок лидерборда во всех методах: TotalXP по убыванию, затем
// TotalVoiceSeconds по убыванию, затем UserID по возрастанию.
type Repository interface {
	// Get возвращает запись участника или (nil, nil), если записи нет.
	Get(ctx context.Context, key shared.MemberKey) (*MemberProgress, error)

	// Put атомарно сохраняет запись целиком (insert или update).
	Put(ctx context.Context, progress *MemberProgress) error

	// TopN возвращает первые n записей сообщества в порядке лидерборда.
	TopN(ctx context.Context, guildID shared.GuildID, n int) ([]*MemberProgress, error)

	// Rank возвращает позицию участника (1 + число записей строго выше).
	// Возвращает shared.Unranked, если записи нет.
	Rank(ctx context.Context, key shared.MemberKey) (shared.Rank, error)

	// Count возвращает количество записей в сообществе.
	Count(ctx context.Context, guildID shared.GuildID) (int, error)

	// ListOpenSessions возвращает ключи всех участников с открытой голосовой сессией.
	ListOpenSessions(ctx context.Context) ([]shared.MemberKey, error)
}
