package query

import (
	"context"

	"github.com/xpbot/xpbot/internal/domain/leaderboard"
	"github.com/xpbot/xpbot/internal/domain/progression"
	"github.com/xpbot/xpbot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET MEMBER RANK QUERY
// Позиция участника в лидерборде сообщества.
// Отсутствие записи - не ошибка: Found=false.
// ══════════════════════════════════════════════════════════════════════════════

// GetMemberRankResult содержит позицию участника.
type GetMemberRankResult struct {
	// Found - у участника есть запись прогресса.
	Found bool `json:"found"`

	// Entry - запись лидерборда с рангом; nil, если Found=false.
	Entry *leaderboard.Entry `json:"entry,omitempty"`

	// XPIntoLevel - XP внутри текущего уровня.
	XPIntoLevel int64 `json:"xp_into_level"`

	// XPToNextLevel - сколько XP осталось до следующего уровня.
	XPToNextLevel int64 `json:"xp_to_next_level"`

	// InVoice - открыта ли голосовая сессия.
	InVoice bool `json:"in_voice"`

	// TotalMembers - число записей в сообществе.
	TotalMembers int `json:"total_members"`
}

// Rank возвращает ранг или shared.Unranked.
func (r *GetMemberRankResult) Rank() shared.Rank {
	if !r.Found || r.Entry == nil {
		return shared.Unranked
	}
	return r.Entry.Rank
}

// GetMemberRankHandler обрабатывает запрос позиции участника.
type GetMemberRankHandler struct {
	repo progression.Repository
}

// NewGetMemberRankHandler создаёт обработчик.
func NewGetMemberRankHandler(repo progression.Repository) *GetMemberRankHandler {
	return &GetMemberRankHandler{repo: repo}
}

// Handle возвращает позицию участника.
func (h *GetMemberRankHandler) Handle(ctx context.Context, guildID shared.GuildID, userID shared.UserID) (*GetMemberRankResult, error) {
	key := shared.MemberKey{GuildID: guildID, UserID: userID}
	if !key.IsValid() {
		return nil, shared.ErrInvalidMember
	}

	rec, err := h.repo.Get(ctx, key)
	if err != nil {
		return nil, shared.WrapError("leaderboard", "GetMemberRank", shared.ErrExternalService, "load member", err)
	}
	if rec == nil {
		return &GetMemberRankResult{Found: false}, nil
	}

	rank, err := h.repo.Rank(ctx, key)
	if err != nil {
		return nil, shared.WrapError("leaderboard", "GetMemberRank", shared.ErrExternalService, "rank member", err)
	}
	total, err := h.repo.Count(ctx, guildID)
	if err != nil {
		return nil, shared.WrapError("leaderboard", "GetMemberRank", shared.ErrExternalService, "count members", err)
	}

	entry := leaderboard.FromProgress(rec)
	entry.Rank = rank

	return &GetMemberRankResult{
		Found:         true,
		Entry:         entry,
		XPIntoLevel:   rec.XPIntoLevel,
		XPToNextLevel: rec.XPToNextLevel(),
		InVoice:       rec.InVoice(),
		TotalMembers:  total,
	}, nil
}
