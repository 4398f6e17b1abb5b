// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
package query

import (
	"context"
	"time"

	"github.com/xpbot/xpbot/internal/domain/leaderboard"
	"github.com/xpbot/xpbot/internal/domain/progression"
	"github.com/xpbot/xpbot/internal/domain/shared"
	"github.com/xpbot/xpbot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Топ-N участников сообщества в порядке лидерборда.
// ══════════════════════════════════════════════════════════════════════════════

const (
	// DefaultLeaderboardLimit - размер топа по умолчанию.
	DefaultLeaderboardLimit = 10

	// MaxLeaderboardLimit - максимальный размер топа.
	MaxLeaderboardLimit = 100
)

// GetLeaderboardResult содержит результат запроса лидерборда.
type GetLeaderboardResult struct {
	// GuildID - сообщество.
	GuildID shared.GuildID `json:"guild_id"`

	// Entries - записи с проставленными рангами.
	Entries []*leaderboard.Entry `json:"entries"`

	// TotalMembers - общее число записей сообщества.
	TotalMembers int `json:"total_members"`

	// GeneratedAt - время генерации результата.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetLeaderboardHandler обрабатывает запрос лидерборда.
// Лидерборд всегда строится из хранилища прогресса.
type GetLeaderboardHandler struct {
	repo progression.Repository
	log  *logger.Logger
}

// NewGetLeaderboardHandler создаёт обработчик.
func NewGetLeaderboardHandler(repo progression.Repository, log *logger.Logger) *GetLeaderboardHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetLeaderboardHandler{
		repo: repo,
		log:  log.Named("get_leaderboard"),
	}
}

// Handle возвращает первые limit записей. limit <= 0 означает DefaultLeaderboardLimit,
// значения больше MaxLeaderboardLimit обрезаются.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, guildID shared.GuildID, limit int) (*GetLeaderboardResult, error) {
	if !guildID.IsValid() {
		return nil, shared.NewDomainError("leaderboard", "GetLeaderboard", shared.ErrInvalidID, "invalid guild id")
	}
	limit = clampLimit(limit)

	total, err := h.repo.Count(ctx, guildID)
	if err != nil {
		return nil, shared.WrapError("leaderboard", "GetLeaderboard", shared.ErrExternalService, "count members", err)
	}

	records, err := h.repo.TopN(ctx, guildID, limit)
	if err != nil {
		return nil, shared.WrapError("leaderboard", "GetLeaderboard", shared.ErrExternalService, "load top members", err)
	}

	h.log.Debug("leaderboard built",
		logger.GuildID(guildID.Int64()),
		logger.Int("limit", limit),
		logger.Int("members", total),
	)

	return &GetLeaderboardResult{
		GuildID:      guildID,
		Entries:      leaderboard.Build(records),
		TotalMembers: total,
		GeneratedAt:  time.Now().UTC(),
	}, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		return MaxLeaderboardLimit
	}
	return limit
}
