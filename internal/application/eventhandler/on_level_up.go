// Package eventhandler содержит обработчики доменных событий.
// Обработчики реагируют на изменения прогресса и запускают побочные
// эффекты, например объявления о новых уровнях.
package eventhandler

import (
	"context"
	"time"

	"github.com/xpbot/xpbot/internal/domain/shared"
	"github.com/xpbot/xpbot/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON LEVEL UP HANDLER
// Публикует объявление о новом уровне в настроенный канал.
// ═══════════════════════════════════════════════════════════════════════════

// LevelUpAnnouncement - объявление о новом уровне участника.
type LevelUpAnnouncement struct {
	GuildID   shared.GuildID `json:"guild_id"`
	UserID    shared.UserID  `json:"user_id"`
	ChannelID int64          `json:"channel_id"`
	OldLevel  int            `json:"old_level"`
	NewLevel  int            `json:"new_level"`
	TotalXP   int64          `json:"total_xp"`
	At        time.Time      `json:"at"`
}

// Announcer доставляет объявления тому, кто пишет в Discord.
type Announcer interface {
	AnnounceLevelUp(ctx context.Context, a LevelUpAnnouncement) error
}

// LevelUpConfig содержит конфигурацию обработчика.
type LevelUpConfig struct {
	// ChannelID - канал для объявлений.
	ChannelID int64

	// Enabled - включены ли объявления для сообщества. nil - всегда.
	Enabled func(guildID shared.GuildID) bool

	// Timeout - таймаут доставки одного объявления.
	Timeout time.Duration
}

// OnLevelUpHandler обрабатывает shared.LevelUpEvent.
type OnLevelUpHandler struct {
	announcer Announcer
	config    LevelUpConfig
	log       *logger.Logger
}

// NewOnLevelUpHandler создаёт обработчик.
func NewOnLevelUpHandler(announcer Announcer, config LevelUpConfig, log *logger.Logger) *OnLevelUpHandler {
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &OnLevelUpHandler{
		announcer: announcer,
		config:    config,
		log:       log.Named("on_level_up"),
	}
}

// Handle реализует shared.EventHandler.
func (h *OnLevelUpHandler) Handle(event shared.Event) error {
	up, ok := event.(shared.LevelUpEvent)
	if !ok {
		h.log.Warn("received non-LevelUpEvent", logger.String("event_type", string(event.EventType())))
		return nil
	}

	if h.config.Enabled != nil && !h.config.Enabled(up.GuildID) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	err := h.announcer.AnnounceLevelUp(ctx, LevelUpAnnouncement{
		GuildID:   up.GuildID,
		UserID:    up.UserID,
		ChannelID: h.config.ChannelID,
		OldLevel:  up.OldLevel,
		NewLevel:  up.NewLevel,
		TotalXP:   up.TotalXP,
		At:        up.OccurredAt(),
	})
	if err != nil {
		// объявление не критично: прогресс уже сохранён
		h.log.Warn("failed to announce level up",
			logger.GuildID(up.GuildID.Int64()),
			logger.UserID(up.UserID.Int64()),
			logger.MemberLevel(up.NewLevel),
			logger.Err(err),
		)
		return err
	}

	h.log.Info("level up announced",
		logger.GuildID(up.GuildID.Int64()),
		logger.UserID(up.UserID.Int64()),
		logger.MemberLevel(up.NewLevel),
	)
	return nil
}
