package redis

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/xpbot/xpbot/internal/application/eventhandler"
	"github.com/xpbot/xpbot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL-UP ANNOUNCEMENTS
// ══════════════════════════════════════════════════════════════════════════════

// AnnouncementMessage is what the gateway posts to the announcement channel.
type AnnouncementMessage struct {
	ID string `json:"id"`
	eventhandler.LevelUpAnnouncement
	Text string `json:"text"`
}

// AnnouncementPublisher implements eventhandler.Announcer over pub/sub.
type AnnouncementPublisher struct {
	cache *Cache
}

var _ eventhandler.Announcer = (*AnnouncementPublisher)(nil)

// NewAnnouncementPublisher creates an AnnouncementPublisher.
func NewAnnouncementPublisher(cache *Cache) *AnnouncementPublisher {
	return &AnnouncementPublisher{cache: cache}
}

// AnnounceLevelUp publishes a on ChannelAnnouncements.
func (p *AnnouncementPublisher) AnnounceLevelUp(ctx context.Context, a eventhandler.LevelUpAnnouncement) error {
	msg := AnnouncementMessage{
		ID:                  uuid.NewString(),
		LevelUpAnnouncement: a,
		Text:                LevelUpText(a),
	}
	if err := p.cache.Publish(ctx, ChannelAnnouncements, msg); err != nil {
		return fmt.Errorf("%w: announce level up: %v", shared.ErrExternalService, err)
	}
	return nil
}

// LevelUpText renders the announcement line.
func LevelUpText(a eventhandler.LevelUpAnnouncement) string {
	return fmt.Sprintf("🎉 <@%s> reached level %d (%d XP)!", a.UserID, a.NewLevel, a.TotalXP)
}
