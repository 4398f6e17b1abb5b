package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xpbot/xpbot/internal/application/command"
	"github.com/xpbot/xpbot/internal/domain/shared"
	"github.com/xpbot/xpbot/pkg/keyed"
	"github.com/xpbot/xpbot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// VOICE EVENT STREAM
// ══════════════════════════════════════════════════════════════════════════════

// VoiceEventMessage is the wire form of a voice state change.
//
//	{"guild_id":"123","user_id":"456","kind":"join","timestamp":"2024-05-01T18:00:00Z"}
//
// Ids are snowflakes and travel as strings.
type VoiceEventMessage struct {
	GuildID   string    `json:"guild_id"`
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// ToCommand converts the message into a validated voice event.
func (m VoiceEventMessage) ToCommand() (command.VoiceEvent, error) {
	guildID, err := shared.ParseGuildID(m.GuildID)
	if err != nil {
		return command.VoiceEvent{}, err
	}
	userID, err := shared.ParseUserID(m.UserID)
	if err != nil {
		return command.VoiceEvent{}, err
	}
	kind, err := command.ParseVoiceEventKind(m.Kind)
	if err != nil {
		return command.VoiceEvent{}, err
	}

	ev := command.VoiceEvent{
		GuildID:   guildID,
		UserID:    userID,
		Kind:      kind,
		Timestamp: m.Timestamp,
	}
	if err := ev.Validate(); err != nil {
		return command.VoiceEvent{}, err
	}
	return ev, nil
}

// DecodeVoiceEvent parses one payload from ChannelVoiceEvents.
func DecodeVoiceEvent(payload string) (command.VoiceEvent, error) {
	var msg VoiceEventMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return command.VoiceEvent{}, fmt.Errorf("%w: voice event: %v", shared.ErrInvalidFormat, err)
	}
	return msg.ToCommand()
}

// VoiceEventHandler processes one decoded voice event.
type VoiceEventHandler func(ctx context.Context, ev command.VoiceEvent) error

// VoiceEventSubscriber feeds voice events from Redis pub/sub to a handler.
// Events of one member are handled one at a time in arrival order; members
// are handled concurrently, so a slow handler for one member (waiting on
// role command pacing, for instance) never delays another member's events.
type VoiceEventSubscriber struct {
	cache   *Cache
	handler VoiceEventHandler
	log     *logger.Logger
	ready   chan struct{}
}

// NewVoiceEventSubscriber creates a subscriber.
func NewVoiceEventSubscriber(cache *Cache, handler VoiceEventHandler, log *logger.Logger) *VoiceEventSubscriber {
	if log == nil {
		log = logger.Nop()
	}
	return &VoiceEventSubscriber{
		cache:   cache,
		handler: handler,
		log:     log.Named("voice_events"),
		ready:   make(chan struct{}),
	}
}

// Ready is closed once the subscription is confirmed by Redis.
func (s *VoiceEventSubscriber) Ready() <-chan struct{} {
	return s.ready
}

// Run consumes events until ctx is cancelled or the subscription breaks.
// Malformed messages and handler failures are logged and skipped.
func (s *VoiceEventSubscriber) Run(ctx context.Context) error {
	pubsub := s.cache.Subscribe(ctx, ChannelVoiceEvents)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", ChannelVoiceEvents, err)
	}
	close(s.ready)

	s.log.Info("listening for voice events", logger.String("channel", ChannelVoiceEvents))

	queue := keyed.New(keyed.WithPanicHandler(func(key string, err error) {
		s.log.Error("voice event handler panicked", logger.String("member", key), logger.Err(err))
	}))
	// drains events already queued; runs before pubsub.Close
	defer queue.Close()

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("subscription to %s closed", ChannelVoiceEvents)
			}
			s.dispatch(ctx, queue, msg)
		}
	}
}

func (s *VoiceEventSubscriber) dispatch(ctx context.Context, queue *keyed.Executor, msg *redis.Message) {
	ev, err := DecodeVoiceEvent(msg.Payload)
	if err != nil {
		s.log.Warn("dropping malformed voice event",
			logger.String("payload", msg.Payload),
			logger.Err(err),
		)
		return
	}

	if err := queue.Submit(ev.Key().String(), func() { s.handle(ctx, ev) }); err != nil {
		s.log.Error("failed to queue voice event", logger.Err(err))
	}
}

func (s *VoiceEventSubscriber) handle(ctx context.Context, ev command.VoiceEvent) {
	if err := s.handler(ctx, ev); err != nil {
		s.log.Error("voice event handler failed",
			logger.GuildID(ev.GuildID.Int64()),
			logger.UserID(ev.UserID.Int64()),
			logger.String("kind", string(ev.Kind)),
			logger.Err(err),
		)
	}
}

// PublishVoiceEvent publishes ev on ChannelVoiceEvents.
func (c *Cache) PublishVoiceEvent(ctx context.Context, ev command.VoiceEvent) error {
	return c.Publish(ctx, ChannelVoiceEvents, VoiceEventMessage{
		GuildID:   ev.GuildID.String(),
		UserID:    ev.UserID.String(),
		Kind:      string(ev.Kind),
		Timestamp: ev.Timestamp.UTC(),
	})
}
