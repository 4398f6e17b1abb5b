// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types.
const (
	// Voice events
	EventVoiceSessionStarted EventType = "voice.session_started"
	EventVoiceSessionClosed  EventType = "voice.session_closed"
	EventClockAnomaly        EventType = "voice.clock_anomaly"

	// Progress events
	EventXPGained EventType = "progress.xp_gained"
	EventLevelUp  EventType = "progress.level_up"

	// Tier events
	EventTierChanged EventType = "tier.changed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
	Version     int       `json:"version"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event stamped with the given time.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
		Version:     1,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Voice Events
// ═══════════════════════════════════════════════════════════════════════════

// VoiceSessionStartedEvent is emitted when a member opens a voice session.
type VoiceSessionStartedEvent struct {
	BaseEvent
	GuildID GuildID `json:"guild_id"`
	UserID  UserID  `json:"user_id"`
}

// Payload implements Event interface.
func (e VoiceSessionStartedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"guild_id": e.GuildID.Int64(),
		"user_id":  e.UserID.Int64(),
	}
}

// NewVoiceSessionStartedEvent creates a new VoiceSessionStartedEvent.
func NewVoiceSessionStartedEvent(key MemberKey, at time.Time) VoiceSessionStartedEvent {
	return VoiceSessionStartedEvent{
		BaseEvent: NewBaseEvent(EventVoiceSessionStarted, key.String(), at),
		GuildID:   key.GuildID,
		UserID:    key.UserID,
	}
}

// VoiceSessionClosedEvent is emitted when elapsed voice time is credited,
// either on leave or on a mid-session tick.
type VoiceSessionClosedEvent struct {
	BaseEvent
	GuildID           GuildID `json:"guild_id"`
	UserID            UserID  `json:"user_id"`
	SecondsAdded      int64   `json:"seconds_added"`
	TotalVoiceSeconds int64   `json:"total_voice_seconds"`
	StillOpen         bool    `json:"still_open"`
}

// Payload implements Event interface.
func (e VoiceSessionClosedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"guild_id":            e.GuildID.Int64(),
		"user_id":             e.UserID.Int64(),
		"seconds_added":       e.SecondsAdded,
		"total_voice_seconds": e.TotalVoiceSeconds,
		"still_open":          e.StillOpen,
	}
}

// NewVoiceSessionClosedEvent creates a new VoiceSessionClosedEvent.
func NewVoiceSessionClosedEvent(key MemberKey, secondsAdded, totalSeconds int64, stillOpen bool, at time.Time) VoiceSessionClosedEvent {
	return VoiceSessionClosedEvent{
		BaseEvent:         NewBaseEvent(EventVoiceSessionClosed, key.String(), at),
		GuildID:           key.GuildID,
		UserID:            key.UserID,
		SecondsAdded:      secondsAdded,
		TotalVoiceSeconds: totalSeconds,
		StillOpen:         stillOpen,
	}
}

// ClockAnomalyEvent is emitted when an event timestamp precedes the session start.
type ClockAnomalyEvent struct {
	BaseEvent
	GuildID  GuildID       `json:"guild_id"`
	UserID   UserID        `json:"user_id"`
	JoinedAt time.Time     `json:"joined_at"`
	EventAt  time.Time     `json:"event_at"`
	Skew     time.Duration `json:"skew"`
}

// Payload implements Event interface.
func (e ClockAnomalyEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"guild_id":  e.GuildID.Int64(),
		"user_id":   e.UserID.Int64(),
		"joined_at": e.JoinedAt,
		"event_at":  e.EventAt,
		"skew":      e.Skew.String(),
	}
}

// NewClockAnomalyEvent creates a new ClockAnomalyEvent.
func NewClockAnomalyEvent(key MemberKey, joinedAt, eventAt time.Time) ClockAnomalyEvent {
	return ClockAnomalyEvent{
		BaseEvent: NewBaseEvent(EventClockAnomaly, key.String(), eventAt),
		GuildID:   key.GuildID,
		UserID:    key.UserID,
		JoinedAt:  joinedAt,
		EventAt:   eventAt,
		Skew:      joinedAt.Sub(eventAt),
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// XPGainedEvent is emitted when a member gains XP.
type XPGainedEvent struct {
	BaseEvent
	GuildID  GuildID `json:"guild_id"`
	UserID   UserID  `json:"user_id"`
	Amount   int64   `json:"amount"`
	NewTotal int64   `json:"new_total"`
	Source   string  `json:"source"` // "voice"
}

// Payload implements Event interface.
func (e XPGainedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"guild_id":  e.GuildID.Int64(),
		"user_id":   e.UserID.Int64(),
		"amount":    e.Amount,
		"new_total": e.NewTotal,
		"source":    e.Source,
	}
}

// NewXPGainedEvent creates a new XPGainedEvent.
func NewXPGainedEvent(key MemberKey, amount, newTotal int64, source string, at time.Time) XPGainedEvent {
	return XPGainedEvent{
		BaseEvent: NewBaseEvent(EventXPGained, key.String(), at),
		GuildID:   key.GuildID,
		UserID:    key.UserID,
		Amount:    amount,
		NewTotal:  newTotal,
		Source:    source,
	}
}

// LevelUpEvent is emitted once per level crossed.
type LevelUpEvent struct {
	BaseEvent
	GuildID  GuildID `json:"guild_id"`
	UserID   UserID  `json:"user_id"`
	OldLevel int     `json:"old_level"`
	NewLevel int     `json:"new_level"`
	TotalXP  int64   `json:"total_xp"`
}

// Payload implements Event interface.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"guild_id":  e.GuildID.Int64(),
		"user_id":   e.UserID.Int64(),
		"old_level": e.OldLevel,
		"new_level": e.NewLevel,
		"total_xp":  e.TotalXP,
	}
}

// NewLevelUpEvent creates a new LevelUpEvent.
func NewLevelUpEvent(key MemberKey, oldLevel, newLevel int, totalXP int64, at time.Time) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent: NewBaseEvent(EventLevelUp, key.String(), at),
		GuildID:   key.GuildID,
		UserID:    key.UserID,
		OldLevel:  oldLevel,
		NewLevel:  newLevel,
		TotalXP:   totalXP,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Tier Events
// ═══════════════════════════════════════════════════════════════════════════

// TierChangedEvent is emitted after a role diff was applied to a member.
type TierChangedEvent struct {
	BaseEvent
	GuildID      GuildID  `json:"guild_id"`
	UserID       UserID   `json:"user_id"`
	TierName     string   `json:"tier_name,omitempty"` // empty when no tier is eligible
	RolesAdded   []RoleID `json:"roles_added"`
	RolesRemoved []RoleID `json:"roles_removed"`
	Failed       int      `json:"failed"`
}

// Payload implements Event interface.
func (e TierChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"guild_id":      e.GuildID.Int64(),
		"user_id":       e.UserID.Int64(),
		"tier_name":     e.TierName,
		"roles_added":   e.RolesAdded,
		"roles_removed": e.RolesRemoved,
		"failed":        e.Failed,
	}
}

// NewTierChangedEvent creates a new TierChangedEvent.
func NewTierChangedEvent(key MemberKey, tierName string, added, removed []RoleID, failed int, at time.Time) TierChangedEvent {
	return TierChangedEvent{
		BaseEvent:    NewBaseEvent(EventTierChanged, key.String(), at),
		GuildID:      key.GuildID,
		UserID:       key.UserID,
		TierName:     tierName,
		RolesAdded:   added,
		RolesRemoved: removed,
		Failed:       failed,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Bus Contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
