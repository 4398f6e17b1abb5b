// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xpbot/xpbot/internal/domain/progression"
	"github.com/xpbot/xpbot/internal/domain/shared"
	"github.com/xpbot/xpbot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACCUMULATE VOICE COMMAND
// Turns join/leave/tick events into voice seconds, XP and levels.
// ══════════════════════════════════════════════════════════════════════════════

// VoiceEventKind is the kind of a voice state change.
type VoiceEventKind string

const (
	// VoiceJoin - member entered a voice channel.
	VoiceJoin VoiceEventKind = "join"

	// VoiceLeave - member left voice entirely.
	VoiceLeave VoiceEventKind = "leave"

	// VoiceTick - periodic credit while the member stays in voice.
	VoiceTick VoiceEventKind = "tick"
)

// ParseVoiceEventKind validates a wire value.
func ParseVoiceEventKind(s string) (VoiceEventKind, error) {
	switch k := VoiceEventKind(s); k {
	case VoiceJoin, VoiceLeave, VoiceTick:
		return k, nil
	default:
		return "", shared.ErrUnknownVoiceEvent
	}
}

// VoiceEvent is one voice state change for a member.
type VoiceEvent struct {
	GuildID   shared.GuildID
	UserID    shared.UserID
	Kind      VoiceEventKind
	Timestamp time.Time
}

// Key returns the member key of the event.
func (e VoiceEvent) Key() shared.MemberKey {
	return shared.MemberKey{GuildID: e.GuildID, UserID: e.UserID}
}

// Validate validates the event.
func (e VoiceEvent) Validate() error {
	if !e.Key().IsValid() {
		return shared.ErrInvalidMember
	}
	if _, err := ParseVoiceEventKind(string(e.Kind)); err != nil {
		return err
	}
	if e.Timestamp.IsZero() {
		return shared.NewDomainError("voice", "Accumulate", shared.ErrInvalidInput, "event timestamp is required")
	}
	return nil
}

// AccumulateResult contains the result of applying one voice event.
type AccumulateResult struct {
	Event VoiceEvent

	// Before is the stored record before the event; nil if there was none.
	Before *progression.MemberProgress

	// After is the record as persisted; nil when the event was ignored
	// for a member without a record.
	After *progression.MemberProgress

	// Changed is false for ignored events (duplicate join, leave/tick
	// without an open session).
	Changed bool

	// Credit describes the credited interval for leave and tick.
	Credit progression.SessionCredit

	// Events contains the domain events published for this change.
	Events []shared.Event
}

// LevelsCrossed returns the levels reached by this event, ascending.
func (r *AccumulateResult) LevelsCrossed() []int {
	return r.Credit.LevelsCrossed
}

// LeveledUp reports whether at least one level was crossed.
func (r *AccumulateResult) LeveledUp() bool {
	return len(r.Credit.LevelsCrossed) > 0
}

// Anomaly reports a clock anomaly on this event.
func (r *AccumulateResult) Anomaly() bool {
	return r.Credit.Anomaly
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// VoiceAccumulator applies voice events to member progress records.
//
// Events for the same member are serialized; events for different members
// run concurrently. The record is changed on a copy and only replaces the
// stored one after a successful Put, so a failed write leaves the member
// state untouched and the event can be redelivered.
type VoiceAccumulator struct {
	repo        progression.Repository
	publisher   shared.EventPublisher
	recorder    Recorder
	log         *logger.Logger
	xpPerMinute int64

	// shared.MemberKey -> *sync.Mutex. Entries are never removed.
	locks sync.Map
}

// VoiceAccumulatorConfig contains configuration for the accumulator.
type VoiceAccumulatorConfig struct {
	XPPerMinute int64
}

// NewVoiceAccumulator creates a new VoiceAccumulator. publisher and recorder may be nil.
func NewVoiceAccumulator(
	repo progression.Repository,
	publisher shared.EventPublisher,
	recorder Recorder,
	log *logger.Logger,
	config VoiceAccumulatorConfig,
) *VoiceAccumulator {
	if config.XPPerMinute <= 0 {
		config.XPPerMinute = progression.DefaultXPPerMinute
	}
	if recorder == nil {
		recorder = NopRecorder{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &VoiceAccumulator{
		repo:        repo,
		publisher:   publisher,
		recorder:    recorder,
		log:         log.Named("voice_accumulator"),
		xpPerMinute: config.XPPerMinute,
	}
}

// OnVoiceJoin opens a session at at.
func (a *VoiceAccumulator) OnVoiceJoin(ctx context.Context, key shared.MemberKey, at time.Time) (*AccumulateResult, error) {
	return a.Accumulate(ctx, VoiceEvent{GuildID: key.GuildID, UserID: key.UserID, Kind: VoiceJoin, Timestamp: at})
}

// OnVoiceLeave credits and closes the open session.
func (a *VoiceAccumulator) OnVoiceLeave(ctx context.Context, key shared.MemberKey, at time.Time) (*AccumulateResult, error) {
	return a.Accumulate(ctx, VoiceEvent{GuildID: key.GuildID, UserID: key.UserID, Kind: VoiceLeave, Timestamp: at})
}

// OnVoiceTick credits the open session and keeps it open.
func (a *VoiceAccumulator) OnVoiceTick(ctx context.Context, key shared.MemberKey, at time.Time) (*AccumulateResult, error) {
	return a.Accumulate(ctx, VoiceEvent{GuildID: key.GuildID, UserID: key.UserID, Kind: VoiceTick, Timestamp: at})
}

// Accumulate applies one voice event.
func (a *VoiceAccumulator) Accumulate(ctx context.Context, ev VoiceEvent) (*AccumulateResult, error) {
	if err := ev.Validate(); err != nil {
		a.recorder.VoiceEvent(string(ev.Kind), false)
		return nil, fmt.Errorf("accumulate_voice: validation failed: %w", err)
	}
	ev.Timestamp = ev.Timestamp.UTC()
	key := ev.Key()

	unlock := a.lock(key)
	defer unlock()

	before, err := a.repo.Get(ctx, key)
	if err != nil {
		a.recorder.VoiceEvent(string(ev.Kind), false)
		return nil, fmt.Errorf("accumulate_voice: load %s: %w", key, err)
	}

	result := &AccumulateResult{Event: ev, Before: before}

	var after *progression.MemberProgress
	switch ev.Kind {
	case VoiceJoin:
		after, err = a.join(before, ev, result)
	default:
		after, err = a.credit(before, ev, result)
	}
	if err != nil {
		a.recorder.VoiceEvent(string(ev.Kind), false)
		return nil, err
	}

	if !result.Changed {
		result.After = before
		a.recorder.VoiceEvent(string(ev.Kind), true)
		a.log.Debug("voice event ignored",
			logger.GuildID(key.GuildID.Int64()),
			logger.UserID(key.UserID.Int64()),
			logger.String("kind", string(ev.Kind)),
		)
		return result, nil
	}

	if err := a.repo.Put(ctx, after); err != nil {
		a.recorder.VoiceEvent(string(ev.Kind), false)
		return nil, fmt.Errorf("accumulate_voice: save %s: %w", key, err)
	}
	result.After = after

	a.recorder.VoiceEvent(string(ev.Kind), true)
	a.recorder.Credited(result.Credit.Seconds, result.Credit.XP)
	a.recorder.LevelUps(len(result.Credit.LevelsCrossed))

	result.Events = a.buildEvents(result)
	a.publish(result.Events)

	return result, nil
}

func (a *VoiceAccumulator) join(before *progression.MemberProgress, ev VoiceEvent, result *AccumulateResult) (*progression.MemberProgress, error) {
	var next *progression.MemberProgress
	if before == nil {
		created, err := progression.NewMemberProgress(ev.Key(), ev.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("accumulate_voice: %w", err)
		}
		next = created
	} else {
		next = before.Clone()
	}

	result.Changed = next.OpenSession(ev.Timestamp)
	return next, nil
}

func (a *VoiceAccumulator) credit(before *progression.MemberProgress, ev VoiceEvent, result *AccumulateResult) (*progression.MemberProgress, error) {
	if before == nil || !before.InVoice() {
		return nil, nil
	}

	next := before.Clone()
	credit, changed, err := next.CreditSession(ev.Timestamp, ev.Kind == VoiceTick, a.xpPerMinute)
	if err != nil {
		return nil, fmt.Errorf("accumulate_voice: credit %s: %w", ev.Key(), err)
	}
	result.Credit = credit
	result.Changed = changed

	if credit.Anomaly {
		a.recorder.ClockAnomaly()
		a.log.Warn("clock anomaly: voice event precedes session start",
			logger.GuildID(ev.GuildID.Int64()),
			logger.UserID(ev.UserID.Int64()),
			logger.String("kind", string(ev.Kind)),
			logger.Time("joined_at", credit.JoinedAt),
			logger.Time("event_at", ev.Timestamp),
		)
	}
	return next, nil
}

func (a *VoiceAccumulator) buildEvents(r *AccumulateResult) []shared.Event {
	key := r.Event.Key()
	at := r.Event.Timestamp
	after := r.After

	if r.Event.Kind == VoiceJoin {
		return []shared.Event{shared.NewVoiceSessionStartedEvent(key, at)}
	}

	events := make([]shared.Event, 0, 3+len(r.Credit.LevelsCrossed))
	if r.Credit.Anomaly {
		events = append(events, shared.NewClockAnomalyEvent(key, r.Credit.JoinedAt, at))
	}
	events = append(events, shared.NewVoiceSessionClosedEvent(
		key, r.Credit.Seconds, after.TotalVoiceSeconds, after.InVoice(), at))
	if r.Credit.XP > 0 {
		events = append(events, shared.NewXPGainedEvent(key, r.Credit.XP, after.TotalXP, "voice", at))
	}

	prev := r.Credit.PreviousLevel
	for _, lvl := range r.Credit.LevelsCrossed {
		events = append(events, shared.NewLevelUpEvent(key, prev, lvl, after.TotalXP, at))
		prev = lvl
	}
	return events
}

func (a *VoiceAccumulator) publish(events []shared.Event) {
	if a.publisher == nil {
		return
	}
	for _, e := range events {
		if err := a.publisher.Publish(e); err != nil {
			a.log.Warn("failed to publish event",
				logger.String("event_type", string(e.EventType())),
				logger.Err(err),
			)
		}
	}
}

func (a *VoiceAccumulator) lock(key shared.MemberKey) func() {
	v, _ := a.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
