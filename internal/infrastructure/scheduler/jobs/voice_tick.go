// Package jobs contains the scheduled jobs of the bot.
package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/xpbot/xpbot/internal/application"
	"github.com/xpbot/xpbot/internal/application/command"
	"github.com/xpbot/xpbot/internal/domain/shared"
	"github.com/xpbot/xpbot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// VOICE TICK JOB
// ══════════════════════════════════════════════════════════════════════════════

// OpenSessionLister lists members with an open voice session.
type OpenSessionLister interface {
	ListOpenSessions(ctx context.Context) ([]shared.MemberKey, error)
}

// VoiceEventHandler applies one voice event. *application.VoiceService implements it.
type VoiceEventHandler interface {
	HandleVoiceEvent(ctx context.Context, ev command.VoiceEvent) (*application.VoiceOutcome, error)
}

// OpenSessionGauge receives the number of open sessions seen by a run.
type OpenSessionGauge interface {
	OpenSessions(n int)
}

// VoiceTickStats contains statistics from one run.
type VoiceTickStats struct {
	RunID       string
	StartedAt   time.Time
	Duration    time.Duration
	OpenAtStart int
	Credited    int
	XPAwarded   int64
	LevelUps    int
	Anomalies   int
	Failed      int
}

// VoiceTickJob credits every open voice session with a tick, so long
// sessions earn XP and tier roles before the member leaves.
type VoiceTickJob struct {
	sessions OpenSessionLister
	handler  VoiceEventHandler
	gauge    OpenSessionGauge
	clock    clockwork.Clock
	log      *logger.Logger

	lastStats atomic.Pointer[VoiceTickStats]
}

// NewVoiceTickJob creates the job. gauge and clock may be nil.
func NewVoiceTickJob(
	sessions OpenSessionLister,
	handler VoiceEventHandler,
	gauge OpenSessionGauge,
	clock clockwork.Clock,
	log *logger.Logger,
) *VoiceTickJob {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &VoiceTickJob{
		sessions: sessions,
		handler:  handler,
		gauge:    gauge,
		clock:    clock,
		log:      log.Named("voice_tick"),
	}
}

// Name returns the job name.
func (j *VoiceTickJob) Name() string {
	return "voice_tick"
}

// Description returns a human-readable description.
func (j *VoiceTickJob) Description() string {
	return "Credits open voice sessions with elapsed time and XP"
}

// Run ticks every open session. One member's failure does not stop the run;
// the run fails if any member failed.
func (j *VoiceTickJob) Run(ctx context.Context) error {
	stats := &VoiceTickStats{
		RunID:     uuid.NewString(),
		StartedAt: j.clock.Now(),
	}
	defer func() {
		stats.Duration = j.clock.Since(stats.StartedAt)
		j.lastStats.Store(stats)
	}()

	keys, err := j.sessions.ListOpenSessions(ctx)
	if err != nil {
		return fmt.Errorf("list open sessions: %w", err)
	}
	stats.OpenAtStart = len(keys)
	if j.gauge != nil {
		j.gauge.OpenSessions(len(keys))
	}

	var firstErr error
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}

		out, err := j.handler.HandleVoiceEvent(ctx, command.VoiceEvent{
			GuildID:   key.GuildID,
			UserID:    key.UserID,
			Kind:      command.VoiceTick,
			Timestamp: j.clock.Now(),
		})
		if err != nil {
			stats.Failed++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		res := out.Accumulate
		if !res.Changed {
			continue
		}
		stats.Credited++
		stats.XPAwarded += res.Credit.XP
		stats.LevelUps += len(res.LevelsCrossed())
		if res.Anomaly() {
			stats.Anomalies++
		}
	}

	j.log.Info("voice tick completed",
		logger.String("run_id", stats.RunID),
		logger.Int("open_sessions", stats.OpenAtStart),
		logger.Int("credited", stats.Credited),
		logger.XPAmount(stats.XPAwarded),
		logger.Int("level_ups", stats.LevelUps),
		logger.Int("anomalies", stats.Anomalies),
		logger.Int("failed", stats.Failed),
	)

	if firstErr != nil {
		return fmt.Errorf("%d of %d ticks failed, first: %w", stats.Failed, len(keys), firstErr)
	}
	return nil
}

// LastStats returns statistics of the last run, or nil.
func (j *VoiceTickJob) LastStats() *VoiceTickStats {
	return j.lastStats.Load()
}
