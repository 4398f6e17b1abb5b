// Package application wires commands and queries into the use cases the
// bot runtime calls: voice events in, progress and tier roles out.
package application

import (
	"context"
	"errors"

	"github.com/xpbot/xpbot/internal/application/command"
	"github.com/xpbot/xpbot/internal/domain/shared"
	"github.com/xpbot/xpbot/pkg/logger"
)

// VoiceOutcome is the result of one voice event.
type VoiceOutcome struct {
	Accumulate *command.AccumulateResult

	// Reconcile is nil when no reconciliation ran.
	Reconcile *command.ReconcileOutcome

	// ReconcileErr is the reconciliation error, if any. Progress was
	// already persisted when it is set.
	ReconcileErr error
}

// VoiceService applies a voice event and then reconciles the member's tier
// roles against the new voice total.
type VoiceService struct {
	accumulator *command.VoiceAccumulator
	reconciler  *command.TierReconciler
	tierSync    func(guildID shared.GuildID) bool
	log         *logger.Logger
}

// NewVoiceService creates the service. reconciler may be nil (no role
// management); tierSync nil means enabled for every guild.
func NewVoiceService(
	accumulator *command.VoiceAccumulator,
	reconciler *command.TierReconciler,
	tierSync func(guildID shared.GuildID) bool,
	log *logger.Logger,
) *VoiceService {
	if log == nil {
		log = logger.Nop()
	}
	return &VoiceService{
		accumulator: accumulator,
		reconciler:  reconciler,
		tierSync:    tierSync,
		log:         log.Named("voice_service"),
	}
}

// HandleVoiceEvent applies ev. The returned error is set only when progress
// could not be updated; reconciliation problems are reported in
// VoiceOutcome.ReconcileErr.
func (s *VoiceService) HandleVoiceEvent(ctx context.Context, ev command.VoiceEvent) (*VoiceOutcome, error) {
	res, err := s.accumulator.Accumulate(ctx, ev)
	if err != nil {
		s.log.Error("voice event failed",
			logger.GuildID(ev.GuildID.Int64()),
			logger.UserID(ev.UserID.Int64()),
			logger.String("kind", string(ev.Kind)),
			logger.Err(err),
		)
		return nil, err
	}

	out := &VoiceOutcome{Accumulate: res}
	if !res.Changed || res.After == nil || !s.syncEnabled(ev.GuildID) {
		return out, nil
	}

	out.Reconcile, out.ReconcileErr = s.reconciler.Reconcile(ctx, ev.GuildID, ev.UserID, res.After.TotalVoiceSeconds)
	if out.ReconcileErr != nil && !shared.IsRoleRejection(out.ReconcileErr) && !errors.Is(out.ReconcileErr, shared.ErrPartialApply) {
		// rejections and partial failures are logged by the reconciler
		s.log.Error("tier reconciliation failed",
			logger.GuildID(ev.GuildID.Int64()),
			logger.UserID(ev.UserID.Int64()),
			logger.Err(out.ReconcileErr),
		)
	}
	return out, nil
}

// ReconcileMember reconciles one member from a known voice total.
func (s *VoiceService) ReconcileMember(ctx context.Context, key shared.MemberKey, totalVoiceSeconds int64) (*command.ReconcileOutcome, error) {
	if !s.syncEnabled(key.GuildID) {
		return &command.ReconcileOutcome{GuildID: key.GuildID, UserID: key.UserID}, nil
	}
	return s.reconciler.Reconcile(ctx, key.GuildID, key.UserID, totalVoiceSeconds)
}

func (s *VoiceService) syncEnabled(guildID shared.GuildID) bool {
	if s.reconciler == nil {
		return false
	}
	return s.tierSync == nil || s.tierSync(guildID)
}
