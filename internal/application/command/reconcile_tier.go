package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xpbot/xpbot/internal/domain/shared"
	"github.com/xpbot/xpbot/internal/domain/tier"
	"github.com/xpbot/xpbot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE TIER COMMAND
// Brings a member's tier roles in line with their total voice time.
// ══════════════════════════════════════════════════════════════════════════════

// ReconcileOutcome describes what a reconciliation did.
type ReconcileOutcome struct {
	GuildID shared.GuildID
	UserID  shared.UserID

	// Configured is false when the guild has no tier table; nothing is done then.
	Configured bool

	// Diff is the computed diff. On a rejection it is empty.
	Diff tier.RoleDiff

	// Added and Removed list the mutations that succeeded.
	Added   []shared.RoleID
	Removed []shared.RoleID

	// Failures lists the mutations that failed.
	Failures []tier.RoleMutationFailure
}

// TargetName returns the name of the target tier, or "".
func (o *ReconcileOutcome) TargetName() string {
	return o.Diff.TargetName()
}

// Applied reports whether at least one role mutation succeeded.
func (o *ReconcileOutcome) Applied() bool {
	return len(o.Added)+len(o.Removed) > 0
}

// TierReconciler resolves the member's roles and the guild hierarchy,
// computes the diff with tier.Reconcile and applies it best-effort.
//
// Removals run before the addition. Every mutation is attempted once; a
// failed mutation does not stop the others and is reported in a
// *tier.PartialApplyFailure.
type TierReconciler struct {
	tables    tier.TableSource
	directory tier.RoleDirectory
	mutator   tier.RoleMutator
	publisher shared.EventPublisher
	recorder  Recorder
	log       *logger.Logger
	now       func() time.Time
}

// NewTierReconciler creates a new TierReconciler. publisher and recorder may be nil.
func NewTierReconciler(
	tables tier.TableSource,
	directory tier.RoleDirectory,
	mutator tier.RoleMutator,
	publisher shared.EventPublisher,
	recorder Recorder,
	log *logger.Logger,
) *TierReconciler {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &TierReconciler{
		tables:    tables,
		directory: directory,
		mutator:   mutator,
		publisher: publisher,
		recorder:  recorder,
		log:       log.Named("tier_reconciler"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile brings the member's tier roles in line with totalVoiceSeconds.
//
// Errors:
//   - *tier.RoleRejection (shared.ErrHierarchyViolation, shared.ErrUnresolvedRole):
//     nothing was mutated;
//   - *tier.PartialApplyFailure: some mutations failed, the rest were applied;
//   - directory failures wrapped with shared.ErrExternalService.
func (r *TierReconciler) Reconcile(ctx context.Context, guildID shared.GuildID, userID shared.UserID, totalVoiceSeconds int64) (*ReconcileOutcome, error) {
	key := shared.MemberKey{GuildID: guildID, UserID: userID}
	if !key.IsValid() {
		return nil, fmt.Errorf("reconcile_tier: %w", shared.ErrInvalidMember)
	}
	if totalVoiceSeconds < 0 {
		return nil, shared.NewDomainError("tier", "Reconcile", shared.ErrNegativeValue, "total voice seconds cannot be negative")
	}

	outcome := &ReconcileOutcome{GuildID: guildID, UserID: userID}

	table, ok := r.tables.Table(guildID)
	if !ok {
		return outcome, nil
	}
	outcome.Configured = true

	memberRoles, err := r.directory.MemberRoles(ctx, key)
	if err != nil {
		return outcome, shared.WrapError("tier", "Reconcile", shared.ErrExternalService, "load member roles", err)
	}
	positions, err := r.directory.RolePositions(ctx, guildID, table.RoleIDs())
	if err != nil {
		return outcome, shared.WrapError("tier", "Reconcile", shared.ErrExternalService, "load role positions", err)
	}
	ceiling, err := r.directory.Ceiling(ctx, guildID)
	if err != nil {
		return outcome, shared.WrapError("tier", "Reconcile", shared.ErrExternalService, "load bot ceiling", err)
	}

	input := tier.ReconcileInput{
		Held:      table.FilterTierRoles(memberRoles),
		Ceiling:   ceiling,
		Positions: positions,
	}
	if def, ok := table.EligibleTier(totalVoiceSeconds); ok {
		input.Eligible = &def
	}

	diff, err := tier.Reconcile(input)
	outcome.Diff = diff
	if err != nil {
		var rej *tier.RoleRejection
		if errors.As(err, &rej) {
			r.recorder.ReconcileError(rejectionLabel(rej))
			r.log.Error("tier reconciliation rejected",
				logger.GuildID(guildID.Int64()),
				logger.UserID(userID.Int64()),
				logger.RoleID(rej.RoleID.Int64()),
				logger.Int("position", rej.Position),
				logger.Int("ceiling", rej.Ceiling),
				logger.Err(err),
			)
		}
		return outcome, err
	}
	if diff.IsEmpty() {
		return outcome, nil
	}

	applied := r.apply(ctx, key, diff, outcome)

	r.publish(shared.NewTierChangedEvent(key, diff.TargetName(), outcome.Added, outcome.Removed, len(outcome.Failures), r.now()))

	if len(outcome.Failures) > 0 {
		r.recorder.ReconcileError("partial_apply")
		return outcome, &tier.PartialApplyFailure{Failures: outcome.Failures, Applied: applied}
	}

	r.log.Info("tier roles reconciled",
		logger.GuildID(guildID.Int64()),
		logger.UserID(userID.Int64()),
		logger.String("tier", diff.TargetName()),
		logger.Int("added", len(outcome.Added)),
		logger.Int("removed", len(outcome.Removed)),
	)
	return outcome, nil
}

func (r *TierReconciler) apply(ctx context.Context, key shared.MemberKey, diff tier.RoleDiff, outcome *ReconcileOutcome) int {
	applied := 0
	for _, roleID := range diff.ToRemove {
		if r.mutate(ctx, key, tier.OpRemove, roleID, outcome) {
			outcome.Removed = append(outcome.Removed, roleID)
			applied++
		}
	}
	for _, roleID := range diff.ToAdd {
		if r.mutate(ctx, key, tier.OpAdd, roleID, outcome) {
			outcome.Added = append(outcome.Added, roleID)
			applied++
		}
	}
	return applied
}

func (r *TierReconciler) mutate(ctx context.Context, key shared.MemberKey, op tier.MutationOp, roleID shared.RoleID, outcome *ReconcileOutcome) bool {
	var err error
	if op == tier.OpAdd {
		err = r.mutator.AddRole(ctx, key, roleID)
	} else {
		err = r.mutator.RemoveRole(ctx, key, roleID)
	}
	r.recorder.RoleMutation(string(op), err == nil)
	if err == nil {
		return true
	}

	r.log.Error("role mutation failed",
		logger.GuildID(key.GuildID.Int64()),
		logger.UserID(key.UserID.Int64()),
		logger.RoleID(roleID.Int64()),
		logger.String("op", string(op)),
		logger.Err(err),
	)
	outcome.Failures = append(outcome.Failures, tier.RoleMutationFailure{Op: op, RoleID: roleID, Err: err})
	return false
}

func (r *TierReconciler) publish(e shared.Event) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(e); err != nil {
		r.log.Warn("failed to publish event", logger.String("event_type", string(e.EventType())), logger.Err(err))
	}
}

func rejectionLabel(rej *tier.RoleRejection) string {
	if errors.Is(rej.Kind, shared.ErrHierarchyViolation) {
		return "hierarchy_violation"
	}
	return "unresolved_role"
}
