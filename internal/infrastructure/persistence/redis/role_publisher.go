package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/xpbot/xpbot/internal/domain/shared"
	"github.com/xpbot/xpbot/internal/domain/tier"
	"github.com/xpbot/xpbot/pkg/circuitbreaker"
	"github.com/xpbot/xpbot/pkg/logger"
	"github.com/xpbot/xpbot/pkg/ratelimit"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROLE COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// ErrNoRoleConsumer is returned when no gateway is listening for role commands.
var ErrNoRoleConsumer = errors.New("role_commands: no consumer subscribed")

// RoleCommand is one role mutation sent to the gateway.
type RoleCommand struct {
	ID       string          `json:"id"`
	Op       tier.MutationOp `json:"op"`
	GuildID  shared.GuildID  `json:"guild_id"`
	UserID   shared.UserID   `json:"user_id"`
	RoleID   shared.RoleID   `json:"role_id"`
	IssuedAt time.Time       `json:"issued_at"`
}

// RoleCommandPublisher implements tier.RoleMutator by publishing one command
// per role on ChannelRoleCommands. A command counts as applied once a
// consumer received it; the member's mirrored role set is updated then.
//
// Every publish goes through a circuit breaker, so a Redis outage fails
// mutations immediately instead of stalling each reconciliation. An optional
// limiter paces commands to the gateway's role endpoint budget.
type RoleCommandPublisher struct {
	cache   *Cache
	breaker *circuitbreaker.CircuitBreaker
	limiter *ratelimit.Limiter
	clock   clockwork.Clock
	log     *logger.Logger
}

var _ tier.RoleMutator = (*RoleCommandPublisher)(nil)

// NewRoleCommandPublisher creates a publisher. breaker and clock may be nil.
func NewRoleCommandPublisher(cache *Cache, breaker *circuitbreaker.CircuitBreaker, clock clockwork.Clock, log *logger.Logger) *RoleCommandPublisher {
	if breaker == nil {
		breaker = circuitbreaker.New("role_commands")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RoleCommandPublisher{
		cache:   cache,
		breaker: breaker,
		clock:   clock,
		log:     log.Named("role_commands"),
	}
}

// SetLimiter paces every following command through l. nil removes pacing.
func (p *RoleCommandPublisher) SetLimiter(l *ratelimit.Limiter) {
	p.limiter = l
}

// AddRole publishes an add command.
func (p *RoleCommandPublisher) AddRole(ctx context.Context, key shared.MemberKey, roleID shared.RoleID) error {
	return p.send(ctx, tier.OpAdd, key, roleID)
}

// RemoveRole publishes a remove command.
func (p *RoleCommandPublisher) RemoveRole(ctx context.Context, key shared.MemberKey, roleID shared.RoleID) error {
	return p.send(ctx, tier.OpRemove, key, roleID)
}

func (p *RoleCommandPublisher) send(ctx context.Context, op tier.MutationOp, key shared.MemberKey, roleID shared.RoleID) error {
	cmd := RoleCommand{
		ID:       uuid.NewString(),
		Op:       op,
		GuildID:  key.GuildID,
		UserID:   key.UserID,
		RoleID:   roleID,
		IssuedAt: p.clock.Now().UTC(),
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			if errors.Is(err, ratelimit.ErrWaitTimeout) {
				return fmt.Errorf("%w: %w", shared.ErrServiceUnavailable, err)
			}
			return err
		}
	}

	err := p.breaker.Execute(ctx, func(ctx context.Context) error {
		return p.publish(ctx, cmd)
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
		}
		return err
	}

	p.mirror(ctx, cmd)

	p.log.Debug("role command published",
		logger.String("command_id", cmd.ID),
		logger.String("op", string(op)),
		logger.GuildID(key.GuildID.Int64()),
		logger.UserID(key.UserID.Int64()),
		logger.RoleID(roleID.Int64()),
	)
	return nil
}

func (p *RoleCommandPublisher) publish(ctx context.Context, cmd RoleCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}

	receivers, err := p.cache.client.Publish(ctx, ChannelRoleCommands, data).Result()
	if err != nil {
		return fmt.Errorf("%w: publish role command: %v", shared.ErrExternalService, err)
	}
	if receivers == 0 {
		return ErrNoRoleConsumer
	}
	return nil
}

// mirror keeps the member role set in step with published commands until
// the gateway writes the authoritative set.
func (p *RoleCommandPublisher) mirror(ctx context.Context, cmd RoleCommand) {
	key := MemberRolesKey(shared.MemberKey{GuildID: cmd.GuildID, UserID: cmd.UserID})

	var err error
	switch cmd.Op {
	case tier.OpAdd:
		err = p.cache.client.SAdd(ctx, key, cmd.RoleID.String()).Err()
	case tier.OpRemove:
		err = p.cache.client.SRem(ctx, key, cmd.RoleID.String()).Err()
	}
	if err != nil {
		p.log.Warn("failed to mirror member roles",
			logger.String("command_id", cmd.ID),
			logger.Err(err),
		)
	}
}
