package command

import (
	"context"
	"errors"
	"sync"

	"github.com/xpbot/xpbot/internal/domain/shared"
	"github.com/xpbot/xpbot/internal/domain/tier"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

type staticTables map[shared.GuildID]*tier.Table

func (s staticTables) Table(guildID shared.GuildID) (*tier.Table, bool) {
	t, ok := s[guildID]
	return t, ok
}

type fakeDirectory struct {
	roles     map[shared.MemberKey][]shared.RoleID
	positions map[shared.RoleID]int
	ceiling   int
	err       error
}

func (d *fakeDirectory) MemberRoles(_ context.Context, key shared.MemberKey) ([]shared.RoleID, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.roles[key], nil
}

func (d *fakeDirectory) RolePositions(_ context.Context, _ shared.GuildID, roles []shared.RoleID) (map[shared.RoleID]int, error) {
	out := make(map[shared.RoleID]int)
	for _, r := range roles {
		if p, ok := d.positions[r]; ok {
			out[r] = p
		}
	}
	return out, nil
}

func (d *fakeDirectory) Ceiling(context.Context, shared.GuildID) (int, error) {
	return d.ceiling, nil
}

type mutation struct {
	op   tier.MutationOp
	role shared.RoleID
}

type fakeMutator struct {
	calls []mutation
	fail  map[shared.RoleID]bool
}

var errDiscord = errors.New("discord: 50013 missing permissions")

func (m *fakeMutator) AddRole(_ context.Context, _ shared.MemberKey, roleID shared.RoleID) error {
	m.calls = append(m.calls, mutation{tier.OpAdd, roleID})
	if m.fail[roleID] {
		return errDiscord
	}
	return nil
}

func (m *fakeMutator) RemoveRole(_ context.Context, _ shared.MemberKey, roleID shared.RoleID) error {
	m.calls = append(m.calls, mutation{tier.OpRemove, roleID})
	if m.fail[roleID] {
		return errDiscord
	}
	return nil
}
