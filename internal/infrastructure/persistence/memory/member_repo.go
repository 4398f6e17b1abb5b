// Package memory provides an in-process progression.Repository used by
// STORE_DRIVER=memory and by application tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/xpbot/xpbot/internal/domain/leaderboard"
	"github.com/xpbot/xpbot/internal/domain/progression"
	"github.com/xpbot/xpbot/internal/domain/shared"
)

// MemberProgressRepository keeps records in a map keyed by MemberKey.
// Records are cloned on the way in and out.
type MemberProgressRepository struct {
	mu      sync.RWMutex
	records map[shared.MemberKey]*progression.MemberProgress

	// failPut, when set, is returned by Put (tests).
	failPut error
}

// NewMemberProgressRepository creates an empty store.
func NewMemberProgressRepository() *MemberProgressRepository {
	return &MemberProgressRepository{
		records: make(map[shared.MemberKey]*progression.MemberProgress),
	}
}

// Get implements progression.Repository.
func (r *MemberProgressRepository) Get(ctx context.Context, key shared.MemberKey) (*progression.MemberProgress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[key]
	if !ok {
		return nil, nil
	}
	return rec.Clone(), nil
}

// Put implements progression.Repository.
func (r *MemberProgressRepository) Put(ctx context.Context, progress *progression.MemberProgress) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := progress.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failPut != nil {
		return r.failPut
	}
	r.records[progress.Key()] = progress.Clone()
	return nil
}

// TopN implements progression.Repository.
func (r *MemberProgressRepository) TopN(ctx context.Context, guildID shared.GuildID, n int) ([]*progression.MemberProgress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	top := leaderboard.Top(r.guildEntries(guildID), n)
	out := make([]*progression.MemberProgress, 0, len(top))
	for _, e := range top {
		out = append(out, r.records[shared.MemberKey{GuildID: guildID, UserID: e.UserID}].Clone())
	}
	return out, nil
}

// Rank implements progression.Repository.
func (r *MemberProgressRepository) Rank(ctx context.Context, key shared.MemberKey) (shared.Rank, error) {
	if err := ctx.Err(); err != nil {
		return shared.Unranked, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return leaderboard.RankOf(r.guildEntries(key.GuildID), key.UserID), nil
}

// Count implements progression.Repository.
func (r *MemberProgressRepository) Count(ctx context.Context, guildID shared.GuildID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for k := range r.records {
		if k.GuildID == guildID {
			n++
		}
	}
	return n, nil
}

// ListOpenSessions implements progression.Repository.
func (r *MemberProgressRepository) ListOpenSessions(ctx context.Context) ([]shared.MemberKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]shared.MemberKey, 0)
	for k, rec := range r.records {
		if rec.InVoice() {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].GuildID != keys[j].GuildID {
			return keys[i].GuildID < keys[j].GuildID
		}
		return keys[i].UserID < keys[j].UserID
	})
	return keys, nil
}

// FailPuts makes every subsequent Put return err; nil restores normal writes.
func (r *MemberProgressRepository) FailPuts(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failPut = err
}

// guildEntries must be called with mu held.
func (r *MemberProgressRepository) guildEntries(guildID shared.GuildID) []*leaderboard.Entry {
	entries := make([]*leaderboard.Entry, 0)
	for k, rec := range r.records {
		if k.GuildID == guildID {
			entries = append(entries, leaderboard.FromProgress(rec))
		}
	}
	return entries
}
