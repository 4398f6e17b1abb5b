package tierconfig

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/xpbot/xpbot/internal/domain/shared"
	"github.com/xpbot/xpbot/internal/domain/tier"
	"github.com/xpbot/xpbot/pkg/logger"
)

// Registry holds the active tier tables. Reload swaps the whole set at once,
// so readers never observe a partially loaded configuration.
type Registry struct {
	path     string
	log      *logger.Logger
	tables   atomic.Pointer[Tables]
	loadedAt atomic.Pointer[time.Time]
}

// NewRegistry creates a registry backed by the file at path. It performs the
// initial load and fails if the file cannot be read or parsed.
func NewRegistry(path string, log *logger.Logger) (*Registry, error) {
	if log == nil {
		log = logger.Nop()
	}
	r := &Registry{path: path, log: log.With(logger.Component("tierconfig"))}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// NewStaticRegistry wraps already built tables.
func NewStaticRegistry(tables Tables) *Registry {
	r := &Registry{log: logger.Nop()}
	r.Swap(tables)
	return r
}

// Reload re-reads the file. On failure the previous tables stay active.
func (r *Registry) Reload() error {
	tables, err := LoadFile(r.path, r.log)
	if err != nil {
		r.log.Error("tier config reload failed, keeping previous tables", logger.Err(err))
		return err
	}
	r.Swap(tables)
	r.log.Info("tier config loaded", logger.Int("guilds", len(tables)))
	return nil
}

// Swap atomically replaces the active tables.
func (r *Registry) Swap(tables Tables) {
	if tables == nil {
		tables = Tables{}
	}
	now := time.Now()
	r.tables.Store(&tables)
	r.loadedAt.Store(&now)
}

// Table implements tier.TableSource.
func (r *Registry) Table(guildID shared.GuildID) (*tier.Table, bool) {
	p := r.tables.Load()
	if p == nil {
		return nil, false
	}
	t, ok := (*p)[guildID]
	return t, ok
}

// Guilds returns the configured guild IDs in ascending order.
func (r *Registry) Guilds() []shared.GuildID {
	p := r.tables.Load()
	if p == nil {
		return nil
	}
	ids := make([]shared.GuildID, 0, len(*p))
	for id := range *p {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// LoadedAt returns when the active tables were installed.
func (r *Registry) LoadedAt() time.Time {
	if p := r.loadedAt.Load(); p != nil {
		return *p
	}
	return time.Time{}
}

var _ tier.TableSource = (*Registry)(nil)
