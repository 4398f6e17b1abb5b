// Package tier содержит доменную модель ролевых тиров: таблицу порогов
// по времени в голосе и чистую функцию сверки ролей участника.
package tier

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xpbot/xpbot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// TIER DEFINITION
// ══════════════════════════════════════════════════════════════════════════════

// Definition описывает один тир: роль выдаётся, когда суммарное время
// в голосе достигает MinMinutes.
type Definition struct {
	// Name - отображаемое имя тира.
	Name string

	// RoleID - роль, привязанная к тиру.
	RoleID shared.RoleID

	// MinMinutes - порог в минутах.
	MinMinutes int64
}

// MinSeconds возвращает порог в секундах.
func (d Definition) MinSeconds() int64 {
	return d.MinMinutes * 60
}

// Validate проверяет корректность определения.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return shared.ErrEmptyTierName
	}
	if !d.RoleID.IsValid() {
		return shared.ErrInvalidTierRole
	}
	if d.MinMinutes < 0 {
		return shared.ErrNegativeMinutes
	}
	return nil
}

// String возвращает "Name (N min)".
func (d Definition) String() string {
	return fmt.Sprintf("%s (%d min)", d.Name, d.MinMinutes)
}

// ══════════════════════════════════════════════════════════════════════════════
// TIER TABLE
// ══════════════════════════════════════════════════════════════════════════════

// Table - упорядоченная по возрастанию порога таблица тиров одного сообщества.
// Таблица неизменяема после создания.
type Table struct {
	guildID shared.GuildID
	tiers   []Definition
	roles   map[shared.RoleID]int // role -> index в tiers
}

// NewTable создаёт таблицу из определений. Порядок в конфигурации не важен:
// тиры сортируются по MinMinutes, при равных порогах сохраняется исходный порядок.
func NewTable(guildID shared.GuildID, defs []Definition) (*Table, error) {
	tiers := make([]Definition, 0, len(defs))
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		tiers = append(tiers, d)
	}

	sort.SliceStable(tiers, func(i, j int) bool {
		return tiers[i].MinMinutes < tiers[j].MinMinutes
	})

	roles := make(map[shared.RoleID]int, len(tiers))
	for i, d := range tiers {
		if _, dup := roles[d.RoleID]; dup {
			return nil, shared.WrapError("tier", "NewTable", shared.ErrConfig,
				fmt.Sprintf("role %s bound twice", d.RoleID), shared.ErrDuplicateRole)
		}
		roles[d.RoleID] = i
	}

	return &Table{guildID: guildID, tiers: tiers, roles: roles}, nil
}

// GuildID возвращает сообщество таблицы.
func (t *Table) GuildID() shared.GuildID {
	return t.guildID
}

// Len возвращает количество тиров.
func (t *Table) Len() int {
	return len(t.tiers)
}

// Tiers возвращает копию тиров по возрастанию порога.
func (t *Table) Tiers() []Definition {
	out := make([]Definition, len(t.tiers))
	copy(out, t.tiers)
	return out
}

// EligibleTier возвращает тир с наибольшим порогом, не превышающим
// totalVoiceSeconds. Если ни один тир не достигнут, возвращает false.
func (t *Table) EligibleTier(totalVoiceSeconds int64) (Definition, bool) {
	// первый тир, порог которого больше времени участника
	idx := sort.Search(len(t.tiers), func(i int) bool {
		return t.tiers[i].MinSeconds() > totalVoiceSeconds
	})
	if idx == 0 {
		return Definition{}, false
	}
	return t.tiers[idx-1], true
}

// IsTierRole проверяет, привязана ли роль к какому-либо тиру.
func (t *Table) IsTierRole(id shared.RoleID) bool {
	_, ok := t.roles[id]
	return ok
}

// ByRole возвращает тир по роли.
func (t *Table) ByRole(id shared.RoleID) (Definition, bool) {
	i, ok := t.roles[id]
	if !ok {
		return Definition{}, false
	}
	return t.tiers[i], true
}

// RoleIDs возвращает роли всех тиров по возрастанию порога.
func (t *Table) RoleIDs() []shared.RoleID {
	out := make([]shared.RoleID, len(t.tiers))
	for i, d := range t.tiers {
		out[i] = d.RoleID
	}
	return out
}

// FilterTierRoles оставляет из ролей участника только привязанные к тирам.
func (t *Table) FilterTierRoles(roles []shared.RoleID) []shared.RoleID {
	var out []shared.RoleID
	for _, r := range roles {
		if t.IsTierRole(r) {
			out = append(out, r)
		}
	}
	return out
}
