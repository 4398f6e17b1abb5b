package tier

import (
	"context"

	"github.com/xpbot/xpbot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// ══════════════════════════════════════════════════════════════════════════════

// TableSource отдаёт актуальную таблицу тиров сообщества.
type TableSource interface {
	// Table возвращает таблицу или false, если сообщество не настроено.
	Table(guildID shared.GuildID) (*Table, bool)
}

// RoleDirectory - источник сведений о ролях сообщества (иерархия и роли участников).
type RoleDirectory interface {
	// MemberRoles возвращает все роли участника.
	MemberRoles(ctx context.Context, key shared.MemberKey) ([]shared.RoleID, error)

	// RolePositions возвращает позиции указанных ролей. Роли, которых нет
	// в сообществе, в результат не попадают.
	RolePositions(ctx context.Context, guildID shared.GuildID, roles []shared.RoleID) (map[shared.RoleID]int, error)

	// Ceiling возвращает позицию самой высокой роли бота в сообществе.
	Ceiling(ctx context.Context, guildID shared.GuildID) (int, error)
}

// RoleMutator выполняет изменение одной роли участника.
// Каждый вызов независим: ошибка одного не влияет на остальные.
type RoleMutator interface {
	AddRole(ctx context.Context, key shared.MemberKey, roleID shared.RoleID) error
	RemoveRole(ctx context.Context, key shared.MemberKey, roleID shared.RoleID) error
}
