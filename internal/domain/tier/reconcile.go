package tier

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/xpbot/xpbot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROLE DIFF
// ══════════════════════════════════════════════════════════════════════════════

// RoleDiff - минимальный набор изменений ролей, приводящий участника к целевому тиру.
type RoleDiff struct {
	// Target - целевой тир; nil, если участник не достиг ни одного тира.
	Target *Definition

	// ToAdd - роли к выдаче (не более одной).
	ToAdd []shared.RoleID

	// ToRemove - роли к снятию, по возрастанию ID.
	ToRemove []shared.RoleID
}

// IsEmpty возвращает true, если изменений нет.
func (d RoleDiff) IsEmpty() bool {
	return len(d.ToAdd) == 0 && len(d.ToRemove) == 0
}

// TargetName возвращает имя целевого тира или пустую строку.
func (d RoleDiff) TargetName() string {
	if d.Target == nil {
		return ""
	}
	return d.Target.Name
}

// ReconcileInput - входные данные сверки.
type ReconcileInput struct {
	// Held - тировые роли, которые сейчас есть у участника.
	Held []shared.RoleID

	// Eligible - тир, положенный участнику; nil, если порог не достигнут.
	Eligible *Definition

	// Ceiling - позиция самой высокой роли бота. Бот может выдавать
	// и снимать только роли строго ниже этой позиции.
	Ceiling int

	// Positions - позиции ролей в иерархии сообщества. Роль без позиции
	// считается неразрешённой.
	Positions map[shared.RoleID]int
}

// Reconcile вычисляет RoleDiff. Функция чистая: не выполняет I/O и
// не зависит от времени.
//
// Правила:
//   - тир не достигнут: снять все тировые роли;
//   - у участника ровно целевая роль: пустой diff;
//   - иначе снять остальные тировые роли и выдать целевую, если её нет.
//
// Проверка иерархии выполняется только для ролей, попавших в diff.
// Если хотя бы одна роль не разрешена или не ниже Ceiling, возвращается
// пустой diff и ошибка (*RoleRejection).
func Reconcile(in ReconcileInput) (RoleDiff, error) {
	held := make(map[shared.RoleID]struct{}, len(in.Held))
	for _, r := range in.Held {
		held[r] = struct{}{}
	}

	diff := RoleDiff{}
	if in.Eligible != nil {
		target := *in.Eligible
		diff.Target = &target
		if _, ok := held[target.RoleID]; !ok {
			diff.ToAdd = []shared.RoleID{target.RoleID}
		}
	}

	for r := range held {
		if diff.Target != nil && r == diff.Target.RoleID {
			continue
		}
		diff.ToRemove = append(diff.ToRemove, r)
	}
	sort.Slice(diff.ToRemove, func(i, j int) bool { return diff.ToRemove[i] < diff.ToRemove[j] })

	if diff.IsEmpty() {
		return diff, nil
	}

	for _, r := range append(append([]shared.RoleID{}, diff.ToAdd...), diff.ToRemove...) {
		pos, ok := in.Positions[r]
		if !ok {
			return RoleDiff{Target: diff.Target}, &RoleRejection{Kind: shared.ErrUnresolvedRole, RoleID: r, Ceiling: in.Ceiling}
		}
		if pos >= in.Ceiling {
			return RoleDiff{Target: diff.Target}, &RoleRejection{Kind: shared.ErrHierarchyViolation, RoleID: r, Position: pos, Ceiling: in.Ceiling}
		}
	}

	return diff, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// RoleRejection - отказ сверки из-за роли, которой бот не может управлять.
// Kind - shared.ErrHierarchyViolation или shared.ErrUnresolvedRole.
type RoleRejection struct {
	Kind     error
	RoleID   shared.RoleID
	Position int
	Ceiling  int
}

// Error implements error.
func (e *RoleRejection) Error() string {
	if errors.Is(e.Kind, shared.ErrHierarchyViolation) {
		return fmt.Sprintf("tier.Reconcile: role %s at position %d is not below ceiling %d: %v",
			e.RoleID, e.Position, e.Ceiling, e.Kind)
	}
	return fmt.Sprintf("tier.Reconcile: role %s: %v", e.RoleID, e.Kind)
}

// Unwrap returns the error kind.
func (e *RoleRejection) Unwrap() error {
	return e.Kind
}

// MutationOp - вид изменения роли.
type MutationOp string

const (
	OpAdd    MutationOp = "add"
	OpRemove MutationOp = "remove"
)

// RoleMutationFailure - неудачная попытка изменить одну роль.
type RoleMutationFailure struct {
	Op     MutationOp
	RoleID shared.RoleID
	Err    error
}

// PartialApplyFailure собирает ошибки применения diff по отдельным ролям.
// Успешно применённые изменения не откатываются.
type PartialApplyFailure struct {
	Failures []RoleMutationFailure
	Applied  int
}

// Error implements error.
func (e *PartialApplyFailure) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s %s: %v", f.Op, f.RoleID, f.Err))
	}
	return fmt.Sprintf("%v: %d applied, %d failed (%s)",
		shared.ErrPartialApply, e.Applied, len(e.Failures), strings.Join(parts, "; "))
}

// Is matches shared.ErrPartialApply.
func (e *PartialApplyFailure) Is(target error) bool {
	return target == shared.ErrPartialApply
}

// Unwrap returns every per-role error.
func (e *PartialApplyFailure) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// FailedRoles возвращает роли, которые не удалось изменить.
func (e *PartialApplyFailure) FailedRoles() []shared.RoleID {
	out := make([]shared.RoleID, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.RoleID)
	}
	return out
}
