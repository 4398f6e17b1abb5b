package progression

import (
	"github.com/xpbot/xpbot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION CALCULATOR
// ══════════════════════════════════════════════════════════════════════════════

// XPNeededFor возвращает количество XP, необходимое для перехода
// с уровня level-1 на уровень level.
func XPNeededFor(level int) int64 {
	l := int64(level)
	return 5*l*l + 50*l + 100
}

// CumulativeXPFor возвращает суммарный XP, необходимый чтобы достичь уровня level с нуля.
func CumulativeXPFor(level int) int64 {
	var total int64
	for l := 1; l <= level; l++ {
		total += XPNeededFor(l)
	}
	return total
}

// Advancement - результат применения начисления XP.
type Advancement struct {
	// Level - уровень после начисления.
	Level int

	// XPIntoLevel - XP внутри текущего уровня.
	XPIntoLevel int64

	// LevelsCrossed - пройденные уровни по возрастанию (пусто, если уровень не изменился).
	LevelsCrossed []int
}

// LeveledUp возвращает true, если был пройден хотя бы один уровень.
func (a Advancement) LeveledUp() bool {
	return len(a.LevelsCrossed) > 0
}

// Advance применяет начисление delta к позиции (level, xpIntoLevel).
// Излишек переносится на следующие уровни, пока хватает XP.
// Функция чистая и детерминированная.
func Advance(level int, xpIntoLevel, delta int64) (Advancement, error) {
	if level < 0 {
		return Advancement{}, shared.ErrNegativeLevel
	}
	if xpIntoLevel < 0 || delta < 0 {
		return Advancement{}, shared.ErrNegativeXP
	}

	xp := xpIntoLevel + delta
	var crossed []int
	for {
		need := XPNeededFor(level + 1)
		if xp < need {
			break
		}
		xp -= need
		level++
		crossed = append(crossed, level)
	}

	return Advancement{
		Level:         level,
		XPIntoLevel:   xp,
		LevelsCrossed: crossed,
	}, nil
}

// FromTotalXP вычисляет позицию (уровень, XP внутри уровня) из суммарного XP.
func FromTotalXP(totalXP int64) (Advancement, error) {
	return Advance(0, 0, totalXP)
}

// ──────────────────────────────────────────────────────────────────────────────
// Progression table
// ──────────────────────────────────────────────────────────────────────────────

// TableRow - строка таблицы прогрессии.
type TableRow struct {
	Level        int
	XPToReach    int64
	TotalXP      int64
	HoursInVoice float64
}

// Table строит таблицу прогрессии для уровней 1..maxLevel при заданной ставке XP в минуту.
func Table(maxLevel int, xpPerMinute int64) []TableRow {
	if maxLevel <= 0 || xpPerMinute <= 0 {
		return nil
	}
	rows := make([]TableRow, 0, maxLevel)
	var total int64
	for l := 1; l <= maxLevel; l++ {
		need := XPNeededFor(l)
		total += need
		rows = append(rows, TableRow{
			Level:        l,
			XPToReach:    need,
			TotalXP:      total,
			HoursInVoice: float64(total) / float64(xpPerMinute) / 60,
		})
	}
	return rows
}
