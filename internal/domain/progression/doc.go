// Package progression содержит доменную модель голосового прогресса участника.
//
// Пакет определяет:
//
//   - Калькулятор прогрессии: XPNeededFor, Advance, CumulativeXPFor, Table
//   - Сущность MemberProgress: XP, уровень, суммарное время в голосе, открытая сессия
//   - Интерфейс хранилища Repository
//
// # Формула
//
// Для перехода с уровня L-1 на уровень L требуется
//
//	xpNeededFor(L) = 5·L² + 50·L + 100
//
// Уровень начинается с 0. При начислении XP излишек переносится на следующий
// уровень, поэтому одно начисление может поднять участника сразу на несколько
// уровней:
//
//	adv, err := progression.Advance(0, 0, 375)
//	// adv.Level == 2, adv.XPIntoLevel == 0, adv.LevelsCrossed == [1 2]
//
// # Инварианты
//
//  1. 0 ≤ XPIntoLevel < XPNeededFor(Level+1)
//  2. TotalXP и TotalVoiceSeconds никогда не уменьшаются
//  3. Level никогда не уменьшается
//
// Пакет не имеет внешних зависимостей.
package progression
