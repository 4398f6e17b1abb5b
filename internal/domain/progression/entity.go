package progression

import (
	"fmt"
	"time"

	"github.com/xpbot/xpbot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONSTANTS
// ══════════════════════════════════════════════════════════════════════════════

// DefaultXPPerMinute - ставка начисления XP за минуту в голосовом канале.
const DefaultXPPerMinute int64 = 6

// XPForSeconds переводит секунды в голосе в XP: floor(seconds·rate/60).
func XPForSeconds(seconds, xpPerMinute int64) int64 {
	if seconds <= 0 || xpPerMinute <= 0 {
		return 0
	}
	return seconds * xpPerMinute / 60
}

// ══════════════════════════════════════════════════════════════════════════════
// MEMBER PROGRESS ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// MemberProgress - запись прогресса участника в рамках одного сообщества.
// Ключ записи - пара (GuildID, UserID).
type MemberProgress struct {
	// GuildID - сообщество.
	GuildID shared.GuildID

	// UserID - участник.
	UserID shared.UserID

	// TotalXP - суммарный XP за всё время.
	TotalXP int64

	// Level - текущий уровень (начинается с 0).
	Level int

	// XPIntoLevel - XP, накопленный внутри текущего уровня.
	XPIntoLevel int64

	// TotalVoiceSeconds - суммарное время в голосовых каналах.
	TotalVoiceSeconds int64

	// LastVoiceJoin - начало открытой сессии; nil, если участник не в голосе.
	LastVoiceJoin *time.Time

	// UpdatedAt - время последнего изменения.
	UpdatedAt time.Time
}

// NewMemberProgress создаёт пустую запись прогресса.
func NewMemberProgress(key shared.MemberKey, now time.Time) (*MemberProgress, error) {
	if !key.IsValid() {
		return nil, shared.ErrInvalidMember
	}
	return &MemberProgress{
		GuildID:   key.GuildID,
		UserID:    key.UserID,
		UpdatedAt: now,
	}, nil
}

// Key возвращает составной ключ записи.
func (m *MemberProgress) Key() shared.MemberKey {
	return shared.MemberKey{GuildID: m.GuildID, UserID: m.UserID}
}

// InVoice возвращает true, если у участника открыта голосовая сессия.
func (m *MemberProgress) InVoice() bool {
	return m.LastVoiceJoin != nil
}

// VoiceMinutes возвращает суммарное время в голосе в полных минутах.
func (m *MemberProgress) VoiceMinutes() int64 {
	return m.TotalVoiceSeconds / 60
}

// VoiceHours возвращает суммарное время в голосе в часах.
func (m *MemberProgress) VoiceHours() float64 {
	return float64(m.TotalVoiceSeconds) / 3600
}

// XPToNextLevel возвращает, сколько XP осталось до следующего уровня.
func (m *MemberProgress) XPToNextLevel() int64 {
	return XPNeededFor(m.Level+1) - m.XPIntoLevel
}

// Clone возвращает глубокую копию записи.
func (m *MemberProgress) Clone() *MemberProgress {
	c := *m
	if m.LastVoiceJoin != nil {
		t := *m.LastVoiceJoin
		c.LastVoiceJoin = &t
	}
	return &c
}

// Validate проверяет инварианты записи.
func (m *MemberProgress) Validate() error {
	if !m.Key().IsValid() {
		return shared.ErrInvalidMember
	}
	if m.TotalXP < 0 || m.XPIntoLevel < 0 || m.TotalVoiceSeconds < 0 || m.Level < 0 {
		return shared.NewDomainError("progression", "Validate", shared.ErrNegativeValue,
			fmt.Sprintf("negative counters for %s", m.Key()))
	}
	if m.XPIntoLevel >= XPNeededFor(m.Level+1) {
		return shared.NewDomainError("progression", "Validate", shared.ErrInvalidState,
			fmt.Sprintf("xp_into_level %d does not fit level %d", m.XPIntoLevel, m.Level))
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Voice sessions
// ──────────────────────────────────────────────────────────────────────────────

// SessionCredit - результат зачёта времени открытой сессии.
type SessionCredit struct {
	// Seconds - зачтённые секунды.
	Seconds int64

	// XP - начисленный XP.
	XP int64

	// JoinedAt - начало зачтённого интервала.
	JoinedAt time.Time

	// Anomaly - время события раньше начала сессии; интервал обнулён.
	Anomaly bool

	// PreviousLevel - уровень до начисления.
	PreviousLevel int

	// LevelsCrossed - пройденные уровни по возрастанию.
	LevelsCrossed []int
}

// OpenSession открывает голосовую сессию. Повторный вызов при открытой
// сессии ничего не меняет и возвращает false.
func (m *MemberProgress) OpenSession(at time.Time) bool {
	if m.LastVoiceJoin != nil {
		return false
	}
	t := at
	m.LastVoiceJoin = &t
	m.UpdatedAt = at
	return true
}

// CreditSession зачитывает время открытой сессии до момента at.
//
// При keepOpen=false сессия закрывается (выход из канала). При keepOpen=true
// начало сессии сдвигается на зачтённое количество целых секунд (промежуточный тик),
// так что время не теряется и не засчитывается дважды.
//
// XP считается от накопленного времени: XPForSeconds(total+credited) -
// XPForSeconds(total). Дробный остаток XP переходит в следующий зачёт.
//
// Если at раньше начала сессии, интервал считается нулевым, а в результате
// выставляется Anomaly. Для тика начало сессии при этом не сдвигается.
func (m *MemberProgress) CreditSession(at time.Time, keepOpen bool, xpPerMinute int64) (SessionCredit, bool, error) {
	if m.LastVoiceJoin == nil {
		return SessionCredit{}, false, nil
	}

	joined := *m.LastVoiceJoin
	credit := SessionCredit{JoinedAt: joined, PreviousLevel: m.Level}

	elapsed := at.Sub(joined)
	if elapsed < 0 {
		credit.Anomaly = true
		elapsed = 0
	}
	credit.Seconds = int64(elapsed / time.Second)
	credit.XP = XPForSeconds(m.TotalVoiceSeconds+credit.Seconds, xpPerMinute) -
		XPForSeconds(m.TotalVoiceSeconds, xpPerMinute)

	adv, err := Advance(m.Level, m.XPIntoLevel, credit.XP)
	if err != nil {
		return SessionCredit{}, false, err
	}
	credit.LevelsCrossed = adv.LevelsCrossed

	m.TotalVoiceSeconds += credit.Seconds
	m.TotalXP += credit.XP
	m.Level = adv.Level
	m.XPIntoLevel = adv.XPIntoLevel
	if at.After(m.UpdatedAt) {
		m.UpdatedAt = at
	}

	if keepOpen {
		next := joined.Add(time.Duration(credit.Seconds) * time.Second)
		m.LastVoiceJoin = &next
	} else {
		m.LastVoiceJoin = nil
	}

	return credit, true, nil
}
