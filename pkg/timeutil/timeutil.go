// Package timeutil provides time and duration formatting helpers for voice
// statistics. All stored timestamps are UTC.
package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Now returns the current time in UTC.
func Now() time.Time {
	return time.Now().UTC()
}

// ToUTC converts a time to UTC.
func ToUTC(t time.Time) time.Time {
	return t.UTC()
}

// SecondsBetween returns whole seconds from start to end, negative when end precedes start.
func SecondsBetween(start, end time.Time) int64 {
	return int64(end.Sub(start) / time.Second)
}

// FormatVoiceTime renders voice time the way leaderboards show it:
// "1.5h" from one hour up, whole minutes ("25m") below that.
func FormatVoiceTime(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	hours := float64(seconds) / 3600
	if hours >= 1 {
		return strconv.FormatFloat(hours, 'f', 1, 64) + "h"
	}
	return fmt.Sprintf("%dm", seconds/60)
}

// FormatThousands renders n with comma separators: 15000 -> "15,000".
func FormatThousands(n int64) string {
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return sign + s
	}

	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
	}
	for i := pre; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return sign + b.String()
}

// FormatRelative returns a human-readable relative time string against now.
func FormatRelative(t, now time.Time) string {
	d := now.Sub(t)
	if d < 0 {
		return "in the future"
	}

	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%d min ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d h ago", int(d.Hours()))
	case d < 48*time.Hour:
		return "yesterday"
	default:
		return fmt.Sprintf("%d days ago", int(d.Hours()/24))
	}
}
