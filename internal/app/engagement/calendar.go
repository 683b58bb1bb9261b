package engagement

import (
	"fmt"
	"strings"
	"time"
)

// DefaultUTCOffset is the canonical day boundary used when none is configured.
const DefaultUTCOffset = 7 * time.Hour

// Calendar buckets instants into days and weeks in one fixed timezone.
// Streaks, time-of-day achievements, challenge windows and the commit
// calendar all share the same Calendar.
type Calendar struct {
	loc *time.Location
}

// NewCalendar returns a calendar for a fixed offset from UTC.
func NewCalendar(offset time.Duration) Calendar {
	return Calendar{loc: time.FixedZone(FormatUTCOffset(offset), int(offset/time.Second))}
}

// maxUTCOffset bounds configured offsets to the real-world range.
const maxUTCOffset = 14 * time.Hour

// ParseUTCOffset parses "+07:00", "-05:30" or "Z" into a duration. An
// empty string is UTC.
func ParseUTCOffset(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	t, err := time.Parse("Z07:00", s)
	if err != nil {
		return 0, fmt.Errorf("invalid utc offset %q: want ±HH:MM", s)
	}
	_, secs := t.Zone()
	d := time.Duration(secs) * time.Second
	if d > maxUTCOffset || d < -maxUTCOffset {
		return 0, fmt.Errorf("utc offset %q out of range", s)
	}
	return d, nil
}

// FormatUTCOffset renders an offset as "UTC+07:00".
func FormatUTCOffset(offset time.Duration) string {
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	h := int(offset / time.Hour)
	m := int((offset % time.Hour) / time.Minute)
	return fmt.Sprintf("UTC%c%02d:%02d", sign, h, m)
}

// Location returns the calendar's timezone.
func (c Calendar) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// Day returns midnight of the day containing t.
func (c Calendar) Day(t time.Time) time.Time {
	lt := t.In(c.Location())
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, c.Location())
}

// DayKey returns t's day as "2006-01-02".
func (c Calendar) DayKey(t time.Time) string {
	return t.In(c.Location()).Format("2006-01-02")
}

// dayNumber is the count of whole days since 1970-01-01 for t's local date.
func (c Calendar) dayNumber(t time.Time) int64 {
	lt := t.In(c.Location())
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, time.UTC).Unix() / 86400
}

// Hour returns the local hour of t (0-23).
func (c Calendar) Hour(t time.Time) int {
	return t.In(c.Location()).Hour()
}

// Weekday returns the local weekday of t.
func (c Calendar) Weekday(t time.Time) time.Weekday {
	return t.In(c.Location()).Weekday()
}

// DailyWindow returns [midnight today, midnight tomorrow).
func (c Calendar) DailyWindow(now time.Time) (time.Time, time.Time) {
	start := c.Day(now)
	return start, start.AddDate(0, 0, 1)
}

// WeeklyWindow returns [Sunday midnight, following Sunday midnight).
func (c Calendar) WeeklyWindow(now time.Time) (time.Time, time.Time) {
	day := c.Day(now)
	start := day.AddDate(0, 0, -int(day.Weekday()))
	return start, start.AddDate(0, 0, 7)
}
