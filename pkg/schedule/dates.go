package schedule

import (
	"time"

	"kntu-schedule/pkg/config"
)

// FormatDate formats t as YYYY-MM-DD in its own location.
func FormatDate(t time.Time) string {
	return t.Format(config.DateLayout)
}

// ParseDate parses YYYY-MM-DD as midnight in loc (UTC when nil).
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(config.DateLayout, s, loc)
}

// Monday returns midnight of the Monday of t's ISO week.
func Monday(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.Date()
	return time.Date(y, m, d-offset, 0, 0, 0, 0, t.Location())
}

// weekDays returns Monday..Friday of t's week.
func weekDays(t time.Time) [DaysPerWeek]time.Time {
	var days [DaysPerWeek]time.Time
	monday := Monday(t)
	for i := range days {
		days[i] = monday.AddDate(0, 0, i)
	}
	return days
}
