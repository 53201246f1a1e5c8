package schedule

import (
	"fmt"
	"strconv"
	"strings"

	"kntu-schedule/pkg/config"
)

// DayNames are the Ukrainian names of Monday to Friday.
var DayNames = [DaysPerWeek]string{"Понеділок", "Вівторок", "Середа", "Четвер", "П'ятниця"}

const noLessons = "Занять немає"

// Text renders data as plain text for copying or sharing. periods supplies
// slot times; slots without a matching period are printed without them.
func Text(data Data, periods []config.Period) string {
	switch d := data.(type) {
	case *Day:
		if d == nil {
			return ""
		}
		return dayText(d, periods)
	case *Week:
		if d == nil {
			return ""
		}
		return weekText(d, periods)
	default:
		return ""
	}
}

func dayText(d *Day, periods []config.Period) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📅 %s\n📆 %s\n\n", d.DisplayTitle, d.FormattedDate)

	for _, slot := range d.Schedule {
		fmt.Fprintf(&b, "%s. %s\n", slot.Number, slotTime(slot.Number, periods))
		fmt.Fprintf(&b, "   📚 %s\n", slot.Lesson.Title)
		fmt.Fprintf(&b, "   📝 %s\n", slot.Lesson.Type)
		if slot.Lesson.InstructorName != "" {
			fmt.Fprintf(&b, "   👨‍🏫 %s\n", slot.Lesson.InstructorName)
		}
		if slot.Lesson.Room != "" {
			fmt.Fprintf(&b, "   📍 %s\n", slot.Lesson.Room)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func weekText(w *Week, periods []config.Period) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📅 %s\n📆 Тижневий розклад\n\n", w.Settings.DisplayName)

	for i, day := range w.Schedules {
		fmt.Fprintf(&b, "=== %s ===\n", DayNames[i])
		if !day.HasScheduleData() {
			b.WriteString(noLessons + "\n")
		} else {
			for _, slot := range day.Schedule {
				fmt.Fprintf(&b, "%s. %s - %s (%s)\n",
					slot.Number, slotTime(slot.Number, periods), slot.Lesson.Title, slot.Lesson.Type)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// slotTime returns "start-end" of the period numbered like the slot.
func slotTime(number string, periods []config.Period) string {
	n, err := strconv.Atoi(number)
	if err != nil {
		return ""
	}
	for _, p := range periods {
		if p.Number == n {
			return p.Start + "-" + p.End
		}
	}
	return ""
}
