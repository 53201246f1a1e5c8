// Package schedule is the domain façade over the request orchestrator: day
// and week schedules for a group or an instructor, user settings, and the
// plain-text and JSON renderings of loaded schedules.
package schedule

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// View is a display mode.
type View string

const (
	DayView  View = "day"
	WeekView View = "week"
)

// ParseView validates a view name.
func ParseView(s string) (View, error) {
	switch View(s) {
	case DayView, WeekView:
		return View(s), nil
	default:
		return "", fmt.Errorf("unknown view %q", s)
	}
}

// DaysPerWeek is the number of teaching days, Monday to Friday.
const DaysPerWeek = 5

// Data is a loaded schedule: a *Day or a *Week.
type Data interface {
	HasScheduleData() bool
	View() View
}

// TypeInfo is display metadata of a lesson type.
type TypeInfo struct {
	Color     string `json:"color,omitempty"`
	Icon      string `json:"icon,omitempty"`
	ShortName string `json:"shortName,omitempty"`
}

// Lesson is one class in a slot.
type Lesson struct {
	Title          string     `json:"title"`
	Type           string     `json:"type"`
	TypeInfo       *TypeInfo  `json:"typeInfo,omitempty"`
	InstructorName FlexString `json:"instructorName,omitempty"`
	Group          FlexString `json:"group,omitempty"`
	Room           FlexString `json:"room,omitempty"`
	Weeks          FlexString `json:"weeks,omitempty"`
	EvenOrOdd      FlexString `json:"evenOrOdd,omitempty"`
}

// Slot pairs a lesson with its slot number.
type Slot struct {
	Number string
	Lesson Lesson
}

// Lessons maps slot numbers to lessons in the order they were received.
// It is encoded as a JSON object whose key order is preserved.
type Lessons []Slot

// Get returns the lesson in slot number.
func (l Lessons) Get(number string) (Lesson, bool) {
	for _, s := range l {
		if s.Number == number {
			return s.Lesson, true
		}
	}
	return Lesson{}, false
}

// MarshalJSON encodes the slots as an object in slot order.
func (l Lessons) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, s := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(s.Number)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(s.Lesson)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object keeping key order. An array is accepted
// too, numbered from 0; null decodes to no lessons.
func (l *Lessons) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case bytes.Equal(trimmed, []byte("null")):
		*l = nil
		return nil
	case len(trimmed) > 0 && trimmed[0] == '[':
		var arr []Lesson
		if err := json.Unmarshal(trimmed, &arr); err != nil {
			return err
		}
		out := make(Lessons, 0, len(arr))
		for i, lesson := range arr {
			out = append(out, Slot{Number: strconv.Itoa(i), Lesson: lesson})
		}
		*l = out
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("schedule: lessons must be an object")
	}

	var out Lessons
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("schedule: unexpected token %v", tok)
		}
		var lesson Lesson
		if err := dec.Decode(&lesson); err != nil {
			return fmt.Errorf("schedule: slot %s: %w", key, err)
		}
		out = append(out, Slot{Number: key, Lesson: lesson})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*l = out
	return nil
}

// FlexString decodes any JSON scalar into a string: upstream payloads
// send rooms and week lists both as numbers and as strings.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*f = ""
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	*f = FlexString(trimmed)
	return nil
}

// String returns the value.
func (f FlexString) String() string {
	return string(f)
}

// Day is the schedule of one date.
type Day struct {
	Date          string  `json:"date"`
	DisplayTitle  string  `json:"displayTitle"`
	FormattedDate string  `json:"formattedDate"`
	Schedule      Lessons `json:"schedule"`
}

// HasScheduleData reports whether the day has any lesson.
func (d *Day) HasScheduleData() bool {
	return d != nil && len(d.Schedule) > 0
}

// View implements Data.
func (d *Day) View() View { return DayView }

// Week is Monday to Friday. A nil slot is a day that failed to load.
type Week struct {
	StartDate      string            `json:"startDate"`
	EndDate        string            `json:"endDate"`
	Settings       Settings          `json:"settings"`
	SuccessfulDays int               `json:"successfulDays"`
	Schedules      [DaysPerWeek]*Day `json:"schedules"`
}

// HasScheduleData reports whether any loaded day has a lesson.
func (w *Week) HasScheduleData() bool {
	if w == nil {
		return false
	}
	for _, d := range w.Schedules {
		if d.HasScheduleData() {
			return true
		}
	}
	return false
}

// View implements Data.
func (w *Week) View() View { return WeekView }

// Complete reports whether every day loaded.
func (w *Week) Complete() bool {
	return w.SuccessfulDays == DaysPerWeek
}

// HasScheduleData is the emptiness predicate of a loaded schedule; nil is
// empty.
func HasScheduleData(data Data) bool {
	if data == nil {
		return false
	}
	return data.HasScheduleData()
}
