package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	p, err := Load("testdata/kntu.yaml")
	require.NoError(t, err)

	c := p.Config()
	assert.Equal(t, "kntu", c.University.Code)
	assert.Equal(t, 10*time.Second, c.Timeout())
	assert.Equal(t, 640, c.MobileBreakpoint())
	assert.True(t, c.FallbackToCache())
	assert.True(t, c.IsFeatureEnabled("weekView"))
	assert.False(t, c.IsFeatureEnabled("darkMode"))
	assert.Len(t, c.Periods(), 5)
	assert.Equal(t, "Лек", c.ClassSchedule.LessonTypes["lecture"].ShortName)

	start, err := c.AcademicYearStart()
	require.NoError(t, err)
	assert.Equal(t, "2025-09-01", start.Format(DateLayout))
	assert.Equal(t, "Europe/Kiev", start.Location().String())

	s, ok := c.Strategy("faculties")
	require.True(t, ok)
	assert.Equal(t, "localStorage", s.Storage)
	assert.EqualValues(t, 86400000, s.DurationMillis)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("testdata/nope.yaml")
	require.Error(t, err)
}

func TestParse_RequiredSections(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		section string
	}{
		{
			name: "missing bell schedule",
			doc: `
schedule:
  academicYear:
    startDate: "2025-09-01"
`,
			section: "schedule.bellSchedule",
		},
		{
			name: "missing start date",
			doc: `
schedule:
  bellSchedule:
    - {number: 1, start: "08:30", end: "09:50"}
`,
			section: "schedule.academicYear.startDate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.ErrorIs(t, err, ErrConfigMissing)
			assert.Contains(t, err.Error(), tt.section)
		})
	}
}

func TestParse_Defaults(t *testing.T) {
	p, err := Parse([]byte(`
schedule:
  academicYear:
    startDate: "2025-09-01"
  bellSchedule:
    - {number: 1, start: "08:30", end: "09:50"}
`))
	require.NoError(t, err)

	c := p.Config()
	assert.Equal(t, DefaultTimeZone, c.TimeZone())
	assert.Equal(t, DefaultBaseURL, c.BaseURL())
	assert.Equal(t, time.Duration(0), c.Timeout())
	assert.Equal(t, DefaultMobileBreakpoint, c.MobileBreakpoint())
	assert.True(t, c.FallbackToCache())
	assert.Equal(t, c.Schedule.BellSchedule, c.Periods())

	_, ok := c.Strategy("faculties")
	assert.False(t, ok)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"bad yaml", "schedule: [unterminated"},
		{"bad start date", `
schedule:
  academicYear: {startDate: "01.09.2025"}
  bellSchedule: [{number: 1, start: "08:30", end: "09:50"}]
`},
		{"bad storage tier", `
schedule:
  academicYear: {startDate: "2025-09-01"}
  bellSchedule: [{number: 1, start: "08:30", end: "09:50"}]
caching:
  strategies:
    groups: {storage: cookie, duration: 1000}
`},
		{"prefix outside namespace", `
schedule:
  academicYear: {startDate: "2025-09-01"}
  bellSchedule: [{number: 1, start: "08:30", end: "09:50"}]
caching:
  strategies:
    groups: {prefix: groups_list, duration: 1000}
`},
		{"bad period", `
schedule:
  academicYear: {startDate: "2025-09-01"}
  bellSchedule: [{number: 1, start: "08:30", end: "09:50"}]
classSchedule:
  periods: [{number: 1, start: "8.30", end: "09:50"}]
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestFallbackToCache_Disabled(t *testing.T) {
	off := false
	c := &Config{ErrorHandling: ErrorHandling{FallbackToCache: &off}}
	assert.False(t, c.FallbackToCache())
}

func TestTimeStringToMinutes(t *testing.T) {
	m, err := TimeStringToMinutes("08:30")
	require.NoError(t, err)
	assert.Equal(t, 510, m)

	for _, bad := range []string{"", "8", "24:00", "10:60", "ab:cd"} {
		_, err := TimeStringToMinutes(bad)
		assert.Error(t, err, bad)
	}
}
