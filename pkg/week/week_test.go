package week

import (
	"testing"
	"time"

	"kntu-schedule/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

func initialized(t *testing.T) *Calculator {
	t.Helper()
	c := New()
	c.Init(start)
	return c
}

func TestWeekNumber(t *testing.T) {
	c := initialized(t)

	tests := []struct {
		name string
		date time.Time
		want int
	}{
		{"start day", start, 1},
		{"one millisecond in", start.Add(time.Millisecond), 1},
		{"end of week one", start.Add(7 * 24 * time.Hour), 1},
		{"week two", start.Add(7*24*time.Hour + time.Hour), 2},
		{"week ten", start.AddDate(0, 0, 65), 10},
		{"400 days before", start.AddDate(0, 0, -400), 1},
		{"400 days after", start.AddDate(0, 0, 400), 52},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.WeekNumber(tt.date)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNotInitialized(t *testing.T) {
	c := New()

	_, err := c.WeekNumber(start)
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = c.Label(start)
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = c.Start()
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestParity(t *testing.T) {
	assert.Equal(t, Odd, ParityOf(1))
	assert.Equal(t, Even, ParityOf(2))
	assert.Equal(t, Even, ParityOf(52))
	assert.Equal(t, "парний", Even.Label())
	assert.Equal(t, "непарний", Odd.Label())
}

func TestLabel(t *testing.T) {
	c := initialized(t)

	label, err := c.Label(start.AddDate(0, 0, 10))
	require.NoError(t, err)
	assert.Equal(t, "т. 2 (парний)", label)

	label, err = c.Label(start)
	require.NoError(t, err)
	assert.Equal(t, "т. 1 (непарний)", label)
}

func TestCurrentWeekNumber(t *testing.T) {
	c := initialized(t)
	c.SetClock(func() time.Time { return start.AddDate(0, 0, 20) })

	n, err := c.CurrentWeekNumber()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestNewFromConfig(t *testing.T) {
	p, err := config.Load("../config/testdata/kntu.yaml")
	require.NoError(t, err)

	c, err := NewFromConfig(p)
	require.NoError(t, err)

	s, err := c.Start()
	require.NoError(t, err)
	assert.Equal(t, "2025-09-01", s.Format("2006-01-02"))

	_, err = NewFromConfig(nil)
	assert.ErrorIs(t, err, config.ErrConfigMissing)
}
