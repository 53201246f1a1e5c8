// Package week derives the academic week number and its parity from the
// start of the academic year.
package week

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"kntu-schedule/pkg/config"
)

// Week numbers are clamped to this range.
const (
	MinWeek = 1
	MaxWeek = 52
)

const weekDuration = 7 * 24 * time.Hour

// ErrNotInitialized is returned when the calculator is used before Init.
var ErrNotInitialized = errors.New("week: calculator not initialized")

// Parity is the even/odd alternation of teaching weeks.
type Parity string

const (
	Even Parity = "even"
	Odd  Parity = "odd"
)

// Label is the Ukrainian name of the parity.
func (p Parity) Label() string {
	if p == Even {
		return "парний"
	}
	return "непарний"
}

// ParityOf returns the parity of week n.
func ParityOf(n int) Parity {
	if n%2 == 0 {
		return Even
	}
	return Odd
}

// Calculator computes week numbers. The zero value is uninitialized.
type Calculator struct {
	mu    sync.RWMutex
	start time.Time
	set   bool
	now   func() time.Time
}

// New creates an uninitialized calculator.
func New() *Calculator {
	return &Calculator{now: time.Now}
}

// NewFromConfig creates a calculator initialized with
// schedule.academicYear.startDate. A missing start date is
// config.ErrConfigMissing.
func NewFromConfig(p config.Provider) (*Calculator, error) {
	if p == nil || p.Config() == nil {
		return nil, fmt.Errorf("%w: schedule.academicYear.startDate", config.ErrConfigMissing)
	}
	start, err := p.Config().AcademicYearStart()
	if err != nil {
		return nil, err
	}
	c := New()
	c.Init(start)
	return c, nil
}

// Init sets the start of week 1.
func (c *Calculator) Init(start time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.start = start
	c.set = true
}

// SetClock replaces time.Now, for tests.
func (c *Calculator) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = now
}

// Start returns the configured start date.
func (c *Calculator) Start() (time.Time, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.set {
		return time.Time{}, ErrNotInitialized
	}
	return c.start, nil
}

// WeekNumber returns ceil((date - start) / 7 days) clamped to [1, 52].
func (c *Calculator) WeekNumber(date time.Time) (int, error) {
	start, err := c.Start()
	if err != nil {
		return 0, err
	}

	elapsed := date.Sub(start)
	n := int(math.Ceil(float64(elapsed) / float64(weekDuration)))

	switch {
	case n < MinWeek:
		return MinWeek, nil
	case n > MaxWeek:
		return MaxWeek, nil
	default:
		return n, nil
	}
}

// CurrentWeekNumber returns the week number of the current time.
func (c *Calculator) CurrentWeekNumber() (int, error) {
	c.mu.RLock()
	now := c.now
	c.mu.RUnlock()

	if now == nil {
		now = time.Now
	}
	return c.WeekNumber(now())
}

// Label formats the week of date as "т. N (парний|непарний)".
func (c *Calculator) Label(date time.Time) (string, error) {
	n, err := c.WeekNumber(date)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("т. %d (%s)", n, ParityOf(n).Label()), nil
}
