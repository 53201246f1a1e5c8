// Package config loads the per-institution configuration document and hands
// it to the rest of the module through the Provider interface.
//
// The document is YAML. Two sections are required: schedule.bellSchedule and
// schedule.academicYear.startDate. Everything else has a default.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"kntu-schedule/pkg/storage"

	"go.yaml.in/yaml/v2"
)

var (
	// ErrConfigMissing is returned when a required section is absent.
	// It is fatal and never retried.
	ErrConfigMissing = errors.New("config: required section missing")

	// ErrInvalid is returned when a present section cannot be interpreted.
	ErrInvalid = errors.New("config: invalid value")
)

// KeyPrefix starts every cache key, including configured strategy prefixes.
const KeyPrefix = "kntu_"

// Defaults applied when optional sections are absent.
const (
	DefaultTimeZone         = "Europe/Kiev"
	DefaultBaseURL          = "/api/proxy"
	DefaultMobileBreakpoint = 768
	DateLayout              = "2006-01-02"
)

// Provider gives read access to the configuration resolved at startup.
type Provider interface {
	Config() *Config
}

// Config is the configuration document.
type Config struct {
	University    University      `yaml:"university"`
	Schedule      Schedule        `yaml:"schedule"`
	API           API             `yaml:"api"`
	Caching       Caching         `yaml:"caching"`
	ClassSchedule ClassSchedule   `yaml:"classSchedule"`
	UI            UI              `yaml:"ui"`
	ErrorHandling ErrorHandling   `yaml:"errorHandling"`
	Features      map[string]bool `yaml:"features"`
}

// University identifies the institution.
type University struct {
	Name     string `yaml:"name"`
	Code     string `yaml:"code"`
	TimeZone string `yaml:"timeZone"`
}

// Schedule holds the bell schedule and the academic calendar.
type Schedule struct {
	BellSchedule []Period     `yaml:"bellSchedule"`
	AcademicYear AcademicYear `yaml:"academicYear"`
}

// AcademicYear marks when week 1 begins.
type AcademicYear struct {
	StartDate string `yaml:"startDate"`
}

// Period is one lesson slot with wall-clock bounds ("08:30").
type Period struct {
	Number int    `yaml:"number" json:"number"`
	Start  string `yaml:"start" json:"start"`
	End    string `yaml:"end" json:"end"`
}

// API configures the relay client.
type API struct {
	BaseURL   string            `yaml:"baseUrl"`
	Endpoints map[string]string `yaml:"endpoints"`
	// TimeoutMillis bounds each relay call. Zero means no timeout.
	TimeoutMillis int64 `yaml:"timeout"`
}

// Caching maps data types to storage strategies.
type Caching struct {
	Strategies map[string]Strategy `yaml:"strategies"`
}

// Strategy is the raw per-data-type caching policy.
type Strategy struct {
	Storage string `yaml:"storage"`
	// DurationMillis is the entry TTL.
	DurationMillis int64  `yaml:"duration"`
	Prefix         string `yaml:"prefix"`
}

// ClassSchedule describes lesson periods and lesson types.
type ClassSchedule struct {
	Periods     []Period              `yaml:"periods"`
	LessonTypes map[string]LessonType `yaml:"lessonTypes"`
}

// LessonType is display metadata for a kind of lesson.
type LessonType struct {
	Name      string `yaml:"name" json:"name"`
	ShortName string `yaml:"shortName" json:"shortName"`
	Color     string `yaml:"color" json:"color"`
	Icon      string `yaml:"icon" json:"icon"`
}

// UI holds presentation settings.
type UI struct {
	Responsive struct {
		MobileBreakpoint int `yaml:"mobileBreakpoint"`
	} `yaml:"responsive"`
}

// ErrorHandling tunes failure behavior.
type ErrorHandling struct {
	FallbackToCache *bool `yaml:"fallbackToCache"`
	ShowDetails     bool  `yaml:"showDetails"`
}

// Static is a Provider over a configuration fixed at construction.
type Static struct {
	config *Config
}

// NewStatic validates c and wraps it in a Provider.
func NewStatic(c *Config) (*Static, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &Static{config: c}, nil
}

// Config implements Provider.
func (s *Static) Config() *Config {
	return s.config
}

// Load reads and validates the document at path.
func Load(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML document.
func Parse(data []byte) (*Static, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return NewStatic(&c)
}

// Validate checks required sections and the shape of optional ones.
func (c *Config) Validate() error {
	if len(c.Schedule.BellSchedule) == 0 {
		return fmt.Errorf("%w: schedule.bellSchedule", ErrConfigMissing)
	}
	if c.Schedule.AcademicYear.StartDate == "" {
		return fmt.Errorf("%w: schedule.academicYear.startDate", ErrConfigMissing)
	}
	if _, err := c.AcademicYearStart(); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.TimeZone()); err != nil {
		return fmt.Errorf("%w: university.timeZone: %v", ErrInvalid, err)
	}
	if c.API.TimeoutMillis < 0 {
		return fmt.Errorf("%w: api.timeout must not be negative", ErrInvalid)
	}

	for dataType, s := range c.Caching.Strategies {
		if s.Storage != "" {
			if _, err := storage.ParseTier(s.Storage); err != nil {
				return fmt.Errorf("%w: caching.strategies.%s.storage: %v", ErrInvalid, dataType, err)
			}
		}
		if s.DurationMillis < 0 {
			return fmt.Errorf("%w: caching.strategies.%s.duration must be positive", ErrInvalid, dataType)
		}
		if s.Prefix != "" && !strings.HasPrefix(s.Prefix, KeyPrefix) {
			return fmt.Errorf("%w: caching.strategies.%s.prefix must start with %q", ErrInvalid, dataType, KeyPrefix)
		}
	}

	for _, p := range c.ClassSchedule.Periods {
		if _, err := TimeStringToMinutes(p.Start); err != nil {
			return fmt.Errorf("%w: classSchedule.periods[%d].start: %v", ErrInvalid, p.Number, err)
		}
		if _, err := TimeStringToMinutes(p.End); err != nil {
			return fmt.Errorf("%w: classSchedule.periods[%d].end: %v", ErrInvalid, p.Number, err)
		}
	}

	return nil
}

// TimeZone returns the configured zone name or the default.
func (c *Config) TimeZone() string {
	if c.University.TimeZone == "" {
		return DefaultTimeZone
	}
	return c.University.TimeZone
}

// Location returns the configured time zone, falling back to UTC if it cannot
// be loaded (Validate rejects such documents).
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone())
	if err != nil {
		return time.UTC
	}
	return loc
}

// AcademicYearStart parses schedule.academicYear.startDate as midnight in the
// configured time zone.
func (c *Config) AcademicYearStart() (time.Time, error) {
	raw := c.Schedule.AcademicYear.StartDate
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: schedule.academicYear.startDate", ErrConfigMissing)
	}
	loc, err := time.LoadLocation(c.TimeZone())
	if err != nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout, raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: schedule.academicYear.startDate: %v", ErrInvalid, err)
	}
	return t, nil
}

// BellSchedule returns the required bell schedule.
func (c *Config) BellSchedule() ([]Period, error) {
	if len(c.Schedule.BellSchedule) == 0 {
		return nil, fmt.Errorf("%w: schedule.bellSchedule", ErrConfigMissing)
	}
	return c.Schedule.BellSchedule, nil
}

// Periods returns the lesson periods, or the bell schedule when
// classSchedule.periods is absent.
func (c *Config) Periods() []Period {
	if len(c.ClassSchedule.Periods) > 0 {
		return c.ClassSchedule.Periods
	}
	return c.Schedule.BellSchedule
}

// BaseURL returns the relay URL.
func (c *Config) BaseURL() string {
	if c.API.BaseURL == "" {
		return DefaultBaseURL
	}
	return c.API.BaseURL
}

// Timeout returns the per-request timeout; zero means none.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.API.TimeoutMillis) * time.Millisecond
}

// Strategy returns the configured strategy for dataType, if any.
func (c *Config) Strategy(dataType string) (Strategy, bool) {
	s, ok := c.Caching.Strategies[dataType]
	return s, ok
}

// MobileBreakpoint returns ui.responsive.mobileBreakpoint or 768.
func (c *Config) MobileBreakpoint() int {
	if bp := c.UI.Responsive.MobileBreakpoint; bp > 0 {
		return bp
	}
	return DefaultMobileBreakpoint
}

// FallbackToCache reports whether failed requests may be served from cache.
func (c *Config) FallbackToCache() bool {
	if c.ErrorHandling.FallbackToCache == nil {
		return true
	}
	return *c.ErrorHandling.FallbackToCache
}

// IsFeatureEnabled reports whether features.<name> is explicitly true.
func (c *Config) IsFeatureEnabled(name string) bool {
	return c.Features[name]
}

// TimeStringToMinutes converts "HH:MM" to minutes after midnight.
func TimeStringToMinutes(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("malformed time %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("malformed hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("malformed minute in %q", s)
	}
	return h*60 + m, nil
}
