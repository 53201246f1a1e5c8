package schedule

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"kntu-schedule/pkg/cache"
	"kntu-schedule/pkg/config"
	"kntu-schedule/pkg/fetch"
	"kntu-schedule/pkg/logging"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// API answers schedule questions through the orchestrator.
type API struct {
	orch        *fetch.Orchestrator
	settings    *SettingsStore
	lessonTypes map[string]config.LessonType
	loc         *time.Location
	logger      *logging.Logger
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(a *API) { a.logger = l }
}

// NewAPI creates the façade. provider supplies lesson type metadata and the
// time zone; it may be nil.
func NewAPI(orch *fetch.Orchestrator, settings *SettingsStore, provider config.Provider, opts ...Option) *API {
	a := &API{
		orch:     orch,
		settings: settings,
		loc:      time.UTC,
	}
	if provider != nil && provider.Config() != nil {
		cfg := provider.Config()
		a.lessonTypes = cfg.ClassSchedule.LessonTypes
		a.loc = cfg.Location()
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = logging.OrNop(a.logger).Named("schedule")
	return a
}

// Location returns the time zone dates are interpreted in.
func (a *API) Location() *time.Location {
	return a.loc
}

// GetScheduleForDay loads the schedule of settings' subject on isoDate.
func (a *API) GetScheduleForDay(ctx context.Context, s Settings, isoDate string) (*Day, error) {
	return a.day(ctx, s, isoDate, fetch.Options{})
}

// RefreshDay is GetScheduleForDay bypassing the cache.
func (a *API) RefreshDay(ctx context.Context, s Settings, isoDate string) (*Day, error) {
	return a.day(ctx, s, isoDate, fetch.Options{ForceRefresh: true})
}

func (a *API) day(ctx context.Context, s Settings, isoDate string, opts fetch.Options) (*Day, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if _, err := ParseDate(isoDate, a.loc); err != nil {
		return nil, fmt.Errorf("schedule: invalid date %q: %w", isoDate, err)
	}

	endpoint, param := s.endpoint()
	params := url.Values{param: {s.ID}, "date": {isoDate}}

	raw, err := a.orch.Request(ctx, endpoint, params, opts)
	if err != nil {
		return nil, err
	}

	day, err := decodeDay(raw)
	if err != nil {
		return nil, &fetch.Error{Endpoint: endpoint, Message: "unexpected schedule payload", Err: err}
	}
	if day.Date == "" {
		day.Date = isoDate
	}
	if day.DisplayTitle == "" {
		day.DisplayTitle = s.DisplayName
	}
	a.attachTypeInfo(day)
	return day, nil
}

// decodeDay accepts a day object, a bare slot mapping or a slot array.
func decodeDay(raw json.RawMessage) (*Day, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &probe); err != nil {
			return nil, err
		}
		if !hasDayFields(probe) {
			return lessonsOnly(trimmed)
		}
		var day Day
		if err := json.Unmarshal(trimmed, &day); err != nil {
			return nil, err
		}
		return &day, nil
	}
	return lessonsOnly(trimmed)
}

func lessonsOnly(raw []byte) (*Day, error) {
	var lessons Lessons
	if err := json.Unmarshal(raw, &lessons); err != nil {
		return nil, err
	}
	return &Day{Schedule: lessons}, nil
}

func hasDayFields(obj map[string]json.RawMessage) bool {
	for _, k := range []string{"schedule", "date", "displayTitle", "formattedDate"} {
		if _, ok := obj[k]; ok {
			return true
		}
	}
	return false
}

// attachTypeInfo fills missing lesson type metadata from configuration,
// matching the lesson type by key or by display name.
func (a *API) attachTypeInfo(day *Day) {
	if len(a.lessonTypes) == 0 {
		return
	}
	for i := range day.Schedule {
		lesson := &day.Schedule[i].Lesson
		if lesson.TypeInfo != nil || lesson.Type == "" {
			continue
		}
		for key, lt := range a.lessonTypes {
			if strings.EqualFold(key, lesson.Type) || strings.EqualFold(lt.Name, lesson.Type) {
				lesson.TypeInfo = &TypeInfo{Color: lt.Color, Icon: lt.Icon, ShortName: lt.ShortName}
				break
			}
		}
	}
}

// GetScheduleForWeek loads Monday to Friday of the week containing isoDate.
// Days are requested concurrently. A day that fails leaves a nil slot; the
// week fails only for invalid input or when no day loaded at all.
func (a *API) GetScheduleForWeek(ctx context.Context, s Settings, isoDate string) (*Week, error) {
	return a.week(ctx, s, isoDate, fetch.Options{})
}

// RefreshWeek is GetScheduleForWeek bypassing the cache.
func (a *API) RefreshWeek(ctx context.Context, s Settings, isoDate string) (*Week, error) {
	return a.week(ctx, s, isoDate, fetch.Options{ForceRefresh: true})
}

func (a *API) week(ctx context.Context, s Settings, isoDate string, opts fetch.Options) (*Week, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	date, err := ParseDate(isoDate, a.loc)
	if err != nil {
		return nil, fmt.Errorf("schedule: invalid date %q: %w", isoDate, err)
	}

	days := weekDays(date)
	week := &Week{
		StartDate: FormatDate(days[0]),
		EndDate:   FormatDate(days[DaysPerWeek-1]),
		Settings:  s,
	}

	var errs [DaysPerWeek]error
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(DaysPerWeek)
	for i, d := range days {
		i, iso := i, FormatDate(d)
		g.Go(func() error {
			day, err := a.day(gctx, s, iso, opts)
			if err != nil {
				a.logger.Warn("day failed to load",
					zap.String("date", iso),
					zap.Error(err),
				)
				errs[i] = err
				return nil
			}
			week.Schedules[i] = day
			return nil
		})
	}
	_ = g.Wait()

	for _, d := range week.Schedules {
		if d != nil {
			week.SuccessfulDays++
		}
	}
	if week.SuccessfulDays == 0 {
		return nil, weekFailed(ctx, s, errs)
	}
	return week, nil
}

// weekFailed reports a week where every day failed as a failed request,
// keeping the first day's failure as the cause.
func weekFailed(ctx context.Context, s Settings, errs [DaysPerWeek]error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var first error
	for _, err := range errs {
		if err != nil {
			first = err
			break
		}
	}
	if fe, ok := fetch.AsError(first); ok {
		return fe
	}
	endpoint, _ := s.endpoint()
	return &fetch.Error{Endpoint: endpoint, Message: "no day of the week loaded", Err: first}
}

// ClearScheduleCache removes every cached entry.
func (a *API) ClearScheduleCache(ctx context.Context) error {
	return a.orch.Store().Clear(ctx, "")
}

// ClearUserSettings removes the saved settings.
func (a *API) ClearUserSettings(ctx context.Context) error {
	if a.settings == nil {
		return nil
	}
	return a.settings.Clear(ctx)
}

// Settings returns the settings store.
func (a *API) Settings() *SettingsStore {
	return a.settings
}

// CacheStats summarizes the cache contents.
func (a *API) CacheStats(ctx context.Context) cache.Stats {
	return a.orch.Store().Stats(ctx)
}

// Faculties lists faculties.
func (a *API) Faculties(ctx context.Context) (json.RawMessage, error) {
	return a.orch.Faculties(ctx, fetch.Options{})
}

// Groups lists groups of a faculty.
func (a *API) Groups(ctx context.Context, facultyID string) (json.RawMessage, error) {
	return a.orch.Groups(ctx, facultyID, fetch.Options{})
}

// Cafedras lists departments of a faculty.
func (a *API) Cafedras(ctx context.Context, facultyID string) (json.RawMessage, error) {
	return a.orch.Cafedras(ctx, facultyID, fetch.Options{})
}

// Instructors lists instructors of a department.
func (a *API) Instructors(ctx context.Context, cafedraID string) (json.RawMessage, error) {
	return a.orch.Instructors(ctx, cafedraID, fetch.Options{})
}
