// Package view sequences schedule loads for a screen: which subject, date
// and view are shown, and which phase the screen is in.
package view

import (
	"context"
	"errors"
	"sync"
	"time"

	"kntu-schedule/pkg/logging"
	"kntu-schedule/pkg/schedule"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Phase is the screen phase.
type Phase string

const (
	Idle    Phase = "idle"
	Loading Phase = "loading"
	Success Phase = "success"
	Error   Phase = "error"
	Empty   Phase = "empty"
)

var (
	// ErrNoSettings is returned by operations that need a subject before
	// one has been chosen.
	ErrNoSettings = errors.New("view: no settings")

	// ErrDestroyed is returned after Destroy.
	ErrDestroyed = errors.New("view: controller destroyed")
)

// Loader is the part of schedule.API the controller drives.
type Loader interface {
	GetScheduleForDay(ctx context.Context, s schedule.Settings, isoDate string) (*schedule.Day, error)
	GetScheduleForWeek(ctx context.Context, s schedule.Settings, isoDate string) (*schedule.Week, error)
	RefreshDay(ctx context.Context, s schedule.Settings, isoDate string) (*schedule.Day, error)
	RefreshWeek(ctx context.Context, s schedule.Settings, isoDate string) (*schedule.Week, error)
	ClearScheduleCache(ctx context.Context) error
	ClearUserSettings(ctx context.Context) error
}

// Presenter shows phases. Calls are serialized in state order and must not
// call mutating Controller methods synchronously.
type Presenter interface {
	ShowLoading(State)
	ShowSuccess(State)
	ShowEmpty(State)
	ShowError(State)
}

// State is a snapshot of the controller.
type State struct {
	View        schedule.View
	Date        time.Time
	Settings    schedule.Settings
	HasSettings bool
	Data        schedule.Data
	Phase       Phase
	Err         error
	Generation  uint64
}

// Export snapshots the loaded data; nil when nothing is loaded.
func (s State) Export(now time.Time) *schedule.Export {
	return schedule.NewExport(s.Settings, s.View, s.Date, s.Data, now)
}

// Controller owns the view state. Every load runs in its own goroutine
// tagged with a generation; a result is applied only while its generation
// is current.
type Controller struct {
	loader    Loader
	presenter Presenter
	logger    *logging.Logger

	base     context.Context
	shutdown context.CancelFunc

	mu        sync.Mutex
	state     State
	cancel    context.CancelFunc
	destroyed bool

	presentMu sync.Mutex
	wg        sync.WaitGroup
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithPresenter sets the presenter.
func WithPresenter(p Presenter) Option {
	return func(c *Controller) { c.presenter = p }
}

// New creates an idle controller in day view.
func New(loader Loader, opts ...Option) *Controller {
	c := &Controller{
		loader: loader,
		state:  State{View: schedule.DayView, Phase: Idle},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.presenter == nil {
		c.presenter = nopPresenter{}
	}
	c.logger = logging.OrNop(c.logger).Named("view")
	c.base, c.shutdown = context.WithCancel(context.Background())
	return c
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Render shows settings' schedule on date in view v.
func (c *Controller) Render(s schedule.Settings, date time.Time, v schedule.View) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if _, err := schedule.ParseView(string(v)); err != nil {
		return err
	}

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ErrDestroyed
	}
	c.state.Settings = s
	c.state.HasSettings = true
	c.state.Date = date
	c.state.View = v
	c.startLocked(false)
	return nil
}

// SwitchView changes the view. It does nothing when v is already shown.
func (c *Controller) SwitchView(v schedule.View) error {
	if _, err := schedule.ParseView(string(v)); err != nil {
		return err
	}

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ErrDestroyed
	}
	if c.state.View == v {
		c.mu.Unlock()
		return nil
	}
	c.state.View = v
	c.reloadLocked(false)
	return nil
}

// NavigatePeriod moves direction days in day view or direction weeks in
// week view.
func (c *Controller) NavigatePeriod(direction int) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ErrDestroyed
	}
	days := direction
	if c.state.View == schedule.WeekView {
		days *= 7
	}
	c.state.Date = c.state.Date.AddDate(0, 0, days)
	c.reloadLocked(false)
	return nil
}

// SetDate shows date.
func (c *Controller) SetDate(date time.Time) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ErrDestroyed
	}
	c.state.Date = date
	c.reloadLocked(false)
	return nil
}

// SetSettings switches the subject and reloads.
func (c *Controller) SetSettings(s schedule.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ErrDestroyed
	}
	c.state.Settings = s
	c.state.HasSettings = true
	c.startLocked(false)
	return nil
}

// Refresh reloads bypassing the cache. It is the retry action of the error
// phase.
func (c *Controller) Refresh() error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ErrDestroyed
	}
	if !c.state.HasSettings {
		c.mu.Unlock()
		return ErrNoSettings
	}
	c.startLocked(true)
	return nil
}

// ClearCacheAndRetry drops every cached entry and reloads.
func (c *Controller) ClearCacheAndRetry(ctx context.Context) error {
	if err := c.loader.ClearScheduleCache(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ErrDestroyed
	}
	if !c.state.HasSettings {
		c.mu.Unlock()
		return ErrNoSettings
	}
	c.startLocked(false)
	return nil
}

// ResetEverything drops the cache and the saved settings and returns the
// controller to idle. An in-flight load is discarded.
func (c *Controller) ResetEverything(ctx context.Context) error {
	err := multierr.Append(
		c.loader.ClearScheduleCache(ctx),
		c.loader.ClearUserSettings(ctx),
	)

	c.mu.Lock()
	c.abandonLocked()
	c.state = State{
		View:       c.state.View,
		Date:       c.state.Date,
		Phase:      Idle,
		Generation: c.state.Generation,
	}
	c.mu.Unlock()
	return err
}

// Wait blocks until every started load has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Destroy cancels the in-flight load and rejects further operations.
func (c *Controller) Destroy() {
	c.mu.Lock()
	if !c.destroyed {
		c.destroyed = true
		c.abandonLocked()
		c.shutdown()
	}
	c.mu.Unlock()
	c.wg.Wait()
}

// reloadLocked starts a load when a subject is chosen and otherwise only
// unlocks.
func (c *Controller) reloadLocked(force bool) {
	if !c.state.HasSettings {
		c.mu.Unlock()
		return
	}
	c.startLocked(force)
}

// abandonLocked bumps the generation so the in-flight load is discarded.
func (c *Controller) abandonLocked() {
	c.state.Generation++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// startLocked enters the loading phase and starts a load. It releases c.mu.
func (c *Controller) startLocked(force bool) {
	c.abandonLocked()
	ctx, cancel := context.WithCancel(c.base)
	c.cancel = cancel

	c.state.Phase = Loading
	c.state.Err = nil
	snap := c.state

	c.wg.Add(1)
	go c.load(ctx, cancel, snap, force)

	c.presentMu.Lock()
	c.mu.Unlock()
	c.presenter.ShowLoading(snap)
	c.presentMu.Unlock()
}

func (c *Controller) load(ctx context.Context, cancel context.CancelFunc, snap State, force bool) {
	defer c.wg.Done()
	defer cancel()

	data, err := c.fetch(ctx, snap, force)
	c.finish(snap.Generation, data, err)
}

func (c *Controller) fetch(ctx context.Context, snap State, force bool) (schedule.Data, error) {
	iso := schedule.FormatDate(snap.Date)
	if snap.View == schedule.WeekView {
		load := c.loader.GetScheduleForWeek
		if force {
			load = c.loader.RefreshWeek
		}
		week, err := load(ctx, snap.Settings, iso)
		if err != nil || week == nil {
			return nil, err
		}
		return week, nil
	}

	load := c.loader.GetScheduleForDay
	if force {
		load = c.loader.RefreshDay
	}
	day, err := load(ctx, snap.Settings, iso)
	if err != nil || day == nil {
		return nil, err
	}
	return day, nil
}

// finish applies a load result when gen is still current.
func (c *Controller) finish(gen uint64, data schedule.Data, err error) {
	c.mu.Lock()
	if gen != c.state.Generation {
		c.mu.Unlock()
		c.logger.Debug("discarding stale load",
			zap.Uint64("generation", gen),
			zap.Error(err),
		)
		return
	}
	c.cancel = nil

	show := c.presenter.ShowSuccess
	switch {
	case err != nil:
		c.state.Phase = Error
		c.state.Err = err
		c.state.Data = nil
		show = c.presenter.ShowError
		c.logger.Warn("schedule load failed", zap.Error(err))
	case partialWeek(data):
		// Days failed but some loaded: shown with the loaded-days count.
		c.state.Phase = Success
		c.state.Data = data
	case !schedule.HasScheduleData(data):
		c.state.Phase = Empty
		c.state.Data = data
		show = c.presenter.ShowEmpty
	default:
		c.state.Phase = Success
		c.state.Data = data
	}
	snap := c.state

	c.presentMu.Lock()
	c.mu.Unlock()
	show(snap)
	c.presentMu.Unlock()
}

// partialWeek reports a week where some but not all days loaded.
func partialWeek(data schedule.Data) bool {
	w, ok := data.(*schedule.Week)
	return ok && w != nil && w.SuccessfulDays > 0 && !w.Complete()
}

type nopPresenter struct{}

func (nopPresenter) ShowLoading(State) {}
func (nopPresenter) ShowSuccess(State) {}
func (nopPresenter) ShowEmpty(State)   {}
func (nopPresenter) ShowError(State)   {}
