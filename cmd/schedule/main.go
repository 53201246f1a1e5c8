// Command schedule prints a group's or an instructor's class schedule for a
// day or a week, reading through the local cache.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"kntu-schedule/pkg/cache"
	"kntu-schedule/pkg/config"
	"kntu-schedule/pkg/fetch"
	"kntu-schedule/pkg/logging"
	"kntu-schedule/pkg/resilience"
	"kntu-schedule/pkg/schedule"
	"kntu-schedule/pkg/storage"
	"kntu-schedule/pkg/view"
	"kntu-schedule/pkg/week"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
)

type settings struct {
	Config   string `env:"SCHEDULE_CONFIG" envDefault:"config/kntu.yaml"`
	RelayURL string `env:"RELAY_URL"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"warn"`
	Storage  storageSettings
}

func main() {
	var (
		groupID      = flag.String("group", "", "group id")
		instructorID = flag.String("instructor", "", "instructor id")
		name         = flag.String("name", "", "display name for the chosen group or instructor")
		date         = flag.String("date", "", "date as YYYY-MM-DD (default today)")
		weekView     = flag.Bool("week", false, "show the whole week")
		refresh      = flag.Bool("refresh", false, "bypass the cache")
		clearCache   = flag.Bool("clear-cache", false, "drop cached schedule data and exit")
		reset        = flag.Bool("reset", false, "drop cached data and saved settings and exit")
		asJSON       = flag.Bool("json", false, "print a JSON export instead of text")
	)
	flag.Parse()

	var cfg settings
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "schedule: %v\n", err)
		os.Exit(2)
	}

	logConfig := logging.DefaultConfig()
	logConfig.Level = cfg.LogLevel
	logConfig.OutputPaths = []string{"stderr"}
	logger, err := logging.NewLogger(logConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "schedule: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync()

	if err := run(cfg, logger, options{
		groupID:      *groupID,
		instructorID: *instructorID,
		name:         *name,
		date:         *date,
		week:         *weekView,
		refresh:      *refresh,
		clearCache:   *clearCache,
		reset:        *reset,
		json:         *asJSON,
		ephemeral:    cfg.Storage.ephemeral(),
	}); err != nil {
		fmt.Fprintf(os.Stderr, "schedule: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	groupID, instructorID, name, date string
	week, refresh, clearCache, reset  bool
	json                              bool
	// ephemeral is set when saved settings do not outlive the process.
	ephemeral bool
}

func run(cfg settings, logger *logging.Logger, opts options) error {
	ctx := context.Background()

	if opts.ephemeral && (opts.groupID != "" || opts.instructorID != "") {
		logger.Warn("persistent storage is in-process, settings are not kept between runs",
			zap.String("hint", "set SCHEDULE_STORAGE=redis or postgres"),
		)
	}

	provider, err := config.Load(cfg.Config)
	if err != nil {
		return err
	}
	conf := provider.Config()

	tiers, err := openTiers(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer tiers.Close()

	store := cache.New(tiers, provider, cache.WithLogger(logger))

	baseURL := conf.BaseURL()
	if cfg.RelayURL != "" {
		baseURL = cfg.RelayURL
	}
	transport := resilience.NewTransport(
		fetch.NewHTTPTransport(baseURL, &http.Client{}, logger),
		resilience.DefaultConfig("relay").WithTimeout(conf.Timeout()),
		logger, nil,
	)
	orch := fetch.NewOrchestrator(store, transport, provider, fetch.WithLogger(logger))

	persistent, err := tiers.Get(storage.Persistent)
	if err != nil {
		return err
	}
	settingsStore := schedule.NewSettingsStore(persistent)
	api := schedule.NewAPI(orch, settingsStore, provider, schedule.WithLogger(logger))

	switch {
	case opts.reset:
		c := view.New(api, view.WithLogger(logger))
		defer c.Destroy()
		return c.ResetEverything(ctx)
	case opts.clearCache:
		return api.ClearScheduleCache(ctx)
	}

	subject, err := chooseSettings(ctx, settingsStore, opts)
	if err != nil {
		return err
	}

	day := time.Now().In(api.Location())
	if opts.date != "" {
		if day, err = schedule.ParseDate(opts.date, api.Location()); err != nil {
			return fmt.Errorf("invalid -date: %w", err)
		}
	}
	v := schedule.DayView
	if opts.week {
		v = schedule.WeekView
	}

	weeks, err := week.NewFromConfig(provider)
	if err != nil {
		return err
	}

	var loader view.Loader = api
	if opts.refresh {
		loader = forceRefresh{api}
	}
	p := &printer{
		out:     os.Stdout,
		periods: conf.Periods(),
		weeks:   weeks,
		json:    opts.json,
	}
	c := view.New(loader, view.WithLogger(logger), view.WithPresenter(p))
	defer c.Destroy()

	if err := c.Render(subject, day, v); err != nil {
		return err
	}
	c.Wait()

	st := c.State()
	if st.Phase == view.Error {
		return st.Err
	}
	logger.Debug("schedule printed",
		zap.String("phase", string(st.Phase)),
		zap.Int("cached_kb", api.CacheStats(ctx).TotalKB()),
	)
	return nil
}

// chooseSettings saves the subject named on the command line, or falls back
// to the saved one.
func chooseSettings(ctx context.Context, ss *schedule.SettingsStore, opts options) (schedule.Settings, error) {
	var s schedule.Settings
	switch {
	case opts.groupID != "" && opts.instructorID != "":
		return s, errors.New("-group and -instructor are exclusive")
	case opts.groupID != "":
		s = schedule.Settings{Kind: schedule.Group, ID: opts.groupID, DisplayName: opts.name}
	case opts.instructorID != "":
		s = schedule.Settings{Kind: schedule.Instructor, ID: opts.instructorID, DisplayName: opts.name}
	default:
		saved, ok, err := ss.Load(ctx)
		if err != nil {
			return s, err
		}
		if !ok && opts.ephemeral {
			return s, errors.New("no saved settings: pass -group or -instructor " +
				"(SCHEDULE_STORAGE=memory keeps nothing between runs, use redis or postgres)")
		}
		if !ok {
			return s, errors.New("no saved settings: pass -group or -instructor")
		}
		return saved, nil
	}

	if s.DisplayName == "" {
		s.DisplayName = s.ID
	}
	return s, ss.Save(ctx, s)
}

// forceRefresh makes every load bypass the cache.
type forceRefresh struct {
	*schedule.API
}

func (f forceRefresh) GetScheduleForDay(ctx context.Context, s schedule.Settings, isoDate string) (*schedule.Day, error) {
	return f.RefreshDay(ctx, s, isoDate)
}

func (f forceRefresh) GetScheduleForWeek(ctx context.Context, s schedule.Settings, isoDate string) (*schedule.Week, error) {
	return f.RefreshWeek(ctx, s, isoDate)
}

// printer writes the finished phase to out.
type printer struct {
	out     io.Writer
	periods []config.Period
	weeks   *week.Calculator
	json    bool
}

func (p *printer) ShowLoading(view.State) {}

func (p *printer) ShowSuccess(st view.State) {
	if p.json {
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		enc.Encode(st.Export(time.Now()))
		return
	}
	p.header(st)
	fmt.Fprint(p.out, schedule.Text(st.Data, p.periods))
	if w, ok := st.Data.(*schedule.Week); ok && !w.Complete() {
		fmt.Fprintf(p.out, "Завантажено днів: %d з %d\n", w.SuccessfulDays, schedule.DaysPerWeek)
	}
}

func (p *printer) ShowEmpty(st view.State) {
	p.header(st)
	fmt.Fprintln(p.out, "Занять немає. Оберіть іншу дату.")
}

func (p *printer) ShowError(st view.State) {
	fmt.Fprintf(os.Stderr, "Не вдалося завантажити розклад: %v\n", st.Err)
}

func (p *printer) header(st view.State) {
	if label, err := p.weeks.Label(st.Date); err == nil {
		fmt.Fprintf(p.out, "%s, %s\n\n", schedule.FormatDate(st.Date), label)
	}
}
