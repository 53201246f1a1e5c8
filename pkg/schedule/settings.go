package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"kntu-schedule/pkg/fetch"
	"kntu-schedule/pkg/storage"
)

// SettingsKey is where user settings are persisted. It sits outside the
// cache namespace so clearing cached data keeps the user's choice.
const SettingsKey = "schedule_settings"

// Kind is whose schedule is shown.
type Kind string

const (
	Group      Kind = "group"
	Instructor Kind = "instructor"
)

// ErrInvalidSettings is returned for settings that cannot select a schedule.
var ErrInvalidSettings = errors.New("schedule: invalid settings")

// Settings selects the subject of the schedule.
type Settings struct {
	Kind        Kind   `json:"type"`
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Validate checks that the settings name a group or an instructor.
func (s Settings) Validate() error {
	if s.Kind != Group && s.Kind != Instructor {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSettings, s.Kind)
	}
	if s.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidSettings)
	}
	return nil
}

// endpoint returns the relay endpoint and the subject parameter name.
func (s Settings) endpoint() (string, string) {
	if s.Kind == Instructor {
		return fetch.EndpointScheduleInstructor, "instructorId"
	}
	return fetch.EndpointScheduleGroup, "groupId"
}

// SettingsStore persists Settings as JSON.
type SettingsStore struct {
	storage storage.Storage
}

// NewSettingsStore creates a store over s, normally the persistent tier.
func NewSettingsStore(s storage.Storage) *SettingsStore {
	return &SettingsStore{storage: s}
}

// Load returns the saved settings. The boolean is false when nothing valid
// is saved.
func (ss *SettingsStore) Load(ctx context.Context) (Settings, bool, error) {
	raw, ok, err := ss.storage.Get(ctx, SettingsKey)
	if err != nil || !ok {
		return Settings{}, false, err
	}

	var s Settings
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Settings{}, false, nil
	}
	if s.Validate() != nil {
		return Settings{}, false, nil
	}
	return s, true, nil
}

// Save validates and stores s.
func (ss *SettingsStore) Save(ctx context.Context, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return ss.storage.Set(ctx, SettingsKey, string(raw))
}

// Clear removes the saved settings.
func (ss *SettingsStore) Clear(ctx context.Context) error {
	return ss.storage.Remove(ctx, SettingsKey)
}
