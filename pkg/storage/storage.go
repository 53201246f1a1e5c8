// Package storage defines the key-value capability the schedule cache persists
// into. It plays the role browser session/local storage plays in a web
// client: string keys, string values, enumeration and removal.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// Storage is the capability every storage tier implements.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Get returns the value stored under key. The boolean is false when the
	// key does not exist; that is not an error.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key, overwriting any existing value.
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error

	// Keys enumerates every key currently stored.
	Keys(ctx context.Context) ([]string, error)

	// Len returns the number of stored keys.
	Len(ctx context.Context) (int, error)

	// Name identifies the storage in logs and metrics.
	Name() string

	// Close releases any resources held by the storage.
	Close() error
}

// Tier selects where a data type is cached.
type Tier string

const (
	// Session storage lives as long as the process (browser session).
	Session Tier = "session"
	// Persistent storage survives restarts.
	Persistent Tier = "persistent"
)

// Errors returned by storage implementations.
var (
	// ErrQuotaExceeded is returned by Set when the storage is full.
	ErrQuotaExceeded = errors.New("storage: quota exceeded")

	// ErrUnknownTier is returned by ParseTier for unrecognized names.
	ErrUnknownTier = errors.New("storage: unknown tier")

	// ErrNoTier is returned by Tiers.Get when no storage is registered.
	ErrNoTier = errors.New("storage: tier not configured")
)

// ParseTier converts a configuration value into a Tier. The browser storage
// names used by older configuration files are accepted as aliases.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "session", "sessionstorage":
		return Session, nil
	case "persistent", "localstorage", "local":
		return Persistent, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTier, s)
	}
}

// String implements fmt.Stringer.
func (t Tier) String() string {
	return string(t)
}

// Tiers maps each tier to its concrete storage.
type Tiers map[Tier]Storage

// Get returns the storage registered for tier.
func (t Tiers) Get(tier Tier) (Storage, error) {
	s, ok := t[tier]
	if !ok || s == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoTier, tier)
	}
	return s, nil
}

// Ordered returns the configured storages, persistent tier first, so callers
// iterating "both storages" get a stable order.
func (t Tiers) Ordered() []Storage {
	var out []Storage
	for _, tier := range []Tier{Persistent, Session} {
		if s, ok := t[tier]; ok && s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Close closes every storage and returns all close errors combined.
func (t Tiers) Close() error {
	var err error
	for _, s := range t.Ordered() {
		err = multierr.Append(err, s.Close())
	}
	return err
}
