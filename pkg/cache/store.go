// Package cache implements the cache-aside store used by the schedule
// client: per-data-type storage tier, TTL and key prefix, with expiry
// checked on read.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"kntu-schedule/pkg/config"
	"kntu-schedule/pkg/logging"
	"kntu-schedule/pkg/metrics"
	"kntu-schedule/pkg/storage"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// DefaultTTL applies to data types without a configured strategy.
const DefaultTTL = time.Hour

// Strategy is the resolved caching policy of one data type.
type Strategy struct {
	Tier   storage.Tier
	TTL    time.Duration
	Prefix string
}

// Entry is the stored representation of a cached value.
type Entry struct {
	Data json.RawMessage `json:"data"`
	// Timestamp and Expires are unix milliseconds.
	Timestamp int64 `json:"timestamp"`
	Expires   int64 `json:"expires"`
}

// ValidAt reports whether the entry is still fresh at now.
func (e *Entry) ValidAt(now time.Time) bool {
	return now.UnixMilli() < e.Expires
}

// Store is the cache-aside store. It is safe for concurrent use as long as
// the underlying storages are.
type Store struct {
	tiers    storage.Tiers
	provider config.Provider
	logger   *logging.Logger
	metrics  metrics.Collector
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c metrics.Collector) Option {
	return func(s *Store) { s.metrics = c }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store over tiers. provider may be nil, in which case every
// data type uses the default strategy.
func New(tiers storage.Tiers, provider config.Provider, opts ...Option) *Store {
	s := &Store{
		tiers:    tiers,
		provider: provider,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger).Named("cache")
	s.metrics = metrics.OrNoOp(s.metrics)
	return s
}

// ResolveStrategy returns the caching policy for dataType. It never fails:
// missing or partial configuration falls back to session storage, one hour
// and the kntu_<dataType> prefix.
func (s *Store) ResolveStrategy(dataType string) Strategy {
	st := Strategy{
		Tier:   storage.Session,
		TTL:    DefaultTTL,
		Prefix: DefaultPrefix(dataType),
	}

	if s.provider == nil || s.provider.Config() == nil {
		return st
	}

	raw, ok := s.provider.Config().Strategy(dataType)
	if !ok {
		return st
	}

	if raw.Storage != "" {
		if tier, err := storage.ParseTier(raw.Storage); err == nil {
			st.Tier = tier
		}
	}
	if raw.DurationMillis > 0 {
		st.TTL = time.Duration(raw.DurationMillis) * time.Millisecond
	}
	if raw.Prefix != "" {
		st.Prefix = raw.Prefix
	}
	return st
}

// Write stores value under the data type's strategy. It is best-effort:
// failures are logged as ErrStorageWriteFailed and never returned.
func (s *Store) Write(ctx context.Context, dataType, logicalKey string, value interface{}) {
	if err := s.write(ctx, dataType, logicalKey, value); err != nil {
		s.metrics.RecordCacheWrite(dataType, false)
		s.logger.Warn("cache write failed",
			zap.String("data_type", dataType),
			zap.String("key", logicalKey),
			zap.String("error_type", ClassifyError(err)),
			zap.Error(err),
		)
		return
	}
	s.metrics.RecordCacheWrite(dataType, true)
}

func (s *Store) write(ctx context.Context, dataType, logicalKey string, value interface{}) error {
	if err := ValidateKey(logicalKey); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageWriteFailed, err)
	}

	data, err := encodeValue(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageWriteFailed, err)
	}

	st := s.ResolveStrategy(dataType)
	now := s.now()
	entry := Entry{
		Data:      data,
		Timestamp: now.UnixMilli(),
		Expires:   now.Add(st.TTL).UnixMilli(),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageWriteFailed, err)
	}

	backend, err := s.tiers.Get(st.Tier)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorageWriteFailed, err)
	}

	key := BuildKey(st.Prefix, logicalKey)
	if err := backend.Set(ctx, key, string(raw)); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageWriteFailed, WrapError(err, backend.Name(), "set"))
	}

	s.logger.Debug("cache write",
		zap.String("key", key),
		zap.String("tier", st.Tier.String()),
		zap.Duration("ttl", st.TTL),
	)
	return nil
}

// encodeValue turns value into JSON. Raw JSON is stored as-is after
// validation.
func encodeValue(value interface{}) (json.RawMessage, error) {
	switch v := value.(type) {
	case json.RawMessage:
		if !json.Valid(v) {
			return nil, fmt.Errorf("value is not valid JSON")
		}
		return v, nil
	case []byte:
		if !json.Valid(v) {
			return nil, fmt.Errorf("value is not valid JSON")
		}
		return json.RawMessage(v), nil
	default:
		return json.Marshal(v)
	}
}

// Read returns the cached value for logicalKey. The boolean is false when the
// entry is absent, expired or malformed; expired and malformed entries are
// removed from storage.
func (s *Store) Read(ctx context.Context, dataType, logicalKey string) (json.RawMessage, bool) {
	st := s.ResolveStrategy(dataType)
	key := BuildKey(st.Prefix, logicalKey)

	backend, err := s.tiers.Get(st.Tier)
	if err != nil {
		s.logger.Warn("cache read skipped", zap.String("key", key), zap.Error(err))
		s.metrics.RecordCacheRead(dataType, false)
		return nil, false
	}

	raw, ok, err := backend.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache read failed",
			zap.String("key", key),
			zap.String("storage", backend.Name()),
			zap.String("error_type", ClassifyError(err)),
			zap.Error(err),
		)
		s.metrics.RecordCacheRead(dataType, false)
		return nil, false
	}
	if !ok {
		s.logger.Debug("cache miss", zap.String("key", key))
		s.metrics.RecordCacheRead(dataType, false)
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil || isEmptyData(entry.Data) {
		s.logger.Warn("removing malformed cache entry", zap.String("key", key), zap.Error(err))
		s.remove(ctx, backend, key)
		s.metrics.RecordCacheRead(dataType, false)
		return nil, false
	}

	if !entry.ValidAt(s.now()) {
		s.logger.Debug("cache entry expired", zap.String("key", key))
		s.remove(ctx, backend, key)
		s.metrics.RecordCacheExpired(dataType)
		s.metrics.RecordCacheRead(dataType, false)
		return nil, false
	}

	s.logger.Debug("cache hit", zap.String("key", key))
	s.metrics.RecordCacheRead(dataType, true)
	return entry.Data, true
}

func isEmptyData(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func (s *Store) remove(ctx context.Context, backend storage.Storage, key string) {
	if err := backend.Remove(ctx, key); err != nil {
		s.logger.Warn("cache remove failed", zap.String("key", key), zap.Error(err))
	}
}

// Clear removes cached entries from every tier: all kntu_ keys when dataType
// is empty, otherwise only kntu_<dataType>_ keys. Clearing an empty cache is
// not an error.
func (s *Store) Clear(ctx context.Context, dataType string) error {
	prefix := ClearPrefix(dataType)

	var errs error
	removed := 0
	for _, backend := range s.tiers.Ordered() {
		keys, err := backend.Keys(ctx)
		if err != nil {
			errs = multierr.Append(errs, WrapError(err, backend.Name(), "keys"))
			continue
		}
		for _, key := range keys {
			if !strings.HasPrefix(key, prefix) {
				continue
			}
			if err := backend.Remove(ctx, key); err != nil {
				errs = multierr.Append(errs, WrapError(err, backend.Name(), "remove"))
				continue
			}
			removed++
		}
	}

	s.logger.Info("cache cleared",
		zap.String("prefix", prefix),
		zap.Int("removed", removed),
	)
	return errs
}

// TierStats counts cache keys in one storage tier.
type TierStats struct {
	Keys  int `json:"keys"`
	Bytes int `json:"bytes"`
}

// Stats summarizes the cache contents.
type Stats struct {
	Tiers         map[storage.Tier]TierStats `json:"tiers"`
	ScheduleItems int                        `json:"scheduleItems"`
	TotalBytes    int                        `json:"totalBytes"`
}

// TotalKB returns TotalBytes rounded to kilobytes.
func (st Stats) TotalKB() int {
	return (st.TotalBytes + 512) / 1024
}

// Stats counts kntu_ keys per tier, how many of them hold schedules and the
// total stored size. Storages that cannot be enumerated are skipped. A
// storage registered for both tiers is counted once, under Persistent.
func (s *Store) Stats(ctx context.Context) Stats {
	stats := Stats{Tiers: make(map[storage.Tier]TierStats)}
	seen := make(map[storage.Storage]bool)

	for _, tier := range []storage.Tier{storage.Persistent, storage.Session} {
		backend, err := s.tiers.Get(tier)
		if err != nil || seen[backend] {
			continue
		}
		seen[backend] = true
		keys, err := backend.Keys(ctx)
		if err != nil {
			s.logger.Warn("cache stats skipped tier", zap.String("tier", tier.String()), zap.Error(err))
			continue
		}

		var ts TierStats
		for _, key := range keys {
			if !strings.HasPrefix(key, GlobalPrefix) {
				continue
			}
			ts.Keys++
			if strings.Contains(key, "schedule") {
				stats.ScheduleItems++
			}
			if v, ok, err := backend.Get(ctx, key); err == nil && ok {
				ts.Bytes += len(v)
			}
		}
		stats.Tiers[tier] = ts
		stats.TotalBytes += ts.Bytes
	}

	return stats
}
