package bloom

import (
	"context"
	"fmt"
	"sync"

	"kntu-schedule/pkg/storage"

	"github.com/bits-and-blooms/bloom/v3"
)

// Storage puts a bloom filter in front of a (usually remote) storage tier so
// lookups for keys that were never written skip the round trip.
// Removals do not clear filter bits, so a removed key costs one backend Get
// until the filter is rebuilt.
type Storage struct {
	inner  storage.Storage
	filter *bloom.BloomFilter
	mu     sync.RWMutex

	expectedItems     uint
	falsePositiveRate float64

	totalQueries   uint64
	bloomRejected  uint64
	falsePositives uint64
}

// New wraps inner and seeds the filter with the keys it already holds.
func New(ctx context.Context, inner storage.Storage, expectedItems uint, falsePositiveRate float64) (*Storage, error) {
	if expectedItems == 0 {
		expectedItems = 10000
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}

	s := &Storage{
		inner:             inner,
		expectedItems:     expectedItems,
		falsePositiveRate: falsePositiveRate,
	}

	if err := s.Rebuild(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

// Rebuild replaces the filter with one seeded from the inner storage's keys
// and resets the statistics.
func (s *Storage) Rebuild(ctx context.Context) error {
	keys, err := s.inner.Keys(ctx)
	if err != nil {
		return fmt.Errorf("bloom: seed from %s: %w", s.inner.Name(), err)
	}

	filter := bloom.NewWithEstimates(s.expectedItems, s.falsePositiveRate)
	for _, k := range keys {
		filter.AddString(k)
	}

	s.mu.Lock()
	s.filter = filter
	s.totalQueries = 0
	s.bloomRejected = 0
	s.falsePositives = 0
	s.mu.Unlock()

	return nil
}

// Name returns the name of the wrapped storage.
func (s *Storage) Name() string {
	return "bloom(" + s.inner.Name() + ")"
}

// Get consults the filter first and only hits the inner storage when the key
// may exist.
func (s *Storage) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	s.mu.Lock()
	s.totalQueries++
	if !s.filter.TestString(key) {
		s.bloomRejected++
		s.mu.Unlock()
		return "", false, nil
	}
	s.mu.Unlock()

	value, ok, err := s.inner.Get(ctx, key)
	if err == nil && !ok {
		s.mu.Lock()
		s.falsePositives++
		s.mu.Unlock()
	}

	return value, ok, err
}

// Set records key in the filter and writes through.
func (s *Storage) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.filter.AddString(key)
	s.mu.Unlock()

	return s.inner.Set(ctx, key, value)
}

// Remove deletes from the inner storage.
func (s *Storage) Remove(ctx context.Context, key string) error {
	return s.inner.Remove(ctx, key)
}

// Keys delegates to the inner storage.
func (s *Storage) Keys(ctx context.Context) ([]string, error) {
	return s.inner.Keys(ctx)
}

// Len delegates to the inner storage.
func (s *Storage) Len(ctx context.Context) (int, error) {
	return s.inner.Len(ctx)
}

// Close closes the inner storage.
func (s *Storage) Close() error {
	return s.inner.Close()
}

// Stats returns statistics about bloom filter performance.
func (s *Storage) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		TotalQueries:   s.totalQueries,
		BloomRejected:  s.bloomRejected,
		FalsePositives: s.falsePositives,
		FilterCapacity: s.filter.Cap(),
	}

	if s.totalQueries > 0 {
		st.RejectionRate = float64(s.bloomRejected) / float64(s.totalQueries)
		if queried := s.totalQueries - s.bloomRejected; queried > 0 {
			st.FalsePositiveRate = float64(s.falsePositives) / float64(queried)
		}
	}

	return st
}

// Stats holds statistics about bloom filter performance.
type Stats struct {
	TotalQueries      uint64
	BloomRejected     uint64
	FalsePositives    uint64
	RejectionRate     float64
	FalsePositiveRate float64
	FilterCapacity    uint
}
