package memory

import (
	"context"
	"sort"
	"sync"
	"unicode"

	"kntu-schedule/pkg/storage"
)

// Storage is an in-process storage tier. It backs the session tier and, when
// no backend is configured, the persistent tier as well.
type Storage struct {
	// data stores the raw values
	data map[string]string

	// size is the total number of bytes of keys and values held
	size int

	// mu protects data and size
	mu sync.RWMutex

	config Config
}

// Config holds configuration for the memory storage
type Config struct {
	// Name is the storage identifier
	Name string

	// MaxBytes caps the summed length of keys and values (0 = unlimited).
	// Browsers give each origin a fixed quota; this models it.
	MaxBytes int
}

// New creates a new in-memory storage with the given configuration.
func New(config Config) *Storage {
	if config.Name == "" {
		config.Name = "memory"
	}

	return &Storage{
		data:   make(map[string]string),
		config: config,
	}
}

// Get retrieves the value stored under key.
func (s *Storage) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[key]
	return value, ok, nil
}

// Set stores value under key.
// Returns storage.ErrQuotaExceeded if the write would exceed MaxBytes; the
// previous value, if any, is left untouched in that case.
func (s *Storage) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	newSize := s.size + len(key) + len(value)
	if old, ok := s.data[key]; ok {
		newSize -= len(key) + len(old)
	}

	if s.config.MaxBytes > 0 && newSize > s.config.MaxBytes {
		return storage.ErrQuotaExceeded
	}

	s.data[key] = value
	s.size = newSize

	return nil
}

// Remove deletes key. Returns nil even if the key doesn't exist.
func (s *Storage) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.data[key]; ok {
		s.size -= len(key) + len(old)
		delete(s.data, key)
	}

	return nil
}

// Keys returns all keys in lexical order.
func (s *Storage) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	return keys, nil
}

// Len returns the number of stored keys.
func (s *Storage) Len(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.data), nil
}

// Name returns the storage name.
func (s *Storage) Name() string {
	return s.config.Name
}

// Close drops all data. Session storage does not outlive its owner.
func (s *Storage) Close() error {
	s.mu.Lock()
	s.data = make(map[string]string)
	s.size = 0
	s.mu.Unlock()

	return nil
}

// Stats returns current storage statistics.
func (s *Storage) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		Keys:     len(s.data),
		Bytes:    s.size,
		MaxBytes: s.config.MaxBytes,
	}
}

// Stats holds storage statistics.
type Stats struct {
	Keys     int // Current number of keys
	Bytes    int // Bytes held by keys and values
	MaxBytes int // Quota (0 = unlimited)
}

// validateKey rejects empty keys and keys with control characters.
func validateKey(key string) error {
	if key == "" {
		return errInvalidKey
	}

	for _, r := range key {
		if unicode.IsControl(r) {
			return errInvalidKey
		}
	}

	return nil
}

var errInvalidKey = &storageError{"invalid key"}

// storageError implements error
type storageError struct {
	msg string
}

func (e *storageError) Error() string {
	return "memory storage: " + e.msg
}
