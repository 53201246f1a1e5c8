package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"kntu-schedule/pkg/storage"
)

// Cache store errors.
var (
	// ErrStorageWriteFailed marks a write that could not be persisted
	// (quota, serialization, backend failure). Store.Write logs it and
	// never returns it.
	ErrStorageWriteFailed = errors.New("cache: storage write failed")

	// ErrInvalidKey is returned when a cache key is empty or contains
	// control characters.
	ErrInvalidKey = errors.New("cache: invalid key")

	// ErrMalformedEntry is returned when a stored value is not a valid entry.
	ErrMalformedEntry = errors.New("cache: malformed entry")
)

// IsWriteFailure checks if err is a swallowed write failure.
func IsWriteFailure(err error) bool {
	return errors.Is(err, ErrStorageWriteFailed)
}

// ClassifyError returns a string classification of the error type for
// metrics and log fields.
func ClassifyError(err error) string {
	if err == nil {
		return "none"
	}

	switch {
	case errors.Is(err, storage.ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, storage.ErrNoTier):
		return "no_tier"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrInvalidKey):
		return "invalid_key"
	case errors.Is(err, ErrMalformedEntry):
		return "malformed_entry"
	}

	// Fall back to common patterns in the message
	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "connection", "connect", "dial"):
		return "connection"
	case containsAny(msg, "marshal", "unmarshal", "encode", "decode", "json"):
		return "serialization"
	case containsAny(msg, "redis", "postgres", "pq:"):
		return "backend"
	default:
		return "other"
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// WrapError wraps an error with the storage and operation it came from.
func WrapError(err error, storageName string, operation string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("cache storage %s %s: %w", storageName, operation, err)
}
