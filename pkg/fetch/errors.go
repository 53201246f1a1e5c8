package fetch

import (
	"errors"
	"fmt"
)

// ErrRequestFailed matches every *Error with errors.Is.
var ErrRequestFailed = errors.New("fetch: request failed")

// Error reports a failed relay call: transport failure, timeout, non-2xx
// status or a body that is not JSON.
type Error struct {
	// Endpoint is the relay endpoint name (the data type).
	Endpoint string
	// Status is the HTTP status, or 0 when no response was received.
	Status int
	// Message is human readable.
	Message string
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("request %s failed: HTTP %d: %s", e.Endpoint, e.Status, e.Message)
	}
	return fmt.Sprintf("request %s failed: %s", e.Endpoint, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrRequestFailed) hold for any *Error.
func (e *Error) Is(target error) bool {
	return target == ErrRequestFailed
}

// IsRequestFailed checks if err is, or wraps, a failed request.
func IsRequestFailed(err error) bool {
	return errors.Is(err, ErrRequestFailed)
}

// AsError extracts the *Error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
