package storage

import (
	"errors"
	"fmt"
)

// Error kinds. Every gateway error wraps exactly one of these so callers can
// branch with errors.Is regardless of backend.
var (
	// ErrTransport is returned when the backend could not be reached or the
	// call failed in flight.
	ErrTransport = errors.New("transport failure")

	// ErrMalformedResponse is returned when the backend answered with data
	// that could not be decoded.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrNotFound is returned when a project, phase, milestone or task is not
	// found.
	ErrNotFound = errors.New("not found")
)

// Kind names an error kind for logs and metrics labels.
type Kind string

const (
	KindNone      Kind = ""
	KindTransport Kind = "transport"
	KindMalformed Kind = "malformed"
	KindNotFound  Kind = "not_found"
	KindOther     Kind = "other"
)

// Transport wraps err as a transport failure of op.
func Transport(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
}

// Malformed wraps err as a decode failure of op.
func Malformed(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrMalformedResponse, err)
}

// NotFound builds a not-found error with a formatted subject.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// KindOf classifies err.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrMalformedResponse):
		return KindMalformed
	case errors.Is(err, ErrTransport):
		return KindTransport
	default:
		return KindOther
	}
}
