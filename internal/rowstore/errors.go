package rowstore

import (
	"errors"
	"fmt"
)

// Store errors shared by all backends.
var (
	// ErrScopeNotFound is returned when a requested scope does not exist.
	ErrScopeNotFound = errors.New("scope not found")

	// ErrRowOutOfRange is returned when a cell update addresses a row
	// beyond the current end of the scope.
	ErrRowOutOfRange = errors.New("row index out of range")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTransient marks failures worth retrying: rate limits, 5xx
	// responses and transport problems. Everything else propagates
	// immediately.
	ErrTransient = errors.New("transient store error")
)

// Transient wraps err so that IsTransient reports true for it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsTransient reports whether err is a retryable store failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
