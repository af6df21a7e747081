// Package apperr defines the error kinds services return and handlers map to
// HTTP statuses. Wrap a kind with context: fmt.Errorf("%w: asset %s", ErrNotFound, id).
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrBadRequest     = errors.New("bad request")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not found")
	ErrQuotaExceeded  = errors.New("quota exceeded")
	ErrStorageMissing = errors.New("storage missing")
)

// BadRequestf wraps ErrBadRequest with a formatted detail.
func BadRequestf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}

// NotFoundf wraps ErrNotFound with a formatted detail.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Unauthorizedf wraps ErrUnauthorized with a formatted detail.
func Unauthorizedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, fmt.Sprintf(format, args...))
}

// Forbiddenf wraps ErrForbidden with a formatted detail.
func Forbiddenf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

// Is is a shorthand for errors.Is.
func Is(err, target error) bool { return errors.Is(err, target) }
