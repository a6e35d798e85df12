package counter

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidID is wrapped by the ValidationError returned for a missing,
	// empty or non-string id.
	ErrInvalidID = errors.New("a string id is required")

	// ErrStrictModeUnsupported is returned by New when strict mode is requested
	// with a store that cannot apply a batch atomically.
	ErrStrictModeUnsupported = errors.New("strict mode requires an atomic counter store")
)

// ValidationError reports a malformed descriptor. It is a caller bug and not retryable.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err is, or wraps, a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
