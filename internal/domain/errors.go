package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConflict is returned by a SlotStore when the stored slots changed since they were read.
	ErrConflict = errors.New("leaderboard changed concurrently")
	// ErrRetryBudgetExhausted is returned when a commit kept conflicting until it ran out of attempts.
	ErrRetryBudgetExhausted = errors.New("leaderboard commit retry budget exhausted")
	// ErrStoreUnavailable wraps failures of the persistence layer.
	ErrStoreUnavailable = errors.New("leaderboard store unavailable")
)

// ValidationError reports malformed input. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
