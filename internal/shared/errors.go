package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates a request rejected before reaching the core.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict indicates the record is in a state that forbids the change.
	ErrConflict = errors.New("conflict")
)

// Invalid builds an error matching ErrInvalidInput.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidInput)
}
