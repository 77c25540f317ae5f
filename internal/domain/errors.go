package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrPackageNotFound is returned when a workout package cannot be located.
	ErrPackageNotFound = errors.New("workout package not found")
	// ErrStepNotFound is returned when a workout step cannot be located.
	ErrStepNotFound = errors.New("workout step not found")
	// ErrInstructionNotFound is returned when a voice instruction cannot be located.
	ErrInstructionNotFound = errors.New("voice instruction not found")
	// ErrDuplicateStepOrder indicates the step order is already taken within the package.
	ErrDuplicateStepOrder = errors.New("step order already used within package")
	// ErrStaleWrite indicates the step version moved between read and conditional write.
	ErrStaleWrite = errors.New("step version changed since it was read")
	// ErrNotOwner indicates the caller tried to mutate a package owned by someone else.
	ErrNotOwner = errors.New("workout package belongs to another owner")
)

// ValidationError reports malformed or out-of-range caller input.
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
