package store

import (
	"errors"

	"qfree/queue-service/internal/validate"
)

var (
	ErrQueueNotFound    = errors.New("queue not found")
	ErrLocationNotFound = errors.New("location not found")
	ErrStaffNotFound    = errors.New("staff not found")
	ErrAlreadyQueued    = errors.New("user is already in a queue")
	ErrInvalidState     = errors.New("invalid person state")
	ErrInvalidInput     = errors.New("invalid input")
	ErrEventChainBroken = errors.New("queue event chain broken")
)

// ValidationError describes malformed input rejected before any mutation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// Validate runs struct-tag validation on input and converts the first failure
// into a *ValidationError.
func Validate(input interface{}) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}
	field, message, ok := validate.FirstError(err)
	if !ok {
		return err
	}
	return NewValidationError(field, message)
}
