package gallerykit

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for gallerykit operations.
var (
	// ErrValidation is returned when input is rejected before any store call.
	ErrValidation = errors.New("gallerykit: validation failed")

	// ErrUnauthorized is returned when a capability check fails.
	ErrUnauthorized = errors.New("gallerykit: unauthorized")

	// ErrDependency is returned when the store fails or times out. It is retryable.
	ErrDependency = errors.New("gallerykit: dependency failure")

	// ErrConsistency is returned when the current state does not allow the operation,
	// e.g. resolving a request that is no longer pending.
	ErrConsistency = errors.New("gallerykit: consistency violation")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("gallerykit: not found")
)

// Error wraps a sentinel error with additional context.
type Error struct {
	Err       error  // Underlying sentinel error
	Message   string // Additional context
	SubjectID string // Subject involved (if applicable)
	ActorID   string // Actor who triggered the error (if applicable)
	RequestID string // Artist request involved (if applicable)
	Role      Role   // Role involved (if applicable)
	Cause     error  // Lower-level error, e.g. from the database driver
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Err.Error()
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap exposes both the sentinel and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// NewError creates a new Error with context.
func NewError(err error, message string) *Error {
	return &Error{
		Err:     err,
		Message: message,
	}
}

// WithSubject adds subject information to the error.
func (e *Error) WithSubject(subjectID string) *Error {
	e.SubjectID = subjectID
	return e
}

// WithActor adds actor information to the error.
func (e *Error) WithActor(actorID string) *Error {
	e.ActorID = actorID
	return e
}

// WithRequest adds the artist request id to the error.
func (e *Error) WithRequest(requestID string) *Error {
	e.RequestID = requestID
	return e
}

// WithRole adds role information to the error.
func (e *Error) WithRole(role Role) *Error {
	e.Role = role
	return e
}

// WithCause attaches the lower-level error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// dependencyError classifies a store error. Errors the store already
// classified are returned unchanged.
func dependencyError(err error, op string) error {
	if err == nil {
		return nil
	}
	var gErr *Error
	if errors.As(err, &gErr) {
		return err
	}
	msg := op + " failed"
	if errors.Is(err, context.DeadlineExceeded) {
		msg = op + " timed out"
	}
	return NewError(ErrDependency, msg).WithCause(err)
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsUnauthorized checks if an error is an authorization error.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsDependency checks if an error comes from a failing store.
func IsDependency(err error) bool {
	return errors.Is(err, ErrDependency)
}

// IsConsistency checks if an error is a state conflict.
func IsConsistency(err error) bool {
	return errors.Is(err, ErrConsistency)
}

// IsNotFound checks if an error is due to a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
