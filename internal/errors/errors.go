// Package errors provides standardized domain errors that express business intent
// rather than infrastructure details. Every bounded context wraps one of these
// sentinels so callers can branch on the kind without knowing the package that
// produced the error.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Standard domain errors that can be used across all domain modules.
var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a conflict with existing data (e.g., duplicate key).
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indicates the input data is invalid or fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates the caller's session is not acceptable.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the subject doesn't have permission.
	ErrForbidden = errors.New("forbidden")

	// ErrUnavailable indicates a collaborator (custodian, persistence) could not be reached.
	// Errors of this kind are transient.
	ErrUnavailable = errors.New("unavailable")

	// ErrTimeout indicates the operation ran out of time or was canceled. Transient.
	ErrTimeout = errors.New("timeout")

	// ErrIntegrity indicates authenticated data failed verification.
	ErrIntegrity = errors.New("integrity violation")
)

// New creates a new error with the given message.
// This is a convenience wrapper around errors.New for consistency.
func New(message string) error {
	return errors.New(message)
}

// Wrap wraps an error with additional context while preserving the error chain.
// Use this to add context at each layer without losing the original error type.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted message while preserving the error chain.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's tree matches target.
// This is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
// This is a convenience wrapper around errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// IsTransient reports whether err is eligible for caller-directed retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout)
}

// FromContext converts context cancellation and deadline errors into ErrTimeout.
// Any other error is returned unchanged.
func FromContext(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: deadline exceeded", ErrTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: operation canceled", ErrTimeout)
	}
	return err
}
