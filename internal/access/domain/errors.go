package domain

import (
	"fmt"

	"github.com/allisson/cellvault/internal/errors"
)

// Access control error definitions.
var (
	// ErrPolicyDenied indicates the request was denied by policy evaluation.
	// Use errors.As with *DeniedError to get the reason.
	ErrPolicyDenied = errors.Wrap(errors.ErrForbidden, "policy denied")

	// ErrLockedOut indicates the subject is locked out after repeated denials.
	ErrLockedOut = errors.Wrap(errors.ErrForbidden, "subject locked out")

	// ErrAuthExpired indicates the session claims are outside their validity period.
	ErrAuthExpired = errors.Wrap(errors.ErrUnauthorized, "session expired")

	// ErrPolicyNotFound indicates a policy with the specified ID was not found.
	ErrPolicyNotFound = errors.Wrap(errors.ErrNotFound, "policy not found")

	// ErrInvalidPolicy indicates a malformed policy.
	ErrInvalidPolicy = errors.Wrap(errors.ErrInvalidInput, "invalid policy")
)

// DeniedError carries the reason of a policy denial.
type DeniedError struct {
	Reason Reason
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrPolicyDenied.Error(), e.Reason)
}

func (e *DeniedError) Unwrap() error {
	return ErrPolicyDenied
}
