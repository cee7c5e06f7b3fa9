package domain

import (
	"github.com/allisson/cellvault/internal/errors"
)

// Audit log error definitions.
var (
	// ErrAuditWriteFailed indicates an entry could not be durably appended. The
	// operation that produced it must be reported as failed.
	ErrAuditWriteFailed = errors.New("audit write failed")

	// ErrEntryNotFound indicates no entry exists at the requested sequence number.
	ErrEntryNotFound = errors.Wrap(errors.ErrNotFound, "audit entry not found")

	// ErrInvalidRange indicates a verification range with from greater than to.
	ErrInvalidRange = errors.Wrap(errors.ErrInvalidInput, "invalid audit range")
)
