// Package usecase implements the append-only audit log. Entries are chained by hash
// and appended under a single writer so sequence numbers stay gapless.
package usecase

import (
	"context"

	auditDomain "github.com/allisson/cellvault/internal/audit/domain"
)

// EntryRepository defines persistence operations for audit entries.
// Implementations must support transaction-aware operations via context propagation
// and must reject a second entry with an existing sequence number.
type EntryRepository interface {
	// Append stores a sealed entry. Returns ErrConflict when the sequence is taken.
	Append(ctx context.Context, entry *auditDomain.Entry) error

	// Last returns the entry with the highest sequence number, or nil when empty.
	Last(ctx context.Context) (*auditDomain.Entry, error)

	// Get retrieves the entry at seq. Returns ErrEntryNotFound if absent.
	Get(ctx context.Context, seq uint64) (*auditDomain.Entry, error)

	// ListRange returns up to limit entries with from <= sequence <= to in ascending
	// order. A to of zero means no upper bound.
	ListRange(ctx context.Context, from, to uint64, limit int) ([]*auditDomain.Entry, error)
}

// AuditLog appends and verifies the hash-chained audit trail.
type AuditLog interface {
	// Record runs commit and appends entry in the same transaction. If commit fails
	// nothing is appended and its error is returned unchanged. If the append or the
	// transaction commit fails, nothing is persisted and ErrAuditWriteFailed is
	// returned. commit may be nil; it may fill in entry fields before the entry is
	// sealed.
	Record(
		ctx context.Context,
		entry *auditDomain.Entry,
		commit func(ctx context.Context) error,
	) (*auditDomain.Entry, error)

	// Append records an entry that has no accompanying state change.
	Append(ctx context.Context, entry *auditDomain.Entry) (*auditDomain.Entry, error)

	// VerifyChain recomputes every hash in [from, to]. Zero from starts at the first
	// entry; zero to ends at the current head.
	VerifyChain(ctx context.Context, from, to uint64) (*auditDomain.VerifyResult, error)

	// List returns up to limit entries starting at sequence from.
	List(ctx context.Context, from uint64, limit int) ([]*auditDomain.Entry, error)
}
