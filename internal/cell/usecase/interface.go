// Package usecase implements the cell manager, the orchestration layer that ties the
// access control engine, the key hierarchy and the audit log together. Every
// caller-facing operation is authorized, executed and audited here.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	accessDomain "github.com/allisson/cellvault/internal/access/domain"
	auditDomain "github.com/allisson/cellvault/internal/audit/domain"
	cellDomain "github.com/allisson/cellvault/internal/cell/domain"
	cryptoDomain "github.com/allisson/cellvault/internal/crypto/domain"
)

// CellRepository defines persistence operations for cells.
// Implementations must support transaction-aware operations via context propagation.
type CellRepository interface {
	// Create stores a new cell. Returns ErrCellAlreadyExists when the name is taken.
	Create(ctx context.Context, cell *cellDomain.Cell) error

	// Get retrieves a cell by ID. Returns ErrCellNotFound if not found.
	Get(ctx context.Context, cellID uuid.UUID) (*cellDomain.Cell, error)

	// List returns cells ordered by name with pagination.
	List(ctx context.Context, offset, limit int) ([]*cellDomain.Cell, error)

	// Update persists the mutable attributes of a cell.
	Update(ctx context.Context, cell *cellDomain.Cell) error

	// Delete removes a cell. Returns ErrCellNotFound if not found.
	Delete(ctx context.Context, cellID uuid.UUID) error
}

// SecretRepository defines persistence operations for secret versions. Versions are
// append-only: the only in-place change is moving a DataKey to a newer CellKey version.
type SecretRepository interface {
	// Create stores a new version. Returns ErrConflict when the version already exists.
	Create(ctx context.Context, secret *cellDomain.SecretVersion) error

	// GetLatest returns the highest version of a secret. Returns ErrSecretNotFound.
	GetLatest(ctx context.Context, cellID uuid.UUID, secretID string) (*cellDomain.SecretVersion, error)

	// GetVersion returns one version. Returns ErrSecretVersionNotFound.
	GetVersion(
		ctx context.Context,
		cellID uuid.UUID,
		secretID string,
		version uint,
	) (*cellDomain.SecretVersion, error)

	// ListVersions returns every version of a secret, oldest first.
	ListVersions(ctx context.Context, cellID uuid.UUID, secretID string) ([]*cellDomain.SecretVersion, error)

	// CountSecrets returns the number of distinct secret ids in a cell.
	CountSecrets(ctx context.Context, cellID uuid.UUID) (int64, error)

	// CountByKeyVersion returns the number of versions whose DataKey is wrapped under
	// the CellKey version. It is the liveness scan that gates retirement.
	CountByKeyVersion(ctx context.Context, cellID uuid.UUID, keyVersion uint) (int64, error)

	// ListBelowKeyVersion returns up to limit versions wrapped under a CellKey version
	// older than keyVersion, ordered by ID and starting after the cursor.
	ListBelowKeyVersion(
		ctx context.Context,
		cellID uuid.UUID,
		keyVersion uint,
		after uuid.UUID,
		limit int,
	) ([]*cellDomain.SecretVersion, error)

	// UpdateDataKey moves a version's DataKey from one CellKey version to another. It
	// reports false when the version no longer sits on fromKeyVersion.
	UpdateDataKey(
		ctx context.Context,
		id uuid.UUID,
		fromKeyVersion uint,
		toKeyVersion uint,
		dataKey *cryptoDomain.WrappedDataKey,
	) (bool, error)

	// DeleteBySecretID removes every version of a secret and returns how many were removed.
	DeleteBySecretID(ctx context.Context, cellID uuid.UUID, secretID string) (int64, error)
}

// MigrationReport summarizes one migration sweep over a cell.
type MigrationReport struct {
	CellID        uuid.UUID
	TargetVersion uint
	Migrated      int
	Skipped       int
	Failed        int
}

// CellManager is the caller-facing surface of the vault. Every operation except
// Evaluate, VerifyChain and ListAuditEntries appends exactly one audit entry; an
// operation whose entry cannot be written fails with ErrAuditWriteFailed.
type CellManager interface {
	// CreateCell creates a cell with CellKey version 1. When input.Owner is set the
	// owner is granted every action on the cell.
	CreateCell(
		ctx context.Context,
		claims *accessDomain.Claims,
		input *cellDomain.CreateCellInput,
	) (*cellDomain.Cell, error)

	// GetCell returns a cell and its current CellKey version. Requires read.
	GetCell(ctx context.Context, claims *accessDomain.Claims, cellID uuid.UUID) (*cellDomain.Cell, error)

	// ListCells returns cells ordered by name. Operator operation.
	ListCells(
		ctx context.Context,
		claims *accessDomain.Claims,
		offset, limit int,
	) ([]*cellDomain.Cell, error)

	// UpdateCell changes the description, rotation interval or metadata. Requires administer.
	UpdateCell(
		ctx context.Context,
		claims *accessDomain.Claims,
		cellID uuid.UUID,
		input *cellDomain.UpdateCellInput,
	) (*cellDomain.Cell, error)

	// DeleteCell removes an empty cell with its key lineage and policies. Requires administer.
	DeleteCell(ctx context.Context, claims *accessDomain.Claims, cellID uuid.UUID) error

	// GrantPolicy adds a policy to a cell. Requires administer.
	GrantPolicy(
		ctx context.Context,
		claims *accessDomain.Claims,
		input *accessDomain.GrantPolicyInput,
	) (*accessDomain.Policy, error)

	// RevokePolicy removes a policy from a cell. Requires administer.
	RevokePolicy(ctx context.Context, claims *accessDomain.Claims, cellID, policyID uuid.UUID) error

	// ListPolicies returns the policies on a cell. Requires administer.
	ListPolicies(
		ctx context.Context,
		claims *accessDomain.Claims,
		cellID uuid.UUID,
	) ([]*accessDomain.Policy, error)

	// Unlock clears a subject's lockout. Only subjects listed in Settings.Operators may
	// call it, never on themselves and never while locked out.
	Unlock(ctx context.Context, claims *accessDomain.Claims, subject string) error

	// Evaluate previews an access decision without side effects and without auditing.
	Evaluate(
		ctx context.Context,
		claims *accessDomain.Claims,
		cellID uuid.UUID,
		action accessDomain.Action,
	) (*accessDomain.Decision, error)

	// PutSecret encrypts and stores a new version of a secret. Requires write.
	PutSecret(
		ctx context.Context,
		claims *accessDomain.Claims,
		input *cellDomain.PutSecretInput,
	) (*cellDomain.SecretVersion, error)

	// GetSecret decrypts a secret version, or the latest when version is zero.
	// Requires read. The caller owns the returned Plaintext and must zero it.
	GetSecret(
		ctx context.Context,
		claims *accessDomain.Claims,
		cellID uuid.UUID,
		secretID string,
		version uint,
	) (*cellDomain.SecretVersion, error)

	// ListSecretVersions returns version metadata without plaintext. Requires read.
	ListSecretVersions(
		ctx context.Context,
		claims *accessDomain.Claims,
		cellID uuid.UUID,
		secretID string,
	) ([]*cellDomain.SecretVersion, error)

	// PurgeSecret removes every version of a secret. Requires administer.
	PurgeSecret(ctx context.Context, claims *accessDomain.Claims, cellID uuid.UUID, secretID string) error

	// RotateCell advances the cell to a new CellKey version and queues a migration
	// sweep for it. Requires rotate.
	RotateCell(ctx context.Context, claims *accessDomain.Claims, cellID uuid.UUID) (uint, error)

	// MigrateCell re-wraps every DataKey older than the current CellKey version.
	// Requires rotate.
	MigrateCell(ctx context.Context, claims *accessDomain.Claims, cellID uuid.UUID) (*MigrationReport, error)

	// RetireCellKeyVersion retires a CellKey version that no secret references.
	// Requires rotate.
	RetireCellKeyVersion(
		ctx context.Context,
		claims *accessDomain.Claims,
		cellID uuid.UUID,
		version uint,
	) error

	// VerifyChain recomputes the audit chain over [from, to].
	VerifyChain(ctx context.Context, from, to uint64) (*auditDomain.VerifyResult, error)

	// ListAuditEntries returns audit entries starting at sequence from.
	ListAuditEntries(ctx context.Context, from uint64, limit int) ([]*auditDomain.Entry, error)
}

// Maintainer is the trusted in-process surface used by the rotation scheduler. Its
// operations run as the scheduler subject without policy checks and are audited
// like any other operation.
type Maintainer interface {
	// DueForRotation returns the cells whose CellKey has outlived their interval.
	DueForRotation(ctx context.Context, now time.Time) ([]uuid.UUID, error)

	// AwaitingMigration returns the cells that still hold Retiring CellKey versions.
	// It reads persisted key state, so cells rotated by another process or dropped
	// from a full PendingMigrations queue are still found.
	AwaitingMigration(ctx context.Context) ([]uuid.UUID, error)

	// RotateDue rotates one cell.
	RotateDue(ctx context.Context, cellID uuid.UUID) (uint, error)

	// Migrate re-wraps old DataKeys of one cell onto its current CellKey version.
	Migrate(ctx context.Context, cellID uuid.UUID) (*MigrationReport, error)

	// RetireStale retires every Retiring version of the cell that nothing references
	// and returns the retired versions.
	RetireStale(ctx context.Context, cellID uuid.UUID) ([]uint, error)

	// PendingMigrations delivers the ids of cells rotated through RotateCell so the
	// scheduler can migrate them without waiting for the next sweep.
	PendingMigrations() <-chan uuid.UUID
}
