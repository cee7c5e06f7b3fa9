package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/cellvault/internal/crypto/domain"
)

// CellKeyRepository persists wrapped CellKey versions and the per-cell current-version
// pointer. Versions are append-only; only their state changes after creation.
type CellKeyRepository interface {
	// Create inserts a new CellKey version.
	Create(ctx context.Context, key *cryptoDomain.CellKey) error

	// ListByCell returns every version of a cell, oldest first.
	ListByCell(ctx context.Context, cellID uuid.UUID) ([]*cryptoDomain.CellKey, error)

	// UpdateState moves a version to state. Moving to KeyStateRetired also purges the
	// wrapped key material.
	UpdateState(
		ctx context.Context,
		cellID uuid.UUID,
		version uint,
		state cryptoDomain.KeyState,
		at time.Time,
	) error

	// GetPointer returns the current version. ErrKeyNotFound when the cell has none.
	GetPointer(ctx context.Context, cellID uuid.UUID) (uint, error)

	// SwapPointer sets the current version to next only if it is still expected.
	// expected == 0 creates the pointer. Returns ErrPointerConflict otherwise.
	SwapPointer(ctx context.Context, cellID uuid.UUID, expected, next uint) error

	// DeleteByCell removes every version and the pointer of a cell.
	DeleteByCell(ctx context.Context, cellID uuid.UUID) error
}

// ReferenceCounter scans persisted secret metadata for DataKeys wrapped under a
// CellKey version.
type ReferenceCounter interface {
	CountByKeyVersion(ctx context.Context, cellID uuid.UUID, version uint) (int64, error)
}

// KeyHierarchy manages the per-cell key lineage and envelope operations.
type KeyHierarchy interface {
	// InitializeCell creates CellKey version 1 and points the cell at it.
	InitializeCell(ctx context.Context, cellID uuid.UUID) (*cryptoDomain.CellKey, error)

	// KeyRing reads a snapshot of the cell's key lineage.
	KeyRing(ctx context.Context, cellID uuid.UUID) (*cryptoDomain.KeyRing, error)

	// AcquireCurrent pins the current version so it cannot be retired until the lease
	// is released.
	AcquireCurrent(ctx context.Context, cellID uuid.UUID) (*Lease, error)

	// Pin pins a specific version. Returns ErrKeyRevoked when the version is retired
	// or being retired.
	Pin(ctx context.Context, cellID uuid.UUID, version uint) (*Lease, error)

	// WrapDataKey generates a fresh DataKey wrapped under the given version.
	WrapDataKey(
		ctx context.Context,
		cellID uuid.UUID,
		version uint,
	) ([]byte, *cryptoDomain.WrappedDataKey, error)

	// UnwrapDataKey opens a DataKey wrapped under the given version.
	UnwrapDataKey(
		ctx context.Context,
		cellID uuid.UUID,
		version uint,
		wrapped *cryptoDomain.WrappedDataKey,
	) ([]byte, error)

	// NewRewrapper opens the current version for a batch of re-wraps.
	NewRewrapper(ctx context.Context, cellID uuid.UUID) (*Rewrapper, error)

	// BeginRotation prepares the next version and holds the cell's rotation lock
	// until Release.
	BeginRotation(ctx context.Context, cellID uuid.UUID) (*Rotation, error)

	// RotateCellKey runs BeginRotation and commits it in its own transaction.
	RotateCellKey(ctx context.Context, cellID uuid.UUID) (uint, error)

	// BeginRetirement checks a version can be retired and blocks new pins on it
	// until Release.
	BeginRetirement(ctx context.Context, cellID uuid.UUID, version uint) (*Retirement, error)

	// RetireCellKeyVersion runs BeginRetirement and commits it in its own transaction.
	RetireCellKeyVersion(ctx context.Context, cellID uuid.UUID, version uint) error

	// BeginPurge takes the cell's rotation lock for a purge of its lineage. Callers that
	// combine the purge with other writes take it before opening their transaction.
	BeginPurge(ctx context.Context, cellID uuid.UUID) (*Purge, error)

	// PurgeCell removes the whole key lineage of a cell.
	PurgeCell(ctx context.Context, cellID uuid.UUID) error
}
