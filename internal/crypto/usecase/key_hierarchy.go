// Package usecase implements the key hierarchy engine: per-cell CellKey lineages,
// envelope wrap/unwrap of DataKeys, lazy rotation, and retirement of old versions.
//
// Plaintext CellKeys are never cached. Every operation reads a fresh KeyRing
// snapshot, unwraps the one version it needs through the custodian, and zeroes the
// material before returning.
//
// # Concurrency
//
// Rotations of one cell are serialized by a per-cell lock that honours context
// cancellation. Reads and writes never take that lock: they resolve the version to
// use at the start of the operation and pin it with a Lease. Retirement blocks new
// pins on the version and fails with ErrVersionInUse while any pin or persisted
// reference remains.
package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/cellvault/internal/crypto/domain"
	cryptoService "github.com/allisson/cellvault/internal/crypto/service"
	"github.com/allisson/cellvault/internal/database"
	apperrors "github.com/allisson/cellvault/internal/errors"
)

// maxPinAttempts bounds how often AcquireCurrent re-reads the pointer when it races
// with a rotation.
const maxPinAttempts = 3

type keyHierarchy struct {
	txManager  database.TxManager
	keyRepo    CellKeyRepository
	refs       ReferenceCounter
	keyManager cryptoService.KeyManager
	settings   Settings
	pins       *pinRegistry
	locks      sync.Map
	now        func() time.Time
}

// NewKeyHierarchy creates the key hierarchy engine.
func NewKeyHierarchy(
	txManager database.TxManager,
	keyRepo CellKeyRepository,
	refs ReferenceCounter,
	keyManager cryptoService.KeyManager,
	settings Settings,
) KeyHierarchy {
	return &keyHierarchy{
		txManager:  txManager,
		keyRepo:    keyRepo,
		refs:       refs,
		keyManager: keyManager,
		settings:   settings,
		pins:       newPinRegistry(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// InitializeCell creates CellKey version 1 for a new cell. The custodian call happens
// before the transaction opens; the key record and pointer are written together.
func (h *keyHierarchy) InitializeCell(ctx context.Context, cellID uuid.UUID) (*cryptoDomain.CellKey, error) {
	key, err := h.keyManager.CreateCellKey(ctx, cellID, 1, h.settings.CellKeyAlgorithm)
	if err != nil {
		return nil, err
	}

	err = h.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := h.keyRepo.Create(ctx, key); err != nil {
			return err
		}
		return h.keyRepo.SwapPointer(ctx, cellID, 0, key.Version)
	})
	if err != nil {
		return nil, err
	}
	return key, nil
}

// KeyRing reads the pointer and the version table. The pointer is read first: a
// rotation inserts its version before moving the pointer, so the table read after
// it always contains the referenced version.
func (h *keyHierarchy) KeyRing(ctx context.Context, cellID uuid.UUID) (*cryptoDomain.KeyRing, error) {
	current, err := h.keyRepo.GetPointer(ctx, cellID)
	if err != nil {
		return nil, err
	}

	keys, err := h.keyRepo.ListByCell(ctx, cellID)
	if err != nil {
		return nil, err
	}

	return cryptoDomain.NewKeyRing(cellID, current, keys)
}

func (h *keyHierarchy) AcquireCurrent(ctx context.Context, cellID uuid.UUID) (*Lease, error) {
	for range maxPinAttempts {
		ring, err := h.KeyRing(ctx, cellID)
		if err != nil {
			return nil, err
		}

		k := pinKey{cellID: cellID, version: ring.CurrentVersion()}
		if !h.pins.acquire(k) {
			continue
		}
		lease := h.newLease(k)

		// The version may have been retired between the read and the pin.
		key, err := h.lookup(ctx, cellID, k.version)
		if err == nil {
			err = key.Usable()
		}
		if err == nil {
			return lease, nil
		}
		lease.Release()
		if !apperrors.Is(err, cryptoDomain.ErrKeyRevoked) {
			return nil, err
		}
	}
	return nil, cryptoDomain.ErrPointerConflict
}

func (h *keyHierarchy) Pin(ctx context.Context, cellID uuid.UUID, version uint) (*Lease, error) {
	k := pinKey{cellID: cellID, version: version}
	if !h.pins.acquire(k) {
		return nil, cryptoDomain.ErrKeyRevoked
	}
	lease := h.newLease(k)

	key, err := h.lookup(ctx, cellID, version)
	if err == nil {
		err = key.Usable()
	}
	if err != nil {
		lease.Release()
		return nil, err
	}
	return lease, nil
}

// WrapDataKey generates a DataKey and wraps it under the given CellKey version.
// The caller owns the plaintext and must zero it.
func (h *keyHierarchy) WrapDataKey(
	ctx context.Context,
	cellID uuid.UUID,
	version uint,
) ([]byte, *cryptoDomain.WrappedDataKey, error) {
	opened, err := h.open(ctx, cellID, version)
	if err != nil {
		return nil, nil, err
	}
	defer opened.Close()

	return h.keyManager.CreateDataKey(opened, h.settings.DataKeyAlgorithm)
}

// UnwrapDataKey opens a DataKey. A tampered blob yields ErrUnwrapIntegrity; a purged
// version yields ErrKeyRevoked.
func (h *keyHierarchy) UnwrapDataKey(
	ctx context.Context,
	cellID uuid.UUID,
	version uint,
	wrapped *cryptoDomain.WrappedDataKey,
) ([]byte, error) {
	opened, err := h.open(ctx, cellID, version)
	if err != nil {
		return nil, err
	}
	defer opened.Close()

	return h.keyManager.DecryptDataKey(opened, wrapped)
}

func (h *keyHierarchy) BeginRotation(ctx context.Context, cellID uuid.UUID) (*Rotation, error) {
	unlock, err := h.lockRotation(ctx, cellID)
	if err != nil {
		return nil, err
	}

	ring, err := h.KeyRing(ctx, cellID)
	if err != nil {
		unlock()
		return nil, err
	}

	versions := ring.Versions()
	next := versions[len(versions)-1].Version + 1

	key, err := h.keyManager.CreateCellKey(ctx, cellID, next, h.settings.CellKeyAlgorithm)
	if err != nil {
		unlock()
		return nil, err
	}

	return &Rotation{
		CellID:      cellID,
		FromVersion: ring.CurrentVersion(),
		ToVersion:   next,
		h:           h,
		key:         key,
		unlock:      unlock,
	}, nil
}

func (h *keyHierarchy) RotateCellKey(ctx context.Context, cellID uuid.UUID) (uint, error) {
	rotation, err := h.BeginRotation(ctx, cellID)
	if err != nil {
		return 0, err
	}
	defer rotation.Release()

	if err := h.txManager.WithTx(ctx, rotation.Commit); err != nil {
		return 0, err
	}
	return rotation.ToVersion, nil
}

func (h *keyHierarchy) BeginRetirement(
	ctx context.Context,
	cellID uuid.UUID,
	version uint,
) (*Retirement, error) {
	ring, err := h.KeyRing(ctx, cellID)
	if err != nil {
		return nil, err
	}

	key, ok := ring.Get(version)
	if !ok {
		return nil, cryptoDomain.ErrKeyNotFound
	}
	if key.State == cryptoDomain.KeyStateRetired {
		return &Retirement{CellID: cellID, Version: version, AlreadyRetired: true, h: h}, nil
	}
	if version == ring.CurrentVersion() {
		return nil, fmt.Errorf("%w: version %d is current", cryptoDomain.ErrVersionInUse, version)
	}

	k := pinKey{cellID: cellID, version: version}
	if !h.pins.block(k) {
		return nil, fmt.Errorf("%w: version %d has in-flight operations", cryptoDomain.ErrVersionInUse, version)
	}

	retirement := &Retirement{
		CellID:  cellID,
		Version: version,
		h:       h,
		unblock: func() { h.pins.unblock(k) },
	}
	if err := retirement.checkReferences(ctx); err != nil {
		retirement.Release()
		return nil, err
	}
	return retirement, nil
}

func (h *keyHierarchy) RetireCellKeyVersion(ctx context.Context, cellID uuid.UUID, version uint) error {
	retirement, err := h.BeginRetirement(ctx, cellID, version)
	if err != nil {
		return err
	}
	defer retirement.Release()

	return h.txManager.WithTx(ctx, retirement.Commit)
}

func (h *keyHierarchy) BeginPurge(ctx context.Context, cellID uuid.UUID) (*Purge, error) {
	unlock, err := h.lockRotation(ctx, cellID)
	if err != nil {
		return nil, err
	}
	return &Purge{CellID: cellID, h: h, unlock: unlock}, nil
}

// PurgeCell drops the whole lineage. The caller guarantees the cell holds no secrets.
func (h *keyHierarchy) PurgeCell(ctx context.Context, cellID uuid.UUID) error {
	purge, err := h.BeginPurge(ctx, cellID)
	if err != nil {
		return err
	}
	defer purge.Release()

	return h.txManager.WithTx(ctx, purge.Commit)
}

func (h *keyHierarchy) lookup(
	ctx context.Context,
	cellID uuid.UUID,
	version uint,
) (*cryptoDomain.CellKey, error) {
	ring, err := h.KeyRing(ctx, cellID)
	if err != nil {
		return nil, err
	}
	key, ok := ring.Get(version)
	if !ok {
		return nil, cryptoDomain.ErrKeyNotFound
	}
	return key, nil
}

func (h *keyHierarchy) open(
	ctx context.Context,
	cellID uuid.UUID,
	version uint,
) (*cryptoService.OpenedCellKey, error) {
	key, err := h.lookup(ctx, cellID, version)
	if err != nil {
		return nil, err
	}
	return h.keyManager.OpenCellKey(ctx, key)
}

func (h *keyHierarchy) newLease(k pinKey) *Lease {
	return &Lease{
		CellID:  k.cellID,
		Version: k.version,
		release: func() { h.pins.release(k) },
	}
}

// lockRotation takes the per-cell rotation lock, giving up when ctx is done.
func (h *keyHierarchy) lockRotation(ctx context.Context, cellID uuid.UUID) (func(), error) {
	v, _ := h.locks.LoadOrStore(cellID, make(chan struct{}, 1))
	sem := v.(chan struct{})

	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, apperrors.FromContext(ctx.Err())
	}
}
