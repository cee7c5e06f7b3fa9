package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/cellvault/internal/crypto/domain"
)

// Rotation is a prepared CellKey rotation. The new version is already wrapped by the
// custodian; Commit persists it, marks the previous version Retiring, and swaps the
// pointer. The cell's rotation lock is held until Release.
type Rotation struct {
	CellID      uuid.UUID
	FromVersion uint
	ToVersion   uint

	h      *keyHierarchy
	key    *cryptoDomain.CellKey
	unlock func()
	once   sync.Once
}

// Commit writes the rotation. Run it inside the caller's transaction.
func (r *Rotation) Commit(ctx context.Context) error {
	if err := r.h.keyRepo.Create(ctx, r.key); err != nil {
		return err
	}
	if err := r.h.keyRepo.UpdateState(
		ctx, r.CellID, r.FromVersion, cryptoDomain.KeyStateRetiring, r.h.now(),
	); err != nil {
		return err
	}
	return r.h.keyRepo.SwapPointer(ctx, r.CellID, r.FromVersion, r.ToVersion)
}

// Release drops the rotation lock. Safe to call more than once.
func (r *Rotation) Release() {
	r.once.Do(func() {
		if r.unlock != nil {
			r.unlock()
		}
	})
}

// Retirement is a checked retirement of one CellKey version. New pins on the version
// are refused until Release.
type Retirement struct {
	CellID  uuid.UUID
	Version uint
	// AlreadyRetired reports that the version was retired before; Commit is a no-op.
	AlreadyRetired bool

	h       *keyHierarchy
	unblock func()
	once    sync.Once
}

// Commit re-runs the liveness scan inside the caller's transaction and purges the
// version's wrapped material.
func (r *Retirement) Commit(ctx context.Context) error {
	if r.AlreadyRetired {
		return nil
	}
	if err := r.checkReferences(ctx); err != nil {
		return err
	}
	return r.h.keyRepo.UpdateState(ctx, r.CellID, r.Version, cryptoDomain.KeyStateRetired, r.h.now())
}

// Release lifts the pin block. Safe to call more than once.
func (r *Retirement) Release() {
	r.once.Do(func() {
		if r.unblock != nil {
			r.unblock()
		}
	})
}

func (r *Retirement) checkReferences(ctx context.Context) error {
	refs, err := r.h.refs.CountByKeyVersion(ctx, r.CellID, r.Version)
	if err != nil {
		return err
	}
	if refs > 0 {
		return fmt.Errorf(
			"%w: version %d still wraps %d data keys",
			cryptoDomain.ErrVersionInUse,
			r.Version,
			refs,
		)
	}
	return nil
}

// Purge removes a cell's whole key lineage while holding its rotation lock.
type Purge struct {
	CellID uuid.UUID

	h      *keyHierarchy
	unlock func()
	once   sync.Once
}

// Commit deletes every version and the pointer. Run it inside the caller's transaction.
func (p *Purge) Commit(ctx context.Context) error {
	return p.h.keyRepo.DeleteByCell(ctx, p.CellID)
}

// Release drops the rotation lock. Safe to call more than once.
func (p *Purge) Release() {
	p.once.Do(p.unlock)
}
