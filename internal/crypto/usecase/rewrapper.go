package usecase

import (
	"context"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/cellvault/internal/crypto/domain"
	cryptoService "github.com/allisson/cellvault/internal/crypto/service"
)

type rewrapSource struct {
	opened *cryptoService.OpenedCellKey
	lease  *Lease
}

// Rewrapper moves DataKeys of one cell from older CellKey versions onto the current
// one. Each CellKey version involved is unwrapped once per batch and pinned until
// Close. A Rewrapper is not safe for concurrent use.
type Rewrapper struct {
	h       *keyHierarchy
	cellID  uuid.UUID
	target  *cryptoService.OpenedCellKey
	lease   *Lease
	sources map[uint]rewrapSource
}

func (h *keyHierarchy) NewRewrapper(ctx context.Context, cellID uuid.UUID) (*Rewrapper, error) {
	lease, err := h.AcquireCurrent(ctx, cellID)
	if err != nil {
		return nil, err
	}

	target, err := h.open(ctx, cellID, lease.Version)
	if err != nil {
		lease.Release()
		return nil, err
	}

	return &Rewrapper{
		h:       h,
		cellID:  cellID,
		target:  target,
		lease:   lease,
		sources: make(map[uint]rewrapSource),
	}, nil
}

// TargetVersion is the CellKey version every re-wrapped DataKey ends up under.
func (r *Rewrapper) TargetVersion() uint {
	return r.lease.Version
}

// Rewrap unwraps a DataKey under fromVersion and seals it under the target version,
// keeping its algorithm. The plaintext DataKey is zeroed before returning.
func (r *Rewrapper) Rewrap(
	ctx context.Context,
	fromVersion uint,
	wrapped *cryptoDomain.WrappedDataKey,
) (*cryptoDomain.WrappedDataKey, error) {
	if fromVersion == r.TargetVersion() {
		return wrapped, nil
	}

	source, err := r.source(ctx, fromVersion)
	if err != nil {
		return nil, err
	}

	dataKey, err := r.h.keyManager.DecryptDataKey(source, wrapped)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(dataKey)

	return r.h.keyManager.SealDataKey(r.target, dataKey, wrapped.Algorithm)
}

// Close zeroes every opened CellKey and releases every pin.
func (r *Rewrapper) Close() {
	for version, source := range r.sources {
		source.opened.Close()
		source.lease.Release()
		delete(r.sources, version)
	}
	r.target.Close()
	r.lease.Release()
}

func (r *Rewrapper) source(ctx context.Context, version uint) (*cryptoService.OpenedCellKey, error) {
	if source, ok := r.sources[version]; ok {
		return source.opened, nil
	}

	lease, err := r.h.Pin(ctx, r.cellID, version)
	if err != nil {
		return nil, err
	}

	opened, err := r.h.open(ctx, r.cellID, version)
	if err != nil {
		lease.Release()
		return nil, err
	}

	r.sources[version] = rewrapSource{opened: opened, lease: lease}
	return opened, nil
}
