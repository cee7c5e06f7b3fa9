package domain

import (
	"crypto/subtle"
	"encoding/binary"
	"sort"
	"time"

	"github.com/google/uuid"
)

// CellKey is one version of a cell's key encryption key, persisted only in the form
// returned by the key custodian.
//
// Versions are numbered from 1 and never reused within a cell. When a version is
// retired its WrappedKey is purged, which makes every later unwrap fail with
// ErrKeyRevoked.
//
// Only the current version is Active. Older versions stay Retiring while any DataKey
// is still wrapped under them and become Retired once migration has moved the last
// one; see KeyState.
type CellKey struct {
	ID          uuid.UUID
	CellID      uuid.UUID
	Version     uint
	Algorithm   Algorithm
	MasterKeyID string
	WrappedKey  []byte
	State       KeyState
	CreatedAt   time.Time
	RetiredAt   *time.Time
}

// Usable returns ErrKeyRevoked when the version can no longer unwrap data keys.
func (k *CellKey) Usable() error {
	if k.State == KeyStateRetired || len(k.WrappedKey) == 0 {
		return ErrKeyRevoked
	}
	return nil
}

// KeyRing is an immutable snapshot of one cell's key lineage: an append-only table of
// versions and the current-version pointer into it. A new snapshot is read at the start
// of each operation so a concurrent rotation is observed either entirely or not at all.
//
// A KeyRing never changes after NewKeyRing and is safe to share between goroutines.
// The CellKeys it returns are the snapshot's own pointers and must not be modified.
type KeyRing struct {
	cellID  uuid.UUID
	current uint
	keys    []*CellKey
}

// NewKeyRing builds a snapshot from the persisted versions and pointer.
// Returns ErrKeyNotFound when the pointer references a version not in keys.
func NewKeyRing(cellID uuid.UUID, current uint, keys []*CellKey) (*KeyRing, error) {
	sorted := make([]*CellKey, len(keys))
	copy(sorted, keys)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	ring := &KeyRing{cellID: cellID, current: current, keys: sorted}
	if _, ok := ring.Get(current); !ok {
		return nil, ErrKeyNotFound
	}
	return ring, nil
}

// CellID returns the cell the ring belongs to.
func (r *KeyRing) CellID() uuid.UUID {
	return r.cellID
}

// CurrentVersion returns the version new data keys are wrapped under.
func (r *KeyRing) CurrentVersion() uint {
	return r.current
}

// Current returns the CellKey the pointer references.
func (r *KeyRing) Current() *CellKey {
	key, _ := r.Get(r.current)
	return key
}

// Get looks up a version.
func (r *KeyRing) Get(version uint) (*CellKey, bool) {
	i := sort.Search(len(r.keys), func(i int) bool { return r.keys[i].Version >= version })
	if i < len(r.keys) && r.keys[i].Version == version {
		return r.keys[i], true
	}
	return nil, false
}

// Versions returns every version, oldest first.
func (r *KeyRing) Versions() []*CellKey {
	out := make([]*CellKey, len(r.keys))
	copy(out, r.keys)
	return out
}

// InState returns the versions currently in the given state, oldest first.
func (r *KeyRing) InState(state KeyState) []*CellKey {
	var out []*CellKey
	for _, k := range r.keys {
		if k.State == state {
			out = append(out, k)
		}
	}
	return out
}

// cellKeyHeaderSize is the length of the binding prefix: cell id plus version.
const cellKeyHeaderSize = 16 + 8

// BindKeyMaterial prefixes raw CellKey bytes with the owning cell and version before
// they are handed to the custodian, so a wrapped key copied onto another cell or
// version is rejected on unwrap.
func BindKeyMaterial(cellID uuid.UUID, version uint, key []byte) []byte {
	out := make([]byte, cellKeyHeaderSize+len(key))
	copy(out, cellID[:])
	binary.BigEndian.PutUint64(out[16:cellKeyHeaderSize], uint64(version))
	copy(out[cellKeyHeaderSize:], key)
	return out
}

// UnbindKeyMaterial verifies the binding prefix and returns the key bytes, a sub-slice
// of material. Zeroing material zeroes the returned key as well.
func UnbindKeyMaterial(cellID uuid.UUID, version uint, material []byte) ([]byte, error) {
	if len(material) != cellKeyHeaderSize+KeySize {
		return nil, ErrUnwrapIntegrity
	}
	var header [cellKeyHeaderSize]byte
	copy(header[:], cellID[:])
	binary.BigEndian.PutUint64(header[16:], uint64(version))
	if subtle.ConstantTimeCompare(header[:], material[:cellKeyHeaderSize]) != 1 {
		return nil, ErrUnwrapIntegrity
	}
	return material[cellKeyHeaderSize:], nil
}
