package domain

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// WrappedDataKey is a per-secret-version data key sealed under one CellKey version.
// The CellKey version itself is recorded alongside by the owner of the blob.
type WrappedDataKey struct {
	Algorithm  Algorithm
	Ciphertext []byte
	Nonce      []byte
}

// dataKeyAADLabel domain-separates data key wraps from every other AEAD use.
const dataKeyAADLabel = "cellvault/data-key/v1"

// DataKeyAAD binds a data key wrap to its cell and CellKey version.
func DataKeyAAD(cellID uuid.UUID, version uint) []byte {
	aad := make([]byte, 0, len(dataKeyAADLabel)+16+8)
	aad = append(aad, dataKeyAADLabel...)
	aad = append(aad, cellID[:]...)
	return binary.BigEndian.AppendUint64(aad, uint64(version))
}
