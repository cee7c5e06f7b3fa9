package domain

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// HashSize is the length of every chain hash.
const HashSize = sha256.Size

// GenesisHash is the previous hash of the first entry.
var GenesisHash = make([]byte, HashSize)

// ComputeHash returns SHA-256(prev || canonical(entry)).
func ComputeHash(prev []byte, entry *Entry) ([]byte, error) {
	canonical, err := Canonicalize(entry)
	if err != nil {
		return nil, err
	}
	h := sha256.New()
	h.Write(prev)
	h.Write(canonical)
	return h.Sum(nil), nil
}

// Canonicalize converts the hashed fields of an entry to a byte representation.
// Format: sequence || id || timestamp || subject || cell_id || action || outcome ||
// reason || signal || metadata, with variable-length fields length-prefixed.
// Metadata is JSON with sorted keys; an empty map and a nil map encode the same.
func Canonicalize(entry *Entry) ([]byte, error) {
	buf := make([]byte, 0, 256)

	buf = binary.BigEndian.AppendUint64(buf, entry.Sequence)
	buf = append(buf, entry.ID[:]...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(entry.Timestamp.UnixNano()))
	buf = appendLengthPrefixed(buf, []byte(entry.Subject))
	buf = append(buf, entry.CellID[:]...)
	buf = appendLengthPrefixed(buf, []byte(entry.Action))
	buf = appendLengthPrefixed(buf, []byte(entry.Outcome))
	buf = appendLengthPrefixed(buf, []byte(entry.Reason))
	buf = appendLengthPrefixed(buf, []byte(entry.Signal))

	if len(entry.Metadata) > 0 {
		metadata, err := json.Marshal(entry.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		buf = appendLengthPrefixed(buf, metadata)
	} else {
		buf = appendLengthPrefixed(buf, nil)
	}

	return buf, nil
}

// appendLengthPrefixed adds a 4-byte big-endian length prefix followed by data.
func appendLengthPrefixed(buf []byte, data []byte) []byte {
	if len(data) > 0xFFFFFFFF {
		panic("data length exceeds uint32 max")
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(data)))
	return append(buf, data...)
}
