package domain

import (
	"github.com/allisson/cellvault/internal/errors"
)

// Key hierarchy error definitions.
//
// Each error wraps a standard kind from internal/errors so callers can branch on
// errors.Is(err, errors.ErrNotFound) without importing this package.
var (
	// ErrUnsupportedAlgorithm indicates the requested algorithm is not one of AESGCM or ChaCha20.
	ErrUnsupportedAlgorithm = errors.Wrap(errors.ErrInvalidInput, "unsupported algorithm")

	// ErrInvalidKeySize indicates key material that is not exactly KeySize bytes.
	ErrInvalidKeySize = errors.Wrap(errors.ErrInvalidInput, "invalid key size")

	// ErrKeyNotFound indicates the cell has no key lineage or the version is unknown.
	ErrKeyNotFound = errors.Wrap(errors.ErrNotFound, "cell key not found")

	// ErrKeyRevoked indicates the CellKey version was retired and its material purged.
	ErrKeyRevoked = errors.Wrap(errors.ErrConflict, "cell key version revoked")

	// ErrVersionInUse indicates a CellKey version still has references (persisted or
	// in flight) or is the current version, so it cannot be retired.
	ErrVersionInUse = errors.Wrap(errors.ErrConflict, "cell key version in use")

	// ErrUnwrapIntegrity indicates an authentication tag mismatch while opening a
	// wrapped key or a ciphertext. It signals tampering or corruption, never absence.
	ErrUnwrapIntegrity = errors.Wrap(errors.ErrIntegrity, "unwrap integrity check failed")

	// ErrCustodianUnavailable indicates the key custodian could not be reached. Transient.
	ErrCustodianUnavailable = errors.Wrap(errors.ErrUnavailable, "key custodian unavailable")

	// ErrPointerConflict indicates the current-version pointer moved concurrently.
	ErrPointerConflict = errors.Wrap(errors.ErrConflict, "cell key pointer changed concurrently")
)

// Master key configuration errors.
var (
	ErrMasterKeysNotSet        = errors.New("MASTER_KEYS not set")
	ErrActiveMasterKeyIDNotSet = errors.New("ACTIVE_MASTER_KEY_ID not set")
	ErrInvalidMasterKeysFormat = errors.New("invalid MASTER_KEYS format")
	ErrInvalidMasterKeyBase64  = errors.New("invalid master key base64")
	ErrActiveMasterKeyNotFound = errors.New("active master key not found")
	ErrMasterKeyNotFound       = errors.Wrap(errors.ErrNotFound, "master key not found")
	ErrDuplicateMasterKeyID    = errors.New("duplicate master key id")
)
