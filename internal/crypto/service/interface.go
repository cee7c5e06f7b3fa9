// Package service provides the cryptographic primitives of the key hierarchy:
// AEAD ciphers, key custodians that hold the master key, and the key manager that
// creates and opens CellKeys and DataKeys.
package service

import (
	"context"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/cellvault/internal/crypto/domain"
)

// AEAD is an authenticated cipher bound to one key. Encrypt draws a fresh random nonce.
//
// Implementations are safe for concurrent use. Decrypt reports every authentication
// failure as cryptoDomain.ErrUnwrapIntegrity and never returns partial plaintext.
type AEAD interface {
	Encrypt(plaintext, aad []byte) (ciphertext, nonce []byte, err error)
	Decrypt(ciphertext, nonce, aad []byte) ([]byte, error)
}

// AEADManager creates AEAD ciphers from raw key bytes.
type AEADManager interface {
	CreateCipher(key []byte, alg cryptoDomain.Algorithm) (AEAD, error)
}

// KeyCustodian is the only holder of the master key. It may be a local keystore or a
// remote KMS/HSM; either way the hierarchy treats the returned blobs as opaque.
//
// Transport failures are reported as cryptoDomain.ErrCustodianUnavailable and
// authentication failures as cryptoDomain.ErrUnwrapIntegrity.
type KeyCustodian interface {
	// MasterKeyID identifies the master key new wraps are made under.
	MasterKeyID() string
	WrapWithMaster(ctx context.Context, plaintext []byte) ([]byte, error)
	UnwrapWithMaster(ctx context.Context, masterKeyID string, wrapped []byte) ([]byte, error)
	Close() error
}

// KeyManager creates and opens CellKeys and DataKeys.
type KeyManager interface {
	// CreateCellKey generates fresh key material for the given cell and version and
	// wraps it with the custodian. No plaintext survives the call.
	CreateCellKey(
		ctx context.Context,
		cellID uuid.UUID,
		version uint,
		alg cryptoDomain.Algorithm,
	) (*cryptoDomain.CellKey, error)

	// OpenCellKey unwraps a CellKey through the custodian. The caller must Close the
	// returned key on every path.
	OpenCellKey(ctx context.Context, key *cryptoDomain.CellKey) (*OpenedCellKey, error)

	// CreateDataKey generates a fresh DataKey and wraps it under an opened CellKey.
	CreateDataKey(
		cellKey *OpenedCellKey,
		alg cryptoDomain.Algorithm,
	) ([]byte, *cryptoDomain.WrappedDataKey, error)

	// SealDataKey wraps an existing DataKey under an opened CellKey. Used to move a
	// DataKey from a retiring CellKey version onto the current one.
	SealDataKey(
		cellKey *OpenedCellKey,
		dataKey []byte,
		alg cryptoDomain.Algorithm,
	) (*cryptoDomain.WrappedDataKey, error)

	// DecryptDataKey unwraps a DataKey sealed under an opened CellKey.
	DecryptDataKey(cellKey *OpenedCellKey, wrapped *cryptoDomain.WrappedDataKey) ([]byte, error)
}
