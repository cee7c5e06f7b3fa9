package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/cellvault/internal/crypto/domain"
)

// OpenedCellKey is a CellKey whose material has been unwrapped for the duration of
// one operation. Close zeroes the material.
//
// An OpenedCellKey may be shared by the goroutines of a single operation, but Close
// must only run once they are done: after Close every seal or unwrap fails.
type OpenedCellKey struct {
	CellID  uuid.UUID
	Version uint

	aead     AEAD
	material []byte
}

// Close zeroes the unwrapped key material. Safe to call more than once.
func (o *OpenedCellKey) Close() {
	cryptoDomain.Zero(o.material)
	o.material = nil
	o.aead = nil
}

// KeyManagerService implements KeyManager on top of an AEADManager and a KeyCustodian.
//
// It handles the two lower tiers of the hierarchy:
//
//	master key (custodian) -> CellKey version -> DataKey -> secret value
//
// CellKey material is prefixed with its cell id and version before the custodian
// wraps it, and DataKeys are sealed with DataKeyAAD of the same pair. A wrapped key
// copied onto another cell or version therefore fails with ErrUnwrapIntegrity
// instead of opening.
//
// Plaintext key material lives only inside OpenedCellKey and the DataKey slices
// handed to the caller; every error path zeroes what it created.
//
// Thread safety:
//
//	KeyManagerService holds no mutable state and is safe for concurrent use. Its
//	latency is dominated by the custodian on CreateCellKey and OpenCellKey; the
//	DataKey methods are local AEAD calls.
type KeyManagerService struct {
	aeadManager AEADManager
	custodian   KeyCustodian
}

// NewKeyManager creates a new KeyManagerService.
func NewKeyManager(aeadManager AEADManager, custodian KeyCustodian) *KeyManagerService {
	return &KeyManagerService{aeadManager: aeadManager, custodian: custodian}
}

// CreateCellKey generates and wraps a new CellKey version. The returned key is
// Active and recorded under the custodian's current MasterKeyID; persisting it and
// moving the current-version pointer is the caller's job.
func (km *KeyManagerService) CreateCellKey(
	ctx context.Context,
	cellID uuid.UUID,
	version uint,
	alg cryptoDomain.Algorithm,
) (*cryptoDomain.CellKey, error) {
	if _, err := cryptoDomain.ParseAlgorithm(string(alg)); err != nil {
		return nil, err
	}

	key, err := generateKey()
	if err != nil {
		return nil, err
	}
	material := cryptoDomain.BindKeyMaterial(cellID, version, key)
	defer cryptoDomain.ZeroAll(key, material)

	wrapped, err := km.custodian.WrapWithMaster(ctx, material)
	if err != nil {
		return nil, err
	}

	return &cryptoDomain.CellKey{
		ID:          uuid.Must(uuid.NewV7()),
		CellID:      cellID,
		Version:     version,
		Algorithm:   alg,
		MasterKeyID: km.custodian.MasterKeyID(),
		WrappedKey:  wrapped,
		State:       cryptoDomain.KeyStateActive,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// OpenCellKey unwraps key through the custodian and verifies its cell and version
// binding. Retired versions fail with ErrKeyRevoked before the custodian is called.
func (km *KeyManagerService) OpenCellKey(
	ctx context.Context,
	key *cryptoDomain.CellKey,
) (*OpenedCellKey, error) {
	if err := key.Usable(); err != nil {
		return nil, err
	}

	material, err := km.custodian.UnwrapWithMaster(ctx, key.MasterKeyID, key.WrappedKey)
	if err != nil {
		return nil, err
	}

	raw, err := cryptoDomain.UnbindKeyMaterial(key.CellID, key.Version, material)
	if err != nil {
		cryptoDomain.Zero(material)
		return nil, err
	}

	aead, err := km.aeadManager.CreateCipher(raw, key.Algorithm)
	if err != nil {
		cryptoDomain.Zero(material)
		return nil, err
	}

	return &OpenedCellKey{
		CellID:   key.CellID,
		Version:  key.Version,
		aead:     aead,
		material: material,
	}, nil
}

// CreateDataKey generates a fresh DataKey for alg and wraps it under cellKey.
// The caller owns the returned plaintext and must zero it.
func (km *KeyManagerService) CreateDataKey(
	cellKey *OpenedCellKey,
	alg cryptoDomain.Algorithm,
) ([]byte, *cryptoDomain.WrappedDataKey, error) {
	dataKey, err := generateKey()
	if err != nil {
		return nil, nil, err
	}

	wrapped, err := km.SealDataKey(cellKey, dataKey, alg)
	if err != nil {
		cryptoDomain.Zero(dataKey)
		return nil, nil, err
	}
	return dataKey, wrapped, nil
}

// SealDataKey wraps dataKey under cellKey, bound to the cell and version. Migration
// uses it to move a DataKey onto a newer CellKey without touching the secret value.
func (km *KeyManagerService) SealDataKey(
	cellKey *OpenedCellKey,
	dataKey []byte,
	alg cryptoDomain.Algorithm,
) (*cryptoDomain.WrappedDataKey, error) {
	if cellKey.aead == nil {
		return nil, fmt.Errorf("cell key %d is closed", cellKey.Version)
	}
	if _, err := cryptoDomain.ParseAlgorithm(string(alg)); err != nil {
		return nil, err
	}
	if len(dataKey) != cryptoDomain.KeySize {
		return nil, cryptoDomain.ErrInvalidKeySize
	}

	ciphertext, nonce, err := cellKey.aead.Encrypt(
		dataKey,
		cryptoDomain.DataKeyAAD(cellKey.CellID, cellKey.Version),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap data key: %w", err)
	}

	return &cryptoDomain.WrappedDataKey{
		Algorithm:  alg,
		Ciphertext: ciphertext,
		Nonce:      nonce,
	}, nil
}

// DecryptDataKey unwraps a DataKey. A tag mismatch yields ErrUnwrapIntegrity.
func (km *KeyManagerService) DecryptDataKey(
	cellKey *OpenedCellKey,
	wrapped *cryptoDomain.WrappedDataKey,
) ([]byte, error) {
	if cellKey.aead == nil {
		return nil, fmt.Errorf("cell key %d is closed", cellKey.Version)
	}

	dataKey, err := cellKey.aead.Decrypt(
		wrapped.Ciphertext,
		wrapped.Nonce,
		cryptoDomain.DataKeyAAD(cellKey.CellID, cellKey.Version),
	)
	if err != nil {
		return nil, cryptoDomain.ErrUnwrapIntegrity
	}
	if len(dataKey) != cryptoDomain.KeySize {
		cryptoDomain.Zero(dataKey)
		return nil, cryptoDomain.ErrUnwrapIntegrity
	}
	return dataKey, nil
}

// generateKey returns KeySize bytes from the system CSPRNG.
func generateKey() ([]byte, error) {
	key := make([]byte, cryptoDomain.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}
