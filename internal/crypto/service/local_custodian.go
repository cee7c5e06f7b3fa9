package service

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	cryptoDomain "github.com/allisson/cellvault/internal/crypto/domain"
	apperrors "github.com/allisson/cellvault/internal/errors"
)

// custodianWrapInfo is the HKDF info label for the local wrapping key.
const custodianWrapInfo = "cellvault/custodian-wrap/v1"

// LocalCustodian keeps master keys in process memory, loaded from configuration.
//
// Wraps use AES-256-GCM under a key derived from the master key with HKDF-SHA256, so
// the raw master key never keys a cipher directly. Output layout is nonce || ciphertext.
//
// Security properties:
//   - The HKDF info carries the master key ID, so each generation has its own wrapping key
//   - The master key ID is also the AEAD aad: a blob recorded under the wrong ID fails
//     with ErrUnwrapIntegrity
//   - Derived wrapping keys are zeroed as soon as the cipher is built
//
// Every failure is local, so the custodian never reports ErrCustodianUnavailable.
// It is safe for concurrent use until Close.
//
// Example:
//
//	chain, err := cryptoDomain.NewMasterKeyChain(cfg.MasterKeys, cfg.ActiveMasterKeyID)
//	if err != nil {
//		return err
//	}
//	custodian := NewLocalCustodian(chain, NewAEADManager())
//	defer custodian.Close()
type LocalCustodian struct {
	chain       *cryptoDomain.MasterKeyChain
	aeadManager AEADManager
}

// NewLocalCustodian creates a custodian over chain. The custodian owns the chain
// and zeroes it on Close.
func NewLocalCustodian(chain *cryptoDomain.MasterKeyChain, aeadManager AEADManager) *LocalCustodian {
	return &LocalCustodian{chain: chain, aeadManager: aeadManager}
}

// MasterKeyID returns the active master key ID.
func (c *LocalCustodian) MasterKeyID() string {
	return c.chain.ActiveMasterKeyID()
}

// WrapWithMaster seals plaintext under the active master key.
func (c *LocalCustodian) WrapWithMaster(ctx context.Context, plaintext []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.FromContext(err)
	}

	masterKeyID := c.chain.ActiveMasterKeyID()
	aead, err := c.cipherFor(masterKeyID)
	if err != nil {
		return nil, err
	}

	ciphertext, nonce, err := aead.Encrypt(plaintext, []byte(masterKeyID))
	if err != nil {
		return nil, err
	}
	return append(nonce, ciphertext...), nil
}

// UnwrapWithMaster opens a blob produced by WrapWithMaster under masterKeyID.
func (c *LocalCustodian) UnwrapWithMaster(
	ctx context.Context,
	masterKeyID string,
	wrapped []byte,
) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.FromContext(err)
	}

	aead, err := c.cipherFor(masterKeyID)
	if err != nil {
		return nil, err
	}

	const nonceSize = 12
	if len(wrapped) < nonceSize {
		return nil, cryptoDomain.ErrUnwrapIntegrity
	}
	return aead.Decrypt(wrapped[nonceSize:], wrapped[:nonceSize], []byte(masterKeyID))
}

// Close zeroes every master key held by the custodian.
func (c *LocalCustodian) Close() error {
	c.chain.Close()
	return nil
}

func (c *LocalCustodian) cipherFor(masterKeyID string) (AEAD, error) {
	masterKey, ok := c.chain.Get(masterKeyID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", cryptoDomain.ErrMasterKeyNotFound, masterKeyID)
	}

	wrapKey := make([]byte, cryptoDomain.KeySize)
	defer cryptoDomain.Zero(wrapKey)

	reader := hkdf.New(sha256.New, masterKey.Key, nil, []byte(custodianWrapInfo+":"+masterKeyID))
	if _, err := io.ReadFull(reader, wrapKey); err != nil {
		return nil, fmt.Errorf("failed to derive wrapping key: %w", err)
	}

	return c.aeadManager.CreateCipher(wrapKey, cryptoDomain.AESGCM)
}
