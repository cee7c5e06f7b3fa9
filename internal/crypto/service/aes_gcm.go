package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	cryptoDomain "github.com/allisson/cellvault/internal/crypto/domain"
)

// AESGCMCipher implements AEAD with AES-256-GCM.
//
// It is the default algorithm for CellKeys and DataKeys, and the only one the
// LocalCustodian wraps with.
//
// Performance characteristics:
//   - Hardware accelerated on CPUs with AES-NI or the ARMv8 crypto extensions
//   - Without acceleration the Go fallback is constant time but several times slower;
//     prefer ChaCha20Poly1305Cipher on such hosts
//
// Security properties:
//   - 256-bit key
//   - 96-bit nonce drawn from crypto/rand for every Encrypt; random nonces stay safe
//     up to about 2^32 messages per key, far more than one DataKey or CellKey seals
//   - 128-bit tag appended to the ciphertext; the aad is authenticated, not encrypted
//   - Decrypt never distinguishes a bad tag from a bad nonce: both are ErrUnwrapIntegrity
//
// Thread safety:
//
//	An AESGCMCipher holds no mutable state once built and is safe for concurrent use.
//	The caller still owns the key slice passed to NewAESGCM and should zero it.
//
// Example:
//
//	key := make([]byte, cryptoDomain.KeySize)
//	if _, err := rand.Read(key); err != nil {
//		return err
//	}
//	defer cryptoDomain.Zero(key)
//
//	aead, err := NewAESGCM(key)
//	if err != nil {
//		return err
//	}
//	aad := cryptoDomain.DataKeyAAD(cellID, version)
//	ciphertext, nonce, err := aead.Encrypt(plaintext, aad)
//	...
//	plaintext, err = aead.Decrypt(ciphertext, nonce, aad)
type AESGCMCipher struct {
	aead cipher.AEAD
}

// NewAESGCM creates an AES-256-GCM cipher. The key must be KeySize bytes; any other
// length returns ErrInvalidKeySize rather than silently selecting AES-128 or AES-192.
func NewAESGCM(key []byte) (*AESGCMCipher, error) {
	if len(key) != cryptoDomain.KeySize {
		return nil, cryptoDomain.ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &AESGCMCipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce and returns the ciphertext
// (tag included) and the nonce. Both must be stored to decrypt later.
func (a *AESGCMCipher) Encrypt(plaintext, aad []byte) (ciphertext, nonce []byte, err error) {
	return seal(a.aead, plaintext, aad)
}

// Decrypt opens ciphertext with the nonce and aad given to Encrypt. A wrong key, a
// modified byte, a nonce of the wrong length or a different aad all yield
// ErrUnwrapIntegrity.
func (a *AESGCMCipher) Decrypt(ciphertext, nonce, aad []byte) ([]byte, error) {
	return open(a.aead, ciphertext, nonce, aad)
}

func seal(aead cipher.AEAD, plaintext, aad []byte) ([]byte, []byte, error) {
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return aead.Seal(nil, nonce, plaintext, aad), nonce, nil
}

func open(aead cipher.AEAD, ciphertext, nonce, aad []byte) ([]byte, error) {
	if len(nonce) != aead.NonceSize() {
		return nil, cryptoDomain.ErrUnwrapIntegrity
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, cryptoDomain.ErrUnwrapIntegrity
	}
	return plaintext, nil
}
