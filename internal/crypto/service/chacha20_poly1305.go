package service

import (
	"crypto/cipher"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	cryptoDomain "github.com/allisson/cellvault/internal/crypto/domain"
)

// ChaCha20Poly1305Cipher implements AEAD with ChaCha20-Poly1305 (RFC 8439).
//
// It trades AES-GCM's hardware acceleration for a pure software design that is fast
// and constant time everywhere, which makes it the better choice on hosts without
// AES instructions. Select it per cell or per deployment through the algorithm
// setting; the algorithm is recorded on every wrapped key, so cells using either
// cipher coexist.
//
// Security properties match AESGCMCipher: 256-bit key, 96-bit random nonce per
// Encrypt, 128-bit Poly1305 tag and ErrUnwrapIntegrity on any authentication failure.
//
// Thread safety:
//
//	Safe for concurrent use; the cipher holds no mutable state once built.
type ChaCha20Poly1305Cipher struct {
	aead cipher.AEAD
}

// NewChaCha20Poly1305 creates a ChaCha20-Poly1305 cipher. The key must be KeySize
// bytes, otherwise ErrInvalidKeySize is returned.
func NewChaCha20Poly1305(key []byte) (*ChaCha20Poly1305Cipher, error) {
	if len(key) != cryptoDomain.KeySize {
		return nil, cryptoDomain.ErrInvalidKeySize
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create ChaCha20-Poly1305 cipher: %w", err)
	}

	return &ChaCha20Poly1305Cipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce. The aad is authenticated but
// not encrypted and must be passed again to Decrypt.
func (c *ChaCha20Poly1305Cipher) Encrypt(plaintext, aad []byte) (ciphertext, nonce []byte, err error) {
	return seal(c.aead, plaintext, aad)
}

// Decrypt opens ciphertext. Any authentication failure, including an aad mismatch,
// yields ErrUnwrapIntegrity.
func (c *ChaCha20Poly1305Cipher) Decrypt(ciphertext, nonce, aad []byte) ([]byte, error) {
	return open(c.aead, ciphertext, nonce, aad)
}
