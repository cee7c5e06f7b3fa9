package service

import (
	cryptoDomain "github.com/allisson/cellvault/internal/crypto/domain"
)

// cipherFactories maps each supported algorithm to its constructor.
var cipherFactories = map[cryptoDomain.Algorithm]func(key []byte) (AEAD, error){
	cryptoDomain.AESGCM: func(key []byte) (AEAD, error) {
		return NewAESGCM(key)
	},
	cryptoDomain.ChaCha20: func(key []byte) (AEAD, error) {
		return NewChaCha20Poly1305(key)
	},
}

// AEADManagerService builds ciphers for the algorithms recorded on wrapped keys.
//
// Supported algorithms are cryptoDomain.AESGCM and cryptoDomain.ChaCha20. The
// service is stateless and safe for concurrent use; every call returns a new cipher
// bound to the given key.
//
// Example:
//
//	aead, err := NewAEADManager().CreateCipher(key, cellKey.Algorithm)
//	if err != nil {
//		return err // ErrUnsupportedAlgorithm or ErrInvalidKeySize
//	}
type AEADManagerService struct{}

// NewAEADManager creates a new AEADManagerService.
func NewAEADManager() *AEADManagerService {
	return &AEADManagerService{}
}

// CreateCipher keys alg with key, which must be exactly KeySize bytes. Algorithms
// are checked first so an unknown name on a stored key is reported as such.
func (am *AEADManagerService) CreateCipher(key []byte, alg cryptoDomain.Algorithm) (AEAD, error) {
	factory, ok := cipherFactories[alg]
	if !ok {
		return nil, cryptoDomain.ErrUnsupportedAlgorithm
	}
	if len(key) != cryptoDomain.KeySize {
		return nil, cryptoDomain.ErrInvalidKeySize
	}
	return factory(key)
}
