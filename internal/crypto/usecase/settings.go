package usecase

import (
	cryptoDomain "github.com/allisson/cellvault/internal/crypto/domain"
)

// Settings configures the key hierarchy.
type Settings struct {
	// CellKeyAlgorithm wraps DataKeys under CellKeys.
	CellKeyAlgorithm cryptoDomain.Algorithm
	// DataKeyAlgorithm encrypts secret payloads under DataKeys.
	DataKeyAlgorithm cryptoDomain.Algorithm
}

// DefaultSettings uses AES-256-GCM at both levels.
func DefaultSettings() Settings {
	return Settings{
		CellKeyAlgorithm: cryptoDomain.AESGCM,
		DataKeyAlgorithm: cryptoDomain.AESGCM,
	}
}
