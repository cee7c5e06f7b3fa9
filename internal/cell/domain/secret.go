package domain

import (
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	cryptoDomain "github.com/allisson/cellvault/internal/crypto/domain"
	customValidation "github.com/allisson/cellvault/internal/validation"
)

// SecretVersion is one immutable version of a secret. Only DataKey and KeyVersion
// change after creation, when the migration sweep re-wraps the DataKey under a newer
// CellKey version; the ciphertext itself is never rewritten.
type SecretVersion struct {
	ID       uuid.UUID
	CellID   uuid.UUID
	SecretID string
	Version  uint
	// KeyVersion is the CellKey version DataKey is wrapped under.
	KeyVersion uint
	DataKey    cryptoDomain.WrappedDataKey
	Ciphertext []byte
	Nonce      []byte
	// Plaintext holds the decrypted value in memory only; must be zeroed after use.
	Plaintext     []byte `json:"-"`
	CreatedAt     time.Time
	RotationDueAt time.Time
}

// ZeroPlaintext scrubs the decrypted value.
func (s *SecretVersion) ZeroPlaintext() {
	cryptoDomain.Zero(s.Plaintext)
	s.Plaintext = nil
}

// secretAADLabel domain-separates secret ciphertexts from key wraps.
const secretAADLabel = "cellvault/secret/v1"

// SecretAAD binds a ciphertext to its cell and secret id, so a ciphertext copied to
// another cell or secret fails to open.
func SecretAAD(cellID uuid.UUID, secretID string) []byte {
	aad := make([]byte, 0, len(secretAADLabel)+16+len(secretID))
	aad = append(aad, secretAADLabel...)
	aad = append(aad, cellID[:]...)
	return append(aad, secretID...)
}

// PutSecretInput contains the parameters for writing a new secret version.
type PutSecretInput struct {
	CellID    uuid.UUID
	SecretID  string
	Plaintext []byte
}

// Validate checks the input and returns ErrInvalidInput on failure. The size limit is
// configuration and is checked by the cell manager.
func (i *PutSecretInput) Validate() error {
	err := validation.ValidateStruct(i,
		validation.Field(&i.CellID, customValidation.RequiredUUID),
		validation.Field(&i.SecretID,
			validation.Required,
			customValidation.NoWhitespace,
			customValidation.Identifier,
			validation.Length(1, 255),
		),
		validation.Field(&i.Plaintext, validation.Required),
	)
	return customValidation.WrapValidationError(err)
}
