package domain

import (
	"github.com/allisson/cellvault/internal/errors"
)

// Cell manager error definitions.
var (
	// ErrCellNotFound indicates the cell does not exist.
	ErrCellNotFound = errors.Wrap(errors.ErrNotFound, "cell not found")

	// ErrCellAlreadyExists indicates another cell already uses the name.
	ErrCellAlreadyExists = errors.Wrap(errors.ErrConflict, "cell already exists")

	// ErrCellNotEmpty indicates the cell still holds secrets and cannot be deleted.
	ErrCellNotEmpty = errors.Wrap(errors.ErrConflict, "cell still holds secrets")

	// ErrSecretNotFound indicates no version of the secret exists in the cell.
	ErrSecretNotFound = errors.Wrap(errors.ErrNotFound, "secret not found")

	// ErrSecretVersionNotFound indicates the secret exists but not at that version.
	ErrSecretVersionNotFound = errors.Wrap(errors.ErrNotFound, "secret version not found")

	// ErrSecretLimitReached indicates the cell holds the maximum number of secrets.
	ErrSecretLimitReached = errors.Wrap(errors.ErrConflict, "cell secret limit reached")

	// ErrSecretTooLarge indicates the plaintext exceeds the configured maximum size.
	ErrSecretTooLarge = errors.Wrap(errors.ErrInvalidInput, "secret too large")
)
