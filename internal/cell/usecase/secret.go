package usecase

import (
	"context"
	"strconv"

	"github.com/google/uuid"

	accessDomain "github.com/allisson/cellvault/internal/access/domain"
	cellDomain "github.com/allisson/cellvault/internal/cell/domain"
	cryptoDomain "github.com/allisson/cellvault/internal/crypto/domain"
	cryptoUsecase "github.com/allisson/cellvault/internal/crypto/usecase"
	apperrors "github.com/allisson/cellvault/internal/errors"
)

// putAttempts bounds retries when a concurrent writer takes the same version number.
const putAttempts = 3

func (m *cellManager) PutSecret(
	ctx context.Context,
	claims *accessDomain.Claims,
	input *cellDomain.PutSecretInput,
) (*cellDomain.SecretVersion, error) {
	defer cryptoDomain.Zero(input.Plaintext)

	ctx, cancel := m.begin(ctx)
	defer cancel()

	entry := m.newEntry(subjectOf(claims), input.CellID, opPutSecret)
	entry.Metadata["secret_id"] = input.SecretID
	if err := m.authorize(ctx, claims, entry, accessDomain.ActionWrite); err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, m.fail(ctx, entry, err)
	}
	if m.settings.MaxSecretSize > 0 && len(input.Plaintext) > m.settings.MaxSecretSize {
		return nil, m.fail(ctx, entry, cellDomain.ErrSecretTooLarge)
	}

	cell, err := m.cellRepo.Get(ctx, input.CellID)
	if err != nil {
		return nil, m.fail(ctx, entry, err)
	}

	secret, lease, err := m.encrypt(ctx, cell, input)
	if err != nil {
		return nil, m.fail(ctx, entry, err)
	}
	// Holding the pin until commit keeps the key version from being retired before the
	// new reference to it is visible to the liveness scan.
	defer lease.Release()
	entry.Metadata["key_version"] = strconv.FormatUint(uint64(secret.KeyVersion), 10)

	for attempt := 1; ; attempt++ {
		_, err = m.audit.Record(ctx, entry, func(ctx context.Context) error {
			version, err := m.nextVersion(ctx, input.CellID, input.SecretID)
			if err != nil {
				return err
			}
			secret.Version = version
			entry.Metadata["version"] = strconv.FormatUint(uint64(version), 10)
			return m.secretRepo.Create(ctx, secret)
		})
		if err == nil || attempt == putAttempts || !isVersionRace(err) {
			break
		}
	}
	if err != nil {
		return nil, m.fail(ctx, entry, err)
	}
	return secret, nil
}

// nextVersion returns the version number a new write of secretID gets, enforcing the
// per-cell secret limit when the write creates a new secret id.
func (m *cellManager) nextVersion(ctx context.Context, cellID uuid.UUID, secretID string) (uint, error) {
	latest, err := m.secretRepo.GetLatest(ctx, cellID, secretID)
	if err == nil {
		return latest.Version + 1, nil
	}
	if !apperrors.Is(err, cellDomain.ErrSecretNotFound) {
		return 0, err
	}

	if m.settings.MaxSecretsPerCell > 0 {
		count, err := m.secretRepo.CountSecrets(ctx, cellID)
		if err != nil {
			return 0, err
		}
		if count >= m.settings.MaxSecretsPerCell {
			return 0, cellDomain.ErrSecretLimitReached
		}
	}
	return 1, nil
}

func isVersionRace(err error) bool {
	return apperrors.Is(err, apperrors.ErrConflict) && !apperrors.Is(err, cellDomain.ErrSecretLimitReached)
}

// encrypt seals the plaintext under a fresh DataKey wrapped by the cell's current
// CellKey version. The returned lease pins that version; the caller releases it.
func (m *cellManager) encrypt(
	ctx context.Context,
	cell *cellDomain.Cell,
	input *cellDomain.PutSecretInput,
) (*cellDomain.SecretVersion, *cryptoUsecase.Lease, error) {
	lease, err := m.keys.AcquireCurrent(ctx, cell.ID)
	if err != nil {
		return nil, nil, err
	}

	dataKey, wrapped, err := m.keys.WrapDataKey(ctx, cell.ID, lease.Version)
	if err != nil {
		lease.Release()
		return nil, nil, err
	}
	defer cryptoDomain.Zero(dataKey)

	cipher, err := m.aeadManager.CreateCipher(dataKey, wrapped.Algorithm)
	if err != nil {
		lease.Release()
		return nil, nil, err
	}
	ciphertext, nonce, err := cipher.Encrypt(input.Plaintext, cellDomain.SecretAAD(cell.ID, input.SecretID))
	if err != nil {
		lease.Release()
		return nil, nil, err
	}

	now := m.now()
	return &cellDomain.SecretVersion{
		ID:            uuid.Must(uuid.NewV7()),
		CellID:        cell.ID,
		SecretID:      input.SecretID,
		KeyVersion:    lease.Version,
		DataKey:       *wrapped,
		Ciphertext:    ciphertext,
		Nonce:         nonce,
		CreatedAt:     now,
		RotationDueAt: now.Add(cell.RotationInterval()),
	}, lease, nil
}

func (m *cellManager) GetSecret(
	ctx context.Context,
	claims *accessDomain.Claims,
	cellID uuid.UUID,
	secretID string,
	version uint,
) (*cellDomain.SecretVersion, error) {
	ctx, cancel := m.begin(ctx)
	defer cancel()

	entry := m.newEntry(subjectOf(claims), cellID, opGetSecret)
	entry.Metadata["secret_id"] = secretID
	if err := m.authorize(ctx, claims, entry, accessDomain.ActionRead); err != nil {
		return nil, err
	}

	secret, err := m.readVersion(ctx, cellID, secretID, version)
	if err != nil {
		return nil, m.fail(ctx, entry, err)
	}
	entry.Metadata["version"] = strconv.FormatUint(uint64(secret.Version), 10)
	entry.Metadata["key_version"] = strconv.FormatUint(uint64(secret.KeyVersion), 10)

	plaintext, err := m.decrypt(ctx, secret)
	if apperrors.Is(err, cryptoDomain.ErrKeyRevoked) {
		// A migration moved this version to a newer key and retired the old one
		// between the read and the unwrap. The re-read sees the new key version.
		secret, err = m.readVersion(ctx, cellID, secretID, secret.Version)
		if err == nil {
			entry.Metadata["key_version"] = strconv.FormatUint(uint64(secret.KeyVersion), 10)
			plaintext, err = m.decrypt(ctx, secret)
		}
	}
	if err != nil {
		return nil, m.fail(ctx, entry, err)
	}

	if err := m.succeed(ctx, entry); err != nil {
		cryptoDomain.Zero(plaintext)
		return nil, err
	}
	secret.Plaintext = plaintext
	return secret, nil
}

// readVersion loads one version, or the latest when version is zero. A missing
// version of a secret that has no versions at all is reported as ErrSecretNotFound.
func (m *cellManager) readVersion(
	ctx context.Context,
	cellID uuid.UUID,
	secretID string,
	version uint,
) (*cellDomain.SecretVersion, error) {
	if version == 0 {
		return m.secretRepo.GetLatest(ctx, cellID, secretID)
	}

	secret, err := m.secretRepo.GetVersion(ctx, cellID, secretID, version)
	if apperrors.Is(err, cellDomain.ErrSecretVersionNotFound) {
		if _, latestErr := m.secretRepo.GetLatest(ctx, cellID, secretID); latestErr != nil {
			return nil, latestErr
		}
	}
	return secret, err
}

// decrypt opens a version through the CellKey version recorded on it.
func (m *cellManager) decrypt(ctx context.Context, secret *cellDomain.SecretVersion) ([]byte, error) {
	lease, err := m.keys.Pin(ctx, secret.CellID, secret.KeyVersion)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	dataKey, err := m.keys.UnwrapDataKey(ctx, secret.CellID, secret.KeyVersion, &secret.DataKey)
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(dataKey)

	cipher, err := m.aeadManager.CreateCipher(dataKey, secret.DataKey.Algorithm)
	if err != nil {
		return nil, err
	}
	plaintext, err := cipher.Decrypt(secret.Ciphertext, secret.Nonce, cellDomain.SecretAAD(secret.CellID, secret.SecretID))
	if err != nil {
		return nil, apperrors.Wrap(cryptoDomain.ErrUnwrapIntegrity, "failed to open secret ciphertext")
	}
	return plaintext, nil
}

func (m *cellManager) ListSecretVersions(
	ctx context.Context,
	claims *accessDomain.Claims,
	cellID uuid.UUID,
	secretID string,
) ([]*cellDomain.SecretVersion, error) {
	ctx, cancel := m.begin(ctx)
	defer cancel()

	entry := m.newEntry(subjectOf(claims), cellID, opListVersions)
	entry.Metadata["secret_id"] = secretID
	if err := m.authorize(ctx, claims, entry, accessDomain.ActionRead); err != nil {
		return nil, err
	}

	versions, err := m.secretRepo.ListVersions(ctx, cellID, secretID)
	if err == nil && len(versions) == 0 {
		err = cellDomain.ErrSecretNotFound
	}
	if err != nil {
		return nil, m.fail(ctx, entry, err)
	}
	entry.Metadata["count"] = strconv.Itoa(len(versions))

	if err := m.succeed(ctx, entry); err != nil {
		return nil, err
	}
	return versions, nil
}

func (m *cellManager) PurgeSecret(
	ctx context.Context,
	claims *accessDomain.Claims,
	cellID uuid.UUID,
	secretID string,
) error {
	ctx, cancel := m.begin(ctx)
	defer cancel()

	entry := m.newEntry(subjectOf(claims), cellID, opPurgeSecret)
	entry.Metadata["secret_id"] = secretID
	if err := m.authorize(ctx, claims, entry, accessDomain.ActionAdminister); err != nil {
		return err
	}

	_, err := m.audit.Record(ctx, entry, func(ctx context.Context) error {
		removed, err := m.secretRepo.DeleteBySecretID(ctx, cellID, secretID)
		if err != nil {
			return err
		}
		if removed == 0 {
			return cellDomain.ErrSecretNotFound
		}
		entry.Metadata["removed_versions"] = strconv.FormatInt(removed, 10)
		return nil
	})
	if err != nil {
		return m.fail(ctx, entry, err)
	}
	return nil
}
