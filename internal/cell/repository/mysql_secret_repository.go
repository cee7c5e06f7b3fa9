package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	cellDomain "github.com/allisson/cellvault/internal/cell/domain"
	cryptoDomain "github.com/allisson/cellvault/internal/crypto/domain"
	"github.com/allisson/cellvault/internal/database"
	apperrors "github.com/allisson/cellvault/internal/errors"
)

// MySQLSecretRepository implements secret version persistence for MySQL.
// UUIDs are stored as BINARY(16); ids compare bytewise, which keeps UUIDv7 cursors ordered.
type MySQLSecretRepository struct {
	db *sql.DB
}

func (m *MySQLSecretRepository) Create(ctx context.Context, secret *cellDomain.SecretVersion) error {
	querier := database.GetTx(ctx, m.db)

	id, err := secret.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal secret version id")
	}
	cellID, err := secret.CellID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal cell id")
	}

	query := `INSERT INTO secrets (` + secretColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
		cellID,
		secret.SecretID,
		secret.Version,
		secret.KeyVersion,
		secret.DataKey.Algorithm,
		secret.DataKey.Ciphertext,
		secret.DataKey.Nonce,
		secret.Ciphertext,
		secret.Nonce,
		secret.CreatedAt,
		secret.RotationDueAt,
	)
	if err != nil {
		return apperrors.Wrap(database.ClassifyError(err), "failed to create secret version")
	}
	return nil
}

func (m *MySQLSecretRepository) GetLatest(
	ctx context.Context,
	cellID uuid.UUID,
	secretID string,
) (*cellDomain.SecretVersion, error) {
	querier := database.GetTx(ctx, m.db)

	cellIDBytes, err := cellID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal cell id")
	}

	query := `SELECT ` + secretColumns + ` FROM secrets
			  WHERE cell_id = ? AND secret_id = ?
			  ORDER BY version DESC LIMIT 1`

	secret, err := scanMySQLSecret(querier.QueryRowContext(ctx, query, cellIDBytes, secretID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cellDomain.ErrSecretNotFound
		}
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to get secret")
	}
	return secret, nil
}

func (m *MySQLSecretRepository) GetVersion(
	ctx context.Context,
	cellID uuid.UUID,
	secretID string,
	version uint,
) (*cellDomain.SecretVersion, error) {
	querier := database.GetTx(ctx, m.db)

	cellIDBytes, err := cellID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal cell id")
	}

	query := `SELECT ` + secretColumns + ` FROM secrets
			  WHERE cell_id = ? AND secret_id = ? AND version = ?`

	secret, err := scanMySQLSecret(querier.QueryRowContext(ctx, query, cellIDBytes, secretID, version))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cellDomain.ErrSecretVersionNotFound
		}
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to get secret version")
	}
	return secret, nil
}

func (m *MySQLSecretRepository) ListVersions(
	ctx context.Context,
	cellID uuid.UUID,
	secretID string,
) ([]*cellDomain.SecretVersion, error) {
	querier := database.GetTx(ctx, m.db)

	cellIDBytes, err := cellID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal cell id")
	}

	query := `SELECT ` + secretColumns + ` FROM secrets
			  WHERE cell_id = ? AND secret_id = ?
			  ORDER BY version ASC`

	rows, err := querier.QueryContext(ctx, query, cellIDBytes, secretID)
	if err != nil {
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to list secret versions")
	}
	return collectSecrets(rows, scanMySQLSecret)
}

func (m *MySQLSecretRepository) CountSecrets(ctx context.Context, cellID uuid.UUID) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	cellIDBytes, err := cellID.MarshalBinary()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to marshal cell id")
	}

	var count int64
	err = querier.QueryRowContext(
		ctx,
		`SELECT COUNT(DISTINCT secret_id) FROM secrets WHERE cell_id = ?`,
		cellIDBytes,
	).Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(database.ClassifyError(err), "failed to count secrets")
	}
	return count, nil
}

func (m *MySQLSecretRepository) CountByKeyVersion(
	ctx context.Context,
	cellID uuid.UUID,
	keyVersion uint,
) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	cellIDBytes, err := cellID.MarshalBinary()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to marshal cell id")
	}

	var count int64
	err = querier.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM secrets WHERE cell_id = ? AND key_version = ?`,
		cellIDBytes,
		keyVersion,
	).Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(database.ClassifyError(err), "failed to count secrets by key version")
	}
	return count, nil
}

func (m *MySQLSecretRepository) ListBelowKeyVersion(
	ctx context.Context,
	cellID uuid.UUID,
	keyVersion uint,
	after uuid.UUID,
	limit int,
) ([]*cellDomain.SecretVersion, error) {
	querier := database.GetTx(ctx, m.db)

	cellIDBytes, err := cellID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal cell id")
	}
	afterBytes, err := after.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal cursor")
	}

	query := `SELECT ` + secretColumns + ` FROM secrets
			  WHERE cell_id = ? AND key_version < ? AND id > ?
			  ORDER BY id ASC LIMIT ?`

	rows, err := querier.QueryContext(ctx, query, cellIDBytes, keyVersion, afterBytes, limit)
	if err != nil {
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to list secrets below key version")
	}
	return collectSecrets(rows, scanMySQLSecret)
}

func (m *MySQLSecretRepository) UpdateDataKey(
	ctx context.Context,
	id uuid.UUID,
	fromKeyVersion uint,
	toKeyVersion uint,
	dataKey *cryptoDomain.WrappedDataKey,
) (bool, error) {
	querier := database.GetTx(ctx, m.db)

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to marshal secret version id")
	}

	query := `UPDATE secrets
			  SET key_version = ?, algorithm = ?, wrapped_data_key = ?, data_key_nonce = ?
			  WHERE id = ? AND key_version = ?`

	result, err := querier.ExecContext(
		ctx,
		query,
		toKeyVersion,
		dataKey.Algorithm,
		dataKey.Ciphertext,
		dataKey.Nonce,
		idBytes,
		fromKeyVersion,
	)
	if err != nil {
		return false, apperrors.Wrap(database.ClassifyError(err), "failed to update data key")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to update data key")
	}
	return n > 0, nil
}

func (m *MySQLSecretRepository) DeleteBySecretID(
	ctx context.Context,
	cellID uuid.UUID,
	secretID string,
) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	cellIDBytes, err := cellID.MarshalBinary()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to marshal cell id")
	}

	result, err := querier.ExecContext(
		ctx,
		`DELETE FROM secrets WHERE cell_id = ? AND secret_id = ?`,
		cellIDBytes,
		secretID,
	)
	if err != nil {
		return 0, apperrors.Wrap(database.ClassifyError(err), "failed to delete secret")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete secret")
	}
	return n, nil
}

func scanMySQLSecret(row rowScanner) (*cellDomain.SecretVersion, error) {
	var secret cellDomain.SecretVersion
	var id, cellID []byte
	var algorithm string
	if err := row.Scan(
		&id,
		&cellID,
		&secret.SecretID,
		&secret.Version,
		&secret.KeyVersion,
		&algorithm,
		&secret.DataKey.Ciphertext,
		&secret.DataKey.Nonce,
		&secret.Ciphertext,
		&secret.Nonce,
		&secret.CreatedAt,
		&secret.RotationDueAt,
	); err != nil {
		return nil, err
	}
	if err := secret.ID.UnmarshalBinary(id); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal secret version id")
	}
	if err := secret.CellID.UnmarshalBinary(cellID); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal cell id")
	}
	secret.DataKey.Algorithm = cryptoDomain.Algorithm(algorithm)
	return &secret, nil
}

// NewMySQLSecretRepository creates a new MySQL secret repository.
func NewMySQLSecretRepository(db *sql.DB) *MySQLSecretRepository {
	return &MySQLSecretRepository{db: db}
}
