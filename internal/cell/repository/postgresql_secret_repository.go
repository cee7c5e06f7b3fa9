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

// PostgreSQLSecretRepository implements secret version persistence for PostgreSQL.
//
// Database schema requirements:
//   - secrets(id UUID PK, cell_id UUID FK, secret_id TEXT, version INTEGER, key_version INTEGER,
//     algorithm TEXT, wrapped_data_key BYTEA, data_key_nonce BYTEA, ciphertext BYTEA, nonce BYTEA,
//     created_at, rotation_due_at TIMESTAMPTZ, UNIQUE (cell_id, secret_id, version))
type PostgreSQLSecretRepository struct {
	db *sql.DB
}

func (p *PostgreSQLSecretRepository) Create(ctx context.Context, secret *cellDomain.SecretVersion) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO secrets (` + secretColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := querier.ExecContext(
		ctx,
		query,
		secret.ID,
		secret.CellID,
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

func (p *PostgreSQLSecretRepository) GetLatest(
	ctx context.Context,
	cellID uuid.UUID,
	secretID string,
) (*cellDomain.SecretVersion, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + secretColumns + ` FROM secrets
			  WHERE cell_id = $1 AND secret_id = $2
			  ORDER BY version DESC LIMIT 1`

	secret, err := scanPostgreSQLSecret(querier.QueryRowContext(ctx, query, cellID, secretID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cellDomain.ErrSecretNotFound
		}
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to get secret")
	}
	return secret, nil
}

func (p *PostgreSQLSecretRepository) GetVersion(
	ctx context.Context,
	cellID uuid.UUID,
	secretID string,
	version uint,
) (*cellDomain.SecretVersion, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + secretColumns + ` FROM secrets
			  WHERE cell_id = $1 AND secret_id = $2 AND version = $3`

	secret, err := scanPostgreSQLSecret(querier.QueryRowContext(ctx, query, cellID, secretID, version))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cellDomain.ErrSecretVersionNotFound
		}
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to get secret version")
	}
	return secret, nil
}

func (p *PostgreSQLSecretRepository) ListVersions(
	ctx context.Context,
	cellID uuid.UUID,
	secretID string,
) ([]*cellDomain.SecretVersion, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + secretColumns + ` FROM secrets
			  WHERE cell_id = $1 AND secret_id = $2
			  ORDER BY version ASC`

	rows, err := querier.QueryContext(ctx, query, cellID, secretID)
	if err != nil {
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to list secret versions")
	}
	return collectSecrets(rows, scanPostgreSQLSecret)
}

func (p *PostgreSQLSecretRepository) CountSecrets(ctx context.Context, cellID uuid.UUID) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	var count int64
	err := querier.QueryRowContext(
		ctx,
		`SELECT COUNT(DISTINCT secret_id) FROM secrets WHERE cell_id = $1`,
		cellID,
	).Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(database.ClassifyError(err), "failed to count secrets")
	}
	return count, nil
}

func (p *PostgreSQLSecretRepository) CountByKeyVersion(
	ctx context.Context,
	cellID uuid.UUID,
	keyVersion uint,
) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	var count int64
	err := querier.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM secrets WHERE cell_id = $1 AND key_version = $2`,
		cellID,
		keyVersion,
	).Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(database.ClassifyError(err), "failed to count secrets by key version")
	}
	return count, nil
}

func (p *PostgreSQLSecretRepository) ListBelowKeyVersion(
	ctx context.Context,
	cellID uuid.UUID,
	keyVersion uint,
	after uuid.UUID,
	limit int,
) ([]*cellDomain.SecretVersion, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + secretColumns + ` FROM secrets
			  WHERE cell_id = $1 AND key_version < $2 AND id > $3
			  ORDER BY id ASC LIMIT $4`

	rows, err := querier.QueryContext(ctx, query, cellID, keyVersion, after, limit)
	if err != nil {
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to list secrets below key version")
	}
	return collectSecrets(rows, scanPostgreSQLSecret)
}

func (p *PostgreSQLSecretRepository) UpdateDataKey(
	ctx context.Context,
	id uuid.UUID,
	fromKeyVersion uint,
	toKeyVersion uint,
	dataKey *cryptoDomain.WrappedDataKey,
) (bool, error) {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE secrets
			  SET key_version = $3, algorithm = $4, wrapped_data_key = $5, data_key_nonce = $6
			  WHERE id = $1 AND key_version = $2`

	result, err := querier.ExecContext(
		ctx,
		query,
		id,
		fromKeyVersion,
		toKeyVersion,
		dataKey.Algorithm,
		dataKey.Ciphertext,
		dataKey.Nonce,
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

func (p *PostgreSQLSecretRepository) DeleteBySecretID(
	ctx context.Context,
	cellID uuid.UUID,
	secretID string,
) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	result, err := querier.ExecContext(
		ctx,
		`DELETE FROM secrets WHERE cell_id = $1 AND secret_id = $2`,
		cellID,
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

func scanPostgreSQLSecret(row rowScanner) (*cellDomain.SecretVersion, error) {
	var secret cellDomain.SecretVersion
	var algorithm string
	if err := row.Scan(
		&secret.ID,
		&secret.CellID,
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
	secret.DataKey.Algorithm = cryptoDomain.Algorithm(algorithm)
	return &secret, nil
}

// NewPostgreSQLSecretRepository creates a new PostgreSQL secret repository.
func NewPostgreSQLSecretRepository(db *sql.DB) *PostgreSQLSecretRepository {
	return &PostgreSQLSecretRepository{db: db}
}
