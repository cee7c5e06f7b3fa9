package repository

import (
	"database/sql"
	"encoding/json"

	cellDomain "github.com/allisson/cellvault/internal/cell/domain"
	"github.com/allisson/cellvault/internal/database"
	apperrors "github.com/allisson/cellvault/internal/errors"
)

const (
	cellColumns = `id, name, description, organization_id, rotation_days, metadata,
		created_at, updated_at, last_rotated_at`

	secretColumns = `id, cell_id, secret_id, version, key_version, algorithm, wrapped_data_key,
		data_key_nonce, ciphertext, nonce, created_at, rotation_due_at`
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func encodeMetadata(metadata map[string]string) ([]byte, error) {
	if metadata == nil {
		metadata = map[string]string{}
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal cell metadata")
	}
	return data, nil
}

func decodeMetadata(data []byte) (map[string]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var metadata map[string]string
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal cell metadata")
	}
	if len(metadata) == 0 {
		return nil, nil
	}
	return metadata, nil
}

func collectSecrets(
	rows *sql.Rows,
	scan func(rowScanner) (*cellDomain.SecretVersion, error),
) ([]*cellDomain.SecretVersion, error) {
	defer func() {
		_ = rows.Close()
	}()

	secrets := make([]*cellDomain.SecretVersion, 0)
	for rows.Next() {
		secret, err := scan(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan secret version")
		}
		secrets = append(secrets, secret)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to iterate secret versions")
	}
	return secrets, nil
}
