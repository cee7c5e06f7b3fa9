package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/cellvault/internal/crypto/domain"
	"github.com/allisson/cellvault/internal/database"
	apperrors "github.com/allisson/cellvault/internal/errors"
)

// MySQLCellKeyRepository implements CellKey persistence for MySQL.
// UUIDs are stored as BINARY(16).
type MySQLCellKeyRepository struct {
	db *sql.DB
}

func (m *MySQLCellKeyRepository) Create(ctx context.Context, key *cryptoDomain.CellKey) error {
	querier := database.GetTx(ctx, m.db)

	id, err := key.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal cell key id")
	}
	cellID, err := key.CellID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal cell id")
	}

	query := `INSERT INTO cell_keys
			  (id, cell_id, version, algorithm, master_key_id, wrapped_key, state, created_at, retired_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
		cellID,
		key.Version,
		key.Algorithm,
		key.MasterKeyID,
		key.WrappedKey,
		key.State,
		key.CreatedAt,
		key.RetiredAt,
	)
	if err != nil {
		return apperrors.Wrap(database.ClassifyError(err), "failed to create cell key")
	}
	return nil
}

func (m *MySQLCellKeyRepository) ListByCell(
	ctx context.Context,
	cellID uuid.UUID,
) ([]*cryptoDomain.CellKey, error) {
	querier := database.GetTx(ctx, m.db)

	cellIDBytes, err := cellID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal cell id")
	}

	query := `SELECT id, cell_id, version, algorithm, master_key_id, wrapped_key, state, created_at, retired_at
			  FROM cell_keys WHERE cell_id = ? ORDER BY version ASC`

	rows, err := querier.QueryContext(ctx, query, cellIDBytes)
	if err != nil {
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to list cell keys")
	}
	defer func() {
		_ = rows.Close()
	}()

	var keys []*cryptoDomain.CellKey
	for rows.Next() {
		var key cryptoDomain.CellKey
		var id, keyCellID []byte
		var retiredAt sql.NullTime

		if err := rows.Scan(
			&id,
			&keyCellID,
			&key.Version,
			&key.Algorithm,
			&key.MasterKeyID,
			&key.WrappedKey,
			&key.State,
			&key.CreatedAt,
			&retiredAt,
		); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan cell key")
		}
		if err := key.ID.UnmarshalBinary(id); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal cell key id")
		}
		if err := key.CellID.UnmarshalBinary(keyCellID); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal cell id")
		}
		if retiredAt.Valid {
			key.RetiredAt = &retiredAt.Time
		}
		keys = append(keys, &key)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to list cell keys")
	}
	return keys, nil
}

func (m *MySQLCellKeyRepository) UpdateState(
	ctx context.Context,
	cellID uuid.UUID,
	version uint,
	state cryptoDomain.KeyState,
	at time.Time,
) error {
	querier := database.GetTx(ctx, m.db)

	cellIDBytes, err := cellID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal cell id")
	}

	query := `UPDATE cell_keys SET state = ? WHERE cell_id = ? AND version = ?`
	args := []any{state, cellIDBytes, version}
	if state == cryptoDomain.KeyStateRetired {
		query = `UPDATE cell_keys SET state = ?, wrapped_key = NULL, retired_at = ?
				 WHERE cell_id = ? AND version = ?`
		args = []any{state, at, cellIDBytes, version}
	}

	result, err := querier.ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.Wrap(database.ClassifyError(err), "failed to update cell key state")
	}
	return expectOneRow(result, cryptoDomain.ErrKeyNotFound)
}

func (m *MySQLCellKeyRepository) GetPointer(ctx context.Context, cellID uuid.UUID) (uint, error) {
	querier := database.GetTx(ctx, m.db)

	cellIDBytes, err := cellID.MarshalBinary()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to marshal cell id")
	}

	var current uint
	err = querier.QueryRowContext(
		ctx,
		`SELECT current_version FROM cell_key_pointers WHERE cell_id = ?`,
		cellIDBytes,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, cryptoDomain.ErrKeyNotFound
		}
		return 0, apperrors.Wrap(database.ClassifyError(err), "failed to get cell key pointer")
	}
	return current, nil
}

// SwapPointer moves the pointer from expected to next. MySQL reports zero affected
// rows when the value does not change, which cannot happen here because next is
// always a fresh version.
func (m *MySQLCellKeyRepository) SwapPointer(
	ctx context.Context,
	cellID uuid.UUID,
	expected, next uint,
) error {
	querier := database.GetTx(ctx, m.db)
	now := time.Now().UTC()

	cellIDBytes, err := cellID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal cell id")
	}

	if expected == 0 {
		_, err := querier.ExecContext(
			ctx,
			`INSERT INTO cell_key_pointers (cell_id, current_version, updated_at) VALUES (?, ?, ?)`,
			cellIDBytes,
			next,
			now,
		)
		if err != nil {
			return pointerError(err)
		}
		return nil
	}

	result, err := querier.ExecContext(
		ctx,
		`UPDATE cell_key_pointers SET current_version = ?, updated_at = ?
		 WHERE cell_id = ? AND current_version = ?`,
		next,
		now,
		cellIDBytes,
		expected,
	)
	if err != nil {
		return pointerError(err)
	}
	return expectOneRow(result, cryptoDomain.ErrPointerConflict)
}

func (m *MySQLCellKeyRepository) DeleteByCell(ctx context.Context, cellID uuid.UUID) error {
	querier := database.GetTx(ctx, m.db)

	cellIDBytes, err := cellID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal cell id")
	}

	if _, err := querier.ExecContext(ctx, `DELETE FROM cell_key_pointers WHERE cell_id = ?`, cellIDBytes); err != nil {
		return apperrors.Wrap(database.ClassifyError(err), "failed to delete cell key pointer")
	}
	if _, err := querier.ExecContext(ctx, `DELETE FROM cell_keys WHERE cell_id = ?`, cellIDBytes); err != nil {
		return apperrors.Wrap(database.ClassifyError(err), "failed to delete cell keys")
	}
	return nil
}

// NewMySQLCellKeyRepository creates a new MySQL CellKey repository.
func NewMySQLCellKeyRepository(db *sql.DB) *MySQLCellKeyRepository {
	return &MySQLCellKeyRepository{db: db}
}
