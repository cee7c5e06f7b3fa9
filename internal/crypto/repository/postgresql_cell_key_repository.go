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

// PostgreSQLCellKeyRepository implements CellKey persistence for PostgreSQL.
//
// Database schema requirements:
//   - cell_keys(id UUID PK, cell_id UUID, version INTEGER, algorithm TEXT,
//     master_key_id TEXT, wrapped_key BYTEA NULL, state TEXT,
//     created_at TIMESTAMPTZ, retired_at TIMESTAMPTZ NULL, UNIQUE(cell_id, version))
//   - cell_key_pointers(cell_id UUID PK, current_version INTEGER, updated_at TIMESTAMPTZ)
type PostgreSQLCellKeyRepository struct {
	db *sql.DB
}

// Create inserts a new CellKey version. A duplicate (cell, version) is a conflict.
func (p *PostgreSQLCellKeyRepository) Create(ctx context.Context, key *cryptoDomain.CellKey) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO cell_keys
			  (id, cell_id, version, algorithm, master_key_id, wrapped_key, state, created_at, retired_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := querier.ExecContext(
		ctx,
		query,
		key.ID,
		key.CellID,
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

// ListByCell returns every version of a cell ordered by version ascending.
func (p *PostgreSQLCellKeyRepository) ListByCell(
	ctx context.Context,
	cellID uuid.UUID,
) ([]*cryptoDomain.CellKey, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, cell_id, version, algorithm, master_key_id, wrapped_key, state, created_at, retired_at
			  FROM cell_keys WHERE cell_id = $1 ORDER BY version ASC`

	rows, err := querier.QueryContext(ctx, query, cellID)
	if err != nil {
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to list cell keys")
	}
	defer func() {
		_ = rows.Close()
	}()

	var keys []*cryptoDomain.CellKey
	for rows.Next() {
		var key cryptoDomain.CellKey
		var retiredAt sql.NullTime

		if err := rows.Scan(
			&key.ID,
			&key.CellID,
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

// UpdateState moves a version to state. Retiring purges wrapped_key in the same statement.
func (p *PostgreSQLCellKeyRepository) UpdateState(
	ctx context.Context,
	cellID uuid.UUID,
	version uint,
	state cryptoDomain.KeyState,
	at time.Time,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE cell_keys SET state = $1 WHERE cell_id = $2 AND version = $3`
	args := []any{state, cellID, version}
	if state == cryptoDomain.KeyStateRetired {
		query = `UPDATE cell_keys SET state = $1, wrapped_key = NULL, retired_at = $4
				 WHERE cell_id = $2 AND version = $3`
		args = append(args, at)
	}

	result, err := querier.ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.Wrap(database.ClassifyError(err), "failed to update cell key state")
	}
	return expectOneRow(result, cryptoDomain.ErrKeyNotFound)
}

// GetPointer returns the current version of a cell.
func (p *PostgreSQLCellKeyRepository) GetPointer(ctx context.Context, cellID uuid.UUID) (uint, error) {
	querier := database.GetTx(ctx, p.db)

	var current uint
	err := querier.QueryRowContext(
		ctx,
		`SELECT current_version FROM cell_key_pointers WHERE cell_id = $1`,
		cellID,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, cryptoDomain.ErrKeyNotFound
		}
		return 0, apperrors.Wrap(database.ClassifyError(err), "failed to get cell key pointer")
	}
	return current, nil
}

// SwapPointer moves the pointer from expected to next. expected == 0 inserts it.
func (p *PostgreSQLCellKeyRepository) SwapPointer(
	ctx context.Context,
	cellID uuid.UUID,
	expected, next uint,
) error {
	querier := database.GetTx(ctx, p.db)
	now := time.Now().UTC()

	if expected == 0 {
		_, err := querier.ExecContext(
			ctx,
			`INSERT INTO cell_key_pointers (cell_id, current_version, updated_at) VALUES ($1, $2, $3)`,
			cellID,
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
		`UPDATE cell_key_pointers SET current_version = $1, updated_at = $2
		 WHERE cell_id = $3 AND current_version = $4`,
		next,
		now,
		cellID,
		expected,
	)
	if err != nil {
		return pointerError(err)
	}
	return expectOneRow(result, cryptoDomain.ErrPointerConflict)
}

// DeleteByCell removes the pointer and every version of a cell.
func (p *PostgreSQLCellKeyRepository) DeleteByCell(ctx context.Context, cellID uuid.UUID) error {
	querier := database.GetTx(ctx, p.db)

	if _, err := querier.ExecContext(ctx, `DELETE FROM cell_key_pointers WHERE cell_id = $1`, cellID); err != nil {
		return apperrors.Wrap(database.ClassifyError(err), "failed to delete cell key pointer")
	}
	if _, err := querier.ExecContext(ctx, `DELETE FROM cell_keys WHERE cell_id = $1`, cellID); err != nil {
		return apperrors.Wrap(database.ClassifyError(err), "failed to delete cell keys")
	}
	return nil
}

// NewPostgreSQLCellKeyRepository creates a new PostgreSQL CellKey repository.
func NewPostgreSQLCellKeyRepository(db *sql.DB) *PostgreSQLCellKeyRepository {
	return &PostgreSQLCellKeyRepository{db: db}
}

func expectOneRow(result sql.Result, notMatched error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(database.ClassifyError(err), "failed to read affected rows")
	}
	if n == 0 {
		return notMatched
	}
	return nil
}

func pointerError(err error) error {
	classified := database.ClassifyError(err)
	if apperrors.Is(classified, apperrors.ErrConflict) {
		return cryptoDomain.ErrPointerConflict
	}
	return apperrors.Wrap(classified, "failed to swap cell key pointer")
}
