package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	cellDomain "github.com/allisson/cellvault/internal/cell/domain"
	"github.com/allisson/cellvault/internal/database"
	apperrors "github.com/allisson/cellvault/internal/errors"
)

// MySQLCellRepository implements cell persistence for MySQL.
// UUIDs are stored as BINARY(16) and metadata as JSON.
type MySQLCellRepository struct {
	db *sql.DB
}

func (m *MySQLCellRepository) Create(ctx context.Context, cell *cellDomain.Cell) error {
	querier := database.GetTx(ctx, m.db)

	id, err := cell.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal cell id")
	}
	metadata, err := encodeMetadata(cell.Metadata)
	if err != nil {
		return err
	}

	query := `INSERT INTO cells (` + cellColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
		cell.Name,
		cell.Description,
		cell.OrganizationID,
		cell.RotationDays,
		metadata,
		cell.CreatedAt,
		cell.UpdatedAt,
		cell.LastRotatedAt,
	)
	if err != nil {
		err = database.ClassifyError(err)
		if errors.Is(err, apperrors.ErrConflict) {
			return cellDomain.ErrCellAlreadyExists
		}
		return apperrors.Wrap(err, "failed to create cell")
	}
	return nil
}

func (m *MySQLCellRepository) Get(ctx context.Context, cellID uuid.UUID) (*cellDomain.Cell, error) {
	querier := database.GetTx(ctx, m.db)

	id, err := cellID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal cell id")
	}

	query := `SELECT ` + cellColumns + ` FROM cells WHERE id = ?`

	cell, err := scanMySQLCell(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cellDomain.ErrCellNotFound
		}
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to get cell")
	}
	return cell, nil
}

func (m *MySQLCellRepository) List(ctx context.Context, offset, limit int) ([]*cellDomain.Cell, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + cellColumns + ` FROM cells ORDER BY name ASC LIMIT ? OFFSET ?`

	rows, err := querier.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to list cells")
	}
	defer func() {
		_ = rows.Close()
	}()

	cells := make([]*cellDomain.Cell, 0)
	for rows.Next() {
		cell, err := scanMySQLCell(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan cell")
		}
		cells = append(cells, cell)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to iterate cells")
	}
	return cells, nil
}

func (m *MySQLCellRepository) Update(ctx context.Context, cell *cellDomain.Cell) error {
	querier := database.GetTx(ctx, m.db)

	id, err := cell.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal cell id")
	}
	metadata, err := encodeMetadata(cell.Metadata)
	if err != nil {
		return err
	}

	// MySQL reports matched rather than changed rows only with CLIENT_FOUND_ROWS, so
	// an unchanged update is told apart from a missing cell by the existence check.
	query := `UPDATE cells
			  SET description = ?, rotation_days = ?, metadata = ?, updated_at = ?, last_rotated_at = ?
			  WHERE id = ?`

	result, err := querier.ExecContext(
		ctx,
		query,
		cell.Description,
		cell.RotationDays,
		metadata,
		cell.UpdatedAt,
		cell.LastRotatedAt,
		id,
	)
	if err != nil {
		return apperrors.Wrap(database.ClassifyError(err), "failed to update cell")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to update cell")
	}
	if n > 0 {
		return nil
	}
	_, err = m.Get(ctx, cell.ID)
	return err
}

func (m *MySQLCellRepository) Delete(ctx context.Context, cellID uuid.UUID) error {
	querier := database.GetTx(ctx, m.db)

	id, err := cellID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal cell id")
	}

	result, err := querier.ExecContext(ctx, `DELETE FROM cells WHERE id = ?`, id)
	if err != nil {
		return apperrors.Wrap(database.ClassifyError(err), "failed to delete cell")
	}
	return requireRow(result, cellDomain.ErrCellNotFound, "failed to delete cell")
}

func scanMySQLCell(row rowScanner) (*cellDomain.Cell, error) {
	var cell cellDomain.Cell
	var id, metadata []byte
	if err := row.Scan(
		&id,
		&cell.Name,
		&cell.Description,
		&cell.OrganizationID,
		&cell.RotationDays,
		&metadata,
		&cell.CreatedAt,
		&cell.UpdatedAt,
		&cell.LastRotatedAt,
	); err != nil {
		return nil, err
	}
	if err := cell.ID.UnmarshalBinary(id); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal cell id")
	}
	var err error
	if cell.Metadata, err = decodeMetadata(metadata); err != nil {
		return nil, err
	}
	return &cell, nil
}

// NewMySQLCellRepository creates a new MySQL cell repository.
func NewMySQLCellRepository(db *sql.DB) *MySQLCellRepository {
	return &MySQLCellRepository{db: db}
}
