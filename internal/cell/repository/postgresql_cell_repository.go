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

// PostgreSQLCellRepository implements cell persistence for PostgreSQL.
//
// Database schema requirements:
//   - cells(id UUID PK, name TEXT UNIQUE, description TEXT, organization_id TEXT,
//     rotation_days INTEGER, metadata JSONB, created_at, updated_at, last_rotated_at TIMESTAMPTZ)
type PostgreSQLCellRepository struct {
	db *sql.DB
}

func (p *PostgreSQLCellRepository) Create(ctx context.Context, cell *cellDomain.Cell) error {
	querier := database.GetTx(ctx, p.db)

	metadata, err := encodeMetadata(cell.Metadata)
	if err != nil {
		return err
	}

	query := `INSERT INTO cells (` + cellColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = querier.ExecContext(
		ctx,
		query,
		cell.ID,
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

func (p *PostgreSQLCellRepository) Get(ctx context.Context, cellID uuid.UUID) (*cellDomain.Cell, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + cellColumns + ` FROM cells WHERE id = $1`

	cell, err := scanPostgreSQLCell(querier.QueryRowContext(ctx, query, cellID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cellDomain.ErrCellNotFound
		}
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to get cell")
	}
	return cell, nil
}

func (p *PostgreSQLCellRepository) List(ctx context.Context, offset, limit int) ([]*cellDomain.Cell, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + cellColumns + ` FROM cells ORDER BY name ASC LIMIT $1 OFFSET $2`

	rows, err := querier.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to list cells")
	}
	defer func() {
		_ = rows.Close()
	}()

	cells := make([]*cellDomain.Cell, 0)
	for rows.Next() {
		cell, err := scanPostgreSQLCell(rows)
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

func (p *PostgreSQLCellRepository) Update(ctx context.Context, cell *cellDomain.Cell) error {
	querier := database.GetTx(ctx, p.db)

	metadata, err := encodeMetadata(cell.Metadata)
	if err != nil {
		return err
	}

	query := `UPDATE cells
			  SET description = $2, rotation_days = $3, metadata = $4, updated_at = $5, last_rotated_at = $6
			  WHERE id = $1`

	result, err := querier.ExecContext(
		ctx,
		query,
		cell.ID,
		cell.Description,
		cell.RotationDays,
		metadata,
		cell.UpdatedAt,
		cell.LastRotatedAt,
	)
	if err != nil {
		return apperrors.Wrap(database.ClassifyError(err), "failed to update cell")
	}
	return requireRow(result, cellDomain.ErrCellNotFound, "failed to update cell")
}

func (p *PostgreSQLCellRepository) Delete(ctx context.Context, cellID uuid.UUID) error {
	querier := database.GetTx(ctx, p.db)

	result, err := querier.ExecContext(ctx, `DELETE FROM cells WHERE id = $1`, cellID)
	if err != nil {
		return apperrors.Wrap(database.ClassifyError(err), "failed to delete cell")
	}
	return requireRow(result, cellDomain.ErrCellNotFound, "failed to delete cell")
}

func scanPostgreSQLCell(row rowScanner) (*cellDomain.Cell, error) {
	var cell cellDomain.Cell
	var metadata []byte
	if err := row.Scan(
		&cell.ID,
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
	var err error
	if cell.Metadata, err = decodeMetadata(metadata); err != nil {
		return nil, err
	}
	return &cell, nil
}

// requireRow turns a statement that touched no row into notFound.
func requireRow(result sql.Result, notFound error, message string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, message)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// NewPostgreSQLCellRepository creates a new PostgreSQL cell repository.
func NewPostgreSQLCellRepository(db *sql.DB) *PostgreSQLCellRepository {
	return &PostgreSQLCellRepository{db: db}
}
