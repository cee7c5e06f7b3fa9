package repository

import (
	"context"
	"database/sql"
	"errors"

	auditDomain "github.com/allisson/cellvault/internal/audit/domain"
	"github.com/allisson/cellvault/internal/database"
	apperrors "github.com/allisson/cellvault/internal/errors"
)

// PostgreSQLEntryRepository implements audit entry persistence for PostgreSQL.
//
// Database schema requirements:
//   - audit_entries(sequence BIGINT PK, id UUID, created_at TIMESTAMPTZ, subject TEXT,
//     cell_id UUID, action TEXT, outcome TEXT, reason TEXT, signal TEXT,
//     metadata JSONB, prev_hash BYTEA, hash BYTEA)
type PostgreSQLEntryRepository struct {
	db *sql.DB
}

func (p *PostgreSQLEntryRepository) Append(ctx context.Context, entry *auditDomain.Entry) error {
	querier := database.GetTx(ctx, p.db)

	metadata, err := encodeMetadata(entry)
	if err != nil {
		return err
	}

	query := `INSERT INTO audit_entries (` + entryColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = querier.ExecContext(
		ctx,
		query,
		int64(entry.Sequence),
		entry.ID,
		entry.Timestamp,
		entry.Subject,
		entry.CellID,
		entry.Action,
		string(entry.Outcome),
		entry.Reason,
		string(entry.Signal),
		metadata,
		entry.PrevHash,
		entry.Hash,
	)
	if err != nil {
		return apperrors.Wrap(database.ClassifyError(err), "failed to append audit entry")
	}
	return nil
}

func (p *PostgreSQLEntryRepository) Last(ctx context.Context) (*auditDomain.Entry, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + entryColumns + ` FROM audit_entries ORDER BY sequence DESC LIMIT 1`

	entry, err := scanPostgreSQLEntry(querier.QueryRowContext(ctx, query))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to get last audit entry")
	}
	return entry, nil
}

func (p *PostgreSQLEntryRepository) Get(ctx context.Context, seq uint64) (*auditDomain.Entry, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + entryColumns + ` FROM audit_entries WHERE sequence = $1`

	entry, err := scanPostgreSQLEntry(querier.QueryRowContext(ctx, query, int64(seq)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auditDomain.ErrEntryNotFound
		}
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to get audit entry")
	}
	return entry, nil
}

func (p *PostgreSQLEntryRepository) ListRange(
	ctx context.Context,
	from, to uint64,
	limit int,
) ([]*auditDomain.Entry, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + entryColumns + ` FROM audit_entries
			  WHERE sequence >= $1 AND ($2::BIGINT = 0 OR sequence <= $2)
			  ORDER BY sequence ASC LIMIT $3`

	rows, err := querier.QueryContext(ctx, query, int64(from), int64(to), limit)
	if err != nil {
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to list audit entries")
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []*auditDomain.Entry
	for rows.Next() {
		entry, err := scanPostgreSQLEntry(rows)
		if err != nil {
			return nil, apperrors.Wrap(database.ClassifyError(err), "failed to scan audit entry")
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to list audit entries")
	}
	return entries, nil
}

func scanPostgreSQLEntry(row rowScanner) (*auditDomain.Entry, error) {
	var entry auditDomain.Entry
	var seq int64
	var outcome, signal string
	var metadata []byte

	if err := row.Scan(
		&seq,
		&entry.ID,
		&entry.Timestamp,
		&entry.Subject,
		&entry.CellID,
		&entry.Action,
		&outcome,
		&entry.Reason,
		&signal,
		&metadata,
		&entry.PrevHash,
		&entry.Hash,
	); err != nil {
		return nil, err
	}

	entry.Sequence = uint64(seq)
	entry.Outcome = auditDomain.Outcome(outcome)
	entry.Signal = auditDomain.Signal(signal)
	if err := decodeMetadata(&entry, metadata); err != nil {
		return nil, err
	}
	return &entry, nil
}

// NewPostgreSQLEntryRepository creates a new PostgreSQL audit entry repository.
func NewPostgreSQLEntryRepository(db *sql.DB) *PostgreSQLEntryRepository {
	return &PostgreSQLEntryRepository{db: db}
}
