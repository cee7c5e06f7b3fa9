package repository

import (
	"context"
	"database/sql"
	"errors"

	auditDomain "github.com/allisson/cellvault/internal/audit/domain"
	"github.com/allisson/cellvault/internal/database"
	apperrors "github.com/allisson/cellvault/internal/errors"
)

// MySQLEntryRepository implements audit entry persistence for MySQL.
//
// Database schema requirements:
//   - audit_entries(sequence BIGINT UNSIGNED PK, id BINARY(16), created_at DATETIME(6),
//     subject VARCHAR(255), cell_id BINARY(16), action VARCHAR(64), outcome VARCHAR(16),
//     reason VARCHAR(64), signal_type VARCHAR(64), metadata JSON, prev_hash VARBINARY(32),
//     hash VARBINARY(32))
type MySQLEntryRepository struct {
	db *sql.DB
}

func (m *MySQLEntryRepository) Append(ctx context.Context, entry *auditDomain.Entry) error {
	querier := database.GetTx(ctx, m.db)

	id, err := entry.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal audit entry id")
	}
	cellID, err := entry.CellID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal cell id")
	}
	metadata, err := encodeMetadata(entry)
	if err != nil {
		return err
	}

	query := `INSERT INTO audit_entries (` + entryColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		int64(entry.Sequence),
		id,
		entry.Timestamp,
		entry.Subject,
		cellID,
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

func (m *MySQLEntryRepository) Last(ctx context.Context) (*auditDomain.Entry, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + entryColumns + ` FROM audit_entries ORDER BY sequence DESC LIMIT 1`

	entry, err := scanMySQLEntry(querier.QueryRowContext(ctx, query))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to get last audit entry")
	}
	return entry, nil
}

func (m *MySQLEntryRepository) Get(ctx context.Context, seq uint64) (*auditDomain.Entry, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + entryColumns + ` FROM audit_entries WHERE sequence = ?`

	entry, err := scanMySQLEntry(querier.QueryRowContext(ctx, query, int64(seq)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auditDomain.ErrEntryNotFound
		}
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to get audit entry")
	}
	return entry, nil
}

func (m *MySQLEntryRepository) ListRange(
	ctx context.Context,
	from, to uint64,
	limit int,
) ([]*auditDomain.Entry, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + entryColumns + ` FROM audit_entries WHERE sequence >= ?`
	args := []any{int64(from)}
	if to > 0 {
		query += ` AND sequence <= ?`
		args = append(args, int64(to))
	}
	query += ` ORDER BY sequence ASC LIMIT ?`
	args = append(args, limit)

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to list audit entries")
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []*auditDomain.Entry
	for rows.Next() {
		entry, err := scanMySQLEntry(rows)
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

func scanMySQLEntry(row rowScanner) (*auditDomain.Entry, error) {
	var entry auditDomain.Entry
	var seq int64
	var id, cellID, metadata []byte
	var outcome, signal string

	if err := row.Scan(
		&seq,
		&id,
		&entry.Timestamp,
		&entry.Subject,
		&cellID,
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

	if err := entry.ID.UnmarshalBinary(id); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal audit entry id")
	}
	if err := entry.CellID.UnmarshalBinary(cellID); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal cell id")
	}
	entry.Sequence = uint64(seq)
	entry.Outcome = auditDomain.Outcome(outcome)
	entry.Signal = auditDomain.Signal(signal)
	if err := decodeMetadata(&entry, metadata); err != nil {
		return nil, err
	}
	return &entry, nil
}

// NewMySQLEntryRepository creates a new MySQL audit entry repository.
func NewMySQLEntryRepository(db *sql.DB) *MySQLEntryRepository {
	return &MySQLEntryRepository{db: db}
}
