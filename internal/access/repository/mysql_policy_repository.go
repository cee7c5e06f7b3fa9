package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	accessDomain "github.com/allisson/cellvault/internal/access/domain"
	"github.com/allisson/cellvault/internal/database"
	apperrors "github.com/allisson/cellvault/internal/errors"
)

// MySQLPolicyRepository implements policy persistence for MySQL. UUIDs are stored
// as BINARY(16) and the documents as JSON.
type MySQLPolicyRepository struct {
	db *sql.DB
}

func (m *MySQLPolicyRepository) Create(ctx context.Context, policy *accessDomain.Policy) error {
	querier := database.GetTx(ctx, m.db)

	id, err := policy.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal policy id")
	}
	cellID, err := policy.CellID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal cell id")
	}
	actions, conditions, err := encodePolicyDocuments(policy)
	if err != nil {
		return err
	}

	query := `INSERT INTO access_policies (` + policyColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
		policy.Subject,
		cellID,
		actions,
		conditions,
		policy.UseCount,
		policy.CreatedAt,
	)
	if err != nil {
		return apperrors.Wrap(database.ClassifyError(err), "failed to create policy")
	}
	return nil
}

func (m *MySQLPolicyRepository) Get(ctx context.Context, policyID uuid.UUID) (*accessDomain.Policy, error) {
	querier := database.GetTx(ctx, m.db)

	id, err := policyID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal policy id")
	}

	query := `SELECT ` + policyColumns + ` FROM access_policies WHERE id = ?`

	policy, err := scanMySQLPolicy(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, accessDomain.ErrPolicyNotFound
		}
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to get policy")
	}
	return policy, nil
}

func (m *MySQLPolicyRepository) Delete(ctx context.Context, policyID uuid.UUID) error {
	querier := database.GetTx(ctx, m.db)

	id, err := policyID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal policy id")
	}

	result, err := querier.ExecContext(ctx, `DELETE FROM access_policies WHERE id = ?`, id)
	if err != nil {
		return apperrors.Wrap(database.ClassifyError(err), "failed to delete policy")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to delete policy")
	}
	if n == 0 {
		return accessDomain.ErrPolicyNotFound
	}
	return nil
}

func (m *MySQLPolicyRepository) ListByCell(
	ctx context.Context,
	cellID uuid.UUID,
) ([]*accessDomain.Policy, error) {
	id, err := cellID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal cell id")
	}
	query := `SELECT ` + policyColumns + ` FROM access_policies
			  WHERE cell_id = ? ORDER BY created_at ASC, id ASC`
	return m.list(ctx, query, id)
}

func (m *MySQLPolicyRepository) ListBySubjectAndCell(
	ctx context.Context,
	subject string,
	cellID uuid.UUID,
) ([]*accessDomain.Policy, error) {
	id, err := cellID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal cell id")
	}
	query := `SELECT ` + policyColumns + ` FROM access_policies
			  WHERE subject = ? AND cell_id = ? ORDER BY created_at ASC, id ASC`
	return m.list(ctx, query, subject, id)
}

func (m *MySQLPolicyRepository) IncrementUse(
	ctx context.Context,
	policyID uuid.UUID,
	limit int64,
) (bool, error) {
	querier := database.GetTx(ctx, m.db)

	id, err := policyID.MarshalBinary()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to marshal policy id")
	}

	result, err := querier.ExecContext(
		ctx,
		`UPDATE access_policies SET use_count = use_count + 1 WHERE id = ? AND use_count < ?`,
		id,
		limit,
	)
	if err != nil {
		return false, apperrors.Wrap(database.ClassifyError(err), "failed to increment policy use")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to increment policy use")
	}
	return n == 1, nil
}

func (m *MySQLPolicyRepository) DeleteByCell(ctx context.Context, cellID uuid.UUID) error {
	querier := database.GetTx(ctx, m.db)

	id, err := cellID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal cell id")
	}
	if _, err := querier.ExecContext(ctx, `DELETE FROM access_policies WHERE cell_id = ?`, id); err != nil {
		return apperrors.Wrap(database.ClassifyError(err), "failed to delete cell policies")
	}
	return nil
}

func (m *MySQLPolicyRepository) list(ctx context.Context, query string, args ...any) ([]*accessDomain.Policy, error) {
	querier := database.GetTx(ctx, m.db)

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to list policies")
	}
	defer func() {
		_ = rows.Close()
	}()

	var policies []*accessDomain.Policy
	for rows.Next() {
		policy, err := scanMySQLPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, policy)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to list policies")
	}
	return policies, nil
}

func scanMySQLPolicy(row rowScanner) (*accessDomain.Policy, error) {
	var policy accessDomain.Policy
	var id, cellID, actions, conditions []byte

	if err := row.Scan(
		&id,
		&policy.Subject,
		&cellID,
		&actions,
		&conditions,
		&policy.UseCount,
		&policy.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := policy.ID.UnmarshalBinary(id); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal policy id")
	}
	if err := policy.CellID.UnmarshalBinary(cellID); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal cell id")
	}
	if err := decodePolicyDocuments(&policy, actions, conditions); err != nil {
		return nil, err
	}
	return &policy, nil
}

// NewMySQLPolicyRepository creates a new MySQL policy repository.
func NewMySQLPolicyRepository(db *sql.DB) *MySQLPolicyRepository {
	return &MySQLPolicyRepository{db: db}
}
