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

const policyColumns = `id, subject, cell_id, actions, conditions, use_count, created_at`

// PostgreSQLPolicyRepository implements policy persistence for PostgreSQL.
//
// Database schema requirements:
//   - access_policies(id UUID PK, subject TEXT, cell_id UUID, actions JSONB,
//     conditions JSONB, use_count BIGINT, created_at TIMESTAMPTZ)
type PostgreSQLPolicyRepository struct {
	db *sql.DB
}

func (p *PostgreSQLPolicyRepository) Create(ctx context.Context, policy *accessDomain.Policy) error {
	querier := database.GetTx(ctx, p.db)

	actions, conditions, err := encodePolicyDocuments(policy)
	if err != nil {
		return err
	}

	query := `INSERT INTO access_policies (` + policyColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = querier.ExecContext(
		ctx,
		query,
		policy.ID,
		policy.Subject,
		policy.CellID,
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

func (p *PostgreSQLPolicyRepository) Get(ctx context.Context, policyID uuid.UUID) (*accessDomain.Policy, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + policyColumns + ` FROM access_policies WHERE id = $1`

	policy, err := scanPostgreSQLPolicy(querier.QueryRowContext(ctx, query, policyID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, accessDomain.ErrPolicyNotFound
		}
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to get policy")
	}
	return policy, nil
}

func (p *PostgreSQLPolicyRepository) Delete(ctx context.Context, policyID uuid.UUID) error {
	querier := database.GetTx(ctx, p.db)

	result, err := querier.ExecContext(ctx, `DELETE FROM access_policies WHERE id = $1`, policyID)
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

func (p *PostgreSQLPolicyRepository) ListByCell(
	ctx context.Context,
	cellID uuid.UUID,
) ([]*accessDomain.Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM access_policies
			  WHERE cell_id = $1 ORDER BY created_at ASC, id ASC`
	return p.list(ctx, query, cellID)
}

func (p *PostgreSQLPolicyRepository) ListBySubjectAndCell(
	ctx context.Context,
	subject string,
	cellID uuid.UUID,
) ([]*accessDomain.Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM access_policies
			  WHERE subject = $1 AND cell_id = $2 ORDER BY created_at ASC, id ASC`
	return p.list(ctx, query, subject, cellID)
}

func (p *PostgreSQLPolicyRepository) IncrementUse(
	ctx context.Context,
	policyID uuid.UUID,
	limit int64,
) (bool, error) {
	querier := database.GetTx(ctx, p.db)

	result, err := querier.ExecContext(
		ctx,
		`UPDATE access_policies SET use_count = use_count + 1 WHERE id = $1 AND use_count < $2`,
		policyID,
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

func (p *PostgreSQLPolicyRepository) DeleteByCell(ctx context.Context, cellID uuid.UUID) error {
	querier := database.GetTx(ctx, p.db)

	if _, err := querier.ExecContext(ctx, `DELETE FROM access_policies WHERE cell_id = $1`, cellID); err != nil {
		return apperrors.Wrap(database.ClassifyError(err), "failed to delete cell policies")
	}
	return nil
}

func (p *PostgreSQLPolicyRepository) list(ctx context.Context, query string, args ...any) ([]*accessDomain.Policy, error) {
	querier := database.GetTx(ctx, p.db)

	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to list policies")
	}
	defer func() {
		_ = rows.Close()
	}()

	var policies []*accessDomain.Policy
	for rows.Next() {
		policy, err := scanPostgreSQLPolicy(rows)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPostgreSQLPolicy(row rowScanner) (*accessDomain.Policy, error) {
	var policy accessDomain.Policy
	var actions, conditions []byte

	if err := row.Scan(
		&policy.ID,
		&policy.Subject,
		&policy.CellID,
		&actions,
		&conditions,
		&policy.UseCount,
		&policy.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := decodePolicyDocuments(&policy, actions, conditions); err != nil {
		return nil, err
	}
	return &policy, nil
}

// NewPostgreSQLPolicyRepository creates a new PostgreSQL policy repository.
func NewPostgreSQLPolicyRepository(db *sql.DB) *PostgreSQLPolicyRepository {
	return &PostgreSQLPolicyRepository{db: db}
}
