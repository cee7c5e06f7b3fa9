package commands

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	accessDomain "github.com/allisson/cellvault/internal/access/domain"
	auditDomain "github.com/allisson/cellvault/internal/audit/domain"
	cellDomain "github.com/allisson/cellvault/internal/cell/domain"
	cellUsecase "github.com/allisson/cellvault/internal/cell/usecase"
)

type mockCellManager struct {
	mock.Mock
}

var _ cellUsecase.CellManager = (*mockCellManager)(nil)

func (m *mockCellManager) CreateCell(
	ctx context.Context,
	claims *accessDomain.Claims,
	input *cellDomain.CreateCellInput,
) (*cellDomain.Cell, error) {
	args := m.Called(ctx, claims, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cellDomain.Cell), args.Error(1)
}

func (m *mockCellManager) GetCell(
	ctx context.Context,
	claims *accessDomain.Claims,
	cellID uuid.UUID,
) (*cellDomain.Cell, error) {
	args := m.Called(ctx, claims, cellID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cellDomain.Cell), args.Error(1)
}

func (m *mockCellManager) ListCells(
	ctx context.Context,
	claims *accessDomain.Claims,
	offset, limit int,
) ([]*cellDomain.Cell, error) {
	args := m.Called(ctx, claims, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*cellDomain.Cell), args.Error(1)
}

func (m *mockCellManager) UpdateCell(
	ctx context.Context,
	claims *accessDomain.Claims,
	cellID uuid.UUID,
	input *cellDomain.UpdateCellInput,
) (*cellDomain.Cell, error) {
	args := m.Called(ctx, claims, cellID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cellDomain.Cell), args.Error(1)
}

func (m *mockCellManager) DeleteCell(ctx context.Context, claims *accessDomain.Claims, cellID uuid.UUID) error {
	return m.Called(ctx, claims, cellID).Error(0)
}

func (m *mockCellManager) GrantPolicy(
	ctx context.Context,
	claims *accessDomain.Claims,
	input *accessDomain.GrantPolicyInput,
) (*accessDomain.Policy, error) {
	args := m.Called(ctx, claims, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accessDomain.Policy), args.Error(1)
}

func (m *mockCellManager) RevokePolicy(
	ctx context.Context,
	claims *accessDomain.Claims,
	cellID, policyID uuid.UUID,
) error {
	return m.Called(ctx, claims, cellID, policyID).Error(0)
}

func (m *mockCellManager) ListPolicies(
	ctx context.Context,
	claims *accessDomain.Claims,
	cellID uuid.UUID,
) ([]*accessDomain.Policy, error) {
	args := m.Called(ctx, claims, cellID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*accessDomain.Policy), args.Error(1)
}

func (m *mockCellManager) Unlock(ctx context.Context, claims *accessDomain.Claims, subject string) error {
	return m.Called(ctx, claims, subject).Error(0)
}

func (m *mockCellManager) Evaluate(
	ctx context.Context,
	claims *accessDomain.Claims,
	cellID uuid.UUID,
	action accessDomain.Action,
) (*accessDomain.Decision, error) {
	args := m.Called(ctx, claims, cellID, action)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accessDomain.Decision), args.Error(1)
}

func (m *mockCellManager) PutSecret(
	ctx context.Context,
	claims *accessDomain.Claims,
	input *cellDomain.PutSecretInput,
) (*cellDomain.SecretVersion, error) {
	args := m.Called(ctx, claims, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cellDomain.SecretVersion), args.Error(1)
}

func (m *mockCellManager) GetSecret(
	ctx context.Context,
	claims *accessDomain.Claims,
	cellID uuid.UUID,
	secretID string,
	version uint,
) (*cellDomain.SecretVersion, error) {
	args := m.Called(ctx, claims, cellID, secretID, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cellDomain.SecretVersion), args.Error(1)
}

func (m *mockCellManager) ListSecretVersions(
	ctx context.Context,
	claims *accessDomain.Claims,
	cellID uuid.UUID,
	secretID string,
) ([]*cellDomain.SecretVersion, error) {
	args := m.Called(ctx, claims, cellID, secretID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*cellDomain.SecretVersion), args.Error(1)
}

func (m *mockCellManager) PurgeSecret(
	ctx context.Context,
	claims *accessDomain.Claims,
	cellID uuid.UUID,
	secretID string,
) error {
	return m.Called(ctx, claims, cellID, secretID).Error(0)
}

func (m *mockCellManager) RotateCell(
	ctx context.Context,
	claims *accessDomain.Claims,
	cellID uuid.UUID,
) (uint, error) {
	args := m.Called(ctx, claims, cellID)
	return args.Get(0).(uint), args.Error(1)
}

func (m *mockCellManager) MigrateCell(
	ctx context.Context,
	claims *accessDomain.Claims,
	cellID uuid.UUID,
) (*cellUsecase.MigrationReport, error) {
	args := m.Called(ctx, claims, cellID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cellUsecase.MigrationReport), args.Error(1)
}

func (m *mockCellManager) RetireCellKeyVersion(
	ctx context.Context,
	claims *accessDomain.Claims,
	cellID uuid.UUID,
	version uint,
) error {
	return m.Called(ctx, claims, cellID, version).Error(0)
}

func (m *mockCellManager) VerifyChain(ctx context.Context, from, to uint64) (*auditDomain.VerifyResult, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auditDomain.VerifyResult), args.Error(1)
}

func (m *mockCellManager) ListAuditEntries(
	ctx context.Context,
	from uint64,
	limit int,
) ([]*auditDomain.Entry, error) {
	args := m.Called(ctx, from, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*auditDomain.Entry), args.Error(1)
}
