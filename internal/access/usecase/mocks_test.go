package usecase

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	accessDomain "github.com/allisson/cellvault/internal/access/domain"
)

// mockPolicyRepository is a mock implementation of PolicyRepository for testing.
type mockPolicyRepository struct {
	mock.Mock
}

func (m *mockPolicyRepository) Create(ctx context.Context, policy *accessDomain.Policy) error {
	args := m.Called(ctx, policy)
	return args.Error(0)
}

func (m *mockPolicyRepository) Get(ctx context.Context, policyID uuid.UUID) (*accessDomain.Policy, error) {
	args := m.Called(ctx, policyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*accessDomain.Policy), args.Error(1)
}

func (m *mockPolicyRepository) Delete(ctx context.Context, policyID uuid.UUID) error {
	args := m.Called(ctx, policyID)
	return args.Error(0)
}

func (m *mockPolicyRepository) ListByCell(ctx context.Context, cellID uuid.UUID) ([]*accessDomain.Policy, error) {
	args := m.Called(ctx, cellID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*accessDomain.Policy), args.Error(1)
}

func (m *mockPolicyRepository) ListBySubjectAndCell(
	ctx context.Context,
	subject string,
	cellID uuid.UUID,
) ([]*accessDomain.Policy, error) {
	args := m.Called(ctx, subject, cellID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*accessDomain.Policy), args.Error(1)
}

func (m *mockPolicyRepository) IncrementUse(ctx context.Context, policyID uuid.UUID, limit int64) (bool, error) {
	args := m.Called(ctx, policyID, limit)
	return args.Bool(0), args.Error(1)
}

func (m *mockPolicyRepository) DeleteByCell(ctx context.Context, cellID uuid.UUID) error {
	args := m.Called(ctx, cellID)
	return args.Error(0)
}
