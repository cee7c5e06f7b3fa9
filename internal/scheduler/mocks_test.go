package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	cellUsecase "github.com/allisson/cellvault/internal/cell/usecase"
)

// mockMaintainer is a mock implementation of cellUsecase.Maintainer for testing.
type mockMaintainer struct {
	mock.Mock
	pending chan uuid.UUID
}

func newMockMaintainer() *mockMaintainer {
	return &mockMaintainer{pending: make(chan uuid.UUID)}
}

func (m *mockMaintainer) DueForRotation(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *mockMaintainer) AwaitingMigration(ctx context.Context) ([]uuid.UUID, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *mockMaintainer) RotateDue(ctx context.Context, cellID uuid.UUID) (uint, error) {
	args := m.Called(ctx, cellID)
	return args.Get(0).(uint), args.Error(1)
}

func (m *mockMaintainer) Migrate(ctx context.Context, cellID uuid.UUID) (*cellUsecase.MigrationReport, error) {
	args := m.Called(ctx, cellID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cellUsecase.MigrationReport), args.Error(1)
}

func (m *mockMaintainer) RetireStale(ctx context.Context, cellID uuid.UUID) ([]uint, error) {
	args := m.Called(ctx, cellID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uint), args.Error(1)
}

func (m *mockMaintainer) PendingMigrations() <-chan uuid.UUID {
	return m.pending
}

var _ cellUsecase.Maintainer = (*mockMaintainer)(nil)
