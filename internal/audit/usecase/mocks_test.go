package usecase

import (
	"context"
	"sort"
	"sync"

	"github.com/stretchr/testify/mock"

	auditDomain "github.com/allisson/cellvault/internal/audit/domain"
	apperrors "github.com/allisson/cellvault/internal/errors"
)

// stagingTxManager buffers appends made inside WithTx and publishes them only when fn
// returns nil, mimicking a rollback on error.
type stagingTxManager struct {
	repo *memoryEntryRepository
}

type stagedKey struct{}

func (m *stagingTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	staged := &[]*auditDomain.Entry{}
	if err := fn(context.WithValue(ctx, stagedKey{}, staged)); err != nil {
		return err
	}
	for _, e := range *staged {
		if err := m.repo.Append(context.Background(), e); err != nil {
			return err
		}
	}
	return nil
}

type memoryEntryRepository struct {
	mu      sync.Mutex
	entries map[uint64]*auditDomain.Entry
}

func newMemoryEntryRepository() *memoryEntryRepository {
	return &memoryEntryRepository{entries: make(map[uint64]*auditDomain.Entry)}
}

func (r *memoryEntryRepository) Append(ctx context.Context, entry *auditDomain.Entry) error {
	if staged, ok := ctx.Value(stagedKey{}).(*[]*auditDomain.Entry); ok {
		copied := *entry
		*staged = append(*staged, &copied)
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[entry.Sequence]; ok {
		return apperrors.ErrConflict
	}
	copied := *entry
	r.entries[entry.Sequence] = &copied
	return nil
}

func (r *memoryEntryRepository) Last(context.Context) (*auditDomain.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var last *auditDomain.Entry
	for _, e := range r.entries {
		if last == nil || e.Sequence > last.Sequence {
			last = e
		}
	}
	if last == nil {
		return nil, nil
	}
	copied := *last
	return &copied, nil
}

func (r *memoryEntryRepository) Get(_ context.Context, seq uint64) (*auditDomain.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[seq]
	if !ok {
		return nil, auditDomain.ErrEntryNotFound
	}
	copied := *e
	return &copied, nil
}

func (r *memoryEntryRepository) ListRange(
	_ context.Context,
	from, to uint64,
	limit int,
) ([]*auditDomain.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*auditDomain.Entry
	for seq, e := range r.entries {
		if seq >= from && (to == 0 || seq <= to) {
			copied := *e
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// tamper rewrites a stored entry in place.
func (r *memoryEntryRepository) tamper(seq uint64, fn func(e *auditDomain.Entry)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.entries[seq])
}

func (r *memoryEntryRepository) remove(seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, seq)
}

// mockEntryRepository is a mock implementation of EntryRepository for testing.
type mockEntryRepository struct {
	mock.Mock
}

func (m *mockEntryRepository) Append(ctx context.Context, entry *auditDomain.Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockEntryRepository) Last(ctx context.Context) (*auditDomain.Entry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auditDomain.Entry), args.Error(1)
}

func (m *mockEntryRepository) Get(ctx context.Context, seq uint64) (*auditDomain.Entry, error) {
	args := m.Called(ctx, seq)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auditDomain.Entry), args.Error(1)
}

func (m *mockEntryRepository) ListRange(
	ctx context.Context,
	from, to uint64,
	limit int,
) ([]*auditDomain.Entry, error) {
	args := m.Called(ctx, from, to, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*auditDomain.Entry), args.Error(1)
}

// passthroughTxManager runs fn directly.
type passthroughTxManager struct{}

func (passthroughTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
