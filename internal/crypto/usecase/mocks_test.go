package usecase

import (
	"bytes"
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/cellvault/internal/crypto/domain"
	cryptoService "github.com/allisson/cellvault/internal/crypto/service"
)

// passthroughTxManager runs fn directly; the fake repositories are not transactional.
type passthroughTxManager struct{}

func (passthroughTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memoryCellKeyRepository struct {
	mu       sync.Mutex
	keys     map[uuid.UUID][]cryptoDomain.CellKey
	pointers map[uuid.UUID]uint
}

func newMemoryCellKeyRepository() *memoryCellKeyRepository {
	return &memoryCellKeyRepository{
		keys:     make(map[uuid.UUID][]cryptoDomain.CellKey),
		pointers: make(map[uuid.UUID]uint),
	}
}

func (r *memoryCellKeyRepository) Create(_ context.Context, key *cryptoDomain.CellKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.keys[key.CellID] {
		if k.Version == key.Version {
			return cryptoDomain.ErrPointerConflict
		}
	}
	r.keys[key.CellID] = append(r.keys[key.CellID], *key)
	return nil
}

func (r *memoryCellKeyRepository) ListByCell(_ context.Context, cellID uuid.UUID) ([]*cryptoDomain.CellKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*cryptoDomain.CellKey, 0, len(r.keys[cellID]))
	for _, k := range r.keys[cellID] {
		k := k
		out = append(out, &k)
	}
	return out, nil
}

func (r *memoryCellKeyRepository) UpdateState(
	_ context.Context,
	cellID uuid.UUID,
	version uint,
	state cryptoDomain.KeyState,
	at time.Time,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, k := range r.keys[cellID] {
		if k.Version != version {
			continue
		}
		k.State = state
		if state == cryptoDomain.KeyStateRetired {
			k.WrappedKey = nil
			k.RetiredAt = &at
		}
		r.keys[cellID][i] = k
		return nil
	}
	return cryptoDomain.ErrKeyNotFound
}

func (r *memoryCellKeyRepository) GetPointer(_ context.Context, cellID uuid.UUID) (uint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.pointers[cellID]
	if !ok {
		return 0, cryptoDomain.ErrKeyNotFound
	}
	return v, nil
}

func (r *memoryCellKeyRepository) SwapPointer(_ context.Context, cellID uuid.UUID, expected, next uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pointers[cellID] != expected {
		return cryptoDomain.ErrPointerConflict
	}
	r.pointers[cellID] = next
	return nil
}

func (r *memoryCellKeyRepository) DeleteByCell(_ context.Context, cellID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.keys, cellID)
	delete(r.pointers, cellID)
	return nil
}

type staticReferenceCounter struct {
	mu     sync.Mutex
	counts map[uint]int64
}

func (c *staticReferenceCounter) set(version uint, n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[uint]int64)
	}
	c.counts[version] = n
}

func (c *staticReferenceCounter) CountByKeyVersion(_ context.Context, _ uuid.UUID, version uint) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[version], nil
}

type hierarchyFixture struct {
	hierarchy *keyHierarchy
	repo      *memoryCellKeyRepository
	refs      *staticReferenceCounter
}

func newHierarchyFixture(t *testing.T) *hierarchyFixture {
	t.Helper()
	raw := "mk-1:" + base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, cryptoDomain.KeySize))
	chain, err := cryptoDomain.NewMasterKeyChain(raw, "mk-1")
	require.NoError(t, err)

	aeadManager := cryptoService.NewAEADManager()
	custodian := cryptoService.NewLocalCustodian(chain, aeadManager)
	t.Cleanup(func() { _ = custodian.Close() })

	repo := newMemoryCellKeyRepository()
	refs := &staticReferenceCounter{}
	hierarchy := NewKeyHierarchy(
		passthroughTxManager{},
		repo,
		refs,
		cryptoService.NewKeyManager(aeadManager, custodian),
		DefaultSettings(),
	).(*keyHierarchy)

	return &hierarchyFixture{hierarchy: hierarchy, repo: repo, refs: refs}
}
