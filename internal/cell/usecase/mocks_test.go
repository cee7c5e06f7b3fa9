package usecase

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	accessDomain "github.com/allisson/cellvault/internal/access/domain"
	accessRepository "github.com/allisson/cellvault/internal/access/repository"
	accessUsecase "github.com/allisson/cellvault/internal/access/usecase"
	auditDomain "github.com/allisson/cellvault/internal/audit/domain"
	auditRepository "github.com/allisson/cellvault/internal/audit/repository"
	auditUsecase "github.com/allisson/cellvault/internal/audit/usecase"
	cellDomain "github.com/allisson/cellvault/internal/cell/domain"
	cellRepository "github.com/allisson/cellvault/internal/cell/repository"
	cryptoDomain "github.com/allisson/cellvault/internal/crypto/domain"
	cryptoRepository "github.com/allisson/cellvault/internal/crypto/repository"
	cryptoService "github.com/allisson/cellvault/internal/crypto/service"
	cryptoUsecase "github.com/allisson/cellvault/internal/crypto/usecase"
	"github.com/allisson/cellvault/internal/database"
	apperrors "github.com/allisson/cellvault/internal/errors"
	"github.com/allisson/cellvault/internal/metrics"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// flakyEntryRepository fails every append while broken is set.
type flakyEntryRepository struct {
	auditUsecase.EntryRepository
	broken atomic.Bool
}

func (r *flakyEntryRepository) Append(ctx context.Context, entry *auditDomain.Entry) error {
	if r.broken.Load() {
		return apperrors.Wrap(database.ErrPersistenceUnavailable, "failed to append audit entry")
	}
	return r.EntryRepository.Append(ctx, entry)
}

// mockBusinessMetrics is a mock implementation of metrics.BusinessMetrics for testing.
type mockBusinessMetrics struct {
	mock.Mock
}

func (m *mockBusinessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	m.Called(ctx, domain, operation, status)
}

func (m *mockBusinessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	m.Called(ctx, domain, operation, duration, status)
}

func (m *mockBusinessMetrics) RecordSecretsMigrated(ctx context.Context, outcome string, count int) {
	m.Called(ctx, outcome, count)
}

func (m *mockBusinessMetrics) RecordChainVerified(ctx context.Context, checked int64, valid bool) {
	m.Called(ctx, checked, valid)
}

var _ metrics.BusinessMetrics = (*mockBusinessMetrics)(nil)

// vaultFixture wires the cell manager to real engines over an in-memory badger store.
type vaultFixture struct {
	manager *cellManager
	db      *badger.DB
	entries *flakyEntryRepository
	secrets *cellRepository.BadgerSecretRepository
	keys    cryptoUsecase.KeyHierarchy
	audit   auditUsecase.AuditLog
	clock   *fakeClock
}

var (
	operator = &accessDomain.Claims{Subject: "ops", Factors: []accessDomain.Factor{accessDomain.FactorPassword}}
	alice    = &accessDomain.Claims{Subject: "alice", Factors: []accessDomain.Factor{accessDomain.FactorPassword}}
	bob      = &accessDomain.Claims{Subject: "bob", Factors: []accessDomain.Factor{accessDomain.FactorPassword}}
)

func newVaultFixture(t *testing.T, tune ...func(*Settings)) *vaultFixture {
	t.Helper()

	db, err := database.OpenBadger(database.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	raw := "mk-1:" + base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{9}, cryptoDomain.KeySize))
	chain, err := cryptoDomain.NewMasterKeyChain(raw, "mk-1")
	require.NoError(t, err)
	aeadManager := cryptoService.NewAEADManager()
	custodian := cryptoService.NewLocalCustodian(chain, aeadManager)
	t.Cleanup(func() { _ = custodian.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	txManager := database.NewBadgerTxManager(db)

	secrets := cellRepository.NewBadgerSecretRepository(db)
	keys := cryptoUsecase.NewKeyHierarchy(
		txManager,
		cryptoRepository.NewBadgerCellKeyRepository(db),
		secrets,
		cryptoService.NewKeyManager(aeadManager, custodian),
		cryptoUsecase.DefaultSettings(),
	)
	access := accessUsecase.NewEngine(
		accessRepository.NewBadgerPolicyRepository(db),
		accessUsecase.Settings{MaxFailedAttempts: 3, LockoutDuration: 10 * time.Minute, Now: clock.Now},
		logger,
	)
	entries := &flakyEntryRepository{EntryRepository: auditRepository.NewBadgerEntryRepository(db)}
	audit := auditUsecase.NewAuditLog(txManager, entries, auditUsecase.Settings{Now: clock.Now}, logger)

	settings := DefaultSettings()
	settings.MigrationRate = 0
	settings.Now = clock.Now
	settings.Operators = []string{operator.Subject}
	for _, fn := range tune {
		fn(&settings)
	}

	manager := NewCellManager(
		txManager,
		cellRepository.NewBadgerCellRepository(db),
		secrets,
		keys,
		access,
		audit,
		aeadManager,
		settings,
		logger,
	).(*cellManager)

	return &vaultFixture{
		manager: manager,
		db:      db,
		entries: entries,
		secrets: secrets,
		keys:    keys,
		audit:   audit,
		clock:   clock,
	}
}

// createCell creates a cell owned by alice.
func (f *vaultFixture) createCell(t *testing.T, name string) uuid.UUID {
	t.Helper()
	cell, err := f.manager.CreateCell(context.Background(), operator, &cellDomain.CreateCellInput{
		Name:  name,
		Owner: "alice",
	})
	require.NoError(t, err)
	return cell.ID
}

func (f *vaultFixture) put(t *testing.T, cellID uuid.UUID, secretID, value string) *cellDomain.SecretVersion {
	t.Helper()
	secret, err := f.manager.PutSecret(context.Background(), alice, &cellDomain.PutSecretInput{
		CellID:    cellID,
		SecretID:  secretID,
		Plaintext: []byte(value),
	})
	require.NoError(t, err)
	return secret
}

// trail returns the whole audit trail.
func (f *vaultFixture) trail(t *testing.T) []*auditDomain.Entry {
	t.Helper()
	entries, err := f.audit.List(context.Background(), 1, 10_000)
	require.NoError(t, err)
	return entries
}

// last returns the newest audit entry.
func (f *vaultFixture) last(t *testing.T) *auditDomain.Entry {
	t.Helper()
	trail := f.trail(t)
	require.NotEmpty(t, trail)
	return trail[len(trail)-1]
}

// rewrite edits a stored record in place, bypassing every engine.
func rewrite[T any](t *testing.T, db *badger.DB, key []byte, fn func(*T)) {
	t.Helper()
	require.NoError(t, db.Update(func(txn *badger.Txn) error {
		var v T
		if err := database.GetJSON(txn, key, &v); err != nil {
			return err
		}
		fn(&v)
		return database.SetJSON(txn, key, &v)
	}))
}

// entryKey and secretKey mirror the badger layouts of the audit and secret repositories.
func entryKey(seq uint64) []byte {
	return database.KVKey("audit", database.KVSeq(seq))
}

func secretKey(cellID uuid.UUID, secretID string, version uint) []byte {
	return database.KVKey("secret", cellID.String(), secretID, database.KVSeq(uint64(version)))
}
