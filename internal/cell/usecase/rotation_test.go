package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditDomain "github.com/allisson/cellvault/internal/audit/domain"
	cellDomain "github.com/allisson/cellvault/internal/cell/domain"
	cryptoDomain "github.com/allisson/cellvault/internal/crypto/domain"
	apperrors "github.com/allisson/cellvault/internal/errors"
)

func TestCellManager_RotateMigrateRetire(t *testing.T) {
	ctx := context.Background()
	f := newVaultFixture(t, func(s *Settings) { s.MigrationBatchSize = 2 })
	cellID := f.createCell(t, "payments")

	for i := range 5 {
		f.put(t, cellID, fmt.Sprintf("secret-%d", i), fmt.Sprintf("value-%d", i))
	}

	version, err := f.manager.RotateCell(ctx, alice, cellID)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)

	rotated := f.last(t)
	assert.Equal(t, "rotate_cell", rotated.Action)
	assert.Equal(t, "1", rotated.Metadata["from_version"])
	assert.Equal(t, "2", rotated.Metadata["to_version"])

	select {
	case queued := <-f.manager.PendingMigrations():
		assert.Equal(t, cellID, queued)
	default:
		t.Fatal("rotated cell was not queued for migration")
	}

	// Old versions stay readable through their own key version until migrated.
	secret, err := f.manager.GetSecret(ctx, alice, cellID, "secret-0", 0)
	require.NoError(t, err)
	assert.Equal(t, uint(1), secret.KeyVersion)
	assert.Equal(t, []byte("value-0"), secret.Plaintext)

	fresh := f.put(t, cellID, "secret-new", "new")
	assert.Equal(t, uint(2), fresh.KeyVersion)

	err = f.manager.RetireCellKeyVersion(ctx, alice, cellID, 1)
	require.ErrorIs(t, err, cryptoDomain.ErrVersionInUse)
	assert.Equal(t, "version_in_use", f.last(t).Reason)

	report, err := f.manager.MigrateCell(ctx, alice, cellID)
	require.NoError(t, err)
	assert.Equal(t, uint(2), report.TargetVersion)
	assert.Equal(t, 5, report.Migrated)
	assert.Zero(t, report.Failed)

	summary := f.last(t)
	assert.Equal(t, "migrate_cell", summary.Action)
	assert.Equal(t, "5", summary.Metadata["migrated"])

	// A second sweep finds nothing to do.
	report, err = f.manager.MigrateCell(ctx, alice, cellID)
	require.NoError(t, err)
	assert.Zero(t, report.Migrated)

	require.NoError(t, f.manager.RetireCellKeyVersion(ctx, alice, cellID, 1))
	require.NoError(t, f.manager.RetireCellKeyVersion(ctx, alice, cellID, 1), "retiring twice is a no-op")
	assert.Equal(t, "true", f.last(t).Metadata["already_retired"])

	_, err = f.keys.Pin(ctx, cellID, 1)
	assert.ErrorIs(t, err, cryptoDomain.ErrKeyRevoked)

	for i := range 5 {
		secret, err := f.manager.GetSecret(ctx, alice, cellID, fmt.Sprintf("secret-%d", i), 0)
		require.NoError(t, err)
		assert.Equal(t, uint(2), secret.KeyVersion)
		assert.Equal(t, []byte(fmt.Sprintf("value-%d", i)), secret.Plaintext)
	}

	err = f.manager.RetireCellKeyVersion(ctx, alice, cellID, 2)
	assert.ErrorIs(t, err, cryptoDomain.ErrVersionInUse, "the current version cannot be retired")

	result, err := f.manager.VerifyChain(ctx, 0, 0)
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestCellManager_MigrationSkipsCorruptDataKeys(t *testing.T) {
	ctx := context.Background()
	f := newVaultFixture(t)
	cellID := f.createCell(t, "payments")
	f.put(t, cellID, "good", "fine")
	f.put(t, cellID, "bad", "doomed")

	rewrite(t, f.db, secretKey(cellID, "bad", 1), func(s *cellDomain.SecretVersion) {
		s.DataKey.Ciphertext[0] ^= 0xFF
	})

	_, err := f.manager.RotateCell(ctx, alice, cellID)
	require.NoError(t, err)

	report, err := f.manager.MigrateCell(ctx, alice, cellID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Migrated)
	assert.Equal(t, 1, report.Failed)

	summary := f.last(t)
	assert.Equal(t, auditDomain.OutcomeAllow, summary.Outcome)
	assert.Equal(t, auditDomain.SignalTamperSuspected, summary.Signal)
	assert.Equal(t, "1", summary.Metadata["failed"])

	// The corrupt version still pins key version 1.
	err = f.manager.RetireCellKeyVersion(ctx, alice, cellID, 1)
	assert.ErrorIs(t, err, cryptoDomain.ErrVersionInUse)
}

func TestCellManager_RotationRequiresRotateAction(t *testing.T) {
	ctx := context.Background()
	f := newVaultFixture(t)
	cellID := f.createCell(t, "payments")

	_, err := f.manager.RotateCell(ctx, bob, cellID)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = f.manager.MigrateCell(ctx, bob, cellID)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	err = f.manager.RetireCellKeyVersion(ctx, bob, cellID, 1)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	ring, err := f.keys.KeyRing(ctx, cellID)
	require.NoError(t, err)
	assert.Equal(t, uint(1), ring.CurrentVersion())
}

func TestCellManager_Maintainer(t *testing.T) {
	ctx := context.Background()
	f := newVaultFixture(t)

	weekly, err := f.manager.CreateCell(ctx, operator, &cellDomain.CreateCellInput{
		Name: "weekly", RotationDays: 7, Owner: "alice",
	})
	require.NoError(t, err)
	monthly := f.createCell(t, "monthly")
	f.put(t, weekly.ID, "db-password", "hunter2")

	due, err := f.manager.DueForRotation(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Empty(t, due)

	f.clock.Advance(8 * 24 * time.Hour)
	due, err = f.manager.DueForRotation(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{weekly.ID}, due)

	version, err := f.manager.RotateDue(ctx, weekly.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.Equal(t, SchedulerSubject, f.last(t).Subject)

	// The rotation restarts the interval.
	due, err = f.manager.DueForRotation(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Empty(t, due)

	retired, err := f.manager.RetireStale(ctx, weekly.ID)
	require.NoError(t, err)
	assert.Empty(t, retired, "version 1 still wraps a data key")

	report, err := f.manager.Migrate(ctx, weekly.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Migrated)

	retired, err = f.manager.RetireStale(ctx, weekly.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{1}, retired)
	assert.Equal(t, "retire_key_version", f.last(t).Action)
	assert.Equal(t, SchedulerSubject, f.last(t).Subject)

	retired, err = f.manager.RetireStale(ctx, monthly)
	require.NoError(t, err)
	assert.Empty(t, retired)

	_, err = f.manager.RotateDue(ctx, uuid.Must(uuid.NewV7()))
	assert.ErrorIs(t, err, cellDomain.ErrCellNotFound)
}

func TestCellManager_PendingQueueOverflowDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	f := newVaultFixture(t, func(s *Settings) { s.PendingBuffer = 1 })
	cellID := f.createCell(t, "payments")

	for range 3 {
		_, err := f.manager.RotateCell(ctx, alice, cellID)
		require.NoError(t, err)
	}
	assert.Len(t, f.manager.PendingMigrations(), 1)
}

func TestCellManager_AwaitingMigration(t *testing.T) {
	ctx := context.Background()
	f := newVaultFixture(t)
	rotated := f.createCell(t, "payments")
	idle := f.createCell(t, "billing")
	f.put(t, rotated, "db-password", "hunter2")
	f.put(t, idle, "api-key", "k1")

	awaiting, err := f.manager.AwaitingMigration(ctx)
	require.NoError(t, err)
	assert.Empty(t, awaiting)

	_, err = f.manager.RotateCell(ctx, alice, rotated)
	require.NoError(t, err)
	// Lose the in-process signal, as a CLI rotation or a full queue would.
	<-f.manager.PendingMigrations()

	for _, after := range []time.Duration{24 * time.Hour, 7 * 24 * time.Hour} {
		f.clock.Advance(after)

		due, err := f.manager.DueForRotation(ctx, f.clock.Now())
		require.NoError(t, err)
		assert.NotContains(t, due, rotated)

		awaiting, err = f.manager.AwaitingMigration(ctx)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{rotated}, awaiting)
	}

	report, err := f.manager.Migrate(ctx, rotated)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Migrated)
	retired, err := f.manager.RetireStale(ctx, rotated)
	require.NoError(t, err)
	assert.Equal(t, []uint{1}, retired)

	awaiting, err = f.manager.AwaitingMigration(ctx)
	require.NoError(t, err)
	assert.Empty(t, awaiting)
}

func TestCellManager_MigrationThrottleRespectsDeadline(t *testing.T) {
	f := newVaultFixture(t, func(s *Settings) { s.MigrationRate = 0.001 })
	cellID := f.createCell(t, "payments")
	f.put(t, cellID, "a", "1")
	f.put(t, cellID, "b", "2")
	_, err := f.manager.RotateCell(context.Background(), alice, cellID)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	// The first re-wrap uses the burst; the second would wait far past the deadline.
	_, err = f.manager.MigrateCell(ctx, alice, cellID)
	require.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.Equal(t, "timeout", f.last(t).Reason)
}
