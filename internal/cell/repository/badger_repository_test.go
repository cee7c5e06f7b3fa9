package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cellDomain "github.com/allisson/cellvault/internal/cell/domain"
	cryptoDomain "github.com/allisson/cellvault/internal/crypto/domain"
	"github.com/allisson/cellvault/internal/database"
	apperrors "github.com/allisson/cellvault/internal/errors"
)

func openTestBadger(t *testing.T) *badger.DB {
	t.Helper()
	db, err := database.OpenBadger(database.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestBadgerCellRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewBadgerCellRepository(openTestBadger(t))

	beta, alpha, gamma := newTestCell("beta"), newTestCell("alpha"), newTestCell("gamma")
	for _, c := range []*cellDomain.Cell{beta, alpha, gamma} {
		require.NoError(t, repo.Create(ctx, c))
	}
	assert.ErrorIs(t, repo.Create(ctx, newTestCell("alpha")), cellDomain.ErrCellAlreadyExists)

	got, err := repo.Get(ctx, alpha.ID)
	require.NoError(t, err)
	assert.Equal(t, alpha.Name, got.Name)
	assert.Equal(t, alpha.Metadata, got.Metadata)
	assert.True(t, alpha.LastRotatedAt.Equal(got.LastRotatedAt))

	page, err := repo.List(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "beta", page[0].Name)
	assert.Equal(t, "gamma", page[1].Name)

	alpha.Description = "rotated"
	alpha.RotationDays = 7
	require.NoError(t, repo.Update(ctx, alpha))
	got, err = repo.Get(ctx, alpha.ID)
	require.NoError(t, err)
	assert.Equal(t, "rotated", got.Description)
	assert.Equal(t, 7, got.RotationDays)

	require.NoError(t, repo.Delete(ctx, alpha.ID))
	_, err = repo.Get(ctx, alpha.ID)
	assert.ErrorIs(t, err, cellDomain.ErrCellNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, alpha.ID), cellDomain.ErrCellNotFound)
	assert.ErrorIs(t, repo.Update(ctx, alpha), cellDomain.ErrCellNotFound)

	// The freed name can be reused.
	require.NoError(t, repo.Create(ctx, newTestCell("alpha")))
}

func TestBadgerSecretRepository_Versions(t *testing.T) {
	ctx := context.Background()
	repo := NewBadgerSecretRepository(openTestBadger(t))
	cellID := uuid.Must(uuid.NewV7())

	// Versions beyond 9 check that keys sort numerically.
	for v := uint(1); v <= 11; v++ {
		require.NoError(t, repo.Create(ctx, newTestSecret(cellID, "db-password", v, 1)))
	}
	require.NoError(t, repo.Create(ctx, newTestSecret(cellID, "api-token", 1, 1)))
	require.NoError(t, repo.Create(ctx, newTestSecret(uuid.Must(uuid.NewV7()), "db-password", 1, 1)))

	err := repo.Create(ctx, newTestSecret(cellID, "db-password", 4, 1))
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	latest, err := repo.GetLatest(ctx, cellID, "db-password")
	require.NoError(t, err)
	assert.Equal(t, uint(11), latest.Version)

	_, err = repo.GetLatest(ctx, cellID, "db")
	assert.ErrorIs(t, err, cellDomain.ErrSecretNotFound)

	v4, err := repo.GetVersion(ctx, cellID, "db-password", 4)
	require.NoError(t, err)
	assert.Equal(t, uint(4), v4.Version)
	assert.Equal(t, cryptoDomain.AESGCM, v4.DataKey.Algorithm)

	_, err = repo.GetVersion(ctx, cellID, "db-password", 12)
	assert.ErrorIs(t, err, cellDomain.ErrSecretVersionNotFound)

	versions, err := repo.ListVersions(ctx, cellID, "db-password")
	require.NoError(t, err)
	require.Len(t, versions, 11)
	for i, v := range versions {
		assert.Equal(t, uint(i+1), v.Version)
	}

	count, err := repo.CountSecrets(ctx, cellID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	removed, err := repo.DeleteBySecretID(ctx, cellID, "db-password")
	require.NoError(t, err)
	assert.Equal(t, int64(11), removed)

	removed, err = repo.DeleteBySecretID(ctx, cellID, "db-password")
	require.NoError(t, err)
	assert.Zero(t, removed)

	count, err = repo.CountSecrets(ctx, cellID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestBadgerSecretRepository_Migration(t *testing.T) {
	ctx := context.Background()
	repo := NewBadgerSecretRepository(openTestBadger(t))
	cellID := uuid.Must(uuid.NewV7())

	var old []*cellDomain.SecretVersion
	for i := range 5 {
		s := newTestSecret(cellID, fmt.Sprintf("secret-%d", i), 1, 1)
		require.NoError(t, repo.Create(ctx, s))
		old = append(old, s)
	}
	require.NoError(t, repo.Create(ctx, newTestSecret(cellID, "fresh", 1, 2)))

	refs, err := repo.CountByKeyVersion(ctx, cellID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), refs)

	// Page through with a cursor the way the migration sweep does.
	var seen []uuid.UUID
	after := uuid.Nil
	for {
		batch, err := repo.ListBelowKeyVersion(ctx, cellID, 2, after, 2)
		require.NoError(t, err)
		if len(batch) == 0 {
			break
		}
		for _, s := range batch {
			assert.Equal(t, uint(1), s.KeyVersion)
			seen = append(seen, s.ID)
		}
		after = batch[len(batch)-1].ID
	}
	require.Len(t, seen, 5)
	for i := range old {
		assert.Equal(t, old[i].ID, seen[i], "UUIDv7 ids come back in creation order")
	}

	rewrapped := &cryptoDomain.WrappedDataKey{
		Algorithm:  cryptoDomain.AESGCM,
		Ciphertext: []byte("rewrapped"),
		Nonce:      []byte("n2"),
	}
	moved, err := repo.UpdateDataKey(ctx, old[0].ID, 1, 2, rewrapped)
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = repo.UpdateDataKey(ctx, old[0].ID, 1, 2, rewrapped)
	require.NoError(t, err)
	assert.False(t, moved, "a second move from the old version is a no-op")

	moved, err = repo.UpdateDataKey(ctx, uuid.Must(uuid.NewV7()), 1, 2, rewrapped)
	require.NoError(t, err)
	assert.False(t, moved)

	got, err := repo.GetVersion(ctx, cellID, "secret-0", 1)
	require.NoError(t, err)
	assert.Equal(t, uint(2), got.KeyVersion)
	assert.Equal(t, []byte("rewrapped"), got.DataKey.Ciphertext)
	assert.Equal(t, old[0].Ciphertext, got.Ciphertext)

	refs, err = repo.CountByKeyVersion(ctx, cellID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(4), refs)

	batch, err := repo.ListBelowKeyVersion(ctx, cellID, 2, uuid.Nil, 10)
	require.NoError(t, err)
	assert.Len(t, batch, 4)
}

func TestBadgerSecretRepository_RollsBackWithTransaction(t *testing.T) {
	ctx := context.Background()
	db := openTestBadger(t)
	repo := NewBadgerSecretRepository(db)
	txManager := database.NewBadgerTxManager(db)
	cellID := uuid.Must(uuid.NewV7())

	err := txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := repo.Create(ctx, newTestSecret(cellID, "db-password", 1, 1)); err != nil {
			return err
		}
		return apperrors.ErrConflict
	})
	require.ErrorIs(t, err, apperrors.ErrConflict)

	_, err = repo.GetLatest(ctx, cellID, "db-password")
	assert.ErrorIs(t, err, cellDomain.ErrSecretNotFound)
	refs, err := repo.CountByKeyVersion(ctx, cellID, 1)
	require.NoError(t, err)
	assert.Zero(t, refs)
}
