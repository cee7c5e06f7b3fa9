package repository

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/cellvault/internal/crypto/domain"
	apperrors "github.com/allisson/cellvault/internal/errors"
)

var cellKeyColumns = []string{
	"id", "cell_id", "version", "algorithm", "master_key_id",
	"wrapped_key", "state", "created_at", "retired_at",
}

func newTestCellKey(cellID uuid.UUID, version uint) *cryptoDomain.CellKey {
	return &cryptoDomain.CellKey{
		ID:          uuid.Must(uuid.NewV7()),
		CellID:      cellID,
		Version:     version,
		Algorithm:   cryptoDomain.AESGCM,
		MasterKeyID: "mk-1",
		WrappedKey:  []byte("wrapped-cell-key"),
		State:       cryptoDomain.KeyStateActive,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestPostgreSQLCellKeyRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	repo := NewPostgreSQLCellKeyRepository(db)
	key := newTestCellKey(uuid.Must(uuid.NewV7()), 1)

	mock.ExpectExec("INSERT INTO cell_keys").
		WithArgs(key.ID, key.CellID, key.Version, key.Algorithm, key.MasterKeyID,
			key.WrappedKey, key.State, key.CreatedAt, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), key))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLCellKeyRepository_CreateDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	repo := NewPostgreSQLCellKeyRepository(db)

	mock.ExpectExec("INSERT INTO cell_keys").
		WillReturnError(&pq.Error{Code: "23505"})

	err = repo.Create(context.Background(), newTestCellKey(uuid.Must(uuid.NewV7()), 1))
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestPostgreSQLCellKeyRepository_ListByCell(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	repo := NewPostgreSQLCellKeyRepository(db)
	cellID := uuid.Must(uuid.NewV7())
	now := time.Now().UTC()

	rows := sqlmock.NewRows(cellKeyColumns).
		AddRow(uuid.Must(uuid.NewV7()).String(), cellID.String(), 1, "aes-gcm", "mk-1", nil, "retired", now, now).
		AddRow(uuid.Must(uuid.NewV7()).String(), cellID.String(), 2, "aes-gcm", "mk-1", []byte("w2"), "active", now, nil)
	mock.ExpectQuery("SELECT (.+) FROM cell_keys WHERE cell_id").
		WithArgs(cellID).
		WillReturnRows(rows)

	keys, err := repo.ListByCell(context.Background(), cellID)
	require.NoError(t, err)
	require.Len(t, keys, 2)

	assert.Equal(t, cellID, keys[0].CellID)
	assert.Equal(t, cryptoDomain.KeyStateRetired, keys[0].State)
	assert.Empty(t, keys[0].WrappedKey)
	require.NotNil(t, keys[0].RetiredAt)
	assert.Equal(t, uint(2), keys[1].Version)
	assert.Equal(t, []byte("w2"), keys[1].WrappedKey)
	assert.Nil(t, keys[1].RetiredAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLCellKeyRepository_UpdateState(t *testing.T) {
	cellID := uuid.Must(uuid.NewV7())
	at := time.Now().UTC()

	t.Run("retiring keeps material", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		mock.ExpectExec(`UPDATE cell_keys SET state = \$1 WHERE`).
			WithArgs(cryptoDomain.KeyStateRetiring, cellID, uint(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err = NewPostgreSQLCellKeyRepository(db).
			UpdateState(context.Background(), cellID, 1, cryptoDomain.KeyStateRetiring, at)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("retired purges material", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		mock.ExpectExec("wrapped_key = NULL").
			WithArgs(cryptoDomain.KeyStateRetired, cellID, uint(1), at).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err = NewPostgreSQLCellKeyRepository(db).
			UpdateState(context.Background(), cellID, 1, cryptoDomain.KeyStateRetired, at)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown version", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		mock.ExpectExec("UPDATE cell_keys").WillReturnResult(sqlmock.NewResult(0, 0))

		err = NewPostgreSQLCellKeyRepository(db).
			UpdateState(context.Background(), cellID, 7, cryptoDomain.KeyStateRetiring, at)
		assert.ErrorIs(t, err, cryptoDomain.ErrKeyNotFound)
	})
}

func TestPostgreSQLCellKeyRepository_Pointer(t *testing.T) {
	cellID := uuid.Must(uuid.NewV7())

	t.Run("get missing pointer", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		mock.ExpectQuery("SELECT current_version").WillReturnRows(sqlmock.NewRows([]string{"current_version"}))

		_, err = NewPostgreSQLCellKeyRepository(db).GetPointer(context.Background(), cellID)
		assert.ErrorIs(t, err, cryptoDomain.ErrKeyNotFound)
	})

	t.Run("get pointer", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		mock.ExpectQuery("SELECT current_version").
			WithArgs(cellID).
			WillReturnRows(sqlmock.NewRows([]string{"current_version"}).AddRow(3))

		current, err := NewPostgreSQLCellKeyRepository(db).GetPointer(context.Background(), cellID)
		require.NoError(t, err)
		assert.Equal(t, uint(3), current)
	})

	t.Run("create pointer twice conflicts", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		mock.ExpectExec("INSERT INTO cell_key_pointers").WillReturnError(&pq.Error{Code: "23505"})

		err = NewPostgreSQLCellKeyRepository(db).SwapPointer(context.Background(), cellID, 0, 1)
		assert.ErrorIs(t, err, cryptoDomain.ErrPointerConflict)
	})

	t.Run("stale expected version conflicts", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		mock.ExpectExec("UPDATE cell_key_pointers").
			WithArgs(uint(3), sqlmock.AnyArg(), cellID, uint(2)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err = NewPostgreSQLCellKeyRepository(db).SwapPointer(context.Background(), cellID, 2, 3)
		assert.ErrorIs(t, err, cryptoDomain.ErrPointerConflict)
	})

	t.Run("connection failure is unavailable", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		mock.ExpectExec("UPDATE cell_key_pointers").WillReturnError(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")})

		err = NewPostgreSQLCellKeyRepository(db).SwapPointer(context.Background(), cellID, 2, 3)
		assert.True(t, apperrors.IsTransient(err))
	})
}

func TestPostgreSQLCellKeyRepository_DeleteByCell(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	cellID := uuid.Must(uuid.NewV7())
	mock.ExpectExec("DELETE FROM cell_key_pointers").WithArgs(cellID).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM cell_keys").WithArgs(cellID).WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, NewPostgreSQLCellKeyRepository(db).DeleteByCell(context.Background(), cellID))
	assert.NoError(t, mock.ExpectationsWereMet())
}
