package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditDomain "github.com/allisson/cellvault/internal/audit/domain"
	apperrors "github.com/allisson/cellvault/internal/errors"
)

var entryColumnNames = []string{
	"sequence", "id", "created_at", "subject", "cell_id", "action", "outcome", "reason", "signal_type",
	"metadata", "prev_hash", "hash",
}

func newTestEntry(seq uint64) *auditDomain.Entry {
	entry := &auditDomain.Entry{
		Sequence:  seq,
		ID:        uuid.Must(uuid.NewV7()),
		Timestamp: time.Now().UTC().Truncate(time.Microsecond),
		Subject:   "alice",
		CellID:    uuid.Must(uuid.NewV7()),
		Action:    "get_secret",
		Outcome:   auditDomain.OutcomeAllow,
		Metadata:  map[string]string{"secret_id": "db/password"},
		PrevHash:  auditDomain.GenesisHash,
	}
	entry.Hash, _ = auditDomain.ComputeHash(entry.PrevHash, entry)
	return entry
}

func TestPostgreSQLEntryRepository_Append(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	entry := newTestEntry(1)
	mock.ExpectExec("INSERT INTO audit_entries").
		WithArgs(int64(1), entry.ID, entry.Timestamp, "alice", entry.CellID, "get_secret",
			"allow", "", "", []byte(`{"secret_id":"db/password"}`), entry.PrevHash, entry.Hash).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewPostgreSQLEntryRepository(db).Append(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLEntryRepository_AppendDuplicateSequence(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("INSERT INTO audit_entries").
		WillReturnError(&pq.Error{Code: "23505"})

	err = NewPostgreSQLEntryRepository(db).Append(context.Background(), newTestEntry(1))
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestPostgreSQLEntryRepository_Last(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	repo := NewPostgreSQLEntryRepository(db)

	t.Run("empty", func(t *testing.T) {
		mock.ExpectQuery("ORDER BY sequence DESC LIMIT 1").WillReturnRows(sqlmock.NewRows(entryColumnNames))

		last, err := repo.Last(context.Background())
		require.NoError(t, err)
		assert.Nil(t, last)
	})

	t.Run("round trips the hash", func(t *testing.T) {
		entry := newTestEntry(9)
		mock.ExpectQuery("ORDER BY sequence DESC LIMIT 1").
			WillReturnRows(sqlmock.NewRows(entryColumnNames).AddRow(
				int64(9), entry.ID.String(), entry.Timestamp, "alice", entry.CellID.String(),
				"get_secret", "allow", "", "", []byte(`{"secret_id": "db/password"}`),
				entry.PrevHash, entry.Hash))

		last, err := repo.Last(context.Background())
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.Equal(t, uint64(9), last.Sequence)

		recomputed, err := auditDomain.ComputeHash(last.PrevHash, last)
		require.NoError(t, err)
		assert.Equal(t, entry.Hash, recomputed)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLEntryRepository_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("WHERE sequence = \\$1").WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows(entryColumnNames))

	_, err = NewPostgreSQLEntryRepository(db).Get(context.Background(), 4)
	assert.ErrorIs(t, err, auditDomain.ErrEntryNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLEntryRepository_ListRange(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	rows := sqlmock.NewRows(entryColumnNames)
	for seq := uint64(3); seq <= 4; seq++ {
		e := newTestEntry(seq)
		rows.AddRow(int64(seq), e.ID.String(), e.Timestamp, e.Subject, e.CellID.String(), e.Action,
			"deny", "policy_denied", "", []byte(`{}`), e.PrevHash, e.Hash)
	}
	mock.ExpectQuery("WHERE sequence >= \\$1").WithArgs(int64(3), int64(10), 2).WillReturnRows(rows)

	entries, err := NewPostgreSQLEntryRepository(db).ListRange(context.Background(), 3, 10, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(4), entries[1].Sequence)
	assert.Equal(t, auditDomain.OutcomeDeny, entries[0].Outcome)
	assert.Nil(t, entries[0].Metadata)
	assert.NoError(t, mock.ExpectationsWereMet())
}
