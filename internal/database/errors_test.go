package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/dgraph-io/badger/v3"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	apperrors "github.com/allisson/cellvault/internal/errors"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{name: "deadline", err: context.DeadlineExceeded, target: apperrors.ErrTimeout},
		{name: "canceled", err: context.Canceled, target: apperrors.ErrTimeout},
		{name: "postgres unique", err: &pq.Error{Code: "23505"}, target: apperrors.ErrConflict},
		{name: "mysql duplicate", err: &mysql.MySQLError{Number: 1062}, target: apperrors.ErrConflict},
		{name: "badger conflict", err: badger.ErrConflict, target: apperrors.ErrConflict},
		{name: "bad conn", err: driver.ErrBadConn, target: ErrPersistenceUnavailable},
		{name: "conn done", err: sql.ErrConnDone, target: ErrPersistenceUnavailable},
		{name: "badger closed", err: badger.ErrDBClosed, target: apperrors.ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, ClassifyError(tt.err), tt.target)
		})
	}
}

func TestClassifyError_Passthrough(t *testing.T) {
	assert.Nil(t, ClassifyError(nil))

	other := errors.New("syntax error")
	assert.Equal(t, other, ClassifyError(other))
	assert.False(t, apperrors.IsTransient(ClassifyError(other)))
}
