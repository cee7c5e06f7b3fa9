package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/dgraph-io/badger/v3"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	apperrors "github.com/allisson/cellvault/internal/errors"
)

// ErrPersistenceUnavailable indicates the storage backend could not serve the request.
var ErrPersistenceUnavailable = apperrors.Wrap(apperrors.ErrUnavailable, "persistence unavailable")

const (
	postgresUniqueViolation = "23505"
	mysqlDuplicateEntry     = 1062
)

// ClassifyError maps driver errors onto the application error kinds.
// Unknown errors are returned unchanged so callers can still wrap them.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperrors.FromContext(err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == postgresUniqueViolation {
		return fmt.Errorf("%w: %v", apperrors.ErrConflict, err)
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		return fmt.Errorf("%w: %v", apperrors.ErrConflict, err)
	}

	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %v", apperrors.ErrConflict, err)
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, badger.ErrDBClosed) ||
		errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}

	return err
}
