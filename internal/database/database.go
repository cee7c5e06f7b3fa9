// Package database provides database connection management and utilities.
//
// Two families of backends are supported: SQL databases (PostgreSQL and MySQL)
// reached through database/sql, and an embedded badger key-value store for
// single-node deployments. Both expose the same TxManager contract.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	apperrors "github.com/allisson/cellvault/internal/errors"
)

const defaultPingTimeout = 5 * time.Second

// Config holds settings for the SQL backends.
type Config struct {
	// Driver is the database/sql driver name: "postgres" or "mysql".
	Driver             string
	ConnectionString   string
	MaxOpenConnections int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	// PingTimeout bounds the connectivity check. Defaults to five seconds.
	PingTimeout time.Duration
}

// Connect opens a pool for the configured SQL driver and verifies it can reach the
// server. An unreachable server yields ErrPersistenceUnavailable.
func Connect(ctx context.Context, cfg Config) (*sql.DB, error) {
	switch cfg.Driver {
	case "postgres", "mysql":
	default:
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput, "unsupported database driver %q", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, apperrors.Wrap(ClassifyError(err), "failed to ping database")
	}
	return db, nil
}
