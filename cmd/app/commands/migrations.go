package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/allisson/cellvault/internal/config"
)

// migrationsPath maps a driver to its migrations directory. The embedded store has
// no schema and therefore no entry.
func migrationsPath(driver string) (string, bool) {
	switch driver {
	case config.DriverPostgres:
		return "file://migrations/postgresql", true
	case config.DriverMySQL:
		return "file://migrations/mysql", true
	default:
		return "", false
	}
}

// RunMigrations applies every pending migration for the configured SQL driver.
// Returns nil if there is nothing to apply or the driver is the embedded store.
func RunMigrations(logger *slog.Logger, driver, connectionString string) error {
	path, ok := migrationsPath(driver)
	if !ok {
		if driver == config.DriverBadger {
			logger.Info("embedded store needs no migrations")
			return nil
		}
		return fmt.Errorf("unsupported database driver: %s", driver)
	}

	logger.Info("running database migrations", slog.String("driver", driver))

	m, err := migrate.New(path, connectionString)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer closeMigrate(m, logger)

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("migrations completed successfully")
	return nil
}
