// Package app provides dependency injection container for assembling application components.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v3"

	"github.com/allisson/cellvault/internal/config"
	"github.com/allisson/cellvault/internal/database"
	"github.com/allisson/cellvault/internal/http"
	"github.com/allisson/cellvault/internal/metrics"
	"github.com/allisson/cellvault/internal/scheduler"

	accessUsecase "github.com/allisson/cellvault/internal/access/usecase"
	auditUsecase "github.com/allisson/cellvault/internal/audit/usecase"
	cellUsecase "github.com/allisson/cellvault/internal/cell/usecase"
	cryptoService "github.com/allisson/cellvault/internal/crypto/service"
	cryptoUsecase "github.com/allisson/cellvault/internal/crypto/usecase"
)

// Container holds all application dependencies and provides methods to access them.
// It follows the lazy initialization pattern - components are created on first access.
type Container struct {
	// Configuration
	config *config.Config

	// Infrastructure
	logger          *slog.Logger
	db              *sql.DB
	kv              *badger.DB
	txManager       database.TxManager
	metricsProvider *metrics.Provider
	businessMetrics metrics.BusinessMetrics

	// Key hierarchy
	aeadManager  cryptoService.AEADManager
	custodian    cryptoService.KeyCustodian
	keyManager   cryptoService.KeyManager
	cellKeyRepo  cryptoUsecase.CellKeyRepository
	keyHierarchy cryptoUsecase.KeyHierarchy

	// Access control and audit
	policyRepo   accessUsecase.PolicyRepository
	accessEngine accessUsecase.Engine
	entryRepo    auditUsecase.EntryRepository
	auditLog     auditUsecase.AuditLog

	// Cells
	cellRepo    cellUsecase.CellRepository
	secretRepo  cellUsecase.SecretRepository
	cellManager cellUsecase.Service

	// Servers and workers
	scheduler *scheduler.Scheduler
	opsServer *http.Server

	// Initialization flags and mutex for thread-safety
	mu                  sync.Mutex
	loggerInit          sync.Once
	dbInit              sync.Once
	kvInit              sync.Once
	txManagerInit       sync.Once
	metricsProviderInit sync.Once
	businessMetricsInit sync.Once
	aeadManagerInit     sync.Once
	custodianInit       sync.Once
	keyManagerInit      sync.Once
	cellKeyRepoInit     sync.Once
	keyHierarchyInit    sync.Once
	policyRepoInit      sync.Once
	accessEngineInit    sync.Once
	entryRepoInit       sync.Once
	auditLogInit        sync.Once
	cellRepoInit        sync.Once
	secretRepoInit      sync.Once
	cellManagerInit     sync.Once
	schedulerInit       sync.Once
	opsServerInit       sync.Once
	errMu               sync.Mutex
	initErrors          map[string]error
}

// NewContainer creates a new dependency injection container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// resolve runs init once under once and replays its error on every later call.
func resolve[T any](c *Container, once *sync.Once, name string, target *T, init func() (T, error)) (T, error) {
	once.Do(func() {
		v, err := init()
		if err != nil {
			c.errMu.Lock()
			c.initErrors[name] = err
			c.errMu.Unlock()
			return
		}
		*target = v
	})

	c.errMu.Lock()
	err, exists := c.initErrors[name]
	c.errMu.Unlock()
	if exists {
		var zero T
		return zero, err
	}
	return *target, nil
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the configured logger instance.
// It creates a new logger on first access based on the log level in configuration.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// DB returns the SQL database connection. Only valid for the postgres and mysql drivers.
func (c *Container) DB() (*sql.DB, error) {
	return resolve(c, &c.dbInit, "db", &c.db, c.initDB)
}

// KV returns the embedded badger store. Only valid for the badger driver.
func (c *Container) KV() (*badger.DB, error) {
	return resolve(c, &c.kvInit, "kv", &c.kv, c.initKV)
}

// TxManager returns the transaction manager of the configured backend.
func (c *Container) TxManager() (database.TxManager, error) {
	return resolve(c, &c.txManagerInit, "txManager", &c.txManager, c.initTxManager)
}

// Pinger returns the readiness probe of the configured backend.
func (c *Container) Pinger() (http.Pinger, error) {
	if c.config.DBDriver == config.DriverBadger {
		kv, err := c.KV()
		if err != nil {
			return nil, err
		}
		return database.BadgerPinger{DB: kv}, nil
	}
	db, err := c.DB()
	if err != nil {
		return nil, err
	}
	return db, nil
}

// MetricsProvider returns the metrics provider, or nil when metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	return resolve(c, &c.metricsProviderInit, "metricsProvider", &c.metricsProvider, c.initMetricsProvider)
}

// BusinessMetrics returns the business metrics recorder, a no-op when metrics are disabled.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	return resolve(c, &c.businessMetricsInit, "businessMetrics", &c.businessMetrics, c.initBusinessMetrics)
}

// Scheduler returns the rotation scheduler.
func (c *Container) Scheduler() (*scheduler.Scheduler, error) {
	return resolve(c, &c.schedulerInit, "scheduler", &c.scheduler, c.initScheduler)
}

// OpsServer returns the operations HTTP server.
func (c *Container) OpsServer() (*http.Server, error) {
	return resolve(c, &c.opsServerInit, "opsServer", &c.opsServer, c.initOpsServer)
}

// Shutdown performs cleanup of all initialized resources.
// It should be called when the application is shutting down.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	if c.scheduler != nil {
		c.scheduler.Stop()
	}

	if c.opsServer != nil {
		if err := c.opsServer.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("ops server shutdown: %w", err))
		}
	}

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	// The custodian zeroes its master keys on close.
	if c.custodian != nil {
		if err := c.custodian.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("key custodian close: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}

	if c.kv != nil {
		if err := c.kv.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("badger close: %w", err))
		}
	}

	return errors.Join(shutdownErrors...)
}

// initLogger creates and configures a structured logger based on the log level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}

// initDB creates and configures the database connection.
func (c *Container) initDB() (*sql.DB, error) {
	if c.config.DBDriver != config.DriverPostgres && c.config.DBDriver != config.DriverMySQL {
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
	db, err := database.Connect(context.Background(), database.Config{
		Driver:             c.config.DBDriver,
		ConnectionString:   c.config.DBConnectionString,
		MaxOpenConnections: c.config.DBMaxOpenConnections,
		MaxIdleConnections: c.config.DBMaxIdleConnections,
		ConnMaxLifetime:    c.config.DBConnMaxLifetime,
		PingTimeout:        c.config.OperationTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// initKV opens the embedded store.
func (c *Container) initKV() (*badger.DB, error) {
	if c.config.DBDriver != config.DriverBadger {
		return nil, fmt.Errorf("badger store requested with DB_DRIVER=%s", c.config.DBDriver)
	}
	return database.OpenBadger(database.BadgerConfig{
		Path:     c.config.BadgerPath,
		InMemory: c.config.BadgerInMemory,
		Logger:   c.Logger(),
	})
}

// initTxManager creates the transaction manager for the configured backend.
func (c *Container) initTxManager() (database.TxManager, error) {
	if c.config.DBDriver == config.DriverBadger {
		kv, err := c.KV()
		if err != nil {
			return nil, fmt.Errorf("failed to get badger store for tx manager: %w", err)
		}
		return database.NewBadgerTxManager(kv), nil
	}

	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for tx manager: %w", err)
	}
	return database.NewTxManager(db), nil
}

// initMetricsProvider creates the Prometheus-backed provider when metrics are enabled.
func (c *Container) initMetricsProvider() (*metrics.Provider, error) {
	if !c.config.MetricsEnabled {
		return nil, nil
	}
	provider, err := metrics.NewProvider(c.config.MetricsNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics provider: %w", err)
	}
	return provider, nil
}

// initBusinessMetrics creates the business metrics recorder.
func (c *Container) initBusinessMetrics() (metrics.BusinessMetrics, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return metrics.NewNoOpBusinessMetrics(), nil
	}
	return metrics.NewBusinessMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
}

// initScheduler creates the rotation scheduler over the cell manager.
func (c *Container) initScheduler() (*scheduler.Scheduler, error) {
	manager, err := c.CellManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get cell manager for scheduler: %w", err)
	}

	settings := scheduler.DefaultSettings()
	settings.Schedule = c.config.RotationSchedule
	settings.Concurrency = c.config.RotationConcurrency
	settings.RetryMaxAttempts = uint64(max(c.config.RetryMaxAttempts, 1))

	return scheduler.New(manager, settings, c.Logger())
}

// initOpsServer creates the operations server.
func (c *Container) initOpsServer() (*http.Server, error) {
	pinger, err := c.Pinger()
	if err != nil {
		return nil, fmt.Errorf("failed to get readiness probe for ops server: %w", err)
	}
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, err
	}

	return http.NewServer(
		pinger,
		c.config.MetricsHost,
		c.config.MetricsPort,
		c.Logger(),
		provider,
		c.config.MetricsNamespace,
	), nil
}
