package app

import (
	"fmt"

	"golang.org/x/time/rate"

	"github.com/allisson/cellvault/internal/config"

	accessRepository "github.com/allisson/cellvault/internal/access/repository"
	accessUsecase "github.com/allisson/cellvault/internal/access/usecase"
	auditRepository "github.com/allisson/cellvault/internal/audit/repository"
	auditUsecase "github.com/allisson/cellvault/internal/audit/usecase"
	cellRepository "github.com/allisson/cellvault/internal/cell/repository"
	cellUsecase "github.com/allisson/cellvault/internal/cell/usecase"
)

// PolicyRepository returns the access policy repository for the configured backend.
func (c *Container) PolicyRepository() (accessUsecase.PolicyRepository, error) {
	return resolve(c, &c.policyRepoInit, "policyRepo", &c.policyRepo, func() (accessUsecase.PolicyRepository, error) {
		switch c.config.DBDriver {
		case config.DriverBadger:
			kv, err := c.KV()
			if err != nil {
				return nil, err
			}
			return accessRepository.NewBadgerPolicyRepository(kv), nil
		case config.DriverMySQL:
			db, err := c.DB()
			if err != nil {
				return nil, err
			}
			return accessRepository.NewMySQLPolicyRepository(db), nil
		case config.DriverPostgres:
			db, err := c.DB()
			if err != nil {
				return nil, err
			}
			return accessRepository.NewPostgreSQLPolicyRepository(db), nil
		default:
			return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
		}
	})
}

// AccessEngine returns the access control engine.
func (c *Container) AccessEngine() (accessUsecase.Engine, error) {
	return resolve(c, &c.accessEngineInit, "accessEngine", &c.accessEngine, func() (accessUsecase.Engine, error) {
		policyRepo, err := c.PolicyRepository()
		if err != nil {
			return nil, fmt.Errorf("failed to get policy repository for access engine: %w", err)
		}
		settings := accessUsecase.DefaultSettings()
		settings.MaxFailedAttempts = c.config.LockoutMaxAttempts
		settings.LockoutDuration = c.config.LockoutDuration
		return accessUsecase.NewEngine(policyRepo, settings, c.Logger()), nil
	})
}

// EntryRepository returns the audit entry repository for the configured backend.
func (c *Container) EntryRepository() (auditUsecase.EntryRepository, error) {
	return resolve(c, &c.entryRepoInit, "entryRepo", &c.entryRepo, func() (auditUsecase.EntryRepository, error) {
		switch c.config.DBDriver {
		case config.DriverBadger:
			kv, err := c.KV()
			if err != nil {
				return nil, err
			}
			return auditRepository.NewBadgerEntryRepository(kv), nil
		case config.DriverMySQL:
			db, err := c.DB()
			if err != nil {
				return nil, err
			}
			return auditRepository.NewMySQLEntryRepository(db), nil
		case config.DriverPostgres:
			db, err := c.DB()
			if err != nil {
				return nil, err
			}
			return auditRepository.NewPostgreSQLEntryRepository(db), nil
		default:
			return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
		}
	})
}

// AuditLog returns the hash-chained audit log.
func (c *Container) AuditLog() (auditUsecase.AuditLog, error) {
	return resolve(c, &c.auditLogInit, "auditLog", &c.auditLog, func() (auditUsecase.AuditLog, error) {
		txManager, err := c.TxManager()
		if err != nil {
			return nil, fmt.Errorf("failed to get tx manager for audit log: %w", err)
		}
		entryRepo, err := c.EntryRepository()
		if err != nil {
			return nil, fmt.Errorf("failed to get entry repository for audit log: %w", err)
		}
		return auditUsecase.NewAuditLog(txManager, entryRepo, auditUsecase.DefaultSettings(), c.Logger()), nil
	})
}

// CellRepository returns the cell repository for the configured backend.
func (c *Container) CellRepository() (cellUsecase.CellRepository, error) {
	return resolve(c, &c.cellRepoInit, "cellRepo", &c.cellRepo, func() (cellUsecase.CellRepository, error) {
		switch c.config.DBDriver {
		case config.DriverBadger:
			kv, err := c.KV()
			if err != nil {
				return nil, err
			}
			return cellRepository.NewBadgerCellRepository(kv), nil
		case config.DriverMySQL:
			db, err := c.DB()
			if err != nil {
				return nil, err
			}
			return cellRepository.NewMySQLCellRepository(db), nil
		case config.DriverPostgres:
			db, err := c.DB()
			if err != nil {
				return nil, err
			}
			return cellRepository.NewPostgreSQLCellRepository(db), nil
		default:
			return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
		}
	})
}

// SecretRepository returns the secret version repository for the configured backend.
func (c *Container) SecretRepository() (cellUsecase.SecretRepository, error) {
	return resolve(c, &c.secretRepoInit, "secretRepo", &c.secretRepo, func() (cellUsecase.SecretRepository, error) {
		switch c.config.DBDriver {
		case config.DriverBadger:
			kv, err := c.KV()
			if err != nil {
				return nil, err
			}
			return cellRepository.NewBadgerSecretRepository(kv), nil
		case config.DriverMySQL:
			db, err := c.DB()
			if err != nil {
				return nil, err
			}
			return cellRepository.NewMySQLSecretRepository(db), nil
		case config.DriverPostgres:
			db, err := c.DB()
			if err != nil {
				return nil, err
			}
			return cellRepository.NewPostgreSQLSecretRepository(db), nil
		default:
			return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
		}
	})
}

// CellManager returns the cell manager, instrumented with business metrics.
func (c *Container) CellManager() (cellUsecase.Service, error) {
	return resolve(c, &c.cellManagerInit, "cellManager", &c.cellManager, c.initCellManager)
}

func (c *Container) initCellManager() (cellUsecase.Service, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for cell manager: %w", err)
	}
	cellRepo, err := c.CellRepository()
	if err != nil {
		return nil, err
	}
	secretRepo, err := c.SecretRepository()
	if err != nil {
		return nil, err
	}
	keys, err := c.KeyHierarchy()
	if err != nil {
		return nil, err
	}
	access, err := c.AccessEngine()
	if err != nil {
		return nil, err
	}
	audit, err := c.AuditLog()
	if err != nil {
		return nil, err
	}
	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, err
	}

	settings := cellUsecase.DefaultSettings()
	settings.DefaultRotationDays = c.config.DefaultCellRotationDays
	settings.MaxSecretsPerCell = c.config.MaxSecretsPerCell
	settings.MaxSecretSize = c.config.MaxSecretSizeBytes
	settings.OperationTimeout = c.config.OperationTimeout
	settings.MigrationBatchSize = c.config.MigrationBatchSize
	settings.MigrationRate = rate.Limit(c.config.MigrationRatePerSec)
	settings.Operators = c.config.OperatorSubjects

	manager := cellUsecase.NewCellManager(
		txManager,
		cellRepo,
		secretRepo,
		keys,
		access,
		audit,
		c.AEADManager(),
		settings,
		c.Logger(),
	)
	return cellUsecase.NewCellManagerWithMetrics(manager, businessMetrics), nil
}
