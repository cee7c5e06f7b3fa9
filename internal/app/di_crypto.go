package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/allisson/cellvault/internal/config"

	cryptoDomain "github.com/allisson/cellvault/internal/crypto/domain"
	cryptoRepository "github.com/allisson/cellvault/internal/crypto/repository"
	cryptoService "github.com/allisson/cellvault/internal/crypto/service"
	cryptoUsecase "github.com/allisson/cellvault/internal/crypto/usecase"
)

// AEADManager returns the AEAD manager service.
func (c *Container) AEADManager() cryptoService.AEADManager {
	c.aeadManagerInit.Do(func() {
		c.aeadManager = cryptoService.NewAEADManager()
	})
	return c.aeadManager
}

// KeyCustodian returns the holder of the master key: a KMS keeper when KMS_PROVIDER is
// set, otherwise the local master key chain from MASTER_KEYS.
func (c *Container) KeyCustodian() (cryptoService.KeyCustodian, error) {
	return resolve(c, &c.custodianInit, "custodian", &c.custodian, c.initKeyCustodian)
}

// KeyManager returns the key manager service.
func (c *Container) KeyManager() (cryptoService.KeyManager, error) {
	return resolve(c, &c.keyManagerInit, "keyManager", &c.keyManager, func() (cryptoService.KeyManager, error) {
		custodian, err := c.KeyCustodian()
		if err != nil {
			return nil, fmt.Errorf("failed to get key custodian for key manager: %w", err)
		}
		return cryptoService.NewKeyManager(c.AEADManager(), custodian), nil
	})
}

// CellKeyRepository returns the CellKey repository for the configured backend.
func (c *Container) CellKeyRepository() (cryptoUsecase.CellKeyRepository, error) {
	return resolve(c, &c.cellKeyRepoInit, "cellKeyRepo", &c.cellKeyRepo, c.initCellKeyRepository)
}

// KeyHierarchy returns the key hierarchy engine.
func (c *Container) KeyHierarchy() (cryptoUsecase.KeyHierarchy, error) {
	return resolve(c, &c.keyHierarchyInit, "keyHierarchy", &c.keyHierarchy, c.initKeyHierarchy)
}

func (c *Container) initKeyCustodian() (cryptoService.KeyCustodian, error) {
	if c.config.KMSProvider != "" {
		custodian, err := cryptoService.OpenKMSCustodian(
			context.Background(),
			c.config.KMSKeyURI,
			c.config.KMSMasterKeyID,
		)
		if err != nil {
			return nil, err
		}
		c.Logger().Info("key custodian ready",
			slog.String("provider", c.config.KMSProvider),
			slog.String("master_key_id", c.config.KMSMasterKeyID),
		)
		return custodian, nil
	}

	chain, err := cryptoDomain.NewMasterKeyChain(c.config.MasterKeys, c.config.ActiveMasterKeyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load master key chain: %w", err)
	}
	c.Logger().Info("key custodian ready",
		slog.String("provider", "local"),
		slog.String("master_key_id", chain.ActiveMasterKeyID()),
	)
	return cryptoService.NewLocalCustodian(chain, c.AEADManager()), nil
}

func (c *Container) initCellKeyRepository() (cryptoUsecase.CellKeyRepository, error) {
	switch c.config.DBDriver {
	case config.DriverBadger:
		kv, err := c.KV()
		if err != nil {
			return nil, fmt.Errorf("failed to get badger store for cell key repository: %w", err)
		}
		return cryptoRepository.NewBadgerCellKeyRepository(kv), nil
	case config.DriverMySQL:
		db, err := c.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database for cell key repository: %w", err)
		}
		return cryptoRepository.NewMySQLCellKeyRepository(db), nil
	case config.DriverPostgres:
		db, err := c.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database for cell key repository: %w", err)
		}
		return cryptoRepository.NewPostgreSQLCellKeyRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

func (c *Container) initKeyHierarchy() (cryptoUsecase.KeyHierarchy, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for key hierarchy: %w", err)
	}
	keyRepo, err := c.CellKeyRepository()
	if err != nil {
		return nil, err
	}
	// The secret repository is the liveness scan that gates retirement.
	secretRepo, err := c.SecretRepository()
	if err != nil {
		return nil, err
	}
	keyManager, err := c.KeyManager()
	if err != nil {
		return nil, err
	}

	cellKeyAlgorithm, err := cryptoDomain.ParseAlgorithm(c.config.CellKeyAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("CELL_KEY_ALGORITHM: %w", err)
	}
	dataKeyAlgorithm, err := cryptoDomain.ParseAlgorithm(c.config.DataKeyAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("DATA_KEY_ALGORITHM: %w", err)
	}

	return cryptoUsecase.NewKeyHierarchy(
		txManager,
		keyRepo,
		secretRepo,
		keyManager,
		cryptoUsecase.Settings{
			CellKeyAlgorithm: cellKeyAlgorithm,
			DataKeyAlgorithm: dataKeyAlgorithm,
		},
	), nil
}
