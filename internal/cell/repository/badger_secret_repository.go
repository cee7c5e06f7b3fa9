package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"

	cellDomain "github.com/allisson/cellvault/internal/cell/domain"
	cryptoDomain "github.com/allisson/cellvault/internal/crypto/domain"
	"github.com/allisson/cellvault/internal/database"
	apperrors "github.com/allisson/cellvault/internal/errors"
)

const (
	secretNamespace       = "secret"
	secretIDNamespace     = "secretid"
	secretKeyVerNamespace = "secretkv"
)

// BadgerSecretRepository implements secret version persistence on the embedded badger store.
//
// Layout:
//   - secret\x00<cell>\x00<secret id>\x00<version>: JSON secret version
//   - secretid\x00<id>: key of the version record
//   - secretkv\x00<cell>\x00<id>: CellKey version the DataKey is wrapped under
type BadgerSecretRepository struct {
	db *badger.DB
}

func secretVersionKey(cellID uuid.UUID, secretID string, version uint) []byte {
	return database.KVKey(secretNamespace, cellID.String(), secretID, database.KVSeq(uint64(version)))
}

func secretVersionsPrefix(cellID uuid.UUID, secretID string) []byte {
	return database.KVPrefix(secretNamespace, cellID.String(), secretID)
}

func secretIDKey(id uuid.UUID) []byte {
	return database.KVKey(secretIDNamespace, id.String())
}

func secretKeyVersionKey(cellID, id uuid.UUID) []byte {
	return database.KVKey(secretKeyVerNamespace, cellID.String(), id.String())
}

func (b *BadgerSecretRepository) Create(ctx context.Context, secret *cellDomain.SecretVersion) error {
	key := secretVersionKey(secret.CellID, secret.SecretID, secret.Version)
	err := database.UpdateKV(ctx, b.db, func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return apperrors.ErrConflict
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := database.SetJSON(txn, key, secret); err != nil {
			return err
		}
		if err := txn.Set(secretIDKey(secret.ID), key); err != nil {
			return err
		}
		return txn.Set(
			secretKeyVersionKey(secret.CellID, secret.ID),
			[]byte(strconv.FormatUint(uint64(secret.KeyVersion), 10)),
		)
	})
	if err != nil {
		return apperrors.Wrap(database.ClassifyError(err), "failed to create secret version")
	}
	return nil
}

func (b *BadgerSecretRepository) GetLatest(
	ctx context.Context,
	cellID uuid.UUID,
	secretID string,
) (*cellDomain.SecretVersion, error) {
	var secret *cellDomain.SecretVersion
	err := database.ViewKV(ctx, b.db, func(txn *badger.Txn) error {
		return database.ScanPrefix(txn, secretVersionsPrefix(cellID, secretID), true,
			func(_, value []byte) (bool, error) {
				var err error
				secret, err = decodeSecret(value)
				return false, err
			})
	})
	if err != nil {
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to get secret")
	}
	if secret == nil {
		return nil, cellDomain.ErrSecretNotFound
	}
	return secret, nil
}

func (b *BadgerSecretRepository) GetVersion(
	ctx context.Context,
	cellID uuid.UUID,
	secretID string,
	version uint,
) (*cellDomain.SecretVersion, error) {
	var secret cellDomain.SecretVersion
	err := database.ViewKV(ctx, b.db, func(txn *badger.Txn) error {
		return database.GetJSON(txn, secretVersionKey(cellID, secretID, version), &secret)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, cellDomain.ErrSecretVersionNotFound
		}
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to get secret version")
	}
	return &secret, nil
}

func (b *BadgerSecretRepository) ListVersions(
	ctx context.Context,
	cellID uuid.UUID,
	secretID string,
) ([]*cellDomain.SecretVersion, error) {
	secrets := make([]*cellDomain.SecretVersion, 0)
	err := database.ViewKV(ctx, b.db, func(txn *badger.Txn) error {
		return database.ScanPrefix(txn, secretVersionsPrefix(cellID, secretID), false,
			func(_, value []byte) (bool, error) {
				secret, err := decodeSecret(value)
				if err != nil {
					return false, err
				}
				secrets = append(secrets, secret)
				return true, nil
			})
	})
	if err != nil {
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to list secret versions")
	}
	return secrets, nil
}

func (b *BadgerSecretRepository) CountSecrets(ctx context.Context, cellID uuid.UUID) (int64, error) {
	var count int64
	err := database.ViewKV(ctx, b.db, func(txn *badger.Txn) error {
		prefix := database.KVPrefix(secretNamespace, cellID.String())
		var last []byte
		return database.ScanPrefix(txn, prefix, false, func(key, _ []byte) (bool, error) {
			// Versions of one secret are adjacent, so counting id changes counts secrets.
			rest := key[len(prefix):]
			id := rest[:max(bytes.IndexByte(rest, 0), 0)]
			if last == nil || !bytes.Equal(id, last) {
				count++
				last = id
			}
			return true, nil
		})
	})
	if err != nil {
		return 0, apperrors.Wrap(database.ClassifyError(err), "failed to count secrets")
	}
	return count, nil
}

func (b *BadgerSecretRepository) CountByKeyVersion(
	ctx context.Context,
	cellID uuid.UUID,
	keyVersion uint,
) (int64, error) {
	var count int64
	err := database.ViewKV(ctx, b.db, func(txn *badger.Txn) error {
		prefix := database.KVPrefix(secretKeyVerNamespace, cellID.String())
		return database.ScanPrefix(txn, prefix, false, func(_, value []byte) (bool, error) {
			v, err := strconv.ParseUint(string(value), 10, 64)
			if err != nil {
				return false, err
			}
			if uint(v) == keyVersion {
				count++
			}
			return true, nil
		})
	})
	if err != nil {
		return 0, apperrors.Wrap(database.ClassifyError(err), "failed to count secrets by key version")
	}
	return count, nil
}

func (b *BadgerSecretRepository) ListBelowKeyVersion(
	ctx context.Context,
	cellID uuid.UUID,
	keyVersion uint,
	after uuid.UUID,
	limit int,
) ([]*cellDomain.SecretVersion, error) {
	secrets := make([]*cellDomain.SecretVersion, 0)
	err := database.ViewKV(ctx, b.db, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = database.KVPrefix(secretKeyVerNamespace, cellID.String())

		it := txn.NewIterator(opts)
		defer it.Close()

		// UUID strings sort like their bytes, so seeking the cursor's string resumes in id order.
		cursor := secretKeyVersionKey(cellID, after)
		for it.Seek(cursor); it.ValidForPrefix(opts.Prefix); it.Next() {
			if limit > 0 && len(secrets) >= limit {
				return nil
			}
			item := it.Item()
			if bytes.Equal(item.Key(), cursor) {
				continue
			}
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			v, err := strconv.ParseUint(string(value), 10, 64)
			if err != nil {
				return err
			}
			if uint(v) >= keyVersion {
				continue
			}
			id, err := uuid.Parse(database.KVLastSegment(item.KeyCopy(nil)))
			if err != nil {
				return err
			}
			secret, err := loadSecret(txn, id)
			if err != nil {
				return err
			}
			secrets = append(secrets, secret)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to list secrets below key version")
	}
	return secrets, nil
}

func (b *BadgerSecretRepository) UpdateDataKey(
	ctx context.Context,
	id uuid.UUID,
	fromKeyVersion uint,
	toKeyVersion uint,
	dataKey *cryptoDomain.WrappedDataKey,
) (bool, error) {
	var moved bool
	err := database.UpdateKV(ctx, b.db, func(txn *badger.Txn) error {
		moved = false
		item, err := txn.Get(secretIDKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		var secret cellDomain.SecretVersion
		if err := database.GetJSON(txn, key, &secret); err != nil {
			return err
		}
		if secret.KeyVersion != fromKeyVersion {
			return nil
		}
		secret.KeyVersion = toKeyVersion
		secret.DataKey = *dataKey
		if err := database.SetJSON(txn, key, &secret); err != nil {
			return err
		}
		moved = true
		return txn.Set(
			secretKeyVersionKey(secret.CellID, secret.ID),
			[]byte(strconv.FormatUint(uint64(toKeyVersion), 10)),
		)
	})
	if err != nil {
		return false, apperrors.Wrap(database.ClassifyError(err), "failed to update data key")
	}
	return moved, nil
}

func (b *BadgerSecretRepository) DeleteBySecretID(
	ctx context.Context,
	cellID uuid.UUID,
	secretID string,
) (int64, error) {
	var removed int64
	err := database.UpdateKV(ctx, b.db, func(txn *badger.Txn) error {
		removed = 0
		var versions []*cellDomain.SecretVersion
		var keys [][]byte
		if err := database.ScanPrefix(txn, secretVersionsPrefix(cellID, secretID), false,
			func(key, value []byte) (bool, error) {
				secret, err := decodeSecret(value)
				if err != nil {
					return false, err
				}
				versions = append(versions, secret)
				keys = append(keys, key)
				return true, nil
			}); err != nil {
			return err
		}

		for i, secret := range versions {
			for _, k := range [][]byte{keys[i], secretIDKey(secret.ID), secretKeyVersionKey(cellID, secret.ID)} {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, apperrors.Wrap(database.ClassifyError(err), "failed to delete secret")
	}
	return removed, nil
}

func loadSecret(txn *badger.Txn, id uuid.UUID) (*cellDomain.SecretVersion, error) {
	item, err := txn.Get(secretIDKey(id))
	if err != nil {
		return nil, err
	}
	key, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	var secret cellDomain.SecretVersion
	if err := database.GetJSON(txn, key, &secret); err != nil {
		return nil, err
	}
	return &secret, nil
}

func decodeSecret(value []byte) (*cellDomain.SecretVersion, error) {
	var secret cellDomain.SecretVersion
	if err := json.Unmarshal(value, &secret); err != nil {
		return nil, err
	}
	return &secret, nil
}

// NewBadgerSecretRepository creates a new badger secret repository.
func NewBadgerSecretRepository(db *badger.DB) *BadgerSecretRepository {
	return &BadgerSecretRepository{db: db}
}
