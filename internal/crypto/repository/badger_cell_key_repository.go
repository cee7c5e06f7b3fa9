package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"

	cryptoDomain "github.com/allisson/cellvault/internal/crypto/domain"
	"github.com/allisson/cellvault/internal/database"
	apperrors "github.com/allisson/cellvault/internal/errors"
)

const (
	cellKeyNamespace        = "cellkey"
	cellKeyPointerNamespace = "cellkeyptr"
)

type cellKeyPointer struct {
	Current   uint      `json:"current"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BadgerCellKeyRepository implements CellKey persistence on the embedded badger store.
//
// Layout:
//   - cellkey\x00<cell>\x00<version>: JSON CellKey
//   - cellkeyptr\x00<cell>: JSON pointer record
type BadgerCellKeyRepository struct {
	db *badger.DB
}

func cellKeyKey(cellID uuid.UUID, version uint) []byte {
	return database.KVKey(cellKeyNamespace, cellID.String(), database.KVSeq(uint64(version)))
}

func cellKeyPointerKey(cellID uuid.UUID) []byte {
	return database.KVKey(cellKeyPointerNamespace, cellID.String())
}

func (b *BadgerCellKeyRepository) Create(ctx context.Context, key *cryptoDomain.CellKey) error {
	err := database.UpdateKV(ctx, b.db, func(txn *badger.Txn) error {
		k := cellKeyKey(key.CellID, key.Version)
		if _, err := txn.Get(k); err == nil {
			return apperrors.ErrConflict
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return database.SetJSON(txn, k, key)
	})
	if err != nil {
		return apperrors.Wrap(database.ClassifyError(err), "failed to create cell key")
	}
	return nil
}

func (b *BadgerCellKeyRepository) ListByCell(
	ctx context.Context,
	cellID uuid.UUID,
) ([]*cryptoDomain.CellKey, error) {
	var keys []*cryptoDomain.CellKey
	err := database.ViewKV(ctx, b.db, func(txn *badger.Txn) error {
		prefix := database.KVPrefix(cellKeyNamespace, cellID.String())
		return database.ScanPrefix(txn, prefix, false, func(_, value []byte) (bool, error) {
			var key cryptoDomain.CellKey
			if err := json.Unmarshal(value, &key); err != nil {
				return false, err
			}
			keys = append(keys, &key)
			return true, nil
		})
	})
	if err != nil {
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to list cell keys")
	}
	return keys, nil
}

func (b *BadgerCellKeyRepository) UpdateState(
	ctx context.Context,
	cellID uuid.UUID,
	version uint,
	state cryptoDomain.KeyState,
	at time.Time,
) error {
	err := database.UpdateKV(ctx, b.db, func(txn *badger.Txn) error {
		k := cellKeyKey(cellID, version)
		var key cryptoDomain.CellKey
		if err := database.GetJSON(txn, k, &key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return cryptoDomain.ErrKeyNotFound
			}
			return err
		}
		key.State = state
		if state == cryptoDomain.KeyStateRetired {
			key.WrappedKey = nil
			key.RetiredAt = &at
		}
		return database.SetJSON(txn, k, &key)
	})
	if err != nil {
		if apperrors.Is(err, cryptoDomain.ErrKeyNotFound) {
			return err
		}
		return apperrors.Wrap(database.ClassifyError(err), "failed to update cell key state")
	}
	return nil
}

func (b *BadgerCellKeyRepository) GetPointer(ctx context.Context, cellID uuid.UUID) (uint, error) {
	var ptr cellKeyPointer
	err := database.ViewKV(ctx, b.db, func(txn *badger.Txn) error {
		return database.GetJSON(txn, cellKeyPointerKey(cellID), &ptr)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return 0, cryptoDomain.ErrKeyNotFound
		}
		return 0, apperrors.Wrap(database.ClassifyError(err), "failed to get cell key pointer")
	}
	return ptr.Current, nil
}

// SwapPointer compares and sets inside one badger transaction. A concurrent writer
// that touched the same pointer makes the commit fail with a conflict.
func (b *BadgerCellKeyRepository) SwapPointer(
	ctx context.Context,
	cellID uuid.UUID,
	expected, next uint,
) error {
	err := database.UpdateKV(ctx, b.db, func(txn *badger.Txn) error {
		k := cellKeyPointerKey(cellID)
		var ptr cellKeyPointer
		err := database.GetJSON(txn, k, &ptr)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			ptr.Current = 0
		case err != nil:
			return err
		}
		if ptr.Current != expected {
			return cryptoDomain.ErrPointerConflict
		}
		return database.SetJSON(txn, k, cellKeyPointer{Current: next, UpdatedAt: time.Now().UTC()})
	})
	if err != nil {
		return pointerError(err)
	}
	return nil
}

func (b *BadgerCellKeyRepository) DeleteByCell(ctx context.Context, cellID uuid.UUID) error {
	err := database.UpdateKV(ctx, b.db, func(txn *badger.Txn) error {
		var keys [][]byte
		prefix := database.KVPrefix(cellKeyNamespace, cellID.String())
		if err := database.ScanPrefix(txn, prefix, false, func(key, _ []byte) (bool, error) {
			keys = append(keys, key)
			return true, nil
		}); err != nil {
			return err
		}
		keys = append(keys, cellKeyPointerKey(cellID))
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.Wrap(database.ClassifyError(err), "failed to delete cell keys")
	}
	return nil
}

// NewBadgerCellKeyRepository creates a new badger CellKey repository.
func NewBadgerCellKeyRepository(db *badger.DB) *BadgerCellKeyRepository {
	return &BadgerCellKeyRepository{db: db}
}
