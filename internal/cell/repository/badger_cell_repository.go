package repository

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"

	cellDomain "github.com/allisson/cellvault/internal/cell/domain"
	"github.com/allisson/cellvault/internal/database"
	apperrors "github.com/allisson/cellvault/internal/errors"
)

const (
	cellNamespace     = "cell"
	cellNameNamespace = "cellname"
)

// BadgerCellRepository implements cell persistence on the embedded badger store.
//
// Layout:
//   - cell\x00<id>: JSON cell
//   - cellname\x00<name>: cell id, enforcing unique names and ordering List
type BadgerCellRepository struct {
	db *badger.DB
}

func cellKey(cellID uuid.UUID) []byte {
	return database.KVKey(cellNamespace, cellID.String())
}

func cellNameKey(name string) []byte {
	return database.KVKey(cellNameNamespace, name)
}

func (b *BadgerCellRepository) Create(ctx context.Context, cell *cellDomain.Cell) error {
	err := database.UpdateKV(ctx, b.db, func(txn *badger.Txn) error {
		for _, key := range [][]byte{cellKey(cell.ID), cellNameKey(cell.Name)} {
			if _, err := txn.Get(key); err == nil {
				return cellDomain.ErrCellAlreadyExists
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		if err := database.SetJSON(txn, cellKey(cell.ID), cell); err != nil {
			return err
		}
		return txn.Set(cellNameKey(cell.Name), []byte(cell.ID.String()))
	})
	if err != nil {
		if errors.Is(err, cellDomain.ErrCellAlreadyExists) {
			return err
		}
		err = database.ClassifyError(err)
		if errors.Is(err, apperrors.ErrConflict) {
			return cellDomain.ErrCellAlreadyExists
		}
		return apperrors.Wrap(err, "failed to create cell")
	}
	return nil
}

func (b *BadgerCellRepository) Get(ctx context.Context, cellID uuid.UUID) (*cellDomain.Cell, error) {
	var cell cellDomain.Cell
	err := database.ViewKV(ctx, b.db, func(txn *badger.Txn) error {
		return database.GetJSON(txn, cellKey(cellID), &cell)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, cellDomain.ErrCellNotFound
		}
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to get cell")
	}
	return &cell, nil
}

func (b *BadgerCellRepository) List(ctx context.Context, offset, limit int) ([]*cellDomain.Cell, error) {
	cells := make([]*cellDomain.Cell, 0)
	err := database.ViewKV(ctx, b.db, func(txn *badger.Txn) error {
		skipped := 0
		return database.ScanPrefix(txn, database.KVPrefix(cellNameNamespace), false,
			func(_, value []byte) (bool, error) {
				if skipped < offset {
					skipped++
					return true, nil
				}
				if limit > 0 && len(cells) >= limit {
					return false, nil
				}
				id, err := uuid.ParseBytes(value)
				if err != nil {
					return false, err
				}
				var cell cellDomain.Cell
				if err := database.GetJSON(txn, cellKey(id), &cell); err != nil {
					return false, err
				}
				cells = append(cells, &cell)
				return true, nil
			})
	})
	if err != nil {
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to list cells")
	}
	return cells, nil
}

func (b *BadgerCellRepository) Update(ctx context.Context, cell *cellDomain.Cell) error {
	err := database.UpdateKV(ctx, b.db, func(txn *badger.Txn) error {
		var stored cellDomain.Cell
		if err := database.GetJSON(txn, cellKey(cell.ID), &stored); err != nil {
			return err
		}
		// The name is immutable; its index entry stays as it is.
		updated := *cell
		updated.Name = stored.Name
		updated.CreatedAt = stored.CreatedAt
		return database.SetJSON(txn, cellKey(cell.ID), &updated)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return cellDomain.ErrCellNotFound
		}
		return apperrors.Wrap(database.ClassifyError(err), "failed to update cell")
	}
	return nil
}

func (b *BadgerCellRepository) Delete(ctx context.Context, cellID uuid.UUID) error {
	err := database.UpdateKV(ctx, b.db, func(txn *badger.Txn) error {
		var cell cellDomain.Cell
		if err := database.GetJSON(txn, cellKey(cellID), &cell); err != nil {
			return err
		}
		if err := txn.Delete(cellNameKey(cell.Name)); err != nil {
			return err
		}
		return txn.Delete(cellKey(cellID))
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return cellDomain.ErrCellNotFound
		}
		return apperrors.Wrap(database.ClassifyError(err), "failed to delete cell")
	}
	return nil
}

// NewBadgerCellRepository creates a new badger cell repository.
func NewBadgerCellRepository(db *badger.DB) *BadgerCellRepository {
	return &BadgerCellRepository{db: db}
}
