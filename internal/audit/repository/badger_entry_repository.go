package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v3"

	auditDomain "github.com/allisson/cellvault/internal/audit/domain"
	"github.com/allisson/cellvault/internal/database"
	apperrors "github.com/allisson/cellvault/internal/errors"
)

const entryNamespace = "audit"

// BadgerEntryRepository implements audit entry persistence on the embedded badger store.
//
// Layout:
//   - audit\x00<zero-padded sequence>: JSON entry
type BadgerEntryRepository struct {
	db *badger.DB
}

func entryKey(seq uint64) []byte {
	return database.KVKey(entryNamespace, database.KVSeq(seq))
}

func (b *BadgerEntryRepository) Append(ctx context.Context, entry *auditDomain.Entry) error {
	err := database.UpdateKV(ctx, b.db, func(txn *badger.Txn) error {
		if _, err := txn.Get(entryKey(entry.Sequence)); err == nil {
			return apperrors.ErrConflict
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return database.SetJSON(txn, entryKey(entry.Sequence), entry)
	})
	if err != nil {
		return apperrors.Wrap(database.ClassifyError(err), "failed to append audit entry")
	}
	return nil
}

func (b *BadgerEntryRepository) Last(ctx context.Context) (*auditDomain.Entry, error) {
	var last *auditDomain.Entry
	err := database.ViewKV(ctx, b.db, func(txn *badger.Txn) error {
		return database.ScanPrefix(txn, database.KVPrefix(entryNamespace), true,
			func(_, value []byte) (bool, error) {
				var entry auditDomain.Entry
				if err := json.Unmarshal(value, &entry); err != nil {
					return false, err
				}
				last = &entry
				return false, nil
			})
	})
	if err != nil {
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to get last audit entry")
	}
	return last, nil
}

func (b *BadgerEntryRepository) Get(ctx context.Context, seq uint64) (*auditDomain.Entry, error) {
	var entry auditDomain.Entry
	err := database.ViewKV(ctx, b.db, func(txn *badger.Txn) error {
		return database.GetJSON(txn, entryKey(seq), &entry)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, auditDomain.ErrEntryNotFound
		}
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to get audit entry")
	}
	return &entry, nil
}

func (b *BadgerEntryRepository) ListRange(
	ctx context.Context,
	from, to uint64,
	limit int,
) ([]*auditDomain.Entry, error) {
	var entries []*auditDomain.Entry
	err := database.ViewKV(ctx, b.db, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = database.KVPrefix(entryNamespace)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(entryKey(from)); it.ValidForPrefix(opts.Prefix); it.Next() {
			if limit > 0 && len(entries) >= limit {
				return nil
			}
			var entry auditDomain.Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return err
			}
			if to > 0 && entry.Sequence > to {
				return nil
			}
			entries = append(entries, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to list audit entries")
	}
	return entries, nil
}

// NewBadgerEntryRepository creates a new badger audit entry repository.
func NewBadgerEntryRepository(db *badger.DB) *BadgerEntryRepository {
	return &BadgerEntryRepository{db: db}
}
