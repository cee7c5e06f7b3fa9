package database

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v3"
)

// BadgerConfig holds settings for the embedded key-value backend.
type BadgerConfig struct {
	Path     string
	InMemory bool
	Logger   *slog.Logger
}

// OpenBadger opens the embedded badger store. InMemory ignores Path.
func OpenBadger(cfg BadgerConfig) (*badger.DB, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return db, nil
}

// kvTxnKey is a context key type for storing badger transactions.
type kvTxnKey struct{}

// badgerTxManager implements TxManager on top of badger's serializable transactions.
type badgerTxManager struct {
	db *badger.DB
}

// NewBadgerTxManager creates a new TxManager for the given badger store.
func NewBadgerTxManager(db *badger.DB) TxManager {
	return &badgerTxManager{db: db}
}

// WithTx executes the function within a read-write badger transaction.
func (m *badgerTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(kvTxnKey{}).(*badger.Txn); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return ClassifyError(err)
	}

	txn := m.db.NewTransaction(true)
	defer txn.Discard()

	if err := fn(context.WithValue(ctx, kvTxnKey{}, txn)); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return ClassifyError(err)
	}
	if err := txn.Commit(); err != nil {
		return ClassifyError(err)
	}
	return nil
}

// ViewKV runs fn against the transaction carried by ctx, or a fresh read-only one.
func ViewKV(ctx context.Context, db *badger.DB, fn func(txn *badger.Txn) error) error {
	if txn, ok := ctx.Value(kvTxnKey{}).(*badger.Txn); ok {
		return fn(txn)
	}
	if err := ctx.Err(); err != nil {
		return ClassifyError(err)
	}
	return db.View(fn)
}

// UpdateKV runs fn against the transaction carried by ctx, or a fresh read-write one
// that commits when fn returns nil.
func UpdateKV(ctx context.Context, db *badger.DB, fn func(txn *badger.Txn) error) error {
	if txn, ok := ctx.Value(kvTxnKey{}).(*badger.Txn); ok {
		return fn(txn)
	}
	if err := ctx.Err(); err != nil {
		return ClassifyError(err)
	}
	return db.Update(fn)
}

// GetJSON decodes the value stored at key into v.
// Returns badger.ErrKeyNotFound when the key is absent.
func GetJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

// SetJSON encodes v and stores it at key.
func SetJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

// ScanPrefix visits every key under prefix in key order (or reverse order).
// Returning false from fn stops the scan.
func ScanPrefix(
	txn *badger.Txn,
	prefix []byte,
	reverse bool,
	fn func(key, value []byte) (bool, error),
) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.Reverse = reverse

	it := txn.NewIterator(opts)
	defer it.Close()

	seek := prefix
	if reverse {
		seek = append(append([]byte{}, prefix...), 0xFF)
	}

	for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		more, err := fn(item.KeyCopy(nil), value)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

// badgerLogger routes badger's internal logging into slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...), slog.String("component", "badger"))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...), slog.String("component", "badger"))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...), slog.String("component", "badger"))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...), slog.String("component", "badger"))
}

// kvSeparator joins key segments. It cannot appear in UUIDs, names validated by the
// domain layer, or zero-padded numbers.
const kvSeparator = "\x00"

// KVKey joins segments into a badger key.
func KVKey(segments ...string) []byte {
	return []byte(strings.Join(segments, kvSeparator))
}

// KVPrefix is KVKey with a trailing separator, for scanning every key under segments.
func KVPrefix(segments ...string) []byte {
	return []byte(strings.Join(segments, kvSeparator) + kvSeparator)
}

// KVSeq renders a number as a fixed-width segment so keys sort numerically.
func KVSeq(n uint64) string {
	return fmt.Sprintf("%020d", n)
}

// KVLastSegment returns the final segment of a key built by KVKey.
func KVLastSegment(key []byte) string {
	if i := bytes.LastIndexByte(key, kvSeparator[0]); i >= 0 {
		return string(key[i+1:])
	}
	return string(key)
}

// BadgerPinger adapts a badger store to the readiness checks that *sql.DB serves
// through PingContext.
type BadgerPinger struct {
	DB *badger.DB
}

// PingContext fails once the store is closed.
func (p BadgerPinger) PingContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return ClassifyError(err)
	}
	if p.DB == nil || p.DB.IsClosed() {
		return ErrPersistenceUnavailable
	}
	return nil
}
