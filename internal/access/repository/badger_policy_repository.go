package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"

	accessDomain "github.com/allisson/cellvault/internal/access/domain"
	"github.com/allisson/cellvault/internal/database"
	apperrors "github.com/allisson/cellvault/internal/errors"
)

const (
	policyNamespace      = "policy"
	policyIndexNamespace = "policyidx"

	// incrementAttempts bounds retries of a use-count increment that lost a
	// transaction conflict.
	incrementAttempts = 3
)

// BadgerPolicyRepository implements policy persistence on the embedded badger store.
//
// Layout:
//   - policy\x00<id>: JSON policy
//   - policyidx\x00<cell>\x00<created-at ns>\x00<id>: subject, for ordered listing per cell
type BadgerPolicyRepository struct {
	db *badger.DB
}

func policyKey(policyID uuid.UUID) []byte {
	return database.KVKey(policyNamespace, policyID.String())
}

func policyIndexKey(policy *accessDomain.Policy) []byte {
	return database.KVKey(
		policyIndexNamespace,
		policy.CellID.String(),
		database.KVSeq(uint64(policy.CreatedAt.UnixNano())),
		policy.ID.String(),
	)
}

func (b *BadgerPolicyRepository) Create(ctx context.Context, policy *accessDomain.Policy) error {
	err := database.UpdateKV(ctx, b.db, func(txn *badger.Txn) error {
		if _, err := txn.Get(policyKey(policy.ID)); err == nil {
			return apperrors.ErrConflict
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := database.SetJSON(txn, policyKey(policy.ID), policy); err != nil {
			return err
		}
		return txn.Set(policyIndexKey(policy), []byte(policy.Subject))
	})
	if err != nil {
		return apperrors.Wrap(database.ClassifyError(err), "failed to create policy")
	}
	return nil
}

func (b *BadgerPolicyRepository) Get(ctx context.Context, policyID uuid.UUID) (*accessDomain.Policy, error) {
	var policy accessDomain.Policy
	err := database.ViewKV(ctx, b.db, func(txn *badger.Txn) error {
		return database.GetJSON(txn, policyKey(policyID), &policy)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, accessDomain.ErrPolicyNotFound
		}
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to get policy")
	}
	return &policy, nil
}

func (b *BadgerPolicyRepository) Delete(ctx context.Context, policyID uuid.UUID) error {
	err := database.UpdateKV(ctx, b.db, func(txn *badger.Txn) error {
		var policy accessDomain.Policy
		if err := database.GetJSON(txn, policyKey(policyID), &policy); err != nil {
			return err
		}
		if err := txn.Delete(policyIndexKey(&policy)); err != nil {
			return err
		}
		return txn.Delete(policyKey(policyID))
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return accessDomain.ErrPolicyNotFound
		}
		return apperrors.Wrap(database.ClassifyError(err), "failed to delete policy")
	}
	return nil
}

func (b *BadgerPolicyRepository) ListByCell(
	ctx context.Context,
	cellID uuid.UUID,
) ([]*accessDomain.Policy, error) {
	return b.list(ctx, cellID, func(string) bool { return true })
}

func (b *BadgerPolicyRepository) ListBySubjectAndCell(
	ctx context.Context,
	subject string,
	cellID uuid.UUID,
) ([]*accessDomain.Policy, error) {
	return b.list(ctx, cellID, func(s string) bool { return s == subject })
}

func (b *BadgerPolicyRepository) IncrementUse(
	ctx context.Context,
	policyID uuid.UUID,
	limit int64,
) (bool, error) {
	var consumed bool
	var err error
	for range incrementAttempts {
		consumed = false
		err = database.UpdateKV(ctx, b.db, func(txn *badger.Txn) error {
			var policy accessDomain.Policy
			if err := database.GetJSON(txn, policyKey(policyID), &policy); err != nil {
				return err
			}
			if policy.UseCount >= limit {
				return nil
			}
			policy.UseCount++
			consumed = true
			return database.SetJSON(txn, policyKey(policyID), &policy)
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return false, accessDomain.ErrPolicyNotFound
		}
		return false, apperrors.Wrap(database.ClassifyError(err), "failed to increment policy use")
	}
	return consumed, nil
}

func (b *BadgerPolicyRepository) DeleteByCell(ctx context.Context, cellID uuid.UUID) error {
	err := database.UpdateKV(ctx, b.db, func(txn *badger.Txn) error {
		var keys [][]byte
		prefix := database.KVPrefix(policyIndexNamespace, cellID.String())
		if err := database.ScanPrefix(txn, prefix, false, func(key, _ []byte) (bool, error) {
			keys = append(keys, key)
			return true, nil
		}); err != nil {
			return err
		}
		for _, k := range keys {
			id, err := uuid.Parse(database.KVLastSegment(k))
			if err != nil {
				return err
			}
			if err := txn.Delete(policyKey(id)); err != nil {
				return err
			}
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.Wrap(database.ClassifyError(err), "failed to delete cell policies")
	}
	return nil
}

func (b *BadgerPolicyRepository) list(
	ctx context.Context,
	cellID uuid.UUID,
	match func(subject string) bool,
) ([]*accessDomain.Policy, error) {
	var policies []*accessDomain.Policy
	err := database.ViewKV(ctx, b.db, func(txn *badger.Txn) error {
		var ids []uuid.UUID
		prefix := database.KVPrefix(policyIndexNamespace, cellID.String())
		if err := database.ScanPrefix(txn, prefix, false, func(key, value []byte) (bool, error) {
			if !match(string(value)) {
				return true, nil
			}
			id, err := uuid.Parse(database.KVLastSegment(key))
			if err != nil {
				return false, err
			}
			ids = append(ids, id)
			return true, nil
		}); err != nil {
			return err
		}

		for _, id := range ids {
			item, err := txn.Get(policyKey(id))
			if err != nil {
				return err
			}
			var policy accessDomain.Policy
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &policy)
			}); err != nil {
				return err
			}
			policies = append(policies, &policy)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(database.ClassifyError(err), "failed to list policies")
	}
	return policies, nil
}

// NewBadgerPolicyRepository creates a new badger policy repository.
func NewBadgerPolicyRepository(db *badger.DB) *BadgerPolicyRepository {
	return &BadgerPolicyRepository{db: db}
}
