package usecase

import (
	"context"
	"crypto/hmac"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	auditDomain "github.com/allisson/cellvault/internal/audit/domain"
	"github.com/allisson/cellvault/internal/database"
	apperrors "github.com/allisson/cellvault/internal/errors"
)

const defaultListLimit = 100

// chainHead is the last durably appended link.
type chainHead struct {
	seq  uint64
	hash []byte
}

// auditLog implements AuditLog.
type auditLog struct {
	txManager database.TxManager
	entryRepo EntryRepository
	batchSize int
	now       func() time.Time
	logger    *slog.Logger

	mu   sync.Mutex
	head *chainHead
}

// NewAuditLog creates a new audit log.
func NewAuditLog(
	txManager database.TxManager,
	entryRepo EntryRepository,
	settings Settings,
	logger *slog.Logger,
) AuditLog {
	now := settings.Now
	if now == nil {
		now = time.Now
	}
	batchSize := settings.VerifyBatchSize
	if batchSize <= 0 {
		batchSize = DefaultSettings().VerifyBatchSize
	}
	return &auditLog{
		txManager: txManager,
		entryRepo: entryRepo,
		batchSize: batchSize,
		now:       now,
		logger:    logger,
	}
}

func (a *auditLog) Record(
	ctx context.Context,
	entry *auditDomain.Entry,
	commit func(ctx context.Context) error,
) (*auditDomain.Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	head, err := a.loadHead(ctx)
	if err != nil {
		return nil, writeFailed(err)
	}

	var sealed auditDomain.Entry
	var commitErr error
	err = a.txManager.WithTx(ctx, func(ctx context.Context) error {
		if commit != nil {
			if commitErr = commit(ctx); commitErr != nil {
				return commitErr
			}
		}
		// Copied after commit so it can fill in fields such as assigned versions.
		sealed = *entry
		if err := a.seal(&sealed, head); err != nil {
			return err
		}
		return a.entryRepo.Append(ctx, &sealed)
	})
	if err != nil {
		// Another writer may have advanced the chain; reload before the next append.
		a.head = nil
		if commitErr != nil {
			return nil, commitErr
		}
		// The entry was sealed but the transaction holding it did not commit.
		return nil, writeFailed(err)
	}

	a.head = &chainHead{seq: sealed.Sequence, hash: sealed.Hash}
	return &sealed, nil
}

func (a *auditLog) Append(ctx context.Context, entry *auditDomain.Entry) (*auditDomain.Entry, error) {
	return a.Record(ctx, entry, nil)
}

func (a *auditLog) VerifyChain(
	ctx context.Context,
	from, to uint64,
) (*auditDomain.VerifyResult, error) {
	if from == 0 {
		from = 1
	}
	if to == 0 {
		last, err := a.entryRepo.Last(ctx)
		if err != nil {
			return nil, err
		}
		if last == nil {
			return &auditDomain.VerifyResult{Valid: true, From: from}, nil
		}
		to = last.Sequence
	}
	if from > to {
		return nil, apperrors.Wrapf(auditDomain.ErrInvalidRange, "from %d is after to %d", from, to)
	}

	prev := auditDomain.GenesisHash
	if from > 1 {
		anchor, err := a.entryRepo.Get(ctx, from-1)
		if err != nil {
			if apperrors.Is(err, auditDomain.ErrEntryNotFound) {
				return a.broken(from, to, from-1, 0, auditDomain.BreakSequenceGap), nil
			}
			return nil, err
		}
		prev = anchor.Hash
	}

	result := &auditDomain.VerifyResult{Valid: true, From: from, To: to}
	next := from
	for next <= to {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.FromContext(err)
		}

		entries, err := a.entryRepo.ListRange(ctx, next, to, a.batchSize)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			break
		}

		for _, entry := range entries {
			if entry.Sequence != next {
				return a.broken(from, to, next, result.Checked, auditDomain.BreakSequenceGap), nil
			}
			if !hmac.Equal(entry.PrevHash, prev) {
				return a.broken(from, to, next, result.Checked, auditDomain.BreakPrevHashMismatch), nil
			}
			computed, err := auditDomain.ComputeHash(prev, entry)
			if err != nil {
				return nil, err
			}
			if !hmac.Equal(computed, entry.Hash) {
				return a.broken(from, to, next, result.Checked, auditDomain.BreakHashMismatch), nil
			}
			prev = entry.Hash
			result.Checked++
			next++
		}
	}

	if next <= to {
		return a.broken(from, to, next, result.Checked, auditDomain.BreakSequenceGap), nil
	}
	return result, nil
}

func (a *auditLog) List(ctx context.Context, from uint64, limit int) ([]*auditDomain.Entry, error) {
	if from == 0 {
		from = 1
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	return a.entryRepo.ListRange(ctx, from, 0, limit)
}

func (a *auditLog) loadHead(ctx context.Context) (*chainHead, error) {
	if a.head != nil {
		return a.head, nil
	}
	last, err := a.entryRepo.Last(ctx)
	if err != nil {
		return nil, err
	}
	if last == nil {
		a.head = &chainHead{seq: 0, hash: auditDomain.GenesisHash}
	} else {
		a.head = &chainHead{seq: last.Sequence, hash: last.Hash}
	}
	return a.head, nil
}

// seal assigns the chain fields of entry on top of head. Timestamps are truncated to
// microseconds, the finest precision every backend stores.
func (a *auditLog) seal(entry *auditDomain.Entry, head *chainHead) error {
	id, err := uuid.NewV7()
	if err != nil {
		return err
	}
	entry.Sequence = head.seq + 1
	entry.ID = id
	entry.Timestamp = a.now().UTC().Truncate(time.Microsecond)
	entry.PrevHash = head.hash

	hash, err := auditDomain.ComputeHash(head.hash, entry)
	if err != nil {
		return err
	}
	entry.Hash = hash
	return nil
}

func (a *auditLog) broken(
	from, to, at uint64,
	checked int64,
	reason auditDomain.BreakReason,
) *auditDomain.VerifyResult {
	a.logger.Warn("audit chain broken",
		slog.Uint64("sequence", at),
		slog.String("reason", string(reason)),
	)
	return &auditDomain.VerifyResult{
		Valid:    false,
		BrokenAt: at,
		Reason:   reason,
		From:     from,
		To:       to,
		Checked:  checked,
	}
}

func writeFailed(cause error) error {
	return fmt.Errorf("%w: %v", auditDomain.ErrAuditWriteFailed, cause)
}
