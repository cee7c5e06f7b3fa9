package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	accessDomain "github.com/allisson/cellvault/internal/access/domain"
	auditDomain "github.com/allisson/cellvault/internal/audit/domain"
	cellDomain "github.com/allisson/cellvault/internal/cell/domain"
	cryptoDomain "github.com/allisson/cellvault/internal/crypto/domain"
	apperrors "github.com/allisson/cellvault/internal/errors"
)

// dueScanPageSize is the page size used when scanning cells for due rotations.
const dueScanPageSize = 100

func (m *cellManager) RotateCell(ctx context.Context, claims *accessDomain.Claims, cellID uuid.UUID) (uint, error) {
	ctx, cancel := m.begin(ctx)
	defer cancel()

	entry := m.newEntry(subjectOf(claims), cellID, opRotateCell)
	if err := m.authorize(ctx, claims, entry, accessDomain.ActionRotate); err != nil {
		return 0, err
	}

	version, err := m.rotate(ctx, entry, cellID)
	if err != nil {
		return 0, err
	}
	m.enqueue(cellID)
	return version, nil
}

func (m *cellManager) MigrateCell(
	ctx context.Context,
	claims *accessDomain.Claims,
	cellID uuid.UUID,
) (*MigrationReport, error) {
	ctx, cancel := m.begin(ctx)
	defer cancel()

	entry := m.newEntry(subjectOf(claims), cellID, opMigrateCell)
	if err := m.authorize(ctx, claims, entry, accessDomain.ActionRotate); err != nil {
		return nil, err
	}
	return m.migrate(ctx, entry, cellID)
}

func (m *cellManager) RetireCellKeyVersion(
	ctx context.Context,
	claims *accessDomain.Claims,
	cellID uuid.UUID,
	version uint,
) error {
	ctx, cancel := m.begin(ctx)
	defer cancel()

	entry := m.newEntry(subjectOf(claims), cellID, opRetireKeyVersion)
	if err := m.authorize(ctx, claims, entry, accessDomain.ActionRotate); err != nil {
		return err
	}
	return m.retire(ctx, entry, cellID, version)
}

func (m *cellManager) DueForRotation(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	var due []uuid.UUID
	for offset := 0; ; offset += dueScanPageSize {
		cells, err := m.cellRepo.List(ctx, offset, dueScanPageSize)
		if err != nil {
			return nil, err
		}
		for _, cell := range cells {
			if cell.RotationDue(now) {
				due = append(due, cell.ID)
			}
		}
		if len(cells) < dueScanPageSize {
			return due, nil
		}
	}
}

func (m *cellManager) AwaitingMigration(ctx context.Context) ([]uuid.UUID, error) {
	var awaiting []uuid.UUID
	for offset := 0; ; offset += dueScanPageSize {
		cells, err := m.cellRepo.List(ctx, offset, dueScanPageSize)
		if err != nil {
			return nil, err
		}
		for _, cell := range cells {
			ring, err := m.keys.KeyRing(ctx, cell.ID)
			if err != nil {
				if apperrors.Is(err, cryptoDomain.ErrKeyNotFound) {
					continue
				}
				return nil, err
			}
			if len(ring.InState(cryptoDomain.KeyStateRetiring)) > 0 {
				awaiting = append(awaiting, cell.ID)
			}
		}
		if len(cells) < dueScanPageSize {
			return awaiting, nil
		}
	}
}

func (m *cellManager) RotateDue(ctx context.Context, cellID uuid.UUID) (uint, error) {
	ctx, cancel := m.begin(ctx)
	defer cancel()

	return m.rotate(ctx, m.newEntry(SchedulerSubject, cellID, opRotateCell), cellID)
}

func (m *cellManager) Migrate(ctx context.Context, cellID uuid.UUID) (*MigrationReport, error) {
	ctx, cancel := m.begin(ctx)
	defer cancel()

	return m.migrate(ctx, m.newEntry(SchedulerSubject, cellID, opMigrateCell), cellID)
}

func (m *cellManager) RetireStale(ctx context.Context, cellID uuid.UUID) ([]uint, error) {
	ctx, cancel := m.begin(ctx)
	defer cancel()

	ring, err := m.keys.KeyRing(ctx, cellID)
	if err != nil {
		return nil, err
	}

	var retired []uint
	for _, key := range ring.InState(cryptoDomain.KeyStateRetiring) {
		refs, err := m.secretRepo.CountByKeyVersion(ctx, cellID, key.Version)
		if err != nil {
			return retired, err
		}
		if refs > 0 {
			continue
		}

		entry := m.newEntry(SchedulerSubject, cellID, opRetireKeyVersion)
		if err := m.retire(ctx, entry, cellID, key.Version); err != nil {
			// An in-flight read still pins the version; the next sweep retries.
			if apperrors.Is(err, cryptoDomain.ErrVersionInUse) {
				continue
			}
			return retired, err
		}
		retired = append(retired, key.Version)
	}
	return retired, nil
}

func (m *cellManager) PendingMigrations() <-chan uuid.UUID {
	return m.pending
}

// rotate prepares the next CellKey version outside the audit transaction and commits
// it together with the cell's rotation timestamp and the audit entry.
func (m *cellManager) rotate(ctx context.Context, entry *auditDomain.Entry, cellID uuid.UUID) (uint, error) {
	if _, err := m.cellRepo.Get(ctx, cellID); err != nil {
		return 0, m.fail(ctx, entry, err)
	}

	rotation, err := m.keys.BeginRotation(ctx, cellID)
	if err != nil {
		return 0, m.fail(ctx, entry, err)
	}
	defer rotation.Release()

	entry.Metadata["from_version"] = strconv.FormatUint(uint64(rotation.FromVersion), 10)
	entry.Metadata["to_version"] = strconv.FormatUint(uint64(rotation.ToVersion), 10)

	_, err = m.audit.Record(ctx, entry, func(ctx context.Context) error {
		cell, err := m.cellRepo.Get(ctx, cellID)
		if err != nil {
			return err
		}
		if err := rotation.Commit(ctx); err != nil {
			return err
		}
		now := m.now()
		cell.LastRotatedAt = now
		cell.UpdatedAt = now
		return m.cellRepo.Update(ctx, cell)
	})
	if err != nil {
		return 0, m.fail(ctx, entry, err)
	}

	m.logger.Info("cell key rotated",
		slog.String("cell_id", cellID.String()),
		slog.Uint64("from_version", uint64(rotation.FromVersion)),
		slog.Uint64("to_version", uint64(rotation.ToVersion)),
		slog.String("subject", entry.Subject),
	)
	return rotation.ToVersion, nil
}

type dataKeyMove struct {
	secret  *cellDomain.SecretVersion
	wrapped *cryptoDomain.WrappedDataKey
}

// migrate re-wraps, batch by batch, every DataKey wrapped under a version older than
// the current one. Versions whose DataKey fails integrity are counted and skipped so
// one corrupt row cannot stall the sweep.
func (m *cellManager) migrate(
	ctx context.Context,
	entry *auditDomain.Entry,
	cellID uuid.UUID,
) (*MigrationReport, error) {
	if _, err := m.cellRepo.Get(ctx, cellID); err != nil {
		return nil, m.fail(ctx, entry, err)
	}

	rewrapper, err := m.keys.NewRewrapper(ctx, cellID)
	if err != nil {
		return nil, m.fail(ctx, entry, err)
	}
	defer rewrapper.Close()

	report := &MigrationReport{CellID: cellID, TargetVersion: rewrapper.TargetVersion()}
	entry.Metadata["target_version"] = strconv.FormatUint(uint64(report.TargetVersion), 10)

	var after uuid.UUID
	for {
		batch, err := m.secretRepo.ListBelowKeyVersion(
			ctx, cellID, report.TargetVersion, after, m.settings.MigrationBatchSize,
		)
		if err != nil {
			return nil, m.fail(ctx, entry, err)
		}
		if len(batch) == 0 {
			break
		}
		after = batch[len(batch)-1].ID

		moves := make([]dataKeyMove, 0, len(batch))
		for _, secret := range batch {
			if err := m.limiter.Wait(ctx); err != nil {
				return nil, m.fail(ctx, entry, throttleError(ctx, err))
			}

			wrapped, err := rewrapper.Rewrap(ctx, secret.KeyVersion, &secret.DataKey)
			switch {
			case err == nil:
				moves = append(moves, dataKeyMove{secret: secret, wrapped: wrapped})
			case apperrors.Is(err, cryptoDomain.ErrUnwrapIntegrity):
				report.Failed++
				entry.Signal = auditDomain.SignalTamperSuspected
				m.logger.Error("tamper suspected",
					slog.String("cell_id", cellID.String()),
					slog.String("secret_id", secret.SecretID),
					slog.Uint64("version", uint64(secret.Version)),
					slog.Uint64("key_version", uint64(secret.KeyVersion)),
				)
			case apperrors.Is(err, cryptoDomain.ErrKeyRevoked):
				report.Failed++
			default:
				return nil, m.fail(ctx, entry, err)
			}
		}

		var migrated, skipped int
		err = m.txManager.WithTx(ctx, func(ctx context.Context) error {
			migrated, skipped = 0, 0
			for _, mv := range moves {
				moved, err := m.secretRepo.UpdateDataKey(
					ctx, mv.secret.ID, mv.secret.KeyVersion, report.TargetVersion, mv.wrapped,
				)
				if err != nil {
					return err
				}
				if moved {
					migrated++
				} else {
					skipped++
				}
			}
			return nil
		})
		if err != nil {
			return nil, m.fail(ctx, entry, err)
		}
		report.Migrated += migrated
		report.Skipped += skipped
	}

	entry.Metadata["migrated"] = strconv.Itoa(report.Migrated)
	entry.Metadata["skipped"] = strconv.Itoa(report.Skipped)
	entry.Metadata["failed"] = strconv.Itoa(report.Failed)
	if err := m.succeed(ctx, entry); err != nil {
		return nil, err
	}

	if report.Migrated > 0 || report.Failed > 0 {
		m.logger.Info("cell migrated",
			slog.String("cell_id", cellID.String()),
			slog.Uint64("target_version", uint64(report.TargetVersion)),
			slog.Int("migrated", report.Migrated),
			slog.Int("skipped", report.Skipped),
			slog.Int("failed", report.Failed),
		)
	}
	return report, nil
}

// retire retires one CellKey version. Retiring an already retired version succeeds.
func (m *cellManager) retire(
	ctx context.Context,
	entry *auditDomain.Entry,
	cellID uuid.UUID,
	version uint,
) error {
	entry.Metadata["version"] = strconv.FormatUint(uint64(version), 10)

	retirement, err := m.keys.BeginRetirement(ctx, cellID, version)
	if err != nil {
		return m.fail(ctx, entry, err)
	}
	defer retirement.Release()

	if retirement.AlreadyRetired {
		entry.Metadata["already_retired"] = "true"
	}
	if _, err := m.audit.Record(ctx, entry, retirement.Commit); err != nil {
		return m.fail(ctx, entry, err)
	}

	if !retirement.AlreadyRetired {
		m.logger.Info("cell key version retired",
			slog.String("cell_id", cellID.String()),
			slog.Uint64("version", uint64(version)),
			slog.String("subject", entry.Subject),
		)
	}
	return nil
}

// enqueue hands a rotated cell to the scheduler. A full queue is fine: the periodic
// sweep finds the cell through its Retiring key versions.
func (m *cellManager) enqueue(cellID uuid.UUID) {
	select {
	case m.pending <- cellID:
	default:
		m.logger.Debug("pending migration queue full", slog.String("cell_id", cellID.String()))
	}
}

// throttleError maps a limiter failure onto ErrTimeout. The limiter refuses to wait
// past the context deadline before the context itself expires.
func throttleError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return apperrors.FromContext(ctx.Err())
	}
	return fmt.Errorf("%w: %v", apperrors.ErrTimeout, err)
}
