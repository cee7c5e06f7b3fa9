package usecase

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	accessDomain "github.com/allisson/cellvault/internal/access/domain"
	accessUsecase "github.com/allisson/cellvault/internal/access/usecase"
	auditDomain "github.com/allisson/cellvault/internal/audit/domain"
	auditUsecase "github.com/allisson/cellvault/internal/audit/usecase"
	cellDomain "github.com/allisson/cellvault/internal/cell/domain"
	cryptoService "github.com/allisson/cellvault/internal/crypto/service"
	cryptoUsecase "github.com/allisson/cellvault/internal/crypto/usecase"
	"github.com/allisson/cellvault/internal/database"
)

// Service is the full cell manager: the caller-facing operations plus the
// maintenance surface driven by the scheduler.
type Service interface {
	CellManager
	Maintainer
}

// cellManager implements Service.
type cellManager struct {
	txManager   database.TxManager
	cellRepo    CellRepository
	secretRepo  SecretRepository
	keys        cryptoUsecase.KeyHierarchy
	access      accessUsecase.Engine
	audit       auditUsecase.AuditLog
	aeadManager cryptoService.AEADManager
	settings    Settings
	limiter     *rate.Limiter
	pending     chan uuid.UUID
	operators   map[string]struct{}
	now         func() time.Time
	logger      *slog.Logger
}

// NewCellManager creates the cell manager.
func NewCellManager(
	txManager database.TxManager,
	cellRepo CellRepository,
	secretRepo SecretRepository,
	keys cryptoUsecase.KeyHierarchy,
	access accessUsecase.Engine,
	audit auditUsecase.AuditLog,
	aeadManager cryptoService.AEADManager,
	settings Settings,
	logger *slog.Logger,
) Service {
	now := settings.Now
	if now == nil {
		now = time.Now
	}
	limit := settings.MigrationRate
	if limit <= 0 {
		limit = rate.Inf
	}
	if settings.MigrationBatchSize <= 0 {
		settings.MigrationBatchSize = DefaultSettings().MigrationBatchSize
	}
	if settings.AuditGracePeriod <= 0 {
		settings.AuditGracePeriod = DefaultSettings().AuditGracePeriod
	}
	operators := make(map[string]struct{}, len(settings.Operators))
	for _, subject := range settings.Operators {
		operators[subject] = struct{}{}
	}
	return &cellManager{
		txManager:   txManager,
		cellRepo:    cellRepo,
		secretRepo:  secretRepo,
		keys:        keys,
		access:      access,
		audit:       audit,
		aeadManager: aeadManager,
		settings:    settings,
		limiter:     rate.NewLimiter(limit, 1),
		pending:     make(chan uuid.UUID, max(settings.PendingBuffer, 1)),
		operators:   operators,
		now:         func() time.Time { return now().UTC() },
		logger:      logger,
	}
}

func (m *cellManager) CreateCell(
	ctx context.Context,
	claims *accessDomain.Claims,
	input *cellDomain.CreateCellInput,
) (*cellDomain.Cell, error) {
	ctx, cancel := m.begin(ctx)
	defer cancel()

	entry := m.newEntry(subjectOf(claims), uuid.Nil, opCreateCell)
	if err := m.requireIdentity(ctx, claims, entry); err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, m.fail(ctx, entry, err)
	}

	rotationDays := input.RotationDays
	if rotationDays == 0 {
		rotationDays = m.settings.DefaultRotationDays
	}
	now := m.now()
	cell := &cellDomain.Cell{
		ID:                uuid.Must(uuid.NewV7()),
		Name:              input.Name,
		Description:       input.Description,
		OrganizationID:    input.OrganizationID,
		RotationDays:      rotationDays,
		Metadata:          input.Metadata,
		CreatedAt:         now,
		UpdatedAt:         now,
		LastRotatedAt:     now,
		CurrentKeyVersion: 1,
	}
	entry.CellID = cell.ID
	entry.Metadata["name"] = cell.Name
	entry.Metadata["rotation_days"] = strconv.Itoa(rotationDays)
	if input.Owner != "" {
		entry.Metadata["owner"] = input.Owner
	}

	_, err := m.audit.Record(ctx, entry, func(ctx context.Context) error {
		if err := m.cellRepo.Create(ctx, cell); err != nil {
			return err
		}
		if _, err := m.keys.InitializeCell(ctx, cell.ID); err != nil {
			return err
		}
		if input.Owner == "" {
			return nil
		}
		_, err := m.access.Grant(ctx, &accessDomain.GrantPolicyInput{
			Subject: input.Owner,
			CellID:  cell.ID,
			Actions: accessDomain.AllActions,
		})
		return err
	})
	if err != nil {
		return nil, m.fail(ctx, entry, err)
	}

	m.logger.Info("cell created",
		slog.String("cell_id", cell.ID.String()),
		slog.String("name", cell.Name),
	)
	return cell, nil
}

func (m *cellManager) GetCell(
	ctx context.Context,
	claims *accessDomain.Claims,
	cellID uuid.UUID,
) (*cellDomain.Cell, error) {
	ctx, cancel := m.begin(ctx)
	defer cancel()

	entry := m.newEntry(subjectOf(claims), cellID, opGetCell)
	if err := m.authorize(ctx, claims, entry, accessDomain.ActionRead); err != nil {
		return nil, err
	}

	cell, err := m.cellRepo.Get(ctx, cellID)
	if err != nil {
		return nil, m.fail(ctx, entry, err)
	}
	ring, err := m.keys.KeyRing(ctx, cellID)
	if err != nil {
		return nil, m.fail(ctx, entry, err)
	}
	cell.CurrentKeyVersion = ring.CurrentVersion()

	if err := m.succeed(ctx, entry); err != nil {
		return nil, err
	}
	return cell, nil
}

func (m *cellManager) ListCells(
	ctx context.Context,
	claims *accessDomain.Claims,
	offset, limit int,
) ([]*cellDomain.Cell, error) {
	ctx, cancel := m.begin(ctx)
	defer cancel()

	entry := m.newEntry(subjectOf(claims), uuid.Nil, opListCells)
	if err := m.requireIdentity(ctx, claims, entry); err != nil {
		return nil, err
	}

	cells, err := m.cellRepo.List(ctx, offset, limit)
	if err != nil {
		return nil, m.fail(ctx, entry, err)
	}
	entry.Metadata["count"] = strconv.Itoa(len(cells))

	if err := m.succeed(ctx, entry); err != nil {
		return nil, err
	}
	return cells, nil
}

func (m *cellManager) UpdateCell(
	ctx context.Context,
	claims *accessDomain.Claims,
	cellID uuid.UUID,
	input *cellDomain.UpdateCellInput,
) (*cellDomain.Cell, error) {
	ctx, cancel := m.begin(ctx)
	defer cancel()

	entry := m.newEntry(subjectOf(claims), cellID, opUpdateCell)
	if err := m.authorize(ctx, claims, entry, accessDomain.ActionAdminister); err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, m.fail(ctx, entry, err)
	}

	var cell *cellDomain.Cell
	_, err := m.audit.Record(ctx, entry, func(ctx context.Context) error {
		var err error
		cell, err = m.cellRepo.Get(ctx, cellID)
		if err != nil {
			return err
		}
		input.Apply(cell)
		cell.UpdatedAt = m.now()
		entry.Metadata["rotation_days"] = strconv.Itoa(cell.RotationDays)
		return m.cellRepo.Update(ctx, cell)
	})
	if err != nil {
		return nil, m.fail(ctx, entry, err)
	}
	return cell, nil
}

func (m *cellManager) DeleteCell(ctx context.Context, claims *accessDomain.Claims, cellID uuid.UUID) error {
	ctx, cancel := m.begin(ctx)
	defer cancel()

	entry := m.newEntry(subjectOf(claims), cellID, opDeleteCell)
	if err := m.authorize(ctx, claims, entry, accessDomain.ActionAdminister); err != nil {
		return err
	}

	purge, err := m.keys.BeginPurge(ctx, cellID)
	if err != nil {
		return m.fail(ctx, entry, err)
	}
	defer purge.Release()

	_, err = m.audit.Record(ctx, entry, func(ctx context.Context) error {
		if _, err := m.cellRepo.Get(ctx, cellID); err != nil {
			return err
		}
		secrets, err := m.secretRepo.CountSecrets(ctx, cellID)
		if err != nil {
			return err
		}
		if secrets > 0 {
			return cellDomain.ErrCellNotEmpty
		}
		if err := m.access.PurgeCell(ctx, cellID); err != nil {
			return err
		}
		if err := purge.Commit(ctx); err != nil {
			return err
		}
		return m.cellRepo.Delete(ctx, cellID)
	})
	if err != nil {
		return m.fail(ctx, entry, err)
	}

	m.logger.Info("cell deleted", slog.String("cell_id", cellID.String()))
	return nil
}

func (m *cellManager) GrantPolicy(
	ctx context.Context,
	claims *accessDomain.Claims,
	input *accessDomain.GrantPolicyInput,
) (*accessDomain.Policy, error) {
	ctx, cancel := m.begin(ctx)
	defer cancel()

	entry := m.newEntry(subjectOf(claims), input.CellID, opGrantPolicy)
	entry.Metadata["grantee"] = input.Subject
	entry.Metadata["actions"] = joinActions(input.Actions)
	if err := m.authorize(ctx, claims, entry, accessDomain.ActionAdminister); err != nil {
		return nil, err
	}

	var policy *accessDomain.Policy
	_, err := m.audit.Record(ctx, entry, func(ctx context.Context) error {
		if _, err := m.cellRepo.Get(ctx, input.CellID); err != nil {
			return err
		}
		var err error
		policy, err = m.access.Grant(ctx, input)
		if err != nil {
			return err
		}
		entry.Metadata["granted_policy_id"] = policy.ID.String()
		return nil
	})
	if err != nil {
		return nil, m.fail(ctx, entry, err)
	}
	return policy, nil
}

func (m *cellManager) RevokePolicy(
	ctx context.Context,
	claims *accessDomain.Claims,
	cellID, policyID uuid.UUID,
) error {
	ctx, cancel := m.begin(ctx)
	defer cancel()

	entry := m.newEntry(subjectOf(claims), cellID, opRevokePolicy)
	entry.Metadata["revoked_policy_id"] = policyID.String()
	if err := m.authorize(ctx, claims, entry, accessDomain.ActionAdminister); err != nil {
		return err
	}

	_, err := m.audit.Record(ctx, entry, func(ctx context.Context) error {
		return m.access.Revoke(ctx, cellID, policyID)
	})
	if err != nil {
		return m.fail(ctx, entry, err)
	}
	return nil
}

func (m *cellManager) ListPolicies(
	ctx context.Context,
	claims *accessDomain.Claims,
	cellID uuid.UUID,
) ([]*accessDomain.Policy, error) {
	ctx, cancel := m.begin(ctx)
	defer cancel()

	entry := m.newEntry(subjectOf(claims), cellID, opListPolicies)
	if err := m.authorize(ctx, claims, entry, accessDomain.ActionAdminister); err != nil {
		return nil, err
	}

	policies, err := m.access.List(ctx, cellID)
	if err != nil {
		return nil, m.fail(ctx, entry, err)
	}
	if err := m.succeed(ctx, entry); err != nil {
		return nil, err
	}
	return policies, nil
}

func (m *cellManager) Unlock(ctx context.Context, claims *accessDomain.Claims, subject string) error {
	ctx, cancel := m.begin(ctx)
	defer cancel()

	entry := m.newEntry(subjectOf(claims), uuid.Nil, opUnlock)
	entry.Metadata["target_subject"] = subject
	if err := m.requireIdentity(ctx, claims, entry); err != nil {
		return err
	}
	// A locked out caller stays locked out, even an operator.
	switch _, operator := m.operators[entry.Subject]; {
	case m.access.LockedOut(entry.Subject):
		return m.deny(ctx, entry, accessDomain.Deny(accessDomain.ReasonLockedOut))
	case entry.Subject == subject, !operator:
		return m.deny(ctx, entry, accessDomain.Deny(accessDomain.ReasonPolicyDenied))
	}

	// The unlock cannot fail, so it happens only once the entry is durable.
	if err := m.succeed(ctx, entry); err != nil {
		return err
	}
	m.access.Unlock(subject)

	m.logger.Info("subject unlocked",
		slog.String("subject", subject),
		slog.String("by", entry.Subject),
	)
	return nil
}

func (m *cellManager) Evaluate(
	ctx context.Context,
	claims *accessDomain.Claims,
	cellID uuid.UUID,
	action accessDomain.Action,
) (*accessDomain.Decision, error) {
	ctx, cancel := m.begin(ctx)
	defer cancel()

	return m.access.Evaluate(ctx, claims, cellID, action)
}

func (m *cellManager) VerifyChain(ctx context.Context, from, to uint64) (*auditDomain.VerifyResult, error) {
	return m.audit.VerifyChain(ctx, from, to)
}

func (m *cellManager) ListAuditEntries(ctx context.Context, from uint64, limit int) ([]*auditDomain.Entry, error) {
	ctx, cancel := m.begin(ctx)
	defer cancel()

	return m.audit.List(ctx, from, limit)
}

func joinActions(actions []accessDomain.Action) string {
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = string(a)
	}
	return strings.Join(names, ",")
}
