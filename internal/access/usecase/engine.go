package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	accessDomain "github.com/allisson/cellvault/internal/access/domain"
	apperrors "github.com/allisson/cellvault/internal/errors"
)

// engine implements Engine.
type engine struct {
	policyRepo PolicyRepository
	lockout    *lockoutTracker
	now        func() time.Time
	logger     *slog.Logger
}

// NewEngine creates a new access control engine.
func NewEngine(policyRepo PolicyRepository, settings Settings, logger *slog.Logger) Engine {
	now := settings.Now
	if now == nil {
		now = time.Now
	}
	return &engine{
		policyRepo: policyRepo,
		lockout:    newLockoutTracker(settings.MaxFailedAttempts, settings.LockoutDuration),
		now:        now,
		logger:     logger,
	}
}

func (e *engine) Evaluate(
	ctx context.Context,
	claims *accessDomain.Claims,
	cellID uuid.UUID,
	action accessDomain.Action,
) (*accessDomain.Decision, error) {
	now := e.now()
	if decision := e.precheck(claims, now); decision != nil {
		return decision, nil
	}

	policies, err := e.policyRepo.ListBySubjectAndCell(ctx, claims.Subject, cellID)
	if err != nil {
		return nil, err
	}
	return accessDomain.Evaluate(policies, action, claims, now), nil
}

func (e *engine) Authorize(
	ctx context.Context,
	claims *accessDomain.Claims,
	cellID uuid.UUID,
	action accessDomain.Action,
) (*accessDomain.Decision, error) {
	now := e.now()
	if decision := e.precheck(claims, now); decision != nil {
		return decision, nil
	}

	policies, err := e.policyRepo.ListBySubjectAndCell(ctx, claims.Subject, cellID)
	if err != nil {
		return nil, err
	}

	decision := accessDomain.Evaluate(policies, action, claims, now)
	if decision.Allowed() {
		decision, err = e.consumeUse(ctx, policies, decision)
		if err != nil {
			return nil, err
		}
	}

	if decision.Allowed() {
		e.lockout.reset(claims.Subject)
		return decision, nil
	}

	if e.lockout.recordDenial(claims.Subject, now) {
		e.logger.Warn("subject locked out",
			slog.String("subject", claims.Subject),
			slog.String("cell_id", cellID.String()),
			slog.String("last_reason", string(decision.Reason)),
		)
	}
	return decision, nil
}

// precheck handles the decisions that do not depend on policies.
func (e *engine) precheck(claims *accessDomain.Claims, now time.Time) *accessDomain.Decision {
	if claims == nil || claims.Subject == "" {
		return accessDomain.Deny(accessDomain.ReasonNoPolicy)
	}
	if claims.Expired(now) {
		return accessDomain.Deny(accessDomain.ReasonAuthExpired)
	}
	if !e.lockout.lockedUntil(claims.Subject, now).IsZero() {
		return accessDomain.Deny(accessDomain.ReasonLockedOut)
	}
	return nil
}

// consumeUse records one use on the granting policy when it is usage-limited. A
// concurrent request may take the last use first, which turns the allow into a deny.
func (e *engine) consumeUse(
	ctx context.Context,
	policies []*accessDomain.Policy,
	decision *accessDomain.Decision,
) (*accessDomain.Decision, error) {
	for _, p := range policies {
		if p.ID != decision.PolicyID {
			continue
		}
		limit, ok := p.UsageLimit()
		if !ok {
			return decision, nil
		}
		consumed, err := e.policyRepo.IncrementUse(ctx, p.ID, limit)
		if err != nil {
			return nil, err
		}
		if !consumed {
			return accessDomain.Deny(accessDomain.ReasonUsageExceeded), nil
		}
		return decision, nil
	}
	return decision, nil
}

func (e *engine) Grant(
	ctx context.Context,
	input *accessDomain.GrantPolicyInput,
) (*accessDomain.Policy, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	policy := &accessDomain.Policy{
		ID:         uuid.Must(uuid.NewV7()),
		Subject:    input.Subject,
		CellID:     input.CellID,
		Actions:    input.Actions,
		Conditions: input.Conditions,
		CreatedAt:  e.now().UTC(),
	}
	if err := e.policyRepo.Create(ctx, policy); err != nil {
		return nil, err
	}
	return policy, nil
}

func (e *engine) Revoke(ctx context.Context, cellID, policyID uuid.UUID) error {
	policy, err := e.policyRepo.Get(ctx, policyID)
	if err != nil {
		return err
	}
	if policy.CellID != cellID {
		return accessDomain.ErrPolicyNotFound
	}
	return e.policyRepo.Delete(ctx, policyID)
}

func (e *engine) List(ctx context.Context, cellID uuid.UUID) ([]*accessDomain.Policy, error) {
	return e.policyRepo.ListByCell(ctx, cellID)
}

func (e *engine) PurgeCell(ctx context.Context, cellID uuid.UUID) error {
	if err := e.policyRepo.DeleteByCell(ctx, cellID); err != nil {
		return apperrors.Wrap(err, "failed to purge cell policies")
	}
	return nil
}

func (e *engine) LockedOut(subject string) bool {
	return !e.lockout.lockedUntil(subject, e.now()).IsZero()
}

func (e *engine) Unlock(subject string) {
	e.lockout.reset(subject)
}
