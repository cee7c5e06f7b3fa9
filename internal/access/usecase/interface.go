// Package usecase implements the access control engine: policy management and
// request authorization with per-subject lockout.
package usecase

import (
	"context"

	"github.com/google/uuid"

	accessDomain "github.com/allisson/cellvault/internal/access/domain"
)

// PolicyRepository defines persistence operations for access policies.
// Implementations must support transaction-aware operations via context propagation.
type PolicyRepository interface {
	// Create stores a new policy.
	Create(ctx context.Context, policy *accessDomain.Policy) error

	// Get retrieves a policy by ID. Returns ErrPolicyNotFound if not found.
	Get(ctx context.Context, policyID uuid.UUID) (*accessDomain.Policy, error)

	// Delete removes a policy. Returns ErrPolicyNotFound if not found.
	Delete(ctx context.Context, policyID uuid.UUID) error

	// ListByCell returns every policy on a cell ordered by creation time.
	ListByCell(ctx context.Context, cellID uuid.UUID) ([]*accessDomain.Policy, error)

	// ListBySubjectAndCell returns the policies binding subject to cellID ordered by
	// creation time.
	ListBySubjectAndCell(
		ctx context.Context,
		subject string,
		cellID uuid.UUID,
	) ([]*accessDomain.Policy, error)

	// IncrementUse adds one to the policy's use count only if it is still below limit.
	// Reports false when the limit was already reached.
	IncrementUse(ctx context.Context, policyID uuid.UUID, limit int64) (bool, error)

	// DeleteByCell removes every policy on a cell.
	DeleteByCell(ctx context.Context, cellID uuid.UUID) error
}

// Engine evaluates access requests and manages policies.
type Engine interface {
	// Evaluate previews a decision without side effects: no use is consumed and the
	// failed-attempt counter is left untouched. A current lockout is still reported.
	Evaluate(
		ctx context.Context,
		claims *accessDomain.Claims,
		cellID uuid.UUID,
		action accessDomain.Action,
	) (*accessDomain.Decision, error)

	// Authorize decides a real request. An allow consumes one use of a limited policy
	// and resets the subject's failed-attempt counter; a deny increments it and may
	// lock the subject out. The returned error covers infrastructure failures only;
	// a denial is reported through the decision.
	Authorize(
		ctx context.Context,
		claims *accessDomain.Claims,
		cellID uuid.UUID,
		action accessDomain.Action,
	) (*accessDomain.Decision, error)

	// Grant validates and stores a new policy.
	Grant(ctx context.Context, input *accessDomain.GrantPolicyInput) (*accessDomain.Policy, error)

	// Revoke removes a policy from a cell. Returns ErrPolicyNotFound when the policy
	// does not exist or belongs to another cell.
	Revoke(ctx context.Context, cellID, policyID uuid.UUID) error

	// List returns the policies on a cell.
	List(ctx context.Context, cellID uuid.UUID) ([]*accessDomain.Policy, error)

	// PurgeCell removes every policy on a cell.
	PurgeCell(ctx context.Context, cellID uuid.UUID) error

	// LockedOut reports whether subject is currently locked out.
	LockedOut(subject string) bool

	// Unlock clears the lockout and failed-attempt counter of a subject.
	Unlock(subject string)
}
