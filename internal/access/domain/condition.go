package domain

import (
	"fmt"
	"time"
)

// ConditionType tags the closed set of policy conditions.
type ConditionType string

const (
	// ConditionRequireMFA holds when the session carries the MFA factor.
	ConditionRequireMFA ConditionType = "require_mfa"

	// ConditionTimeWindow holds when the evaluation time is within [NotBefore, NotAfter).
	// Either bound may be omitted.
	ConditionTimeWindow ConditionType = "time_window"

	// ConditionMaxUses holds while the policy has granted fewer than MaxUses operations.
	ConditionMaxUses ConditionType = "max_uses"
)

// Condition is one tagged condition attached to a policy. Only the fields relevant to
// Type are set.
type Condition struct {
	Type      ConditionType `json:"type"`
	NotBefore *time.Time    `json:"not_before,omitempty"`
	NotAfter  *time.Time    `json:"not_after,omitempty"`
	MaxUses   int64         `json:"max_uses,omitempty"`
}

// RequireMFA builds a require_mfa condition.
func RequireMFA() Condition {
	return Condition{Type: ConditionRequireMFA}
}

// TimeWindow builds a time_window condition. Pass nil for an open bound.
func TimeWindow(notBefore, notAfter *time.Time) Condition {
	return Condition{Type: ConditionTimeWindow, NotBefore: notBefore, NotAfter: notAfter}
}

// MaxUses builds a max_uses condition.
func MaxUses(n int64) Condition {
	return Condition{Type: ConditionMaxUses, MaxUses: n}
}

// Validate checks the condition is well formed.
func (c Condition) Validate() error {
	switch c.Type {
	case ConditionRequireMFA:
		return nil
	case ConditionTimeWindow:
		if c.NotBefore == nil && c.NotAfter == nil {
			return fmt.Errorf("%w: time window needs at least one bound", ErrInvalidPolicy)
		}
		if c.NotBefore != nil && c.NotAfter != nil && !c.NotBefore.Before(*c.NotAfter) {
			return fmt.Errorf("%w: time window is empty", ErrInvalidPolicy)
		}
		return nil
	case ConditionMaxUses:
		if c.MaxUses <= 0 {
			return fmt.Errorf("%w: max uses must be positive", ErrInvalidPolicy)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown condition %q", ErrInvalidPolicy, c.Type)
	}
}

// check returns ReasonNone when the condition holds, or the denial reason.
func (c Condition) check(claims *Claims, useCount int64, now time.Time) Reason {
	switch c.Type {
	case ConditionRequireMFA:
		if claims == nil || !claims.HasFactor(FactorMFA) {
			return ReasonMFARequired
		}
	case ConditionTimeWindow:
		if c.NotBefore != nil && now.Before(*c.NotBefore) {
			return ReasonWindowExpired
		}
		if c.NotAfter != nil && !now.Before(*c.NotAfter) {
			return ReasonWindowExpired
		}
	case ConditionMaxUses:
		if useCount >= c.MaxUses {
			return ReasonUsageExceeded
		}
	default:
		return ReasonPolicyDenied
	}
	return ReasonNone
}
