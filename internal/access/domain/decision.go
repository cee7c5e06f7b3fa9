package domain

import (
	"github.com/google/uuid"
)

// Effect is the outcome of an access evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Reason explains a denial.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonNoPolicy      Reason = "no_policy"
	ReasonPolicyDenied  Reason = "policy_denied"
	ReasonMFARequired   Reason = "mfa_required"
	ReasonWindowExpired Reason = "window_expired"
	ReasonUsageExceeded Reason = "usage_exceeded"
	ReasonLockedOut     Reason = "locked_out"
	ReasonAuthExpired   Reason = "auth_expired"
)

// Decision is the result of evaluating a request. PolicyID names the policy that
// granted an Allow.
type Decision struct {
	Effect   Effect
	Reason   Reason
	PolicyID uuid.UUID
}

// Allow builds an allow decision granted by policyID.
func Allow(policyID uuid.UUID) *Decision {
	return &Decision{Effect: EffectAllow, PolicyID: policyID}
}

// Deny builds a deny decision.
func Deny(reason Reason) *Decision {
	return &Decision{Effect: EffectDeny, Reason: reason}
}

// Allowed reports whether the decision is an Allow.
func (d *Decision) Allowed() bool {
	return d != nil && d.Effect == EffectAllow
}

// Err converts a deny into the matching error. Allow returns nil.
func (d *Decision) Err() error {
	if d.Allowed() {
		return nil
	}
	switch d.Reason {
	case ReasonLockedOut:
		return ErrLockedOut
	case ReasonAuthExpired:
		return ErrAuthExpired
	default:
		return &DeniedError{Reason: d.Reason}
	}
}
