package domain

import (
	"time"
)

// Evaluate decides whether policies allow claims to perform action at now.
//
// Deny-by-default: no policies yields ReasonNoPolicy; policies that never grant the
// action yield ReasonPolicyDenied. Among the policies that grant the action, the
// first whose conditions all hold allows the request, preferring one without a usage
// limit so limited grants are not consumed needlessly. When none holds, the reason of
// the first failing condition of the first granting policy is returned.
//
// Evaluate has no side effects; usage counting and lockout live in the engine.
func Evaluate(policies []*Policy, action Action, claims *Claims, now time.Time) *Decision {
	if len(policies) == 0 {
		return Deny(ReasonNoPolicy)
	}

	var limited *Policy
	denial := ReasonNone
	for _, p := range policies {
		if !p.Permits(action) {
			continue
		}
		if reason := checkConditions(p, claims, now); reason != ReasonNone {
			if denial == ReasonNone {
				denial = reason
			}
			continue
		}
		if _, ok := p.UsageLimit(); !ok {
			return Allow(p.ID)
		}
		if limited == nil {
			limited = p
		}
	}

	if limited != nil {
		return Allow(limited.ID)
	}
	if denial != ReasonNone {
		return Deny(denial)
	}
	return Deny(ReasonPolicyDenied)
}

func checkConditions(p *Policy, claims *Claims, now time.Time) Reason {
	for _, c := range p.Conditions {
		if reason := c.check(claims, p.UseCount, now); reason != ReasonNone {
			return reason
		}
	}
	return ReasonNone
}
