package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	customValidation "github.com/allisson/cellvault/internal/validation"
)

// Policy binds a subject to a cell with a set of permitted actions and optional
// conditions. UseCount is the number of operations the policy has granted so far.
type Policy struct {
	ID         uuid.UUID
	Subject    string
	CellID     uuid.UUID
	Actions    []Action
	Conditions []Condition
	UseCount   int64
	CreatedAt  time.Time
}

// Permits reports whether action is in the policy's action set.
func (p *Policy) Permits(action Action) bool {
	return slices.Contains(p.Actions, action)
}

// UsageLimit returns the max_uses bound when the policy has one.
func (p *Policy) UsageLimit() (int64, bool) {
	for _, c := range p.Conditions {
		if c.Type == ConditionMaxUses {
			return c.MaxUses, true
		}
	}
	return 0, false
}

// GrantPolicyInput contains the parameters for granting a policy.
type GrantPolicyInput struct {
	Subject    string
	CellID     uuid.UUID
	Actions    []Action
	Conditions []Condition
}

// Validate checks the input and returns ErrInvalidInput on failure.
func (i *GrantPolicyInput) Validate() error {
	err := validation.ValidateStruct(i,
		validation.Field(&i.Subject,
			validation.Required,
			customValidation.NotBlank,
			customValidation.Identifier,
			validation.Length(1, 255),
		),
		validation.Field(&i.CellID, customValidation.RequiredUUID),
		validation.Field(&i.Actions,
			validation.Required,
			validation.Each(validation.In(toAny(AllActions)...)),
		),
		validation.Field(&i.Conditions),
	)
	if err != nil {
		return customValidation.WrapValidationError(err)
	}

	seen := make(map[ConditionType]bool)
	for _, c := range i.Conditions {
		if seen[c.Type] {
			return customValidation.WrapValidationError(
				validation.NewError("validation_condition_duplicate", "duplicate condition "+string(c.Type)),
			)
		}
		seen[c.Type] = true
	}
	return nil
}

func toAny[T any](values []T) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
