// Package domain defines the access control model: actions a subject may perform on
// a cell, policies granting them under conditions, and the pure evaluation function
// that turns a set of policies into an Allow or Deny decision.
package domain

import (
	"fmt"
)

// Action is an operation a subject may perform on a cell.
type Action string

const (
	// ActionRead allows reading secrets and their version metadata.
	ActionRead Action = "read"

	// ActionWrite allows writing new secret versions.
	ActionWrite Action = "write"

	// ActionRotate allows rotating the cell key and driving its migration.
	ActionRotate Action = "rotate"

	// ActionAdminister allows managing the cell itself and its policies.
	ActionAdminister Action = "administer"
)

// AllActions lists every action, in privilege order.
var AllActions = []Action{ActionRead, ActionWrite, ActionRotate, ActionAdminister}

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	for _, a := range AllActions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: unknown action %q", ErrInvalidPolicy, s)
}
