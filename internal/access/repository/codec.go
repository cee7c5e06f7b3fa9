package repository

import (
	"encoding/json"

	accessDomain "github.com/allisson/cellvault/internal/access/domain"
	apperrors "github.com/allisson/cellvault/internal/errors"
)

func encodePolicyDocuments(policy *accessDomain.Policy) (actions, conditions []byte, err error) {
	actions, err = json.Marshal(policy.Actions)
	if err != nil {
		return nil, nil, apperrors.Wrap(err, "failed to marshal policy actions")
	}
	conds := policy.Conditions
	if conds == nil {
		conds = []accessDomain.Condition{}
	}
	conditions, err = json.Marshal(conds)
	if err != nil {
		return nil, nil, apperrors.Wrap(err, "failed to marshal policy conditions")
	}
	return actions, conditions, nil
}

func decodePolicyDocuments(policy *accessDomain.Policy, actions, conditions []byte) error {
	if err := json.Unmarshal(actions, &policy.Actions); err != nil {
		return apperrors.Wrap(err, "failed to unmarshal policy actions")
	}
	if err := json.Unmarshal(conditions, &policy.Conditions); err != nil {
		return apperrors.Wrap(err, "failed to unmarshal policy conditions")
	}
	if len(policy.Conditions) == 0 {
		policy.Conditions = nil
	}
	return nil
}
