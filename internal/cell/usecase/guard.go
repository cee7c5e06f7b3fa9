package usecase

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	accessDomain "github.com/allisson/cellvault/internal/access/domain"
	auditDomain "github.com/allisson/cellvault/internal/audit/domain"
	cellDomain "github.com/allisson/cellvault/internal/cell/domain"
	cryptoDomain "github.com/allisson/cellvault/internal/crypto/domain"
	"github.com/allisson/cellvault/internal/database"
	apperrors "github.com/allisson/cellvault/internal/errors"
)

// SchedulerSubject is the audit subject of operations started by the rotation scheduler.
const SchedulerSubject = "system:scheduler"

// Audit actions, one per operation.
const (
	opCreateCell       = "create_cell"
	opGetCell          = "get_cell"
	opListCells        = "list_cells"
	opUpdateCell       = "update_cell"
	opDeleteCell       = "delete_cell"
	opGrantPolicy      = "grant_policy"
	opRevokePolicy     = "revoke_policy"
	opListPolicies     = "list_policies"
	opUnlock           = "unlock_subject"
	opPutSecret        = "put_secret"
	opGetSecret        = "get_secret"
	opListVersions     = "list_secret_versions"
	opPurgeSecret      = "purge_secret"
	opRotateCell       = "rotate_cell"
	opMigrateCell      = "migrate_cell"
	opRetireKeyVersion = "retire_key_version"
)

// begin bounds the operation by OperationTimeout unless ctx already ends earlier.
func (m *cellManager) begin(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.settings.OperationTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.settings.OperationTimeout)
}

// auditContext outlives a canceled operation so its failure can still be recorded.
func (m *cellManager) auditContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), m.settings.AuditGracePeriod)
}

func subjectOf(claims *accessDomain.Claims) string {
	if claims == nil || claims.Subject == "" {
		return "anonymous"
	}
	return claims.Subject
}

func (m *cellManager) newEntry(subject string, cellID uuid.UUID, op string) *auditDomain.Entry {
	return &auditDomain.Entry{
		Subject:  subject,
		CellID:   cellID,
		Action:   op,
		Outcome:  auditDomain.OutcomeAllow,
		Metadata: make(map[string]string),
	}
}

// authorize runs the access check for a cell-scoped operation. A denial is audited
// and returned as the matching access error.
func (m *cellManager) authorize(
	ctx context.Context,
	claims *accessDomain.Claims,
	entry *auditDomain.Entry,
	action accessDomain.Action,
) error {
	decision, err := m.access.Authorize(ctx, claims, entry.CellID, action)
	if err != nil {
		return m.fail(ctx, entry, err)
	}
	if decision.Allowed() {
		entry.Metadata["policy_id"] = decision.PolicyID.String()
		return nil
	}
	return m.deny(ctx, entry, decision)
}

// requireIdentity gates operator operations that are not scoped to a cell: the
// caller must present a current session.
func (m *cellManager) requireIdentity(
	ctx context.Context,
	claims *accessDomain.Claims,
	entry *auditDomain.Entry,
) error {
	switch {
	case claims == nil || claims.Subject == "":
		return m.deny(ctx, entry, accessDomain.Deny(accessDomain.ReasonNoPolicy))
	case claims.Expired(m.now()):
		return m.deny(ctx, entry, accessDomain.Deny(accessDomain.ReasonAuthExpired))
	}
	return nil
}

func (m *cellManager) deny(
	ctx context.Context,
	entry *auditDomain.Entry,
	decision *accessDomain.Decision,
) error {
	entry.Outcome = auditDomain.OutcomeDeny
	entry.Reason = string(decision.Reason)

	actx, cancel := m.auditContext(ctx)
	defer cancel()
	if _, err := m.audit.Append(actx, entry); err != nil {
		return err
	}

	m.logger.Info("access denied",
		slog.String("subject", entry.Subject),
		slog.String("cell_id", entry.CellID.String()),
		slog.String("action", entry.Action),
		slog.String("reason", entry.Reason),
	)
	return decision.Err()
}

// fail audits err as the outcome of the operation and returns it. If the entry cannot
// be written the audit error wins.
func (m *cellManager) fail(ctx context.Context, entry *auditDomain.Entry, err error) error {
	if apperrors.Is(err, auditDomain.ErrAuditWriteFailed) {
		return err
	}
	err = apperrors.FromContext(err)

	entry.Outcome = auditDomain.OutcomeError
	entry.Reason = reasonFor(err)
	if apperrors.Is(err, cryptoDomain.ErrUnwrapIntegrity) {
		entry.Signal = auditDomain.SignalTamperSuspected
		m.logger.Error("tamper suspected",
			slog.String("cell_id", entry.CellID.String()),
			slog.String("secret_id", entry.Metadata["secret_id"]),
			slog.String("key_version", entry.Metadata["key_version"]),
			slog.String("action", entry.Action),
		)
	}

	actx, cancel := m.auditContext(ctx)
	defer cancel()
	if _, auditErr := m.audit.Append(actx, entry); auditErr != nil {
		m.logger.Error("failed to audit operation failure",
			slog.String("action", entry.Action),
			slog.String("cell_id", entry.CellID.String()),
			slog.Any("error", err),
			slog.Any("audit_error", auditErr),
		)
		return auditErr
	}
	return err
}

// succeed appends the allow entry of an operation that has no state change.
func (m *cellManager) succeed(ctx context.Context, entry *auditDomain.Entry) error {
	_, err := m.audit.Append(ctx, entry)
	return err
}

// reasonFor maps an error onto the short reason recorded in the audit trail.
func reasonFor(err error) string {
	kinds := []struct {
		target error
		reason string
	}{
		{cryptoDomain.ErrUnwrapIntegrity, "unwrap_integrity"},
		{cryptoDomain.ErrKeyRevoked, "key_revoked"},
		{cryptoDomain.ErrKeyNotFound, "key_not_found"},
		{cryptoDomain.ErrVersionInUse, "version_in_use"},
		{cryptoDomain.ErrCustodianUnavailable, "custodian_unavailable"},
		{database.ErrPersistenceUnavailable, "persistence_unavailable"},
		{cellDomain.ErrCellNotFound, "cell_not_found"},
		{cellDomain.ErrCellAlreadyExists, "cell_already_exists"},
		{cellDomain.ErrCellNotEmpty, "cell_not_empty"},
		{cellDomain.ErrSecretNotFound, "secret_not_found"},
		{cellDomain.ErrSecretVersionNotFound, "secret_version_not_found"},
		{cellDomain.ErrSecretLimitReached, "secret_limit_reached"},
		{cellDomain.ErrSecretTooLarge, "secret_too_large"},
		{accessDomain.ErrPolicyNotFound, "policy_not_found"},
		{apperrors.ErrTimeout, "timeout"},
		{apperrors.ErrUnavailable, "unavailable"},
		{apperrors.ErrInvalidInput, "invalid_input"},
		{apperrors.ErrConflict, "conflict"},
		{apperrors.ErrNotFound, "not_found"},
	}
	for _, k := range kinds {
		if apperrors.Is(err, k.target) {
			return k.reason
		}
	}
	return "internal"
}
