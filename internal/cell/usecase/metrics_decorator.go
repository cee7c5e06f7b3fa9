package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	accessDomain "github.com/allisson/cellvault/internal/access/domain"
	auditDomain "github.com/allisson/cellvault/internal/audit/domain"
	cellDomain "github.com/allisson/cellvault/internal/cell/domain"
	apperrors "github.com/allisson/cellvault/internal/errors"
	"github.com/allisson/cellvault/internal/metrics"
)

const (
	metricsDomainCells    = "cells"
	metricsDomainRotation = "rotation"
)

// cellManagerWithMetrics decorates Service with metrics instrumentation.
type cellManagerWithMetrics struct {
	next    Service
	metrics metrics.BusinessMetrics
}

// NewCellManagerWithMetrics wraps a Service with metrics recording.
func NewCellManagerWithMetrics(service Service, m metrics.BusinessMetrics) Service {
	return &cellManagerWithMetrics{
		next:    service,
		metrics: m,
	}
}

// statusOf labels an outcome. Access denials get their own status so dashboards can
// tell them apart from failures.
func statusOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case apperrors.Is(err, apperrors.ErrForbidden), apperrors.Is(err, apperrors.ErrUnauthorized):
		return "denied"
	default:
		return "error"
	}
}

func (c *cellManagerWithMetrics) record(ctx context.Context, domain, operation string, start time.Time, err error) {
	c.observe(ctx, domain, operation, start, statusOf(err))
}

func (c *cellManagerWithMetrics) observe(ctx context.Context, domain, operation string, start time.Time, status string) {
	c.metrics.RecordOperation(ctx, domain, operation, status)
	c.metrics.RecordDuration(ctx, domain, operation, time.Since(start), status)
}

func (c *cellManagerWithMetrics) recordSweep(ctx context.Context, report *MigrationReport) {
	if report == nil {
		return
	}
	c.metrics.RecordSecretsMigrated(ctx, metrics.MigrationMigrated, report.Migrated)
	c.metrics.RecordSecretsMigrated(ctx, metrics.MigrationSkipped, report.Skipped)
	c.metrics.RecordSecretsMigrated(ctx, metrics.MigrationFailed, report.Failed)
}

func (c *cellManagerWithMetrics) CreateCell(
	ctx context.Context,
	claims *accessDomain.Claims,
	input *cellDomain.CreateCellInput,
) (*cellDomain.Cell, error) {
	start := time.Now()
	cell, err := c.next.CreateCell(ctx, claims, input)
	c.record(ctx, metricsDomainCells, opCreateCell, start, err)
	return cell, err
}

func (c *cellManagerWithMetrics) GetCell(
	ctx context.Context,
	claims *accessDomain.Claims,
	cellID uuid.UUID,
) (*cellDomain.Cell, error) {
	start := time.Now()
	cell, err := c.next.GetCell(ctx, claims, cellID)
	c.record(ctx, metricsDomainCells, opGetCell, start, err)
	return cell, err
}

func (c *cellManagerWithMetrics) ListCells(
	ctx context.Context,
	claims *accessDomain.Claims,
	offset, limit int,
) ([]*cellDomain.Cell, error) {
	start := time.Now()
	cells, err := c.next.ListCells(ctx, claims, offset, limit)
	c.record(ctx, metricsDomainCells, opListCells, start, err)
	return cells, err
}

func (c *cellManagerWithMetrics) UpdateCell(
	ctx context.Context,
	claims *accessDomain.Claims,
	cellID uuid.UUID,
	input *cellDomain.UpdateCellInput,
) (*cellDomain.Cell, error) {
	start := time.Now()
	cell, err := c.next.UpdateCell(ctx, claims, cellID, input)
	c.record(ctx, metricsDomainCells, opUpdateCell, start, err)
	return cell, err
}

func (c *cellManagerWithMetrics) DeleteCell(ctx context.Context, claims *accessDomain.Claims, cellID uuid.UUID) error {
	start := time.Now()
	err := c.next.DeleteCell(ctx, claims, cellID)
	c.record(ctx, metricsDomainCells, opDeleteCell, start, err)
	return err
}

func (c *cellManagerWithMetrics) GrantPolicy(
	ctx context.Context,
	claims *accessDomain.Claims,
	input *accessDomain.GrantPolicyInput,
) (*accessDomain.Policy, error) {
	start := time.Now()
	policy, err := c.next.GrantPolicy(ctx, claims, input)
	c.record(ctx, metricsDomainCells, opGrantPolicy, start, err)
	return policy, err
}

func (c *cellManagerWithMetrics) RevokePolicy(
	ctx context.Context,
	claims *accessDomain.Claims,
	cellID, policyID uuid.UUID,
) error {
	start := time.Now()
	err := c.next.RevokePolicy(ctx, claims, cellID, policyID)
	c.record(ctx, metricsDomainCells, opRevokePolicy, start, err)
	return err
}

func (c *cellManagerWithMetrics) ListPolicies(
	ctx context.Context,
	claims *accessDomain.Claims,
	cellID uuid.UUID,
) ([]*accessDomain.Policy, error) {
	start := time.Now()
	policies, err := c.next.ListPolicies(ctx, claims, cellID)
	c.record(ctx, metricsDomainCells, opListPolicies, start, err)
	return policies, err
}

func (c *cellManagerWithMetrics) Unlock(ctx context.Context, claims *accessDomain.Claims, subject string) error {
	start := time.Now()
	err := c.next.Unlock(ctx, claims, subject)
	c.record(ctx, metricsDomainCells, opUnlock, start, err)
	return err
}

// Evaluate is a side-effect free preview and is not instrumented.
func (c *cellManagerWithMetrics) Evaluate(
	ctx context.Context,
	claims *accessDomain.Claims,
	cellID uuid.UUID,
	action accessDomain.Action,
) (*accessDomain.Decision, error) {
	return c.next.Evaluate(ctx, claims, cellID, action)
}

func (c *cellManagerWithMetrics) PutSecret(
	ctx context.Context,
	claims *accessDomain.Claims,
	input *cellDomain.PutSecretInput,
) (*cellDomain.SecretVersion, error) {
	start := time.Now()
	secret, err := c.next.PutSecret(ctx, claims, input)
	c.record(ctx, metricsDomainCells, opPutSecret, start, err)
	return secret, err
}

func (c *cellManagerWithMetrics) GetSecret(
	ctx context.Context,
	claims *accessDomain.Claims,
	cellID uuid.UUID,
	secretID string,
	version uint,
) (*cellDomain.SecretVersion, error) {
	start := time.Now()
	secret, err := c.next.GetSecret(ctx, claims, cellID, secretID, version)
	c.record(ctx, metricsDomainCells, opGetSecret, start, err)
	return secret, err
}

func (c *cellManagerWithMetrics) ListSecretVersions(
	ctx context.Context,
	claims *accessDomain.Claims,
	cellID uuid.UUID,
	secretID string,
) ([]*cellDomain.SecretVersion, error) {
	start := time.Now()
	versions, err := c.next.ListSecretVersions(ctx, claims, cellID, secretID)
	c.record(ctx, metricsDomainCells, opListVersions, start, err)
	return versions, err
}

func (c *cellManagerWithMetrics) PurgeSecret(
	ctx context.Context,
	claims *accessDomain.Claims,
	cellID uuid.UUID,
	secretID string,
) error {
	start := time.Now()
	err := c.next.PurgeSecret(ctx, claims, cellID, secretID)
	c.record(ctx, metricsDomainCells, opPurgeSecret, start, err)
	return err
}

func (c *cellManagerWithMetrics) RotateCell(
	ctx context.Context,
	claims *accessDomain.Claims,
	cellID uuid.UUID,
) (uint, error) {
	start := time.Now()
	version, err := c.next.RotateCell(ctx, claims, cellID)
	c.record(ctx, metricsDomainCells, opRotateCell, start, err)
	return version, err
}

func (c *cellManagerWithMetrics) MigrateCell(
	ctx context.Context,
	claims *accessDomain.Claims,
	cellID uuid.UUID,
) (*MigrationReport, error) {
	start := time.Now()
	report, err := c.next.MigrateCell(ctx, claims, cellID)
	c.record(ctx, metricsDomainCells, opMigrateCell, start, err)
	c.recordSweep(ctx, report)
	return report, err
}

func (c *cellManagerWithMetrics) RetireCellKeyVersion(
	ctx context.Context,
	claims *accessDomain.Claims,
	cellID uuid.UUID,
	version uint,
) error {
	start := time.Now()
	err := c.next.RetireCellKeyVersion(ctx, claims, cellID, version)
	c.record(ctx, metricsDomainCells, opRetireKeyVersion, start, err)
	return err
}

func (c *cellManagerWithMetrics) VerifyChain(
	ctx context.Context,
	from, to uint64,
) (*auditDomain.VerifyResult, error) {
	start := time.Now()
	result, err := c.next.VerifyChain(ctx, from, to)

	status := statusOf(err)
	if err == nil {
		if !result.Valid {
			status = "broken"
		}
		c.metrics.RecordChainVerified(ctx, result.Checked, result.Valid)
	}
	c.observe(ctx, metricsDomainCells, "verify_chain", start, status)
	return result, err
}

func (c *cellManagerWithMetrics) ListAuditEntries(
	ctx context.Context,
	from uint64,
	limit int,
) ([]*auditDomain.Entry, error) {
	return c.next.ListAuditEntries(ctx, from, limit)
}

func (c *cellManagerWithMetrics) DueForRotation(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	return c.next.DueForRotation(ctx, now)
}

func (c *cellManagerWithMetrics) AwaitingMigration(ctx context.Context) ([]uuid.UUID, error) {
	return c.next.AwaitingMigration(ctx)
}

func (c *cellManagerWithMetrics) RotateDue(ctx context.Context, cellID uuid.UUID) (uint, error) {
	start := time.Now()
	version, err := c.next.RotateDue(ctx, cellID)
	c.record(ctx, metricsDomainRotation, opRotateCell, start, err)
	return version, err
}

func (c *cellManagerWithMetrics) Migrate(ctx context.Context, cellID uuid.UUID) (*MigrationReport, error) {
	start := time.Now()
	report, err := c.next.Migrate(ctx, cellID)
	c.record(ctx, metricsDomainRotation, opMigrateCell, start, err)
	c.recordSweep(ctx, report)
	return report, err
}

func (c *cellManagerWithMetrics) RetireStale(ctx context.Context, cellID uuid.UUID) ([]uint, error) {
	start := time.Now()
	retired, err := c.next.RetireStale(ctx, cellID)
	c.record(ctx, metricsDomainRotation, opRetireKeyVersion, start, err)
	return retired, err
}

func (c *cellManagerWithMetrics) PendingMigrations() <-chan uuid.UUID {
	return c.next.PendingMigrations()
}
