package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Outcomes of a single secret during a re-encryption sweep.
const (
	MigrationMigrated = "migrated"
	MigrationSkipped  = "skipped"
	MigrationFailed   = "failed"
)

// BusinessMetrics records vault operations.
//
// Operations are labelled with a domain ("cells" for caller requests, "rotation" for
// scheduler work), the operation name and a status ("success", "denied", "error",
// "broken").
type BusinessMetrics interface {
	RecordOperation(ctx context.Context, domain, operation, status string)
	RecordDuration(ctx context.Context, domain, operation string, duration time.Duration, status string)

	// RecordSecretsMigrated adds count secrets that ended a sweep with outcome.
	RecordSecretsMigrated(ctx context.Context, outcome string, count int)

	// RecordChainVerified counts the audit entries checked by one verification run.
	RecordChainVerified(ctx context.Context, checked int64, valid bool)
}

type businessMetrics struct {
	operations metric.Int64Counter
	durations  metric.Float64Histogram
	migrated   metric.Int64Counter
	verified   metric.Int64Counter
}

// NewBusinessMetrics registers the vault instruments under namespace.
func NewBusinessMetrics(meterProvider metric.MeterProvider, namespace string) (BusinessMetrics, error) {
	meter := meterProvider.Meter(namespace)
	name := func(suffix string) string { return fmt.Sprintf("%s_%s", namespace, suffix) }

	operations, err := meter.Int64Counter(
		name("operations_total"),
		metric.WithDescription("Vault operations by domain, operation and status"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation counter: %w", err)
	}

	durations, err := meter.Float64Histogram(
		name("operation_duration_seconds"),
		metric.WithDescription("Latency of vault operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	migrated, err := meter.Int64Counter(
		name("secrets_migrated_total"),
		metric.WithDescription("Secrets visited by re-encryption sweeps, by outcome"),
		metric.WithUnit("{secret}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration counter: %w", err)
	}

	verified, err := meter.Int64Counter(
		name("audit_entries_verified_total"),
		metric.WithDescription("Audit entries checked by chain verification"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create verification counter: %w", err)
	}

	return &businessMetrics{
		operations: operations,
		durations:  durations,
		migrated:   migrated,
		verified:   verified,
	}, nil
}

func operationAttributes(domain, operation, status string) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("domain", domain),
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
}

func (b *businessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	b.operations.Add(ctx, 1, operationAttributes(domain, operation, status))
}

func (b *businessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	b.durations.Record(ctx, duration.Seconds(), operationAttributes(domain, operation, status))
}

func (b *businessMetrics) RecordSecretsMigrated(ctx context.Context, outcome string, count int) {
	if count <= 0 {
		return
	}
	b.migrated.Add(ctx, int64(count), metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (b *businessMetrics) RecordChainVerified(ctx context.Context, checked int64, valid bool) {
	b.verified.Add(ctx, checked, metric.WithAttributes(attribute.Bool("valid", valid)))
}

// NoOpBusinessMetrics discards everything. Used when metrics are disabled.
type NoOpBusinessMetrics struct{}

// NewNoOpBusinessMetrics creates a no-op BusinessMetrics implementation.
func NewNoOpBusinessMetrics() BusinessMetrics {
	return &NoOpBusinessMetrics{}
}

func (n *NoOpBusinessMetrics) RecordOperation(context.Context, string, string, string) {}

func (n *NoOpBusinessMetrics) RecordDuration(context.Context, string, string, time.Duration, string) {}

func (n *NoOpBusinessMetrics) RecordSecretsMigrated(context.Context, string, int) {}

func (n *NoOpBusinessMetrics) RecordChainVerified(context.Context, int64, bool) {}
