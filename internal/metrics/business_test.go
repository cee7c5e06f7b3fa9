package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBusinessMetrics(t *testing.T, namespace string) (BusinessMetrics, *Provider) {
	t.Helper()
	provider, err := NewProvider(namespace)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, provider.Shutdown(context.Background()))
	})

	bm, err := NewBusinessMetrics(provider.MeterProvider(), namespace)
	require.NoError(t, err)
	return bm, provider
}

// assertSeries matches a sample by name, a partial label pattern and value. The
// exporter adds otel scope labels, so labels are matched loosely.
func assertSeries(t *testing.T, output, name, labels, value string) {
	t.Helper()
	assert.Regexp(t, name+`\{[^}]*`+labels+`[^}]*\} `+value, output)
}

func TestBusinessMetrics_Operations(t *testing.T) {
	bm, provider := newBusinessMetrics(t, "vault")
	ctx := context.Background()

	bm.RecordOperation(ctx, "cells", "put_secret", "success")
	bm.RecordOperation(ctx, "cells", "put_secret", "success")
	bm.RecordOperation(ctx, "cells", "get_secret", "denied")
	bm.RecordOperation(ctx, "rotation", "rotate_cell", "error")
	bm.RecordDuration(ctx, "cells", "put_secret", 20*time.Millisecond, "success")
	bm.RecordDuration(ctx, "cells", "put_secret", 30*time.Millisecond, "success")

	output := scrape(t, provider)

	assertSeries(t, output, `vault_operations_total`,
		`domain="cells".*operation="put_secret".*status="success"`, `2`)
	assertSeries(t, output, `vault_operations_total`,
		`domain="cells".*operation="get_secret".*status="denied"`, `1`)
	assertSeries(t, output, `vault_operations_total`,
		`domain="rotation".*operation="rotate_cell".*status="error"`, `1`)
	assertSeries(t, output, `vault_operation_duration_seconds_count`,
		`domain="cells".*operation="put_secret".*status="success"`, `2`)
	assertSeries(t, output, `vault_operation_duration_seconds_sum`,
		`operation="put_secret"`, `0\.05`)
}

func TestBusinessMetrics_RecordSecretsMigrated(t *testing.T) {
	bm, provider := newBusinessMetrics(t, "vault")
	ctx := context.Background()

	bm.RecordSecretsMigrated(ctx, MigrationMigrated, 3)
	bm.RecordSecretsMigrated(ctx, MigrationMigrated, 2)
	bm.RecordSecretsMigrated(ctx, MigrationFailed, 1)
	bm.RecordSecretsMigrated(ctx, MigrationSkipped, 0)

	output := scrape(t, provider)

	assertSeries(t, output, `vault_secrets_migrated_total`, `outcome="migrated"`, `5`)
	assertSeries(t, output, `vault_secrets_migrated_total`, `outcome="failed"`, `1`)
	assert.NotContains(t, output, `outcome="skipped"`)
}

func TestBusinessMetrics_RecordChainVerified(t *testing.T) {
	bm, provider := newBusinessMetrics(t, "vault")
	ctx := context.Background()

	bm.RecordChainVerified(ctx, 40, true)
	bm.RecordChainVerified(ctx, 2, true)
	bm.RecordChainVerified(ctx, 7, false)

	output := scrape(t, provider)

	assertSeries(t, output, `vault_audit_entries_verified_total`, `valid="true"`, `42`)
	assertSeries(t, output, `vault_audit_entries_verified_total`, `valid="false"`, `7`)
}

func TestNoOpBusinessMetrics(t *testing.T) {
	bm := NewNoOpBusinessMetrics()
	ctx := context.Background()

	assert.IsType(t, &NoOpBusinessMetrics{}, bm)
	assert.NotPanics(t, func() {
		bm.RecordOperation(ctx, "cells", "create_cell", "success")
		bm.RecordDuration(ctx, "cells", "create_cell", time.Millisecond, "success")
		bm.RecordSecretsMigrated(ctx, MigrationMigrated, 1)
		bm.RecordChainVerified(ctx, 1, true)
	})
}
