package usecase

import (
	"time"

	"golang.org/x/time/rate"
)

// Settings holds the limits and timings of the cell manager.
type Settings struct {
	// DefaultRotationDays applies to cells created without an interval.
	DefaultRotationDays int
	// MaxSecretsPerCell bounds the distinct secret ids in one cell.
	MaxSecretsPerCell int64
	// MaxSecretSize bounds the plaintext of one version in bytes.
	MaxSecretSize int
	// OperationTimeout applies to every operation whose context has no earlier deadline.
	OperationTimeout time.Duration
	// AuditGracePeriod bounds the append of an error entry after the operation's own
	// context was canceled or timed out.
	AuditGracePeriod time.Duration
	// MigrationBatchSize is the number of secret versions re-wrapped per transaction.
	MigrationBatchSize int
	// MigrationRate throttles re-wraps per second during a sweep.
	MigrationRate rate.Limit
	// PendingBuffer is the capacity of the pending migrations queue.
	PendingBuffer int
	// Operators are the subjects allowed to lift another subject's lockout.
	Operators []string
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// DefaultSettings returns the production defaults.
func DefaultSettings() Settings {
	return Settings{
		DefaultRotationDays: 30,
		MaxSecretsPerCell:   1000,
		MaxSecretSize:       64 * 1024,
		OperationTimeout:    30 * time.Second,
		AuditGracePeriod:    5 * time.Second,
		MigrationBatchSize:  100,
		MigrationRate:       50,
		PendingBuffer:       64,
	}
}
