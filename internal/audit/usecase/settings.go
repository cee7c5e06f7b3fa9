package usecase

import "time"

// Settings tunes the audit log.
type Settings struct {
	// VerifyBatchSize is the number of entries read per page during verification.
	VerifyBatchSize int

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// DefaultSettings returns the production defaults.
func DefaultSettings() Settings {
	return Settings{VerifyBatchSize: 500}
}
