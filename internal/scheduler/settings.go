package scheduler

import "time"

// Settings holds the cadence and limits of the rotation scheduler.
type Settings struct {
	// Schedule is a cron spec or descriptor such as "@every 1h".
	Schedule string
	// Concurrency bounds the cells maintained at the same time.
	Concurrency int
	// RetryMaxAttempts bounds the attempts of one step on transient failures.
	RetryMaxAttempts uint64
	// RetryInitialInterval is the first backoff delay between attempts.
	RetryInitialInterval time.Duration
	// RunOnStart sweeps once as soon as the scheduler starts.
	RunOnStart bool
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// DefaultSettings returns the production defaults.
func DefaultSettings() Settings {
	return Settings{
		Schedule:             "@every 1h",
		Concurrency:          4,
		RetryMaxAttempts:     3,
		RetryInitialInterval: 500 * time.Millisecond,
		RunOnStart:           true,
	}
}
