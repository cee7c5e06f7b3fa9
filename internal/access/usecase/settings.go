package usecase

import (
	"time"
)

// Settings configures lockout.
type Settings struct {
	// MaxFailedAttempts consecutive denials lock a subject out. Zero disables lockout.
	MaxFailedAttempts int
	// LockoutDuration is how long a lockout lasts.
	LockoutDuration time.Duration
	// Now is the clock used for conditions and lockout. Defaults to time.Now.
	Now func() time.Time
}

// DefaultSettings locks a subject out for 15 minutes after 5 consecutive denials.
func DefaultSettings() Settings {
	return Settings{
		MaxFailedAttempts: 5,
		LockoutDuration:   15 * time.Minute,
		Now:               time.Now,
	}
}
