package usecase

import (
	"sync"
	"time"
)

type lockoutState struct {
	failures    int
	lockedUntil time.Time
}

// lockoutTracker counts consecutive denials per subject.
type lockoutTracker struct {
	mu          sync.Mutex
	maxAttempts int
	duration    time.Duration
	subjects    map[string]*lockoutState
}

func newLockoutTracker(maxAttempts int, duration time.Duration) *lockoutTracker {
	return &lockoutTracker{
		maxAttempts: maxAttempts,
		duration:    duration,
		subjects:    make(map[string]*lockoutState),
	}
}

// lockedUntil returns the end of the subject's lockout, or the zero time.
func (t *lockoutTracker) lockedUntil(subject string, now time.Time) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.subjects[subject]
	if !ok {
		return time.Time{}
	}
	if !now.Before(state.lockedUntil) {
		if state.failures == 0 {
			delete(t.subjects, subject)
		}
		return time.Time{}
	}
	return state.lockedUntil
}

// recordDenial counts a denial and reports whether it started a lockout. The counter
// restarts from zero once the lockout is applied.
func (t *lockoutTracker) recordDenial(subject string, now time.Time) bool {
	if t.maxAttempts <= 0 {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.subjects[subject]
	if !ok {
		state = &lockoutState{}
		t.subjects[subject] = state
	}
	state.failures++
	if state.failures < t.maxAttempts {
		return false
	}
	state.failures = 0
	state.lockedUntil = now.Add(t.duration)
	return true
}

func (t *lockoutTracker) reset(subject string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subjects, subject)
}
