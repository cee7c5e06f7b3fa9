package usecase

import (
	"sync"

	"github.com/google/uuid"
)

type pinKey struct {
	cellID  uuid.UUID
	version uint
}

// pinRegistry tracks in-flight references to CellKey versions. A version that is
// pinned cannot be blocked for retirement, and a blocked version cannot be pinned.
type pinRegistry struct {
	mu      sync.Mutex
	counts  map[pinKey]int
	blocked map[pinKey]struct{}
}

func newPinRegistry() *pinRegistry {
	return &pinRegistry{
		counts:  make(map[pinKey]int),
		blocked: make(map[pinKey]struct{}),
	}
}

func (p *pinRegistry) acquire(k pinKey) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.blocked[k]; ok {
		return false
	}
	p.counts[k]++
	return true
}

func (p *pinRegistry) release(k pinKey) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.counts[k] <= 1 {
		delete(p.counts, k)
		return
	}
	p.counts[k]--
}

func (p *pinRegistry) block(k pinKey) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.blocked[k]; ok {
		return false
	}
	if p.counts[k] > 0 {
		return false
	}
	p.blocked[k] = struct{}{}
	return true
}

func (p *pinRegistry) unblock(k pinKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.blocked, k)
}

func (p *pinRegistry) pinned(k pinKey) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[k]
}

// Lease is an in-flight reference to one CellKey version.
type Lease struct {
	CellID  uuid.UUID
	Version uint

	once    sync.Once
	release func()
}

// Release drops the reference. Safe to call more than once.
func (l *Lease) Release() {
	if l == nil {
		return
	}
	l.once.Do(l.release)
}
