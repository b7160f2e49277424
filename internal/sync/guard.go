package sync

import (
	"sync"
	"time"
)

// Guard suppresses redundant remote reads by enforcing a minimum interval
// between syncs. Safe for concurrent use.
type Guard struct {
	mu       sync.Mutex
	last     time.Time
	interval time.Duration
	now      func() time.Time
}

// NewGuard builds a guard with the given minimum interval (one minute when
// zero or negative).
func NewGuard(interval time.Duration) *Guard {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Guard{interval: interval, now: time.Now}
}

// ShouldSync reports whether enough time has passed since the last sync.
func (g *Guard) ShouldSync() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.last.IsZero() {
		return true
	}
	return g.now().Sub(g.last) >= g.interval
}

// MarkSynced records the current time as the last sync.
func (g *Guard) MarkSynced() {
	g.mu.Lock()
	g.last = g.now()
	g.mu.Unlock()
}

// ForceSync resets the guard so the next ShouldSync passes.
func (g *Guard) ForceSync() {
	g.mu.Lock()
	g.last = time.Time{}
	g.mu.Unlock()
}

// CacheAge returns the time elapsed since the last sync, zero when never
// synced.
func (g *Guard) CacheAge() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.last.IsZero() {
		return 0
	}
	return g.now().Sub(g.last)
}
