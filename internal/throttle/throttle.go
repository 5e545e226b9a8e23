// File: internal/throttle/throttle.go
package throttle

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle gates the fallback scroll to at most one firing per window. Time is
// supplied by the caller so the engine clock drives it.
type Throttle struct {
	mu        sync.Mutex
	window    time.Duration
	limiter   *rate.Limiter
	lastFired time.Time
}

// New creates a throttle. A non-positive window disables throttling.
func New(window time.Duration) *Throttle {
	t := &Throttle{window: window}
	t.Reset()
	return t
}

// Allow reports whether a firing at now is permitted and, if so, records it.
// A denied call leaves the state untouched.
func (t *Throttle) Allow(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.limiter.AllowN(now, 1) {
		return false
	}
	t.lastFired = now
	return true
}

// LastFired returns the time of the last permitted firing, zero if none.
func (t *Throttle) LastFired() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastFired
}

// Reset forgets every previous firing.
func (t *Throttle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.window <= 0 {
		t.limiter = rate.NewLimiter(rate.Inf, 1)
	} else {
		t.limiter = rate.NewLimiter(rate.Every(t.window), 1)
	}
	t.lastFired = time.Time{}
}
