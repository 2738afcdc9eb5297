package weex

import (
	"sync"
	"time"
)

// Throttle enforces a minimum interval between outbound calls. WEEX and the
// intelligence providers both rate-limit by request spacing rather than
// token buckets, so minimum spacing is all that is needed.
type Throttle struct {
	mu       sync.Mutex
	minGap   time.Duration
	lastCall time.Time
}

// NewThrottle creates a throttle with the given minimum gap between calls.
func NewThrottle(minGap time.Duration) *Throttle {
	return &Throttle{minGap: minGap}
}

// Wait blocks until at least the minimum interval has elapsed since the
// previous call, then records the call.
func (t *Throttle) Wait() {
	t.mu.Lock()
	elapsed := time.Since(t.lastCall)
	if elapsed < t.minGap {
		wait := t.minGap - elapsed
		t.mu.Unlock()
		time.Sleep(wait)
		t.mu.Lock()
	}
	t.lastCall = time.Now()
	t.mu.Unlock()
}
