package payment

import (
	"sync"
	"time"
)

// breaker is a small circuit breaker guarding the gateway HTTP calls.
// After maxFailures consecutive failures it opens for cooldown; during
// that window allow() returns false and callers fail fast with
// ErrUnavailable instead of stacking up timeouts.  The first call after
// the cooldown probes the gateway; success closes the circuit.
type breaker struct {
	mu          sync.Mutex
	maxFailures int
	cooldown    time.Duration
	failures    int
	openedAt    time.Time
	now         func() time.Time
}

func newBreaker(maxFailures int, cooldown time.Duration) *breaker {
	return &breaker{maxFailures: maxFailures, cooldown: cooldown, now: time.Now}
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures < b.maxFailures {
		return true
	}
	if b.now().Sub(b.openedAt) >= b.cooldown {
		// Half-open: admit one probe. A failure re-arms the full
		// cooldown, a success resets the counter.
		b.openedAt = b.now()
		return true
	}
	return false
}

func (b *breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
}

func (b *breaker) failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.maxFailures {
		b.openedAt = b.now()
	}
}
