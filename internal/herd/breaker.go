package herd

import (
	"sync"
	"time"
)

// circuitState is the per-observer dial circuit state.
type circuitState int

const (
	circuitClosed circuitState = iota
	circuitHalfOpen
	circuitOpen
)

func (cs circuitState) String() string {
	switch cs {
	case circuitClosed:
		return "closed"
	case circuitHalfOpen:
		return "half_open"
	case circuitOpen:
		return "open"
	default:
		return "unknown"
	}
}

// dialBreaker stops RealHerd from repeatedly retrying SSH dials against an
// observer that just failed, instead of burning every call's DialRetries
// budget against a host that is plainly down. One breaker guards one
// observer's dial attempts; RealHerd keeps one per configured observer.
//
// Adapted from the teacher's scheduler-admission circuit breaker: the
// queue-depth/worker-saturation admission check becomes a consecutive-
// dial-failure check, since a Herd has no queue or worker pool to protect.
type dialBreaker struct {
	mu sync.Mutex

	state            circuitState
	failureThreshold int
	cooldown         time.Duration
	testLimit        int

	openedAt      time.Time
	consecutive   int
	halfOpenTests int
}

func newDialBreaker(failureThreshold int, cooldown time.Duration) *dialBreaker {
	return &dialBreaker{
		state:            circuitClosed,
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		testLimit:        1,
	}
}

// allow reports whether a dial attempt should proceed.
func (b *dialBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == circuitOpen && time.Since(b.openedAt) > b.cooldown {
		b.state = circuitHalfOpen
		b.halfOpenTests = 0
	}

	if b.state == circuitHalfOpen {
		if b.halfOpenTests < b.testLimit {
			b.halfOpenTests++
			return true
		}
		return false
	}

	return b.state == circuitClosed
}

func (b *dialBreaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive = 0
	b.state = circuitClosed
}

func (b *dialBreaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == circuitHalfOpen {
		b.state = circuitOpen
		b.openedAt = time.Now()
		return
	}

	b.consecutive++
	if b.consecutive >= b.failureThreshold {
		b.state = circuitOpen
		b.openedAt = time.Now()
	}
}
