package httpapi

import (
	"sync"

	"golang.org/x/time/rate"
)

// perOwnerLimiter rate-limits submissions per owner instead of globally, so
// one noisy owner cannot starve everyone else's submit budget. Adapted from
// control_plane/scheduler/limiter.go's TokenBucketLimiter, which keyed a
// per-key map of rate.Limiter the same way; the teacher's Reserve/
// EnsureLimiter/DynamicLimiter variants have no caller here and were
// dropped rather than ported unused.
type perOwnerLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	b        int
}

func newPerOwnerLimiter(r rate.Limit, b int) *perOwnerLimiter {
	return &perOwnerLimiter{limiters: make(map[string]*rate.Limiter), r: r, b: b}
}

func (l *perOwnerLimiter) allow(ownerID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[ownerID]
	if !ok {
		limiter = rate.NewLimiter(l.r, l.b)
		l.limiters[ownerID] = limiter
	}
	return limiter.Allow()
}
