package rpcpool

import (
	"sync"
	"time"
)

// ProbeLimiter paces health probes per endpoint so a flapping endpoint
// cannot be re-probed faster than cfg.ProbeInterval allows, even if the
// scheduler's ticker fires more often than that (e.g. after a burst of
// quarantine events). Tracks only the last probe time per endpoint since
// probes are paced, not bursted, so a count-in-window scheme is unneeded.
type ProbeLimiter struct {
	interval time.Duration

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

// NewProbeLimiter builds a ProbeLimiter enforcing the given minimum
// interval between probes of the same endpoint.
func NewProbeLimiter(interval time.Duration) *ProbeLimiter {
	return &ProbeLimiter{
		interval: interval,
		lastSeen: make(map[string]time.Time),
	}
}

// Allow reports whether endpointURL may be probed now, recording the
// attempt if so.
func (l *ProbeLimiter) Allow(endpointURL string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if last, ok := l.lastSeen[endpointURL]; ok && now.Sub(last) < l.interval {
		return false
	}
	l.lastSeen[endpointURL] = now
	return true
}

// Reset clears the recorded probe time for an endpoint, so its next probe
// is allowed at once. Nothing in the pool calls it.
func (l *ProbeLimiter) Reset(endpointURL string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.lastSeen, endpointURL)
}
