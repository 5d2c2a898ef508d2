// Package rpcpool implements the Node Pool Client: a weighted, health-aware
// dispatcher over a pool of Solana RPC endpoints, driving the three-state
// health machine of SPEC_FULL.md §4.1.
package rpcpool

import (
	"sync"
	"time"
)

// HealthState is one of the three states an endpoint can be in.
type HealthState string

const (
	Healthy     HealthState = "Healthy"
	Degraded    HealthState = "Degraded"
	Quarantined HealthState = "Quarantined"
)

// Endpoint owns one NodeEndpoint's configuration, transport and health
// state. The health engine (below) is the ONLY mutator of state; every
// other caller reads through Snapshot(), which returns a copy.
type Endpoint struct {
	URL       string
	Weight    int
	Transport Transport

	mu              sync.Mutex
	state           HealthState
	quarantineUntil time.Time
	consecutiveFail int

	// EWMA error rate and latency, decayed on every observation.
	errEWMA     float64
	latencyEWMA time.Duration
	p95Latency  time.Duration
	samples     []time.Duration // bounded ring buffer for p95 estimation

	backoff time.Duration
}

// EndpointSnapshot is an immutable read of one Endpoint's health, safe to
// hand to selectors without further locking.
type EndpointSnapshot struct {
	URL             string
	Weight          int
	State           HealthState
	QuarantineUntil time.Time
	ErrorRate       float64
	P95Latency      time.Duration
}

const (
	ewmaAlpha          = 0.2
	degradedErrorRate  = 0.10
	quarantineErrorRate = 0.40
	consecutiveFailQuarantine = 3
	latencyHistoryCap  = 64
)

// NewEndpoint constructs an Endpoint in the Healthy state.
func NewEndpoint(url string, weight int, transport Transport, initialBackoff time.Duration) *Endpoint {
	return &Endpoint{
		URL:       url,
		Weight:    weight,
		Transport: transport,
		state:     Healthy,
		backoff:   initialBackoff,
	}
}

// Snapshot returns an immutable read of the endpoint's current health.
func (e *Endpoint) Snapshot() EndpointSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return EndpointSnapshot{
		URL:             e.URL,
		Weight:          e.Weight,
		State:           e.state,
		QuarantineUntil: e.quarantineUntil,
		ErrorRate:       e.errEWMA,
		P95Latency:      e.p95Latency,
	}
}

// RecordSuccess records a successful dispatch and its latency, possibly
// transitioning Degraded -> Healthy or Quarantined -> Healthy (the latter
// only via the probe scheduler calling RecordProbeSuccess, never from
// ordinary traffic, per §4.1 "Quarantined -> Healthy after a successful
// probe").
func (e *Endpoint) RecordSuccess(latency time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.consecutiveFail = 0
	e.errEWMA = (1-ewmaAlpha)*e.errEWMA + ewmaAlpha*0
	e.observeLatency(latency)

	if e.state == Degraded && e.errEWMA < degradedErrorRate {
		e.state = Healthy
		e.backoff = 0
	}
}

// RecordFailure records a failed dispatch, possibly transitioning
// Healthy -> Degraded or Degraded -> Quarantined per the thresholds of
// §4.1.
func (e *Endpoint) RecordFailure(now time.Time, minBackoff, maxBackoff time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.consecutiveFail++
	e.errEWMA = (1-ewmaAlpha)*e.errEWMA + ewmaAlpha*1

	switch e.state {
	case Healthy:
		if e.errEWMA >= degradedErrorRate {
			e.state = Degraded
		}
	case Degraded:
		if e.errEWMA >= quarantineErrorRate || e.consecutiveFail >= consecutiveFailQuarantine {
			e.quarantine(now, minBackoff, maxBackoff)
		}
	case Quarantined:
		// Already excluded from selection; extend backoff on continued failure
		// (e.g. a probe that itself failed).
		e.quarantine(now, minBackoff, maxBackoff)
	}
}

// quarantine starts the backoff at minBackoff when the endpoint enters
// quarantine and doubles it, up to maxBackoff, on each further failure
// while it stays quarantined.
func (e *Endpoint) quarantine(now time.Time, minBackoff, maxBackoff time.Duration) {
	if e.state != Quarantined || e.backoff == 0 {
		e.backoff = minBackoff
	} else {
		e.backoff *= 2
		if e.backoff > maxBackoff {
			e.backoff = maxBackoff
		}
	}
	e.state = Quarantined
	e.quarantineUntil = now.Add(e.backoff)
}

// RecordProbeSuccess transitions a Quarantined endpoint back to Healthy.
// Invariant §3.4 guarantees this is only ever called after the release
// time has passed (enforced by the probe scheduler, not here).
func (e *Endpoint) RecordProbeSuccess() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = Healthy
	e.consecutiveFail = 0
	e.errEWMA = 0
	e.backoff = 0
}

// IsDispatchable reports whether the endpoint is eligible for any traffic
// right now: Healthy or Degraded always, Quarantined only once its release
// time has passed. Ordinary request dispatch (Pool.dispatchable) never
// selects a Quarantined endpoint regardless of release time — only the
// probe scheduler may; this predicate is the release-time check the probe
// scheduler applies, exposed here for endpoint-level inspection and tests.
func (e *Endpoint) IsDispatchable(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Quarantined {
		return !now.Before(e.quarantineUntil)
	}
	return true
}

// State returns the endpoint's current health state.
func (e *Endpoint) State() HealthState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// QuarantineUntil returns the release time for a quarantined endpoint.
func (e *Endpoint) QuarantineUntil() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quarantineUntil
}

func (e *Endpoint) observeLatency(latency time.Duration) {
	if e.latencyEWMA == 0 {
		e.latencyEWMA = latency
	} else {
		e.latencyEWMA = time.Duration((1-ewmaAlpha)*float64(e.latencyEWMA) + ewmaAlpha*float64(latency))
	}

	e.samples = append(e.samples, latency)
	if len(e.samples) > latencyHistoryCap {
		e.samples = e.samples[len(e.samples)-latencyHistoryCap:]
	}
	e.p95Latency = percentile(e.samples, 0.95)
}

func percentile(samples []time.Duration, p float64) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
