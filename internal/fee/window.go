// Package fee implements the adaptive priority-fee Estimator of §4.2: a
// rolling window of recent priority-fee observations per writable-account
// set, a percentile-plus-trend target price, a tier multiplier, and a bump
// escalation schedule, continuously maintained rather than refreshed by a
// one-shot RPC read.
package fee

import (
	"hash/fnv"
	"sort"
	"time"

	"github.com/gagliardetto/solana-go"
)

// Sample is one priority-fee observation, tagged with the time it was
// observed so stale samples can be evicted by window age rather than by
// count.
type Sample struct {
	ObservedAt time.Time
	Price      uint64
}

// windowSnapshot is the immutable value published via atomic.Pointer: the
// fee estimator's single writer (Ingest) builds a new snapshot on every
// refresh; EstimateInitial only ever sees a fully-formed, already-sorted set
// of samples. Loading a snapshot takes no lock, but finding the per-account
// pointer takes the estimator's mutex briefly (see snapshotFor).
type windowSnapshot struct {
	builtAt time.Time
	sorted  []uint64 // ascending, for percentile lookup
	slope   float64  // lamports per second, fit over the window
}

// fingerprintAccounts hashes a writable-account set with FNV-1a into a
// lookup key for the per-account-set sample window. FNV-1a is adequate
// here because the key space is not adversarial (it is derived from the
// caller's own instructions), so cheap deterministic hashing is preferable
// to cryptographic hashing for an in-memory map key.
func fingerprintAccounts(accounts []solana.PublicKey) uint64 {
	h := fnv.New64a()
	for _, a := range accounts {
		h.Write(a[:])
	}
	return h.Sum64()
}

func buildSnapshot(samples []Sample, now time.Time) *windowSnapshot {
	if len(samples) == 0 {
		return &windowSnapshot{builtAt: now}
	}
	prices := make([]uint64, len(samples))
	for i, s := range samples {
		prices[i] = s.Price
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i] < prices[j] })

	return &windowSnapshot{
		builtAt: now,
		sorted:  prices,
		slope:   fitSlope(samples, now),
	}
}

// percentile returns the p-th percentile (0..1) of the ascending price set,
// or 0 if the set is empty.
func (s *windowSnapshot) percentile(p float64) uint64 {
	if len(s.sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(s.sorted)-1))
	return s.sorted[idx]
}

// fitSlope fits a simple least-squares line of price against seconds-ago
// (negative, so a positive slope means prices are rising) and returns the
// slope in lamports per second. With fewer than two samples the trend is
// zero.
func fitSlope(samples []Sample, now time.Time) float64 {
	n := len(samples)
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for _, s := range samples {
		x := -now.Sub(s.ObservedAt).Seconds()
		y := float64(s.Price)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (fn*sumXY - sumX*sumY) / denom
}
