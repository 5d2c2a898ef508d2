package fee

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/yourusername/solbundler/internal/bundlerrors"
	"github.com/yourusername/solbundler/internal/rpcpool"
)

// Config holds the `fees.*` schema of §6.
type Config struct {
	Strategy      string // "p75_plus_buffer" | "fixed"
	WindowSeconds time.Duration
	BufferRatio   float64 // α, default 0.10
	Lookahead     time.Duration
	BumpMultiplier float64 // β, default 1.3
	MinIncrement  uint64  // δ
	BaseFee       uint64
	FixedPrice    uint64
	// MinSamples is S_min: the minimum number of account-scoped samples
	// required before trusting that window over the global one. Default 10.
	MinSamples int
}

func (c Config) withDefaults() Config {
	if c.WindowSeconds == 0 {
		c.WindowSeconds = 60 * time.Second
	}
	if c.BufferRatio == 0 {
		c.BufferRatio = 0.10
	}
	if c.Lookahead == 0 {
		c.Lookahead = 5 * time.Second
	}
	if c.BumpMultiplier == 0 {
		c.BumpMultiplier = 1.3
	}
	if c.MinSamples == 0 {
		c.MinSamples = 10
	}
	return c
}

// Source is the subset of the Node Pool Client the estimator needs to
// refresh its sample window.
type Source interface {
	Dispatch(ctx context.Context, fn func(ctx context.Context, t rpcpool.Transport) error) error
}

// Estimator is the Fee Estimator of §4.2: a rolling per-writable-account-set
// window of priority-fee samples, refreshed by calls to Ingest (the
// orchestrator makes one before pricing a draft's first attempt; the
// estimator starts no goroutine of its own), with snapshot reads for the
// hot pricing path (§5 resource model).
type Estimator struct {
	cfg      Config
	strategy Strategy
	source   Source
	logger   *zap.Logger

	mu         sync.Mutex
	rawByAccts map[uint64][]Sample
	rawGlobal  []Sample

	snapByAccts map[uint64]*atomic.Pointer[windowSnapshot]
	snapGlobal  atomic.Pointer[windowSnapshot]
}

// NewEstimator constructs an Estimator. cfg.Strategy selects P75PlusBuffer
// or Fixed per §6; an unknown value is a Config error surfaced at
// construction rather than at estimate time.
func NewEstimator(cfg Config, source Source, logger *zap.Logger) (*Estimator, error) {
	cfg = cfg.withDefaults()
	strategy, err := ParseStrategy(cfg.Strategy, cfg.FixedPrice)
	if err != nil {
		return nil, err
	}
	return &Estimator{
		cfg:         cfg,
		strategy:    strategy,
		source:      source,
		logger:      logger,
		rawByAccts:  make(map[uint64][]Sample),
		snapByAccts: make(map[uint64]*atomic.Pointer[windowSnapshot]),
	}, nil
}

// Ingest refreshes the sample window for one writable-account set from the
// Node Pool Client. It is the estimator's single writer; concurrent callers
// of Ingest serialize on mu, which is held while the new snapshots are
// built. EstimateInitial loads the published snapshot via atomic.Pointer
// but takes mu briefly to look up the per-account pointer, so it can wait
// behind an Ingest in progress; EstimateBump reads no snapshot.
func (e *Estimator) Ingest(ctx context.Context, accounts []solana.PublicKey) error {
	var samples []rpcpool.FeeSample
	err := e.source.Dispatch(ctx, func(ctx context.Context, t rpcpool.Transport) error {
		var dispatchErr error
		samples, dispatchErr = t.GetRecentFeeSamples(ctx, accounts)
		return dispatchErr
	})
	if err != nil {
		return err
	}

	now := time.Now()
	fresh := make([]Sample, len(samples))
	for i, s := range samples {
		fresh[i] = Sample{ObservedAt: now, Price: s.Price}
	}

	key := fingerprintAccounts(accounts)

	e.mu.Lock()
	e.rawByAccts[key] = evictStale(append(e.rawByAccts[key], fresh...), now, e.cfg.WindowSeconds)
	e.rawGlobal = evictStale(append(e.rawGlobal, fresh...), now, e.cfg.WindowSeconds)
	byAcctSnap := buildSnapshot(e.rawByAccts[key], now)
	globalSnap := buildSnapshot(e.rawGlobal, now)
	ptr, ok := e.snapByAccts[key]
	if !ok {
		ptr = &atomic.Pointer[windowSnapshot]{}
		e.snapByAccts[key] = ptr
	}
	e.mu.Unlock()

	ptr.Store(byAcctSnap)
	e.snapGlobal.Store(globalSnap)
	return nil
}

func evictStale(samples []Sample, now time.Time, window time.Duration) []Sample {
	out := samples[:0]
	for _, s := range samples {
		if now.Sub(s.ObservedAt) <= window {
			out = append(out, s)
		}
	}
	return append([]Sample(nil), out...)
}

// snapshotFor returns the per-account-set snapshot if it carries at least
// MinSamples (S_min) observations, falling back to the global snapshot,
// then to an empty snapshot (which EstimateInitial treats as base_fee),
// per the edge case "account-scoped queries return fewer than S_min
// samples -> fall back to global samples, then to base_fee."
func (e *Estimator) snapshotFor(accounts []solana.PublicKey) *windowSnapshot {
	key := fingerprintAccounts(accounts)
	e.mu.Lock()
	ptr, ok := e.snapByAccts[key]
	e.mu.Unlock()
	if ok {
		if snap := ptr.Load(); snap != nil && len(snap.sorted) >= e.cfg.MinSamples {
			return snap
		}
	}
	if global := e.snapGlobal.Load(); global != nil && len(global.sorted) > 0 {
		return global
	}
	return &windowSnapshot{}
}

// EstimateInitial computes the first-attempt price per §4.2 steps 2-5:
// strategy target, tier multiplier, clamp to [base_fee, maxPrice].
func (e *Estimator) EstimateInitial(accounts []solana.PublicKey, tier Tier, maxPrice uint64) uint64 {
	snap := e.snapshotFor(accounts)
	target := e.strategy.TargetPrice(snap, e.cfg.Lookahead, e.cfg.BufferRatio)
	if target == 0 {
		target = e.cfg.BaseFee
	}
	priced := uint64(float64(target) * tier.multiplier())
	return clamp(priced, e.cfg.BaseFee, maxPrice)
}

// EstimateBump computes the next attempt's price per §4.2's bump schedule:
// max(previous*β, previous+δ), failing with FeeCeiling if it would exceed
// maxPrice.
func (e *Estimator) EstimateBump(previous uint64, maxPrice uint64) (uint64, error) {
	byMultiplier := uint64(float64(previous) * e.cfg.BumpMultiplier)
	byIncrement := previous + e.cfg.MinIncrement
	next := byMultiplier
	if byIncrement > next {
		next = byIncrement
	}
	if next <= previous {
		next = previous + 1 // guarantee strict monotonicity (invariant §3.2) even at previous=0
	}
	if next > maxPrice {
		return 0, bundlerrors.New(bundlerrors.FeeCeiling, "bump schedule would exceed max_price", nil)
	}
	return next, nil
}

func clamp(v, lo, hi uint64) uint64 {
	if v < lo {
		v = lo
	}
	if hi > 0 && v > hi {
		v = hi
	}
	return v
}
