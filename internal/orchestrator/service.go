// Package orchestrator implements the Bundler Orchestrator of §4.4: it
// partitions a BundleRequest into TransactionDrafts, drives each through
// simulate → price → sign → submit → confirm, enforces atomic vs.
// best-effort semantics, and aggregates a BundleResult.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/solbundler/internal/bundler"
	"github.com/yourusername/solbundler/internal/bundlerrors"
	"github.com/yourusername/solbundler/internal/fee"
	"github.com/yourusername/solbundler/internal/obs"
	"github.com/yourusername/solbundler/internal/rpcpool"
	"github.com/yourusername/solbundler/internal/signing"
	"github.com/yourusername/solbundler/internal/simulate"
	"github.com/yourusername/solbundler/internal/solanatx"
)

// Config holds the `bundle.*` schema of §6.
type Config struct {
	MaxAttempts             int
	Parallelism             int
	PollInterval            time.Duration
	ConfirmDeadline         time.Duration
	PerTxComputeUnitCap     int
	PerTxSizeCapBytes       int
	ResimulateOnBump        bool
	CountConfirmedAsSuccess bool
	// BlockhashValidity bounds how long pollUntilConfirmedOrExpiry waits for
	// a confirmation before reporting expiry (triggering a fee bump).
	BlockhashValidity time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.Parallelism == 0 {
		c.Parallelism = 8
	}
	if c.PollInterval == 0 {
		c.PollInterval = 400 * time.Millisecond
	}
	if c.ConfirmDeadline == 0 {
		c.ConfirmDeadline = 30 * time.Second
	}
	if c.PerTxSizeCapBytes == 0 {
		c.PerTxSizeCapBytes = 1232
	}
	if c.PerTxComputeUnitCap == 0 {
		c.PerTxComputeUnitCap = 1_400_000
	}
	if c.BlockhashValidity == 0 {
		c.BlockhashValidity = 90 * time.Second
	}
	return c
}

// Service is the Bundler Orchestrator: the top-level submission surface of
// §6 (`Submit`, `Simulate`, `Status`, `Health`).
type Service struct {
	cfg       Config
	pool      *rpcpool.Pool
	estimator *fee.Estimator
	simulator *simulate.Simulator
	gateway   signing.Gateway
	adapter   *solanatx.Adapter
	sink      obs.Sink
	logger    *zap.Logger
}

func NewService(cfg Config, pool *rpcpool.Pool, estimator *fee.Estimator, simulator *simulate.Simulator, gateway signing.Gateway, adapter *solanatx.Adapter, sink obs.Sink, logger *zap.Logger) *Service {
	if sink == nil {
		sink = obs.NoOpSink{}
	}
	return &Service{
		cfg:       cfg.withDefaults(),
		pool:      pool,
		estimator: estimator,
		simulator: simulator,
		gateway:   gateway,
		adapter:   adapter,
		sink:      sink,
		logger:    logger,
	}
}

func draftSigners(draft *bundler.TransactionDraft, additional []solana.PublicKey) []solana.PublicKey {
	seen := make(map[solana.PublicKey]struct{})
	out := make([]solana.PublicKey, 0)
	for _, ins := range draft.Instructions {
		for _, pk := range ins.Signers() {
			if _, ok := seen[pk]; !ok {
				seen[pk] = struct{}{}
				out = append(out, pk)
			}
		}
	}
	for _, pk := range additional {
		if _, ok := seen[pk]; !ok {
			seen[pk] = struct{}{}
			out = append(out, pk)
		}
	}
	return out
}

// Submit implements §6's `submit(BundleRequest, overall_deadline) →
// BundleResult`.
func (s *Service) Submit(ctx context.Context, req *bundler.BundleRequest, overallDeadline time.Duration) (*bundler.BundleResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	feePayer, ok := req.FeePayer()
	if !ok {
		return nil, bundlerrors.New(bundlerrors.Malformed, "bundle has no designated fee payer", nil)
	}

	drafts, err := Partition(req, s.cfg.PerTxSizeCapBytes, s.cfg.PerTxComputeUnitCap)
	if err != nil {
		return nil, err
	}

	if overallDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, overallDeadline)
		defer cancel()
	}

	start := time.Now()
	timing := &timingAccumulator{}
	outcomes := make([]bundler.TransactionOutcome, len(drafts))
	endpointsUsed := make(map[string]struct{})

	if req.Atomic {
		s.runAtomic(ctx, drafts, feePayer, req, timing, outcomes)
	} else {
		s.runBestEffort(ctx, drafts, feePayer, req, timing, outcomes)
	}

	for _, snap := range s.pool.Snapshots() {
		endpointsUsed[snap.URL] = struct{}{}
	}
	urls := make([]string, 0, len(endpointsUsed))
	for u := range endpointsUsed {
		urls = append(urls, u)
	}

	result := &bundler.BundleResult{
		RequestID:     req.ID,
		Outcomes:      outcomes,
		Timing:        timing.breakdown(time.Since(start)),
		EndpointsUsed: urls,
		RetryCount:    sumExtraAttempts(outcomes),
		CompletedAt:   time.Now(),
	}
	result.Status = aggregateStatus(req.Atomic, outcomes, s.cfg.CountConfirmedAsSuccess)

	s.sink.RecordBundle(obs.FromResult(result, result.RetryCount))
	return result, nil
}

// runAtomic drives drafts strictly sequentially, cancelling any not-yet-run
// draft the instant one terminates Failed/Dropped (§4.4 "Atomicity
// enforcement"). Already-submitted signatures cannot be unsent; outcomes for
// cancelled drafts are reported Dropped.
func (s *Service) runAtomic(ctx context.Context, drafts []*bundler.TransactionDraft, feePayer solana.PublicKey, req *bundler.BundleRequest, timing *timingAccumulator, outcomes []bundler.TransactionOutcome) {
	cctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	for i, draft := range drafts {
		if cctx.Err() != nil {
			outcomes[i] = bundler.TransactionOutcome{
				Status:        bundler.StatusDropped,
				FailureKind:   string(bundlerrors.Cancelled),
				FailureDetail: "sibling draft failed; atomic bundle aborted",
			}
			continue
		}
		signers := draftSigners(draft, req.AdditionalSigners)
		outcome := s.driveDraft(cctx, draft, feePayer, req.Compute, signers, timing)
		outcomes[i] = outcome
		if outcome.Status == bundler.StatusFailed || outcome.Status == bundler.StatusDropped {
			cancel(bundlerrors.New(bundlerrors.Cancelled, "atomic sibling draft failed", nil))
		}
	}
}

// runBestEffort drives drafts concurrently with bounded parallelism via
// errgroup.SetLimit. Partitioning keeps conflicting instructions out of the
// same draft, but separate drafts may still share a writable account, so
// each draft holds one lock per writable account while it runs (§3.5). The
// locks are taken in the sorted order writableAccountSlice returns, so two
// drafts never wait on each other in a cycle.
func (s *Service) runBestEffort(ctx context.Context, drafts []*bundler.TransactionDraft, feePayer solana.PublicKey, req *bundler.BundleRequest, timing *timingAccumulator, outcomes []bundler.TransactionOutcome) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Parallelism)

	accountLocks := make(map[solana.PublicKey]*sync.Mutex)
	for _, draft := range drafts {
		for pk := range draft.WritableAccounts() {
			if _, ok := accountLocks[pk]; !ok {
				accountLocks[pk] = &sync.Mutex{}
			}
		}
	}

	for i, draft := range drafts {
		i, draft := i, draft
		g.Go(func() error {
			for _, pk := range writableAccountSlice(draft) {
				accountLocks[pk].Lock()
				defer accountLocks[pk].Unlock()
			}
			signers := draftSigners(draft, req.AdditionalSigners)
			outcomes[i] = s.driveDraft(gctx, draft, feePayer, req.Compute, signers, timing)
			return nil
		})
	}
	_ = g.Wait()
}

func sumExtraAttempts(outcomes []bundler.TransactionOutcome) int {
	total := 0
	for _, o := range outcomes {
		if o.Attempts > 1 {
			total += o.Attempts - 1
		}
	}
	return total
}

// aggregateStatus implements invariant §3.3: an atomic bundle's status is
// Success iff every outcome landed, otherwise Failed — never Partial.
// countConfirmedAsSuccess is always treated as false for atomic bundles,
// regardless of the caller's configured value: an atomic bundle already
// requires Finalized-or-better on every draft, so Confirmed alone never
// counts as landed for it (§9 design note 1).
func aggregateStatus(atomic bool, outcomes []bundler.TransactionOutcome, countConfirmedAsSuccess bool) bundler.AggregateStatus {
	if atomic {
		countConfirmedAsSuccess = false
	}

	landed := func(o bundler.TransactionOutcome) bool {
		if o.Status == bundler.StatusFinalized {
			return true
		}
		return countConfirmedAsSuccess && o.Status == bundler.StatusConfirmed
	}

	allLanded, anyLanded := true, false
	for _, o := range outcomes {
		if landed(o) {
			anyLanded = true
		} else {
			allLanded = false
		}
	}

	if atomic {
		if allLanded {
			return bundler.AggregateSuccess
		}
		return bundler.AggregateFailed
	}

	switch {
	case allLanded:
		return bundler.AggregateSuccess
	case anyLanded:
		return bundler.AggregatePartial
	default:
		return bundler.AggregateFailed
	}
}
