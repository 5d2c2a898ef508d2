package rpcpool

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/yourusername/solbundler/internal/bundlerrors"
)

// Config governs pool-wide backoff and probing behaviour. cmd/solbundler
// builds it from the `rpc.*` section of the YAML config (internal/config).
type Config struct {
	MinBackoff    time.Duration
	MaxBackoff    time.Duration
	ProbeInterval time.Duration
	RequestTimeout time.Duration
}

// Pool is the Node Pool Client: a weighted-reservoir selector over a set of
// Endpoints with sequential cross-endpoint retry and a background probe
// scheduler.
type Pool struct {
	endpoints []*Endpoint
	cfg       Config
	logger    *zap.Logger
	limiter   *ProbeLimiter

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewPool constructs a Pool over the given endpoint URLs and weights. Each
// URL gets its own solanaTransport; tests substitute fakes via NewPoolWithEndpoints.
func NewPool(urls []string, weights []int, cfg Config, logger *zap.Logger) (*Pool, error) {
	if len(urls) == 0 {
		return nil, bundlerrors.New(bundlerrors.Config, "node pool requires at least one endpoint", nil)
	}
	endpoints := make([]*Endpoint, len(urls))
	for i, u := range urls {
		w := 1
		if i < len(weights) && weights[i] > 0 {
			w = weights[i]
		}
		endpoints[i] = NewEndpoint(u, w, newSolanaTransport(u), cfg.MinBackoff)
	}
	return NewPoolWithEndpoints(endpoints, cfg, logger), nil
}

// NewPoolWithEndpoints builds a Pool over pre-constructed endpoints, the
// seam tests use to inject fake transports.
func NewPoolWithEndpoints(endpoints []*Endpoint, cfg Config, logger *zap.Logger) *Pool {
	if cfg.MinBackoff == 0 {
		cfg.MinBackoff = 5 * time.Second
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 60 * time.Second
	}
	if cfg.ProbeInterval == 0 {
		cfg.ProbeInterval = 10 * time.Second
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 8 * time.Second
	}
	return &Pool{
		endpoints: endpoints,
		cfg:       cfg,
		logger:    logger,
		limiter:   NewProbeLimiter(cfg.ProbeInterval),
		rng:       rand.New(rand.NewSource(1)),
	}
}

// Snapshots returns the health of every endpoint in the pool, for
// diagnostics and tests.
func (p *Pool) Snapshots() []EndpointSnapshot {
	out := make([]EndpointSnapshot, len(p.endpoints))
	for i, e := range p.endpoints {
		out[i] = e.Snapshot()
	}
	return out
}

// dispatchable returns the endpoints eligible for ordinary request traffic:
// every Healthy endpoint, or, only when none are Healthy, every Degraded
// endpoint. Quarantined endpoints are never returned here, even past their
// release time — only the background probe scheduler (probeOnce) may
// dispatch to a Quarantined endpoint, per §4.1's "weighted reservoir over
// Healthy endpoints; Degraded used only when no Healthy remain; Quarantined
// skipped."
func (p *Pool) dispatchable() []*Endpoint {
	healthy := make([]*Endpoint, 0, len(p.endpoints))
	degraded := make([]*Endpoint, 0, len(p.endpoints))
	for _, e := range p.endpoints {
		switch e.State() {
		case Healthy:
			healthy = append(healthy, e)
		case Degraded:
			degraded = append(degraded, e)
		}
	}
	if len(healthy) > 0 {
		return healthy
	}
	return degraded
}

// selectWeighted runs a weighted-reservoir pick over the candidates, which
// dispatchable has already narrowed to a single health tier (Healthy, or
// Degraded when no Healthy endpoint remains), so no further per-state
// downweighting is needed here.
func (p *Pool) selectWeighted(candidates []*Endpoint) *Endpoint {
	if len(candidates) == 0 {
		return nil
	}
	p.rngMu.Lock()
	defer p.rngMu.Unlock()

	total := 0
	for _, e := range candidates {
		total += e.Weight
	}
	if total <= 0 {
		return candidates[p.rng.Intn(len(candidates))]
	}
	r := p.rng.Intn(total)
	acc := 0
	for _, e := range candidates {
		acc += e.Weight
		if r < acc {
			return e
		}
	}
	return candidates[len(candidates)-1]
}

// Dispatch runs fn against a selected endpoint, retrying across other
// dispatchable endpoints with exponential-jitter backoff on transient
// failure, per §4.1 "sequential cross-endpoint retry". A deterministic
// chain error is returned immediately without trying another endpoint
// (retrying would not change the outcome).
func (p *Pool) Dispatch(ctx context.Context, fn func(ctx context.Context, t Transport) error) error {
	tried := make(map[string]struct{})
	var lastErr error

	for attempt := 0; ; attempt++ {
		candidates := p.excludeTried(p.dispatchable(), tried)
		if len(candidates) == 0 {
			if lastErr != nil {
				return bundlerrors.New(bundlerrors.UpstreamExhausted, "no healthy endpoints remain", lastErr)
			}
			return bundlerrors.New(bundlerrors.UpstreamExhausted, "no healthy endpoints available", nil)
		}

		ep := p.selectWeighted(candidates)
		tried[ep.URL] = struct{}{}

		reqCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
		start := time.Now()
		err := fn(reqCtx, ep.Transport)
		cancel()

		if err == nil {
			ep.RecordSuccess(time.Since(start))
			return nil
		}

		if isDeterministicChain(err) || isAccountNotFound(err) {
			ep.RecordSuccess(time.Since(start)) // endpoint itself is healthy; the chain rejected the tx
			return err
		}

		ep.RecordFailure(time.Now(), p.cfg.MinBackoff, p.cfg.MaxBackoff)
		lastErr = err

		if !isTransient(err) {
			return bundlerrors.New(bundlerrors.UpstreamExhausted, "non-retryable transport error", err)
		}

		if ctx.Err() != nil {
			return bundlerrors.New(bundlerrors.Cancelled, "context cancelled during dispatch", ctx.Err())
		}

		p.logger.Warn("endpoint dispatch failed, retrying",
			zap.String("endpoint", ep.URL),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		select {
		case <-time.After(jitter(p.cfg.MinBackoff, attempt)):
		case <-ctx.Done():
			return bundlerrors.New(bundlerrors.Cancelled, "context cancelled during backoff", ctx.Err())
		}
	}
}

func (p *Pool) excludeTried(candidates []*Endpoint, tried map[string]struct{}) []*Endpoint {
	if len(tried) == 0 {
		return candidates
	}
	out := candidates[:0:0]
	for _, e := range candidates {
		if _, seen := tried[e.URL]; !seen {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		// every dispatchable endpoint has been tried this round; allow reuse
		// rather than failing fast, since retrying the same endpoint is
		// still better than giving up when it is the only one left.
		return candidates
	}
	return out
}

func jitter(base time.Duration, attempt int) time.Duration {
	backoff := base * time.Duration(1<<uint(attempt))
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff/2 + time.Duration(rand.Int63n(int64(backoff/2+1)))
}

// RunProbes starts the background probe scheduler, which periodically
// issues a lightweight health check (LatestReferenceHash) against each
// Quarantined endpoint whose release time has passed, promoting it back to
// Healthy on success. It blocks until ctx is cancelled.
func (p *Pool) RunProbes(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.ProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probeOnce(ctx)
		}
	}
}

func (p *Pool) probeOnce(ctx context.Context) {
	now := time.Now()
	for _, e := range p.endpoints {
		if e.State() != Quarantined || now.Before(e.QuarantineUntil()) {
			continue
		}
		if !p.limiter.Allow(e.URL) {
			continue
		}
		probeCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
		_, _, err := e.Transport.LatestReferenceHash(probeCtx, rpc.CommitmentProcessed)
		cancel()
		if err != nil {
			p.logger.Debug("probe failed", zap.String("endpoint", e.URL), zap.Error(err))
			e.RecordFailure(now, p.cfg.MinBackoff, p.cfg.MaxBackoff)
			continue
		}
		p.logger.Info("endpoint recovered", zap.String("endpoint", e.URL))
		e.RecordProbeSuccess()
	}
}
