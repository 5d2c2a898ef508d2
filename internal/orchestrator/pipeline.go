package orchestrator

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/yourusername/solbundler/internal/bundler"
	"github.com/yourusername/solbundler/internal/bundlerrors"
	"github.com/yourusername/solbundler/internal/fee"
	"github.com/yourusername/solbundler/internal/rpcpool"
)

// driveDraft runs one TransactionDraft through the submission loop of §4.4:
// simulate, price, sign, submit, poll, confirm/finalize, bumping the price
// and retrying on transient failure up to MaxAttempts.
func (s *Service) driveDraft(ctx context.Context, draft *bundler.TransactionDraft, feePayer solana.PublicKey, policy bundler.ComputePolicy, signers []solana.PublicKey, timing *timingAccumulator) bundler.TransactionOutcome {
	outcome := bundler.TransactionOutcome{Status: bundler.StatusPending}
	tier := fee.Tier(policy.Tier)

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		draft.Attempts = attempt
		outcome.Attempts = attempt

		if ctx.Err() != nil {
			draft.State = bundler.DraftCancelled
			outcome.Status = bundler.StatusDropped
			outcome.FailureKind = string(bundlerrors.Cancelled)
			outcome.FailureDetail = context.Cause(ctx).Error()
			return outcome
		}

		if attempt == 1 || s.cfg.ResimulateOnBump {
			simStart := time.Now()
			limit, simResult, failure := s.simulateDraft(ctx, draft, feePayer, policy)
			timing.addSimulate(time.Since(simStart))
			if failure != nil {
				if !failure.Retryable {
					draft.State = bundler.DraftFailed
					outcome.Status = bundler.StatusFailed
					outcome.FailureKind = failure.Kind
					outcome.FailureDetail = failure.Detail
					outcome.Logs = failure.Logs
					return outcome
				}
				continue
			}
			draft.State = bundler.DraftSimulated
			draft.ComputeLimit = limit
			outcome.ComputeConsumed = uint64(simResult.ComputeUnitEstimate)
			outcome.Logs = simResult.Logs
		}

		var price uint64
		if attempt == 1 {
			if policy.Price.Auto {
				accounts := writableAccountSlice(draft)
				// A failed refresh leaves the existing sample window in place.
				_ = s.estimator.Ingest(ctx, accounts)
				price = s.estimator.EstimateInitial(accounts, tier, policy.MaxPrice)
			} else {
				price = policy.Price.Value
			}
		} else {
			bumped, err := s.estimator.EstimateBump(draft.CurrentPrice(), policy.MaxPrice)
			if err != nil {
				draft.State = bundler.DraftFailed
				outcome.Status = bundler.StatusFailed
				outcome.FailureKind = string(bundlerrors.KindOf(err))
				outcome.FailureDetail = err.Error()
				return outcome
			}
			price = bumped
		}
		draft.PriceHistory = append(draft.PriceHistory, price)
		draft.State = bundler.DraftPriced

		signStart := time.Now()
		tx, refHash, err := s.buildAndSign(ctx, draft, feePayer, price, signers)
		timing.addSign(time.Since(signStart))
		if err != nil {
			if be, ok := err.(*bundlerrors.Error); ok && !be.Retryable() {
				draft.State = bundler.DraftFailed
				outcome.Status = bundler.StatusFailed
				outcome.FailureKind = string(be.Kind)
				outcome.FailureDetail = be.Message
				return outcome
			}
			continue
		}
		draft.ReferenceHash = refHash
		draft.State = bundler.DraftSigned

		submitStart := time.Now()
		sig, err := s.submit(ctx, tx)
		timing.addSubmit(time.Since(submitStart))
		if err != nil {
			be, ok := err.(*bundlerrors.Error)
			if !ok || !be.Retryable() {
				draft.State = bundler.DraftFailed
				outcome.Status = bundler.StatusFailed
				outcome.FailureKind = string(bundlerrors.KindOf(err))
				outcome.FailureDetail = err.Error()
				return outcome
			}
			continue
		}
		outcome.Signature = sig
		outcome.HasSignature = true
		outcome.Status = bundler.StatusSubmitted
		draft.State = bundler.DraftSubmitted

		confirmStart := time.Now()
		status, expired, chainErr := s.pollUntilConfirmedOrExpiry(ctx, sig)
		timing.addConfirm(time.Since(confirmStart))

		if chainErr != nil {
			if bundlerrors.Is(chainErr, bundlerrors.Cancelled) {
				draft.State = bundler.DraftCancelled
				outcome.Status = bundler.StatusDropped
			} else {
				draft.State = bundler.DraftFailed
				outcome.Status = bundler.StatusFailed
			}
			outcome.FailureKind = string(bundlerrors.KindOf(chainErr))
			outcome.FailureDetail = chainErr.Error()
			return outcome
		}
		if expired {
			draft.State = bundler.DraftBumped
			continue
		}

		outcome.Status = bundler.StatusConfirmed
		outcome.Slot = status.Slot
		draft.State = bundler.DraftConfirmed

		if finalStatus, finalized := s.waitForFinalized(ctx, sig); finalized {
			outcome.Status = bundler.StatusFinalized
			outcome.Slot = finalStatus.Slot
			draft.State = bundler.DraftFinalized
		}
		return outcome
	}

	draft.State = bundler.DraftFailed
	outcome.Status = bundler.StatusFailed
	outcome.FailureKind = string(bundlerrors.UpstreamExhausted)
	outcome.FailureDetail = "max attempts exhausted"
	return outcome
}

// simulateDraft runs the pre-flight simulator for draft and returns the
// compute-unit limit to use (the caller's explicit value, or the
// simulator's buffered estimate when the policy asks for auto).
func (s *Service) simulateDraft(ctx context.Context, draft *bundler.TransactionDraft, feePayer solana.PublicKey, policy bundler.ComputePolicy) (uint32, *simulateResult, *simulateFailure) {
	placeholderLimit := uint32(200000)
	if !policy.Limit.Auto {
		placeholderLimit = policy.Limit.Value
	}
	tx, err := s.adapter.BuildTransaction(feePayer, solana.Hash{}, placeholderLimit, 0, draft.Instructions)
	if err != nil {
		return 0, nil, &simulateFailure{Kind: string(bundlerrors.Malformed), Detail: err.Error()}
	}
	size, _ := s.adapter.EstimateSerializedSize(tx)

	result, failure := s.simulator.Simulate(ctx, draft.Instructions, tx, size)
	if failure != nil {
		return 0, nil, &simulateFailure{
			Kind:      string(failure.Kind),
			Detail:    failure.Detail,
			Logs:      failure.Logs,
			Retryable: failure.Kind.Retryable(),
		}
	}

	limit := placeholderLimit
	if policy.Limit.Auto {
		limit = result.ComputeUnitEstimate
	}
	return limit, &simulateResult{
		ComputeUnitEstimate: result.ComputeUnitEstimate,
		LandingProbability:  result.LandingProbability,
		Logs:                result.Logs,
	}, nil
}

// simulateResult and simulateFailure are the pipeline's narrowed view of
// simulate.Result/FailureResult.
type simulateResult struct {
	ComputeUnitEstimate uint32
	LandingProbability  float64
	Logs                []string
}

type simulateFailure struct {
	Kind      string
	Detail    string
	Logs      []string
	Retryable bool
}

// writableAccountSlice returns a draft's writable accounts in ascending byte
// order, so the fee window fingerprint and the per-account lock order are
// the same on every call.
func writableAccountSlice(draft *bundler.TransactionDraft) []solana.PublicKey {
	set := draft.WritableAccounts()
	out := make([]solana.PublicKey, 0, len(set))
	for pk := range set {
		out = append(out, pk)
	}
	sort.Slice(out, func(a, b int) bool { return bytes.Compare(out[a][:], out[b][:]) < 0 })
	return out
}

// buildAndSign fetches a fresh reference hash, builds the transaction with
// the given compute price, and signs it via the Signing Gateway.
func (s *Service) buildAndSign(ctx context.Context, draft *bundler.TransactionDraft, feePayer solana.PublicKey, price uint64, signers []solana.PublicKey) (*solana.Transaction, solana.Hash, error) {
	var refHash solana.Hash
	err := s.pool.Dispatch(ctx, func(ctx context.Context, t rpcpool.Transport) error {
		h, _, err := t.LatestReferenceHash(ctx, rpc.CommitmentConfirmed)
		refHash = h
		return err
	})
	if err != nil {
		return nil, solana.Hash{}, err
	}

	tx, err := s.adapter.BuildTransaction(feePayer, refHash, draft.ComputeLimit, price, draft.Instructions)
	if err != nil {
		return nil, solana.Hash{}, err
	}

	messageBytes, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, solana.Hash{}, bundlerrors.New(bundlerrors.Malformed, "failed to marshal transaction message", err)
	}

	sigs, err := s.gateway.Sign(ctx, messageBytes, signers)
	if err != nil {
		return nil, solana.Hash{}, err
	}
	if len(sigs) != len(signers) {
		return nil, solana.Hash{}, bundlerrors.New(bundlerrors.Signing, "signing gateway returned a mismatched signature count", nil)
	}
	for i, sig := range sigs {
		tx.Signatures[i] = sig
	}

	return tx, refHash, nil
}

// submit dispatches tx through the Node Pool Client.
func (s *Service) submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	var sig solana.Signature
	err := s.pool.Dispatch(ctx, func(ctx context.Context, t rpcpool.Transport) error {
		var dispatchErr error
		sig, dispatchErr = t.SendRaw(ctx, tx, rpc.CommitmentConfirmed)
		return dispatchErr
	})
	if err != nil {
		return solana.Signature{}, err
	}
	return sig, nil
}

// pollUntilConfirmedOrExpiry polls signature statuses at the configured
// interval until a confirmed status, a deterministic chain error, or the
// reference hash's expiry (reported as expired=true so the caller bumps).
func (s *Service) pollUntilConfirmedOrExpiry(ctx context.Context, sig solana.Signature) (*rpcpool.SignatureStatus, bool, error) {
	deadline := time.Now().Add(s.blockhashValidityWindow())
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, false, bundlerrors.New(bundlerrors.Cancelled, "context cancelled while polling for confirmation", context.Cause(ctx))
		case <-ticker.C:
		}

		var statuses []*rpcpool.SignatureStatus
		err := s.pool.Dispatch(ctx, func(ctx context.Context, t rpcpool.Transport) error {
			var dispatchErr error
			statuses, dispatchErr = t.GetStatuses(ctx, []solana.Signature{sig})
			return dispatchErr
		})
		if err != nil {
			if time.Now().After(deadline) {
				return nil, true, nil
			}
			continue
		}

		if len(statuses) > 0 && statuses[0] != nil {
			st := statuses[0]
			if st.Err != nil {
				return nil, false, bundlerrors.New(bundlerrors.Chain, "transaction rejected on-chain", nil)
			}
			if st.ConfirmationStatus == "confirmed" || st.ConfirmationStatus == "finalized" {
				return st, false, nil
			}
		}

		if time.Now().After(deadline) {
			return nil, true, nil
		}
	}
}

// waitForFinalized polls up to ConfirmDeadline for a finalized status,
// returning finalized=false (not an error) if the deadline elapses first,
// per §4.4 "reported as Confirmed and the caller decides".
func (s *Service) waitForFinalized(ctx context.Context, sig solana.Signature) (*rpcpool.SignatureStatus, bool) {
	deadline := time.Now().Add(s.cfg.ConfirmDeadline)
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, false
		case <-ticker.C:
		}

		var statuses []*rpcpool.SignatureStatus
		err := s.pool.Dispatch(ctx, func(ctx context.Context, t rpcpool.Transport) error {
			var dispatchErr error
			statuses, dispatchErr = t.GetStatuses(ctx, []solana.Signature{sig})
			return dispatchErr
		})
		if err == nil && len(statuses) > 0 && statuses[0] != nil && statuses[0].ConfirmationStatus == "finalized" {
			return statuses[0], true
		}
		if time.Now().After(deadline) {
			return nil, false
		}
	}
}

func (s *Service) blockhashValidityWindow() time.Duration {
	return s.cfg.BlockhashValidity
}
