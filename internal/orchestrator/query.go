package orchestrator

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/yourusername/solbundler/internal/bundler"
	"github.com/yourusername/solbundler/internal/bundlerrors"
	"github.com/yourusername/solbundler/internal/rpcpool"
)

// SimulationOutcome is one draft's result from the dry-run-only surface,
// per §6's `simulate(BundleRequest) → [SimulationOutcome]`.
type SimulationOutcome struct {
	DraftIndex          int
	Success             bool
	ComputeUnitEstimate uint32
	LandingProbability  float64
	FailureKind         string
	FailureDetail       string
}

// Simulate partitions req and dry-runs every draft without submitting
// anything, per §6.
func (s *Service) Simulate(ctx context.Context, req *bundler.BundleRequest) ([]SimulationOutcome, error) {
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

	out := make([]SimulationOutcome, len(drafts))
	for i, draft := range drafts {
		limit, result, failure := s.simulateDraft(ctx, draft, feePayer, req.Compute)
		if failure != nil {
			out[i] = SimulationOutcome{
				DraftIndex:    i,
				Success:       false,
				FailureKind:   failure.Kind,
				FailureDetail: failure.Detail,
			}
			continue
		}
		out[i] = SimulationOutcome{
			DraftIndex:          i,
			Success:             true,
			ComputeUnitEstimate: limit,
			LandingProbability:  result.LandingProbability,
		}
	}
	return out, nil
}

// StatusReport is the result of §6's `status(signature, verbose?) →
// StatusReport`.
type StatusReport struct {
	Signature solana.Signature
	Found     bool
	Status    bundler.OutcomeStatus
	Slot      uint64
	Err       string
}

// Status looks up the current on-chain status of a previously submitted
// signature via the Node Pool Client.
func (s *Service) Status(ctx context.Context, sig solana.Signature) (*StatusReport, error) {
	var statuses []*rpcpool.SignatureStatus
	err := s.pool.Dispatch(ctx, func(ctx context.Context, t rpcpool.Transport) error {
		var dispatchErr error
		statuses, dispatchErr = t.GetStatuses(ctx, []solana.Signature{sig})
		return dispatchErr
	})
	if err != nil {
		return nil, err
	}
	if len(statuses) == 0 || statuses[0] == nil {
		return &StatusReport{Signature: sig, Found: false}, nil
	}

	st := statuses[0]
	report := &StatusReport{Signature: sig, Found: true, Slot: st.Slot}
	switch {
	case st.Err != nil:
		report.Status = bundler.StatusFailed
	case st.ConfirmationStatus == "finalized":
		report.Status = bundler.StatusFinalized
	case st.ConfirmationStatus == "confirmed":
		report.Status = bundler.StatusConfirmed
	default:
		report.Status = bundler.StatusSubmitted
	}
	return report, nil
}

// HealthReport is the result of §6's `health(verbose?) → HealthReport`.
type HealthReport struct {
	Endpoints []rpcpool.EndpointSnapshot
}

// Health returns the current health snapshot of every pool endpoint.
func (s *Service) Health(verbose bool) *HealthReport {
	return &HealthReport{Endpoints: s.pool.Snapshots()}
}
