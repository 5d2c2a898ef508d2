package rpcpool

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Transport is the set of node operations the pool dispatches, matching
// §4.1 of SPEC_FULL.md. A solanaTransport wraps one *rpc.Client (from
// gagliardetto/solana-go, the domain RPC SDK); the pool itself never speaks
// HTTP directly, delegating marshaling to the SDK client while owning
// failover itself.
type Transport interface {
	LatestReferenceHash(ctx context.Context, commitment rpc.CommitmentType) (solana.Hash, uint64, error)
	SendRaw(ctx context.Context, tx *solana.Transaction, commitment rpc.CommitmentType) (solana.Signature, error)
	GetStatuses(ctx context.Context, sigs []solana.Signature) ([]*SignatureStatus, error)
	Simulate(ctx context.Context, tx *solana.Transaction) (*SimulationResult, error)
	GetRecentFeeSamples(ctx context.Context, writableAccounts []solana.PublicKey) ([]FeeSample, error)
	GetAccount(ctx context.Context, addr solana.PublicKey) ([]byte, bool, error)
}

// SignatureStatus is the pool's transport-agnostic projection of a
// getSignatureStatuses entry.
type SignatureStatus struct {
	Slot               uint64
	Confirmations      *uint64
	ConfirmationStatus string // "processed" | "confirmed" | "finalized" | ""
	Err                any
}

// SimulationResult is the pool's transport-agnostic projection of a
// simulateTransaction response.
type SimulationResult struct {
	Success      bool
	UnitsConsumed uint64
	Logs          []string
	Err           any
}

// FeeSample is one priority-fee observation for a given slot.
type FeeSample struct {
	Slot  uint64
	Price uint64
}

// solanaTransport is the default Transport implementation, backed by
// gagliardetto/solana-go's JSON-RPC client.
type solanaTransport struct {
	client *rpc.Client
}

func newSolanaTransport(endpointURL string) *solanaTransport {
	return &solanaTransport{client: rpc.New(endpointURL)}
}

func (t *solanaTransport) LatestReferenceHash(ctx context.Context, commitment rpc.CommitmentType) (solana.Hash, uint64, error) {
	out, err := t.client.GetLatestBlockhash(ctx, commitment)
	if err != nil {
		return solana.Hash{}, 0, classifyErr(err)
	}
	return out.Value.Blockhash, out.Value.LastValidBlockHeight, nil
}

func (t *solanaTransport) SendRaw(ctx context.Context, tx *solana.Transaction, commitment rpc.CommitmentType) (solana.Signature, error) {
	sig, err := t.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       true,
		PreflightCommitment: commitment,
	})
	if err != nil {
		return solana.Signature{}, classifyErr(err)
	}
	return sig, nil
}

func (t *solanaTransport) GetStatuses(ctx context.Context, sigs []solana.Signature) ([]*SignatureStatus, error) {
	res, err := t.client.GetSignatureStatuses(ctx, true, sigs...)
	if err != nil {
		return nil, classifyErr(err)
	}
	out := make([]*SignatureStatus, len(res.Value))
	for i, v := range res.Value {
		if v == nil {
			continue
		}
		out[i] = &SignatureStatus{
			Slot:               v.Slot,
			Confirmations:      v.Confirmations,
			ConfirmationStatus: string(v.ConfirmationStatus),
			Err:                v.Err,
		}
	}
	return out, nil
}

func (t *solanaTransport) Simulate(ctx context.Context, tx *solana.Transaction) (*SimulationResult, error) {
	commitment := rpc.CommitmentProcessed
	res, err := t.client.SimulateTransactionWithOpts(ctx, tx, &rpc.SimulateTransactionOpts{
		SigVerify:  false,
		Commitment: commitment,
	})
	if err != nil {
		return nil, classifyErr(err)
	}
	result := &SimulationResult{
		Success: res.Value.Err == nil,
		Logs:    res.Value.Logs,
		Err:     res.Value.Err,
	}
	if res.Value.UnitsConsumed != nil {
		result.UnitsConsumed = *res.Value.UnitsConsumed
	}
	return result, nil
}

func (t *solanaTransport) GetRecentFeeSamples(ctx context.Context, writableAccounts []solana.PublicKey) ([]FeeSample, error) {
	out, err := t.client.GetRecentPrioritizationFees(ctx, writableAccounts)
	if err != nil {
		return nil, classifyErr(err)
	}
	samples := make([]FeeSample, len(out))
	for i, f := range out {
		samples[i] = FeeSample{Slot: f.Slot, Price: f.PrioritizationFee}
	}
	return samples, nil
}

func (t *solanaTransport) GetAccount(ctx context.Context, addr solana.PublicKey) ([]byte, bool, error) {
	res, err := t.client.GetAccountInfo(ctx, addr)
	if err != nil {
		if isAccountNotFound(err) {
			return nil, false, nil
		}
		return nil, false, classifyErr(err)
	}
	if res == nil || res.Value == nil {
		return nil, false, nil
	}
	return res.Value.Data.GetBinary(), true, nil
}

var _ Transport = (*solanaTransport)(nil)
