// Package bundler holds the data model shared by every submission-pipeline
// component: requests, instructions, drafts, outcomes and results.
package bundler

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// BundleRequest is immutable after Submit is called on it.
type BundleRequest struct {
	ID                string
	Atomic            bool
	Compute           ComputePolicy
	Instructions      []Instruction
	LookupTableIDs    []solana.PublicKey
	AdditionalSigners []solana.PublicKey
	Metadata          map[string]string
}

// ComputePolicy describes the caller's compute-unit and price preferences.
type ComputePolicy struct {
	Limit    ComputeLimit
	Price    ComputePrice
	MaxPrice uint64
	Tier     PriorityTier
}

// PriorityTier is the caller's priority tier, passed through to the Fee
// Estimator's tier multiplier.
type PriorityTier string

const (
	TierLow    PriorityTier = "low"
	TierNormal PriorityTier = "normal"
	TierHigh   PriorityTier = "high"
	TierUrgent PriorityTier = "urgent"
)

// ComputeLimit is either "auto" (Auto=true) or an explicit CU limit.
type ComputeLimit struct {
	Auto  bool
	Value uint32
}

// ComputePrice is either "auto" (Auto=true) or an explicit micro-lamports price.
type ComputePrice struct {
	Auto  bool
	Value uint64
}

// AccountRef is one account reference within an Instruction.
type AccountRef struct {
	PublicKey solana.PublicKey
	Signer    bool
	Writable  bool
}

// Instruction is a chain-agnostic-in-shape, Solana-specific-in-content
// instruction: a program target, its ordered account references, and data.
type Instruction struct {
	ProgramID solana.PublicKey
	Accounts  []AccountRef
	Data      []byte
}

// WritableAccounts returns the set of accounts this instruction marks writable.
func (i Instruction) WritableAccounts() []solana.PublicKey {
	out := make([]solana.PublicKey, 0, len(i.Accounts))
	for _, a := range i.Accounts {
		if a.Writable {
			out = append(out, a.PublicKey)
		}
	}
	return out
}

// Signers returns the set of accounts this instruction marks as signers.
func (i Instruction) Signers() []solana.PublicKey {
	out := make([]solana.PublicKey, 0)
	for _, a := range i.Accounts {
		if a.Signer {
			out = append(out, a.PublicKey)
		}
	}
	return out
}

// DraftState is the per-draft lifecycle state of §4.4.
type DraftState string

const (
	DraftNew        DraftState = "New"
	DraftSimulated  DraftState = "Simulated"
	DraftPriced     DraftState = "Priced"
	DraftSigned     DraftState = "Signed"
	DraftSubmitted  DraftState = "Submitted"
	DraftBumped     DraftState = "Bumped"
	DraftConfirmed  DraftState = "Confirmed"
	DraftFinalized  DraftState = "Finalized"
	DraftFailed     DraftState = "Failed"
	DraftDropped    DraftState = "Dropped"
	DraftCancelled  DraftState = "Cancelled"
)

// Terminal reports whether a DraftState has no further progress.
func (s DraftState) Terminal() bool {
	switch s {
	case DraftFinalized, DraftFailed, DraftDropped, DraftCancelled:
		return true
	default:
		return false
	}
}

// TransactionDraft is one network-level transaction produced from part or
// all of a bundle. Its PriceHistory strictly increases across bumps and
// never exceeds the bundle's ComputePolicy.MaxPrice (invariant §3.2).
type TransactionDraft struct {
	Index          int
	Instructions   []Instruction
	State          DraftState
	ComputeLimit   uint32
	PriceHistory   []uint64
	ReferenceHash  solana.Hash
	Signers        []solana.PublicKey
	Attempts       int
	Outcome        TransactionOutcome
}

// CurrentPrice returns the most recent priced attempt, or 0 if unpriced.
func (d *TransactionDraft) CurrentPrice() uint64 {
	if len(d.PriceHistory) == 0 {
		return 0
	}
	return d.PriceHistory[len(d.PriceHistory)-1]
}

// WritableAccounts returns the union of writable accounts across a draft's
// instructions, used to enforce invariant §3.5 during parallel scheduling.
func (d *TransactionDraft) WritableAccounts() map[solana.PublicKey]struct{} {
	out := make(map[solana.PublicKey]struct{})
	for _, ins := range d.Instructions {
		for _, a := range ins.WritableAccounts() {
			out[a] = struct{}{}
		}
	}
	return out
}

// OutcomeStatus is the terminal or in-flight status of a TransactionOutcome.
type OutcomeStatus string

const (
	StatusPending   OutcomeStatus = "Pending"
	StatusSubmitted OutcomeStatus = "Submitted"
	StatusConfirmed OutcomeStatus = "Confirmed"
	StatusFinalized OutcomeStatus = "Finalized"
	StatusFailed    OutcomeStatus = "Failed"
	StatusDropped   OutcomeStatus = "Dropped"
)

// TransactionOutcome is the result of driving one TransactionDraft through
// the submission pipeline.
type TransactionOutcome struct {
	Signature       solana.Signature
	HasSignature    bool
	Status          OutcomeStatus
	Slot            uint64
	FailureKind     string
	FailureDetail   string
	ComputeConsumed uint64
	FeePaid         uint64
	Logs            []string
	Attempts        int
}

// AggregateStatus is the BundleResult-level status of §3.
type AggregateStatus string

const (
	AggregateSuccess AggregateStatus = "Success"
	AggregatePartial AggregateStatus = "Partial"
	AggregateFailed  AggregateStatus = "Failed"
)

// TimingBreakdown holds per-stage millisecond latencies for one bundle.
type TimingBreakdown struct {
	SimulateMs int64
	SignMs     int64
	SubmitMs   int64
	ConfirmMs  int64
	TotalMs    int64
}

// BundleResult is the terminal record of one BundleRequest's execution.
type BundleResult struct {
	RequestID       string
	Status          AggregateStatus
	Outcomes        []TransactionOutcome
	Timing          TimingBreakdown
	EndpointsUsed   []string
	RetryCount      int
	CompletedAt     time.Time
}
