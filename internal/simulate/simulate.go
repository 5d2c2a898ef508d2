// Package simulate implements the Simulator of §4.3: whitelist
// enforcement, a Node Pool Client dry-run, and cost/landing-probability
// estimation, classifying every simulation failure into the seven buckets
// §4.3 requires.
package simulate

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/yourusername/solbundler/internal/bundler"
	"github.com/yourusername/solbundler/internal/bundlerrors"
	"github.com/yourusername/solbundler/internal/rpcpool"
)

// Kind is the simulator's seven-way outcome classification.
type Kind string

const (
	KindOK                 Kind = "OK"
	KindWhitelistViolation Kind = "WhitelistViolation"
	KindInsufficientFunds  Kind = "InsufficientFunds"
	KindAccountNotFound    Kind = "AccountNotFound"
	KindSlippageLike       Kind = "SlippageLike"
	KindProgramLogic       Kind = "ProgramLogic"
	KindMalformed          Kind = "Malformed"
	KindUpstreamUnavailable Kind = "UpstreamUnavailable"
)

// Retryable reports whether the orchestrator may retry a simulation
// failure of this kind, per §4.3: SlippageLike and UpstreamUnavailable are
// retryable; WhitelistViolation/InsufficientFunds/AccountNotFound are not;
// ProgramLogic is surfaced; Malformed is a programming error.
func (k Kind) Retryable() bool {
	return k == KindSlippageLike || k == KindUpstreamUnavailable
}

// MalformedSubCode distinguishes the two Malformed edge cases so the
// orchestrator can tell "nothing to simulate" from "needs re-partitioning".
type MalformedSubCode string

const (
	SubCodeEmpty     MalformedSubCode = "EmptyInstructions"
	SubCodeTooLarge  MalformedSubCode = "ExceedsMaxSize"
)

// Result is the simulator's successful output: a compute-unit estimate
// with safety buffer applied, plus a coarse landing-probability score.
type Result struct {
	ComputeUnitEstimate uint32
	LandingProbability  float64
	Logs                []string
}

// FailureResult is the simulator's classified-failure output.
type FailureResult struct {
	Kind          Kind
	SubCode       MalformedSubCode
	Detail        string
	Logs          []string
}

// Config holds the `security.*` and simulator tuning knobs of §6.
type Config struct {
	ProgramWhitelist map[solana.PublicKey]struct{}
	AccountWhitelist map[solana.PublicKey]struct{} // nil/empty means unrestricted
	SafetyBuffer     float64                        // default 0.15
	MaxPayloadBytes  int                            // default 1232 (Solana's wire limit)
}

func (c Config) withDefaults() Config {
	if c.SafetyBuffer == 0 {
		c.SafetyBuffer = 0.15
	}
	if c.MaxPayloadBytes == 0 {
		c.MaxPayloadBytes = 1232
	}
	return c
}

// Source is the subset of the Node Pool Client the simulator dry-runs
// through.
type Source interface {
	Dispatch(ctx context.Context, fn func(ctx context.Context, t rpcpool.Transport) error) error
}

// Simulator is the pre-flight validator and dry-run driver of §4.3.
type Simulator struct {
	cfg    Config
	source Source
}

func NewSimulator(cfg Config, source Source) *Simulator {
	cfg = cfg.withDefaults()
	return &Simulator{cfg: cfg, source: source}
}

// CheckWhitelist enforces §4.3 steps (a)/(b) without touching the network,
// so the orchestrator can reject obviously-invalid drafts before spending a
// dry-run.
func (s *Simulator) CheckWhitelist(instructions []bundler.Instruction) *FailureResult {
	for _, ins := range instructions {
		if len(s.cfg.ProgramWhitelist) > 0 {
			if _, ok := s.cfg.ProgramWhitelist[ins.ProgramID]; !ok {
				return &FailureResult{
					Kind:   KindWhitelistViolation,
					Detail: "program " + ins.ProgramID.String() + " is not in the whitelist",
				}
			}
		}
		if len(s.cfg.AccountWhitelist) > 0 {
			for _, a := range ins.Accounts {
				if _, ok := s.cfg.AccountWhitelist[a.PublicKey]; !ok {
					return &FailureResult{
						Kind:   KindWhitelistViolation,
						Detail: "account " + a.PublicKey.String() + " is not in the whitelist",
					}
				}
			}
		}
	}
	return nil
}

// Simulate runs the full §4.3 contract: whitelist check, size check,
// dry-run, and classification. payloadSize is the post-signing estimate of
// the serialized transaction in bytes.
func (s *Simulator) Simulate(ctx context.Context, instructions []bundler.Instruction, tx *solana.Transaction, payloadSize int) (*Result, *FailureResult) {
	if len(instructions) == 0 {
		return nil, &FailureResult{Kind: KindMalformed, SubCode: SubCodeEmpty, Detail: "no instructions to simulate"}
	}
	if payloadSize > s.cfg.MaxPayloadBytes {
		return nil, &FailureResult{Kind: KindMalformed, SubCode: SubCodeTooLarge, Detail: fmt.Sprintf("payload %d bytes exceeds max %d", payloadSize, s.cfg.MaxPayloadBytes)}
	}
	if fr := s.CheckWhitelist(instructions); fr != nil {
		return nil, fr
	}

	var simResult *rpcpool.SimulationResult
	err := s.source.Dispatch(ctx, func(ctx context.Context, t rpcpool.Transport) error {
		var dispatchErr error
		simResult, dispatchErr = t.Simulate(ctx, tx)
		return dispatchErr
	})
	if err != nil {
		return nil, &FailureResult{Kind: KindUpstreamUnavailable, Detail: err.Error()}
	}

	if !simResult.Success {
		return nil, classifyFailure(simResult)
	}

	buffered := math.Ceil(float64(simResult.UnitsConsumed) * (1 + s.cfg.SafetyBuffer))
	return &Result{
		ComputeUnitEstimate: uint32(buffered),
		LandingProbability:  landingProbability(simResult.Logs),
		Logs:                simResult.Logs,
	}, nil
}

func classifyFailure(sim *rpcpool.SimulationResult) *FailureResult {
	msg := strings.ToLower(fmt.Sprintf("%v", sim.Err))
	fr := &FailureResult{Logs: sim.Logs, Detail: fmt.Sprintf("%v", sim.Err)}

	switch {
	case strings.Contains(msg, "insufficient funds"), strings.Contains(msg, "insufficient lamports"):
		fr.Kind = KindInsufficientFunds
	case strings.Contains(msg, "account not found"), strings.Contains(msg, "accountnotfound"), strings.Contains(msg, "could not find account"):
		fr.Kind = KindAccountNotFound
	case strings.Contains(msg, "slippage"), strings.Contains(msg, "stale"), strings.Contains(msg, "price moved"):
		fr.Kind = KindSlippageLike
	case strings.Contains(msg, "custom program error"), strings.Contains(msg, "instruction error"):
		fr.Kind = KindProgramLogic
	default:
		fr.Kind = KindProgramLogic
	}
	return fr
}

// landingProbability is a coarse score derived from the absence of known
// error markers in the simulation logs, per §4.3.
func landingProbability(logs []string) float64 {
	for _, l := range logs {
		lower := strings.ToLower(l)
		if strings.Contains(lower, "error") || strings.Contains(lower, "failed") {
			return 0.5
		}
	}
	return 0.95
}

// ToBundlerError maps a FailureResult onto the core's error taxonomy for
// callers outside this package that only want a *bundlerrors.Error.
func (fr *FailureResult) ToBundlerError() *bundlerrors.Error {
	switch fr.Kind {
	case KindWhitelistViolation:
		return bundlerrors.New(bundlerrors.WhitelistViolation, fr.Detail, nil)
	case KindMalformed:
		return bundlerrors.New(bundlerrors.Malformed, string(fr.SubCode)+": "+fr.Detail, nil)
	case KindSlippageLike, KindUpstreamUnavailable:
		return bundlerrors.NewRetryable(fr.Detail, 0, nil)
	case KindAccountNotFound, KindInsufficientFunds:
		return bundlerrors.New(bundlerrors.Chain, fr.Detail, nil)
	default:
		return bundlerrors.New(bundlerrors.Chain, fr.Detail, nil)
	}
}
