// Package solanatx is the single adapter isolating every construction of
// solana-go transaction, instruction, compute-budget and address-lookup-table
// types. No other package in this module imports solana-go's instruction
// builders directly; everything the orchestrator needs from the SDK goes
// through Adapter, per §9's explicit guidance to isolate ledger-SDK-specific
// auxiliary construction behind one seam so an SDK upgrade only touches this
// file.
package solanatx

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"

	"github.com/yourusername/solbundler/internal/bundler"
	"github.com/yourusername/solbundler/internal/bundlerrors"
)

// computeBudgetProgramID is ComputeBudget111111111111111111111111111111, the
// well-known native program that the SetComputeUnitLimit/SetComputeUnitPrice
// instructions below target.
var computeBudgetProgramID = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

const (
	computeBudgetInstructionSetLimit = 2
	computeBudgetInstructionSetPrice = 3
)

// Adapter builds solana.Transaction values from the bundler's chain-agnostic
// Instruction model.
type Adapter struct{}

func NewAdapter() *Adapter { return &Adapter{} }

// setComputeUnitLimitInstruction builds the ComputeBudget program's
// SetComputeUnitLimit instruction (discriminant 2, u32 LE units).
func setComputeUnitLimitInstruction(units uint32) solana.Instruction {
	data := make([]byte, 5)
	data[0] = computeBudgetInstructionSetLimit
	binary.LittleEndian.PutUint32(data[1:], units)
	return solana.NewInstruction(computeBudgetProgramID, solana.AccountMetaSlice{}, data)
}

// setComputeUnitPriceInstruction builds the ComputeBudget program's
// SetComputeUnitPrice instruction (discriminant 3, u64 LE micro-lamports).
func setComputeUnitPriceInstruction(microLamports uint64) solana.Instruction {
	data := make([]byte, 9)
	data[0] = computeBudgetInstructionSetPrice
	binary.LittleEndian.PutUint64(data[1:], microLamports)
	return solana.NewInstruction(computeBudgetProgramID, solana.AccountMetaSlice{}, data)
}

func toSolanaInstruction(ins bundler.Instruction) solana.Instruction {
	metas := make(solana.AccountMetaSlice, len(ins.Accounts))
	for i, a := range ins.Accounts {
		metas[i] = &solana.AccountMeta{
			PublicKey:  a.PublicKey,
			IsSigner:   a.Signer,
			IsWritable: a.Writable,
		}
	}
	return solana.NewInstruction(ins.ProgramID, metas, ins.Data)
}

// BuildTransaction assembles a fully-formed, unsigned transaction from a
// draft's instructions plus the compute-unit limit and priority-fee price
// the Fee Estimator produced, injecting the ComputeBudget instructions at
// the front per Solana convention (they must appear before any instruction
// that consumes the budget they set).
func (a *Adapter) BuildTransaction(feePayer solana.PublicKey, recentBlockhash solana.Hash, computeLimit uint32, computePrice uint64, instructions []bundler.Instruction) (*solana.Transaction, error) {
	if len(instructions) == 0 {
		return nil, bundlerrors.New(bundlerrors.Malformed, "cannot build a transaction with zero instructions", nil)
	}

	all := make([]solana.Instruction, 0, len(instructions)+2)
	all = append(all, setComputeUnitLimitInstruction(computeLimit))
	all = append(all, setComputeUnitPriceInstruction(computePrice))
	for _, ins := range instructions {
		all = append(all, toSolanaInstruction(ins))
	}

	tx, err := solana.NewTransaction(all, recentBlockhash, solana.TransactionPayer(feePayer))
	if err != nil {
		return nil, bundlerrors.New(bundlerrors.Malformed, "failed to assemble transaction", err)
	}
	return tx, nil
}

// EstimateSerializedSize returns the wire size of tx as solana-go would
// marshal it, used by the orchestrator's pre-flight simulation step so the
// Simulator can reject a payload over the transport's maximum packet size
// (§4.3 edge case: oversize payload).
func (a *Adapter) EstimateSerializedSize(tx *solana.Transaction) (int, error) {
	data, err := tx.MarshalBinary()
	if err != nil {
		return 0, bundlerrors.New(bundlerrors.Malformed, "failed to estimate transaction size", err)
	}
	return len(data), nil
}
