package orchestrator

import (
	"github.com/gagliardetto/solana-go"

	"github.com/yourusername/solbundler/internal/bundler"
	"github.com/yourusername/solbundler/internal/bundlerrors"
)

// transactionBaseOverhead approximates the fixed cost of a transaction's
// signature section and message header, independent of its instructions.
const transactionBaseOverhead = 64

// instructionSizeEstimate approximates an instruction's contribution to a
// transaction's serialized size: one account-meta entry per account
// reference plus its data bytes.
func instructionSizeEstimate(ins bundler.Instruction) int {
	return 32 + len(ins.Accounts)*33 + len(ins.Data) + 8
}

// instructionComputeEstimate is a packing-time compute-unit heuristic used
// before any real simulation result exists, so the partitioner can bound
// how many instructions it places in one draft. The Simulator's dry-run
// estimate is authoritative once available; this only constrains packing.
func instructionComputeEstimate(ins bundler.Instruction) int {
	return 1000 + len(ins.Data)*5
}

// Partition implements the packing algorithm of §4.4: a single draft for an
// atomic bundle (failing Malformed rather than splitting), or a greedy pack
// for a best-effort bundle honoring the size cap, the writable-account
// disjointness invariant, and the per-transaction compute-unit cap, with
// ties broken by instruction order.
func Partition(req *bundler.BundleRequest, maxSizeBytes, maxComputeUnits int) ([]*bundler.TransactionDraft, error) {
	if req.Atomic {
		size := transactionBaseOverhead
		cu := 0
		for _, ins := range req.Instructions {
			size += instructionSizeEstimate(ins)
			cu += instructionComputeEstimate(ins)
		}
		if maxSizeBytes > 0 && size > maxSizeBytes {
			return nil, bundlerrors.New(bundlerrors.Malformed, "atomic bundle exceeds max transaction size", nil)
		}
		if maxComputeUnits > 0 && cu > maxComputeUnits {
			return nil, bundlerrors.New(bundlerrors.Malformed, "atomic bundle exceeds per-transaction compute unit cap", nil)
		}
		return []*bundler.TransactionDraft{{
			Index:        0,
			Instructions: req.Instructions,
			State:        bundler.DraftNew,
		}}, nil
	}

	var drafts []*bundler.TransactionDraft
	var cur []bundler.Instruction
	curSize := transactionBaseOverhead
	curCU := 0
	curWritable := make(map[solana.PublicKey]struct{})

	flush := func() {
		if len(cur) == 0 {
			return
		}
		drafts = append(drafts, &bundler.TransactionDraft{
			Index:        len(drafts),
			Instructions: cur,
			State:        bundler.DraftNew,
		})
		cur = nil
		curSize = transactionBaseOverhead
		curCU = 0
		curWritable = make(map[solana.PublicKey]struct{})
	}

	for _, ins := range req.Instructions {
		if maxSizeBytes > 0 && transactionBaseOverhead+instructionSizeEstimate(ins) > maxSizeBytes {
			return nil, bundlerrors.New(bundlerrors.Malformed, "single instruction exceeds max transaction size", nil)
		}

		size := instructionSizeEstimate(ins)
		cu := instructionComputeEstimate(ins)

		conflicts := false
		for _, a := range ins.WritableAccounts() {
			if _, ok := curWritable[a]; ok {
				conflicts = true
				break
			}
		}
		fitsSize := maxSizeBytes == 0 || curSize+size <= maxSizeBytes
		fitsCU := maxComputeUnits == 0 || curCU+cu <= maxComputeUnits

		if len(cur) > 0 && (conflicts || !fitsSize || !fitsCU) {
			flush()
		}

		cur = append(cur, ins)
		curSize += size
		curCU += cu
		for _, a := range ins.WritableAccounts() {
			curWritable[a] = struct{}{}
		}
	}
	flush()

	return drafts, nil
}
