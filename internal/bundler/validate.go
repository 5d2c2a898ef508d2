package bundler

import (
	"github.com/gagliardetto/solana-go"

	"github.com/yourusername/solbundler/internal/bundlerrors"
)

// Validate checks the structural invariants of §3 that must hold before a
// BundleRequest is accepted for submission:
//   - at least one signer across the whole request
//   - the fee payer (the first signer in instruction order, see FeePayer) is a signer
//   - every instruction carries non-empty data
func (r *BundleRequest) Validate() error {
	if len(r.Instructions) == 0 {
		return bundlerrors.New(bundlerrors.Malformed, "bundle has no instructions", nil)
	}

	sawSigner := false
	for idx, ins := range r.Instructions {
		if len(ins.Data) == 0 {
			return bundlerrors.New(bundlerrors.Malformed,
				"instruction has empty data", nil)
		}
		if len(ins.Accounts) == 0 {
			return bundlerrors.New(bundlerrors.Malformed,
				"instruction has no account references", nil)
		}
		if len(ins.Signers()) > 0 {
			sawSigner = true
		}
		_ = idx
	}
	if !sawSigner {
		return bundlerrors.New(bundlerrors.Malformed,
			"bundle has no signer across any instruction", nil)
	}

	return nil
}

// FeePayer returns the first account marked as a signer in instruction
// order, which is the account the orchestrator treats as paying the
// transaction fee.
func (r *BundleRequest) FeePayer() (solana.PublicKey, bool) {
	for _, ins := range r.Instructions {
		for _, a := range ins.Accounts {
			if a.Signer {
				return a.PublicKey, true
			}
		}
	}
	return solana.PublicKey{}, false
}

// AllWritableAccounts returns the de-duplicated union of writable accounts
// referenced anywhere in the request, used by the Fee Estimator to
// fingerprint the fee-sample lookup.
func (r *BundleRequest) AllWritableAccounts() []solana.PublicKey {
	seen := make(map[solana.PublicKey]struct{})
	out := make([]solana.PublicKey, 0)
	for _, ins := range r.Instructions {
		for _, a := range ins.WritableAccounts() {
			if _, ok := seen[a]; !ok {
				seen[a] = struct{}{}
				out = append(out, a)
			}
		}
	}
	return out
}
