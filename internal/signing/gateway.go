// Package signing implements the Signing Gateway of SPEC_FULL.md §2: a
// variant type over where signing key material actually lives
// ({InProcess, FromEnvironment, ExternalService}), each advertising a
// capability set ({sign, probe}) so the orchestrator can ask "can this
// gateway sign for account X" without knowing which variant it holds.
// Key-source location and signing operation are kept as separate concerns
// so the orchestrator can ask "can this gateway sign for account X" without
// knowing which variant it holds.
package signing

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/yourusername/solbundler/internal/bundlerrors"
)

// Capability is one operation a Gateway variant supports.
type Capability string

const (
	CapSign  Capability = "sign"
	CapProbe Capability = "probe"
)

// Gateway abstracts where signing key material lives. Implementations MUST
// NOT expose private key material outside this package; MUST verify that
// the signer it holds actually controls the requested public key before
// producing a signature.
type Gateway interface {
	// Capabilities reports which operations this variant supports.
	Capabilities() map[Capability]bool

	// PublicKeys returns every account this gateway can sign for.
	PublicKeys() []solana.PublicKey

	// Sign signs messageBytes (a serialized transaction message) for every
	// signer in signers that this gateway controls, returning one signature
	// per requested signer in the same order. It is an error to request a
	// signer the gateway does not control.
	Sign(ctx context.Context, messageBytes []byte, signers []solana.PublicKey) ([]solana.Signature, error)

	// Probe verifies the gateway is reachable and ready to sign, without
	// producing a signature. InProcess and FromEnvironment gateways hold
	// their keys in memory and are always ready; ExternalService uses this
	// to surface connectivity failures early.
	Probe(ctx context.Context) error
}

func missingSignerErr(pk solana.PublicKey) error {
	return bundlerrors.New(bundlerrors.Signing, "gateway does not control signer "+pk.String(), nil)
}
