package signing

import (
	"context"
	"fmt"

	"github.com/anyproto/go-slip10"
	"github.com/gagliardetto/solana-go"
	"github.com/tyler-smith/go-bip39"

	"github.com/yourusername/solbundler/internal/bundlerrors"
	"github.com/yourusername/solbundler/internal/services/crypto"
)

// solanaDerivationPrefix is the standard Solana BIP44 coin path (SLIP-44
// coin type 501); every path this gateway derives is fully hardened since
// SLIP-10 Ed25519 does not support non-hardened derivation.
const solanaDerivationPrefix = "m/44'/501'"

// InProcessGateway holds Ed25519 keypairs derived directly into process
// memory from a BIP39 mnemonic via SLIP-10. Solana's Ed25519 curve requires
// SLIP-10 derivation rather than BIP32, which has no defined non-hardened
// path for Ed25519.
type InProcessGateway struct {
	keys map[solana.PublicKey]solana.PrivateKey
}

// NewInProcessFromMnemonic validates mnemonic, derives one Ed25519 keypair
// per account index via m/44'/501'/{index}'/0', and zeroizes the
// intermediate seed material once derivation completes.
func NewInProcessFromMnemonic(mnemonic, passphrase string, accountIndices []uint32) (*InProcessGateway, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, bundlerrors.New(bundlerrors.Signing, "invalid BIP39 mnemonic", nil)
	}
	if len(accountIndices) == 0 {
		accountIndices = []uint32{0}
	}

	seed := bip39.NewSeed(mnemonic, passphrase)
	defer crypto.ClearBytes(seed)

	keys := make(map[solana.PublicKey]solana.PrivateKey, len(accountIndices))
	for _, idx := range accountIndices {
		path := fmt.Sprintf("%s/%d'/0'", solanaDerivationPrefix, idx)
		node, err := slip10.DeriveForPath(path, seed)
		if err != nil {
			return nil, bundlerrors.New(bundlerrors.Signing, "slip10 derivation failed for "+path, err)
		}

		_, privSeed := node.Keypair()
		priv, err := solana.PrivateKeyFromSeed(privSeed)
		crypto.ClearBytes(privSeed)
		if err != nil {
			return nil, bundlerrors.New(bundlerrors.Signing, "failed to build Ed25519 key from derived seed", err)
		}
		keys[priv.PublicKey()] = priv
	}

	return &InProcessGateway{keys: keys}, nil
}

func (g *InProcessGateway) Capabilities() map[Capability]bool {
	return map[Capability]bool{CapSign: true, CapProbe: true}
}

func (g *InProcessGateway) PublicKeys() []solana.PublicKey {
	out := make([]solana.PublicKey, 0, len(g.keys))
	for pk := range g.keys {
		out = append(out, pk)
	}
	return out
}

func (g *InProcessGateway) Sign(ctx context.Context, messageBytes []byte, signers []solana.PublicKey) ([]solana.Signature, error) {
	out := make([]solana.Signature, len(signers))
	for i, pk := range signers {
		priv, ok := g.keys[pk]
		if !ok {
			return nil, missingSignerErr(pk)
		}
		sig, err := priv.Sign(messageBytes)
		if err != nil {
			return nil, bundlerrors.New(bundlerrors.Signing, "signing failed for "+pk.String(), err)
		}
		out[i] = sig
	}
	return out, nil
}

func (g *InProcessGateway) Probe(ctx context.Context) error {
	return nil
}

var _ Gateway = (*InProcessGateway)(nil)
