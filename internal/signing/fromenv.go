package signing

import (
	"context"
	"encoding/base64"
	"os"

	"github.com/gagliardetto/solana-go"

	"github.com/yourusername/solbundler/internal/bundlerrors"
	"github.com/yourusername/solbundler/internal/services/crypto"
)

// FromEnvironmentGateway decrypts an Argon2id+AES-256-GCM key blob held in
// an environment variable at construction time, derives its single Ed25519
// keypair, and holds the decrypted key only in process memory thereafter.
type FromEnvironmentGateway struct {
	key solana.PrivateKey
}

// NewFromEnvironment reads base64(serialized EncryptedBlob) from envVar,
// decrypts it with password, and treats the resulting 32-byte plaintext as
// an Ed25519 seed.
func NewFromEnvironment(envVar, password string) (*FromEnvironmentGateway, error) {
	encoded := os.Getenv(envVar)
	if encoded == "" {
		return nil, bundlerrors.New(bundlerrors.Config, "environment variable "+envVar+" is not set", nil)
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, bundlerrors.New(bundlerrors.Config, "failed to base64-decode "+envVar, err)
	}

	blob, err := crypto.Deserialize(raw)
	if err != nil {
		return nil, bundlerrors.New(bundlerrors.Config, "malformed encrypted key blob in "+envVar, err)
	}

	seed, err := crypto.Decrypt(blob, password)
	if err != nil {
		return nil, bundlerrors.New(bundlerrors.Signing, "failed to decrypt key material from "+envVar, err)
	}
	defer crypto.ClearBytes(seed)

	priv, err := solana.PrivateKeyFromSeed(seed)
	if err != nil {
		return nil, bundlerrors.New(bundlerrors.Signing, "decrypted seed is not a valid Ed25519 key", err)
	}

	return &FromEnvironmentGateway{key: priv}, nil
}

func (g *FromEnvironmentGateway) Capabilities() map[Capability]bool {
	return map[Capability]bool{CapSign: true, CapProbe: true}
}

func (g *FromEnvironmentGateway) PublicKeys() []solana.PublicKey {
	return []solana.PublicKey{g.key.PublicKey()}
}

func (g *FromEnvironmentGateway) Sign(ctx context.Context, messageBytes []byte, signers []solana.PublicKey) ([]solana.Signature, error) {
	out := make([]solana.Signature, len(signers))
	for i, pk := range signers {
		if pk != g.key.PublicKey() {
			return nil, missingSignerErr(pk)
		}
		sig, err := g.key.Sign(messageBytes)
		if err != nil {
			return nil, bundlerrors.New(bundlerrors.Signing, "signing failed for "+pk.String(), err)
		}
		out[i] = sig
	}
	return out, nil
}

func (g *FromEnvironmentGateway) Probe(ctx context.Context) error {
	return nil
}

var _ Gateway = (*FromEnvironmentGateway)(nil)
