package cli

import (
	"encoding/base64"
	"encoding/json"

	"github.com/gagliardetto/solana-go"

	"github.com/yourusername/solbundler/internal/bundler"
	"github.com/yourusername/solbundler/internal/bundlerrors"
)

// BundleRequestDoc is the wire shape of a BundleRequest: base58 for keys,
// base64 for opaque instruction data, the encoding a JSON payload needs to
// carry binary fields over stdin.
type BundleRequestDoc struct {
	ID                string            `json:"id"`
	Atomic            bool              `json:"atomic"`
	Compute           ComputePolicyDoc  `json:"compute"`
	Instructions      []InstructionDoc  `json:"instructions"`
	LookupTableIDs    []string          `json:"lookup_table_ids,omitempty"`
	AdditionalSigners []string          `json:"additional_signers,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

type ComputePolicyDoc struct {
	LimitAuto  bool   `json:"limit_auto"`
	LimitValue uint32 `json:"limit_value,omitempty"`
	PriceAuto  bool   `json:"price_auto"`
	PriceValue uint64 `json:"price_value,omitempty"`
	MaxPrice   uint64 `json:"max_price"`
	Tier       string `json:"tier"`
}

type InstructionDoc struct {
	ProgramID string          `json:"program_id"`
	Accounts  []AccountRefDoc `json:"accounts"`
	Data      string          `json:"data"` // base64
}

type AccountRefDoc struct {
	PublicKey string `json:"public_key"`
	Signer    bool   `json:"signer"`
	Writable  bool   `json:"writable"`
}

// ParseBundleRequest decodes raw JSON into the core's BundleRequest model.
func ParseBundleRequest(raw []byte) (*bundler.BundleRequest, error) {
	var doc BundleRequestDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, bundlerrors.New(bundlerrors.Malformed, "failed to parse bundle request JSON", err)
	}

	req := &bundler.BundleRequest{
		ID:     doc.ID,
		Atomic: doc.Atomic,
		Compute: bundler.ComputePolicy{
			Limit:    bundler.ComputeLimit{Auto: doc.Compute.LimitAuto, Value: doc.Compute.LimitValue},
			Price:    bundler.ComputePrice{Auto: doc.Compute.PriceAuto, Value: doc.Compute.PriceValue},
			MaxPrice: doc.Compute.MaxPrice,
			Tier:     bundler.PriorityTier(doc.Compute.Tier),
		},
		Metadata: doc.Metadata,
	}

	for _, lt := range doc.LookupTableIDs {
		pk, err := solana.PublicKeyFromBase58(lt)
		if err != nil {
			return nil, bundlerrors.New(bundlerrors.Malformed, "invalid lookup_table_ids entry "+lt, err)
		}
		req.LookupTableIDs = append(req.LookupTableIDs, pk)
	}
	for _, s := range doc.AdditionalSigners {
		pk, err := solana.PublicKeyFromBase58(s)
		if err != nil {
			return nil, bundlerrors.New(bundlerrors.Malformed, "invalid additional_signers entry "+s, err)
		}
		req.AdditionalSigners = append(req.AdditionalSigners, pk)
	}

	req.Instructions = make([]bundler.Instruction, len(doc.Instructions))
	for i, insDoc := range doc.Instructions {
		programID, err := solana.PublicKeyFromBase58(insDoc.ProgramID)
		if err != nil {
			return nil, bundlerrors.New(bundlerrors.Malformed, "invalid instruction program_id "+insDoc.ProgramID, err)
		}
		data, err := base64.StdEncoding.DecodeString(insDoc.Data)
		if err != nil {
			return nil, bundlerrors.New(bundlerrors.Malformed, "invalid instruction data encoding", err)
		}
		accounts := make([]bundler.AccountRef, len(insDoc.Accounts))
		for j, a := range insDoc.Accounts {
			pk, err := solana.PublicKeyFromBase58(a.PublicKey)
			if err != nil {
				return nil, bundlerrors.New(bundlerrors.Malformed, "invalid account public_key "+a.PublicKey, err)
			}
			accounts[j] = bundler.AccountRef{PublicKey: pk, Signer: a.Signer, Writable: a.Writable}
		}
		req.Instructions[i] = bundler.Instruction{ProgramID: programID, Accounts: accounts, Data: data}
	}

	return req, nil
}
