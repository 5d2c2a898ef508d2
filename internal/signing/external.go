package signing

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/yourusername/solbundler/internal/bundlerrors"
)

// ExternalServiceGateway delegates signing to a remote signing service (a
// KMS-backed signer, an HSM gateway) over HTTP, never holding key material
// itself: a bare *http.Client, a fixed base URL, and a bearer-style auth
// header.
type ExternalServiceGateway struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	publicKeys []solana.PublicKey
}

// NewExternalService constructs a gateway against a remote signer that
// reports the public keys it controls via GET {baseURL}/keys.
func NewExternalService(ctx context.Context, baseURL, apiKey string, timeout time.Duration) (*ExternalServiceGateway, error) {
	if baseURL == "" {
		return nil, bundlerrors.New(bundlerrors.Config, "external signing service base URL is required", nil)
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	g := &ExternalServiceGateway{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
	keys, err := g.fetchKeys(ctx)
	if err != nil {
		return nil, err
	}
	g.publicKeys = keys
	return g, nil
}

type externalKeysResponse struct {
	PublicKeys []string `json:"public_keys"`
}

func (g *ExternalServiceGateway) fetchKeys(ctx context.Context) ([]solana.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/keys", nil)
	if err != nil {
		return nil, bundlerrors.New(bundlerrors.Signing, "failed to build keys request", err)
	}
	g.authorize(req)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, bundlerrors.New(bundlerrors.Signing, "external signing service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, bundlerrors.New(bundlerrors.Signing, fmt.Sprintf("external signing service returned %d: %s", resp.StatusCode, string(body)), nil)
	}

	var parsed externalKeysResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, bundlerrors.New(bundlerrors.Signing, "malformed keys response from external signing service", err)
	}

	out := make([]solana.PublicKey, 0, len(parsed.PublicKeys))
	for _, s := range parsed.PublicKeys {
		pk, err := solana.PublicKeyFromBase58(s)
		if err != nil {
			return nil, bundlerrors.New(bundlerrors.Signing, "invalid public key in keys response: "+s, err)
		}
		out = append(out, pk)
	}
	return out, nil
}

func (g *ExternalServiceGateway) authorize(req *http.Request) {
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
}

func (g *ExternalServiceGateway) Capabilities() map[Capability]bool {
	return map[Capability]bool{CapSign: true, CapProbe: true}
}

func (g *ExternalServiceGateway) PublicKeys() []solana.PublicKey {
	return g.publicKeys
}

type externalSignRequest struct {
	PublicKey string `json:"public_key"`
	Message   string `json:"message"`
}

type externalSignResponse struct {
	Signature string `json:"signature"`
}

func (g *ExternalServiceGateway) Sign(ctx context.Context, messageBytes []byte, signers []solana.PublicKey) ([]solana.Signature, error) {
	controlled := make(map[solana.PublicKey]struct{}, len(g.publicKeys))
	for _, pk := range g.publicKeys {
		controlled[pk] = struct{}{}
	}

	out := make([]solana.Signature, len(signers))
	for i, pk := range signers {
		if _, ok := controlled[pk]; !ok {
			return nil, missingSignerErr(pk)
		}
		sig, err := g.signOne(ctx, messageBytes, pk)
		if err != nil {
			return nil, err
		}
		out[i] = sig
	}
	return out, nil
}

func (g *ExternalServiceGateway) signOne(ctx context.Context, messageBytes []byte, pk solana.PublicKey) (solana.Signature, error) {
	payload, err := json.Marshal(externalSignRequest{
		PublicKey: pk.String(),
		Message:   base64.StdEncoding.EncodeToString(messageBytes),
	})
	if err != nil {
		return solana.Signature{}, bundlerrors.New(bundlerrors.Signing, "failed to encode sign request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/sign", bytes.NewReader(payload))
	if err != nil {
		return solana.Signature{}, bundlerrors.New(bundlerrors.Signing, "failed to build sign request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	g.authorize(req)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return solana.Signature{}, bundlerrors.New(bundlerrors.Signing, "external signing service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return solana.Signature{}, bundlerrors.New(bundlerrors.Signing, fmt.Sprintf("external signing service returned %d: %s", resp.StatusCode, string(body)), nil)
	}

	var parsed externalSignResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return solana.Signature{}, bundlerrors.New(bundlerrors.Signing, "malformed sign response from external signing service", err)
	}

	sigBytes, err := base64.StdEncoding.DecodeString(parsed.Signature)
	if err != nil {
		return solana.Signature{}, bundlerrors.New(bundlerrors.Signing, "signature in response is not valid base64", err)
	}
	var sig solana.Signature
	copy(sig[:], sigBytes)
	return sig, nil
}

func (g *ExternalServiceGateway) Probe(ctx context.Context) error {
	_, err := g.fetchKeys(ctx)
	return err
}

var _ Gateway = (*ExternalServiceGateway)(nil)
