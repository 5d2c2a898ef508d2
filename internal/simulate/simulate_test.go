package simulate

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/solbundler/internal/bundler"
	"github.com/yourusername/solbundler/internal/rpcpool"
)

type fakeSimSource struct {
	result *rpcpool.SimulationResult
	err    error
}

func (f *fakeSimSource) Dispatch(ctx context.Context, fn func(ctx context.Context, t rpcpool.Transport) error) error {
	return fn(ctx, &fakeSimTransport{result: f.result, err: f.err})
}

type fakeSimTransport struct {
	result *rpcpool.SimulationResult
	err    error
}

func (f *fakeSimTransport) LatestReferenceHash(ctx context.Context, c rpc.CommitmentType) (solana.Hash, uint64, error) {
	return solana.Hash{}, 0, nil
}
func (f *fakeSimTransport) SendRaw(ctx context.Context, tx *solana.Transaction, c rpc.CommitmentType) (solana.Signature, error) {
	return solana.Signature{}, nil
}
func (f *fakeSimTransport) GetStatuses(ctx context.Context, sigs []solana.Signature) ([]*rpcpool.SignatureStatus, error) {
	return nil, nil
}
func (f *fakeSimTransport) Simulate(ctx context.Context, tx *solana.Transaction) (*rpcpool.SimulationResult, error) {
	return f.result, f.err
}
func (f *fakeSimTransport) GetRecentFeeSamples(ctx context.Context, a []solana.PublicKey) ([]rpcpool.FeeSample, error) {
	return nil, nil
}
func (f *fakeSimTransport) GetAccount(ctx context.Context, addr solana.PublicKey) ([]byte, bool, error) {
	return nil, false, nil
}

func testInstruction(program solana.PublicKey, writable solana.PublicKey) bundler.Instruction {
	return bundler.Instruction{
		ProgramID: program,
		Accounts: []bundler.AccountRef{
			{PublicKey: writable, Writable: true, Signer: true},
		},
		Data: []byte{1, 2, 3},
	}
}

func TestSimulate_EmptyInstructionsIsMalformed(t *testing.T) {
	sim := NewSimulator(Config{}, &fakeSimSource{})
	_, fr := sim.Simulate(context.Background(), nil, &solana.Transaction{}, 100)
	require.NotNil(t, fr)
	require.Equal(t, KindMalformed, fr.Kind)
	require.Equal(t, SubCodeEmpty, fr.SubCode)
}

func TestSimulate_OversizePayloadIsMalformedWithDistinctSubCode(t *testing.T) {
	sim := NewSimulator(Config{MaxPayloadBytes: 100}, &fakeSimSource{})
	ins := []bundler.Instruction{testInstruction(solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey())}
	_, fr := sim.Simulate(context.Background(), ins, &solana.Transaction{}, 200)
	require.NotNil(t, fr)
	require.Equal(t, KindMalformed, fr.Kind)
	require.Equal(t, SubCodeTooLarge, fr.SubCode)
}

func TestSimulate_ProgramOutsideWhitelistIsRejected(t *testing.T) {
	allowed := solana.NewWallet().PublicKey()
	other := solana.NewWallet().PublicKey()
	sim := NewSimulator(Config{
		ProgramWhitelist: map[solana.PublicKey]struct{}{allowed: {}},
	}, &fakeSimSource{})

	ins := []bundler.Instruction{testInstruction(other, solana.NewWallet().PublicKey())}
	_, fr := sim.Simulate(context.Background(), ins, &solana.Transaction{}, 100)
	require.NotNil(t, fr)
	require.Equal(t, KindWhitelistViolation, fr.Kind)
}

func TestSimulate_SuccessAppliesSafetyBuffer(t *testing.T) {
	program := solana.NewWallet().PublicKey()
	sim := NewSimulator(Config{
		ProgramWhitelist: map[solana.PublicKey]struct{}{program: {}},
		SafetyBuffer:     0.15,
	}, &fakeSimSource{result: &rpcpool.SimulationResult{Success: true, UnitsConsumed: 1000}})

	ins := []bundler.Instruction{testInstruction(program, solana.NewWallet().PublicKey())}
	result, fr := sim.Simulate(context.Background(), ins, &solana.Transaction{}, 100)
	require.Nil(t, fr)
	require.Equal(t, uint32(1150), result.ComputeUnitEstimate)
}

func TestSimulate_FailureClassification(t *testing.T) {
	program := solana.NewWallet().PublicKey()
	cases := []struct {
		errMsg   string
		wantKind Kind
	}{
		{"Insufficient funds for rent", KindInsufficientFunds},
		{"AccountNotFound: missing", KindAccountNotFound},
		{"price moved beyond slippage tolerance", KindSlippageLike},
		{"custom program error: 0x1", KindProgramLogic},
	}
	for _, tc := range cases {
		sim := NewSimulator(Config{
			ProgramWhitelist: map[solana.PublicKey]struct{}{program: {}},
		}, &fakeSimSource{result: &rpcpool.SimulationResult{Success: false, Err: tc.errMsg}})

		ins := []bundler.Instruction{testInstruction(program, solana.NewWallet().PublicKey())}
		_, fr := sim.Simulate(context.Background(), ins, &solana.Transaction{}, 100)
		require.NotNil(t, fr)
		require.Equal(t, tc.wantKind, fr.Kind, tc.errMsg)
	}
}

func TestSimulate_DispatchErrorIsUpstreamUnavailable(t *testing.T) {
	program := solana.NewWallet().PublicKey()
	sim := NewSimulator(Config{
		ProgramWhitelist: map[solana.PublicKey]struct{}{program: {}},
	}, &fakeSimSource{err: errors.New("rpc unavailable")})

	ins := []bundler.Instruction{testInstruction(program, solana.NewWallet().PublicKey())}
	_, fr := sim.Simulate(context.Background(), ins, &solana.Transaction{}, 100)
	require.NotNil(t, fr)
	require.Equal(t, KindUpstreamUnavailable, fr.Kind)
}
