package fee

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/solbundler/internal/bundlerrors"
	"github.com/yourusername/solbundler/internal/rpcpool"
)

type fakeSource struct {
	samples []rpcpool.FeeSample
	err     error
}

func (f *fakeSource) Dispatch(ctx context.Context, fn func(ctx context.Context, t rpcpool.Transport) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(ctx, &fakeFeeTransport{samples: f.samples})
}

type fakeFeeTransport struct{ samples []rpcpool.FeeSample }

func (f *fakeFeeTransport) LatestReferenceHash(ctx context.Context, c rpc.CommitmentType) (solana.Hash, uint64, error) {
	return solana.Hash{}, 0, nil
}
func (f *fakeFeeTransport) SendRaw(ctx context.Context, tx *solana.Transaction, c rpc.CommitmentType) (solana.Signature, error) {
	return solana.Signature{}, nil
}
func (f *fakeFeeTransport) GetStatuses(ctx context.Context, sigs []solana.Signature) ([]*rpcpool.SignatureStatus, error) {
	return nil, nil
}
func (f *fakeFeeTransport) Simulate(ctx context.Context, tx *solana.Transaction) (*rpcpool.SimulationResult, error) {
	return nil, nil
}
func (f *fakeFeeTransport) GetRecentFeeSamples(ctx context.Context, accts []solana.PublicKey) ([]rpcpool.FeeSample, error) {
	return f.samples, nil
}
func (f *fakeFeeTransport) GetAccount(ctx context.Context, addr solana.PublicKey) ([]byte, bool, error) {
	return nil, false, nil
}

func TestEstimator_InitialPrice_ClampedToBaseFeeWithNoSamples(t *testing.T) {
	e, err := NewEstimator(Config{Strategy: "p75_plus_buffer", BaseFee: 1000}, &fakeSource{}, zap.NewNop())
	require.NoError(t, err)

	price := e.EstimateInitial([]solana.PublicKey{solana.NewWallet().PublicKey()}, TierNormal, 0)
	require.Equal(t, uint64(1000), price)
}

func TestEstimator_InitialPrice_UsesP75OfIngestedSamples(t *testing.T) {
	accounts := []solana.PublicKey{solana.NewWallet().PublicKey()}
	src := &fakeSource{samples: []rpcpool.FeeSample{
		{Slot: 1, Price: 100}, {Slot: 2, Price: 200}, {Slot: 3, Price: 300}, {Slot: 4, Price: 400},
	}}
	e, err := NewEstimator(Config{Strategy: "p75_plus_buffer", BaseFee: 10, BufferRatio: 0}, src, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, e.Ingest(context.Background(), accounts))
	price := e.EstimateInitial(accounts, TierNormal, 100000)
	require.GreaterOrEqual(t, price, uint64(300))
}

func TestEstimator_InitialPrice_FallsBackToGlobalWindow(t *testing.T) {
	accountsWithSamples := []solana.PublicKey{solana.NewWallet().PublicKey()}
	accountsNoSamples := []solana.PublicKey{solana.NewWallet().PublicKey()}

	src := &fakeSource{samples: []rpcpool.FeeSample{{Slot: 1, Price: 500}}}
	e, err := NewEstimator(Config{Strategy: "p75_plus_buffer", BaseFee: 10, BufferRatio: 0}, src, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, e.Ingest(context.Background(), accountsWithSamples))

	// BufferRatio 0 takes the 0.10 default: p75 500 + buffer 50.
	price := e.EstimateInitial(accountsNoSamples, TierNormal, 100000)
	require.Equal(t, uint64(550), price)
}

func TestEstimator_InitialPrice_BelowMinSamplesFallsBackToGlobal(t *testing.T) {
	accounts := []solana.PublicKey{solana.NewWallet().PublicKey()}

	sparse := make([]rpcpool.FeeSample, 5) // fewer than the default MinSamples of 10
	for i := range sparse {
		sparse[i] = rpcpool.FeeSample{Slot: uint64(i), Price: 100}
	}
	src := &fakeSource{samples: sparse}
	e, err := NewEstimator(Config{Strategy: "p75_plus_buffer", BaseFee: 10, BufferRatio: 0}, src, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, e.Ingest(context.Background(), accounts))

	// A different, richly-sampled account set becomes the global window's
	// dominant signal once ingested for a second account set, since the
	// sparse account-scoped window (5 < MinSamples) must not be trusted on
	// its own.
	richAccounts := []solana.PublicKey{solana.NewWallet().PublicKey()}
	rich := make([]rpcpool.FeeSample, 20)
	for i := range rich {
		rich[i] = rpcpool.FeeSample{Slot: uint64(i), Price: 9000}
	}
	e.source = &fakeSource{samples: rich}
	require.NoError(t, e.Ingest(context.Background(), richAccounts))

	price := e.EstimateInitial(accounts, TierNormal, 100000)
	require.Greater(t, price, uint64(100), "sparse account-scoped window alone should not drive the estimate")
}

func TestEstimator_TierMultiplierAppliesBeforeClamp(t *testing.T) {
	accounts := []solana.PublicKey{solana.NewWallet().PublicKey()}
	src := &fakeSource{samples: []rpcpool.FeeSample{{Slot: 1, Price: 1000}}}
	e, err := NewEstimator(Config{Strategy: "p75_plus_buffer", BaseFee: 1, BufferRatio: 0}, src, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, e.Ingest(context.Background(), accounts))

	urgent := e.EstimateInitial(accounts, TierUrgent, 1_000_000)
	low := e.EstimateInitial(accounts, TierLow, 1_000_000)
	require.Greater(t, urgent, low)
}

func TestEstimator_EstimateBump_StrictlyIncreasesAndCapsAtMaxPrice(t *testing.T) {
	e, err := NewEstimator(Config{Strategy: "fixed", FixedPrice: 1, MinIncrement: 50, BumpMultiplier: 1.3}, &fakeSource{}, zap.NewNop())
	require.NoError(t, err)

	next, err := e.EstimateBump(1000, 10000)
	require.NoError(t, err)
	require.Greater(t, next, uint64(1000))
	require.GreaterOrEqual(t, next, uint64(1300))

	_, err = e.EstimateBump(9000, 10000)
	require.Error(t, err)
	require.Equal(t, bundlerrors.FeeCeiling, bundlerrors.KindOf(err))
}

func TestEstimator_FixedStrategyIgnoresWindow(t *testing.T) {
	e, err := NewEstimator(Config{Strategy: "fixed", FixedPrice: 777, BaseFee: 1}, &fakeSource{}, zap.NewNop())
	require.NoError(t, err)

	price := e.EstimateInitial([]solana.PublicKey{solana.NewWallet().PublicKey()}, TierNormal, 0)
	require.Equal(t, uint64(777), price)
}

func TestParseStrategy_UnknownNameIsConfigError(t *testing.T) {
	_, err := ParseStrategy("quadratic", 0)
	require.Error(t, err)
	require.Equal(t, bundlerrors.Config, bundlerrors.KindOf(err))
}

func TestFitSlope_RisingPricesGivePositiveSlope(t *testing.T) {
	now := time.Now()
	samples := []Sample{
		{ObservedAt: now.Add(-3 * time.Second), Price: 100},
		{ObservedAt: now.Add(-2 * time.Second), Price: 200},
		{ObservedAt: now.Add(-1 * time.Second), Price: 300},
	}
	require.Greater(t, fitSlope(samples, now), 0.0)
}
