package orchestrator

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/solbundler/internal/bundler"
	"github.com/yourusername/solbundler/internal/bundlerrors"
)

func ins(program solana.PublicKey, writable solana.PublicKey, dataLen int) bundler.Instruction {
	return bundler.Instruction{
		ProgramID: program,
		Accounts: []bundler.AccountRef{
			{PublicKey: writable, Writable: true, Signer: true},
		},
		Data: make([]byte, dataLen),
	}
}

func TestPartition_AtomicSingleDraft(t *testing.T) {
	program := solana.NewWallet().PublicKey()
	req := &bundler.BundleRequest{
		Atomic: true,
		Instructions: []bundler.Instruction{
			ins(program, solana.NewWallet().PublicKey(), 8),
			ins(program, solana.NewWallet().PublicKey(), 8),
		},
	}
	drafts, err := Partition(req, 1232, 1_400_000)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	require.Len(t, drafts[0].Instructions, 2)
}

func TestPartition_AtomicExceedsSizeCapFailsMalformed(t *testing.T) {
	program := solana.NewWallet().PublicKey()
	req := &bundler.BundleRequest{
		Atomic: true,
		Instructions: []bundler.Instruction{
			ins(program, solana.NewWallet().PublicKey(), 2000),
		},
	}
	_, err := Partition(req, 1232, 1_400_000)
	require.Error(t, err)
	require.Equal(t, bundlerrors.Malformed, bundlerrors.KindOf(err))
}

func TestPartition_BestEffortSplitsOnWritableAccountConflict(t *testing.T) {
	program := solana.NewWallet().PublicKey()
	shared := solana.NewWallet().PublicKey()
	req := &bundler.BundleRequest{
		Atomic: false,
		Instructions: []bundler.Instruction{
			ins(program, shared, 8),
			ins(program, shared, 8), // conflicts with the first: must land in a new draft
		},
	}
	drafts, err := Partition(req, 1232, 1_400_000)
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	require.Len(t, drafts[0].Instructions, 1)
	require.Len(t, drafts[1].Instructions, 1)
}

func TestPartition_BestEffortPacksDisjointInstructionsTogether(t *testing.T) {
	program := solana.NewWallet().PublicKey()
	req := &bundler.BundleRequest{
		Atomic: false,
		Instructions: []bundler.Instruction{
			ins(program, solana.NewWallet().PublicKey(), 8),
			ins(program, solana.NewWallet().PublicKey(), 8),
			ins(program, solana.NewWallet().PublicKey(), 8),
		},
	}
	drafts, err := Partition(req, 1232, 1_400_000)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	require.Len(t, drafts[0].Instructions, 3)
}

func TestPartition_BestEffortSplitsOnSizeCap(t *testing.T) {
	program := solana.NewWallet().PublicKey()
	req := &bundler.BundleRequest{
		Atomic: false,
		Instructions: []bundler.Instruction{
			ins(program, solana.NewWallet().PublicKey(), 600),
			ins(program, solana.NewWallet().PublicKey(), 600),
		},
	}
	drafts, err := Partition(req, 1000, 1_400_000)
	require.NoError(t, err)
	require.Len(t, drafts, 2)
}

func TestPartition_SingleInstructionExceedingSizeCapIsRejected(t *testing.T) {
	program := solana.NewWallet().PublicKey()
	req := &bundler.BundleRequest{
		Atomic: false,
		Instructions: []bundler.Instruction{
			ins(program, solana.NewWallet().PublicKey(), 5000),
		},
	}
	_, err := Partition(req, 1232, 1_400_000)
	require.Error(t, err)
	require.Equal(t, bundlerrors.Malformed, bundlerrors.KindOf(err))
}

func TestPartition_TiesBrokenByInstructionOrder(t *testing.T) {
	program := solana.NewWallet().PublicKey()
	a, b, c := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
	req := &bundler.BundleRequest{
		Atomic: false,
		Instructions: []bundler.Instruction{
			ins(program, a, 8),
			ins(program, b, 8),
			ins(program, c, 8),
		},
	}
	drafts, err := Partition(req, 1232, 1_400_000)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	require.Equal(t, a, drafts[0].Instructions[0].Accounts[0].PublicKey)
	require.Equal(t, b, drafts[0].Instructions[1].Accounts[0].PublicKey)
	require.Equal(t, c, drafts[0].Instructions[2].Accounts[0].PublicKey)
}
