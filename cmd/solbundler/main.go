// Command solbundler is the submission surface of §6: a thin CLI over the
// Bundler Orchestrator exposing submit/simulate/status/health, branching
// between an interactive human-readable mode and a dashboard JSON mode
// (internal/cli.DetectMode).
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/yourusername/solbundler/internal/bundler"
	"github.com/yourusername/solbundler/internal/bundlerrors"
	"github.com/yourusername/solbundler/internal/cli"
	"github.com/yourusername/solbundler/internal/config"
	"github.com/yourusername/solbundler/internal/fee"
	"github.com/yourusername/solbundler/internal/obs"
	"github.com/yourusername/solbundler/internal/orchestrator"
	"github.com/yourusername/solbundler/internal/rpcpool"
	"github.com/yourusername/solbundler/internal/signing"
	"github.com/yourusername/solbundler/internal/simulate"
	"github.com/yourusername/solbundler/internal/solanatx"
)

const Version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	switch command {
	case "submit", "simulate", "status", "health":
		os.Exit(run(command, os.Args[2:]))
	case "version":
		fmt.Printf("solbundler v%s\n", Version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("solbundler - adaptive-fee bundle submission for Solana")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  solbundler submit    Submit a bundle (request JSON on stdin)")
	fmt.Println("  solbundler simulate  Dry-run a bundle without submitting")
	fmt.Println("  solbundler status    Look up a signature's on-chain status")
	fmt.Println("  solbundler health    Report node pool endpoint health")
	fmt.Println("  solbundler version   Show version information")
	fmt.Println()
	fmt.Println("SOLBUNDLER_MODE=dashboard switches stdout to single-line JSON.")
	fmt.Println("SOLBUNDLER_CONFIG selects the YAML config file (default config.yaml).")
}

func run(command string, args []string) int {
	start := time.Now()

	logger, err := obs.NewLogger(cli.IsDashboard())
	if err != nil {
		return fail(command, start, bundlerrors.New(bundlerrors.Config, "failed to build logger", err))
	}
	defer logger.Sync()

	configPath := os.Getenv("SOLBUNDLER_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fail(command, start, err)
	}

	svc, err := wire(cfg, logger)
	if err != nil {
		return fail(command, start, err)
	}

	ctx := context.Background()

	switch command {
	case "submit":
		req, err := readRequest()
		if err != nil {
			return fail(command, start, err)
		}
		deadline := time.Duration(cfg.Bundle.ConfirmDeadlineMs)*time.Millisecond + 10*time.Second
		result, err := svc.Submit(ctx, req, deadline)
		if err != nil {
			return fail(command, start, err)
		}
		return succeed(command, req.ID, start, result)

	case "simulate":
		req, err := readRequest()
		if err != nil {
			return fail(command, start, err)
		}
		outcomes, err := svc.Simulate(ctx, req)
		if err != nil {
			return fail(command, start, err)
		}
		return succeed(command, req.ID, start, outcomes)

	case "status":
		if len(args) < 1 {
			return fail(command, start, bundlerrors.New(bundlerrors.Malformed, "status requires a signature argument", nil))
		}
		sig, err := solana.SignatureFromBase58(args[0])
		if err != nil {
			return fail(command, start, bundlerrors.New(bundlerrors.Malformed, "invalid signature", err))
		}
		report, err := svc.Status(ctx, sig)
		if err != nil {
			return fail(command, start, err)
		}
		return succeed(command, args[0], start, report)

	case "health":
		report := svc.Health(true)
		return succeed(command, "", start, report)
	}

	return 1
}

func readRequest() (*bundler.BundleRequest, error) {
	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, bundlerrors.New(bundlerrors.Malformed, "failed to read request from stdin", err)
	}
	req, err := cli.ParseBundleRequest(raw)
	if err != nil {
		return nil, err
	}
	return req, nil
}

// wire constructs every collaborator Submit/Simulate/Status/Health need,
// built once per process and handed to the orchestrator service.
func wire(cfg *config.Config, logger *zap.Logger) (*orchestrator.Service, error) {
	urls := make([]string, len(cfg.RPC.Endpoints))
	weights := make([]int, len(cfg.RPC.Endpoints))
	for i, e := range cfg.RPC.Endpoints {
		urls[i] = e.URL
		weights[i] = e.Weight
	}
	pool, err := rpcpool.NewPool(urls, weights, rpcpool.Config{
		MinBackoff:    time.Duration(cfg.RPC.QuarantineInitialMs) * time.Millisecond,
		MaxBackoff:    time.Duration(cfg.RPC.QuarantineMaxMs) * time.Millisecond,
		ProbeInterval: time.Duration(cfg.RPC.ProbeIntervalMs) * time.Millisecond,
	}, logger)
	if err != nil {
		return nil, err
	}

	estimator, err := fee.NewEstimator(fee.Config{
		Strategy:       cfg.Fees.Strategy,
		WindowSeconds:  time.Duration(cfg.Fees.WindowSeconds) * time.Second,
		BufferRatio:    cfg.Fees.BufferRatio,
		BumpMultiplier: cfg.Fees.BumpMultiplier,
		MinIncrement:   cfg.Fees.MinIncrement,
		BaseFee:        cfg.Fees.BaseFeeLamports,
		FixedPrice:     cfg.Fees.FixedPrice,
		MinSamples:     cfg.Fees.MinSamples,
	}, pool, logger)
	if err != nil {
		return nil, err
	}

	programWhitelist, err := parseKeySet(cfg.Security.ProgramWhitelist)
	if err != nil {
		return nil, err
	}
	accountWhitelist, err := parseKeySet(cfg.Security.AccountWhitelist)
	if err != nil {
		return nil, err
	}
	simulator := simulate.NewSimulator(simulate.Config{
		ProgramWhitelist: programWhitelist,
		AccountWhitelist: accountWhitelist,
	}, pool)

	adapter := solanatx.NewAdapter()

	gateway, err := buildGateway(context.Background(), cfg.Signing)
	if err != nil {
		return nil, err
	}

	sink := obs.NewLoggingSink(logger)
	svc := orchestrator.NewService(orchestrator.Config{
		MaxAttempts:             cfg.Bundle.MaxAttempts,
		Parallelism:             cfg.Bundle.Parallelism,
		PollInterval:            time.Duration(cfg.Bundle.PollIntervalMs) * time.Millisecond,
		ConfirmDeadline:         time.Duration(cfg.Bundle.ConfirmDeadlineMs) * time.Millisecond,
		PerTxComputeUnitCap:     cfg.Bundle.PerTxComputeUnitCap,
		PerTxSizeCapBytes:       cfg.Bundle.PerTxSizeCapBytes,
		ResimulateOnBump:        cfg.Bundle.ResimulateOnBump,
		CountConfirmedAsSuccess: cfg.Bundle.CountsConfirmedAsSuccess(),
	}, pool, estimator, simulator, gateway, adapter, sink, logger)

	return svc, nil
}

func buildGateway(ctx context.Context, cfg config.SigningConfig) (signing.Gateway, error) {
	switch cfg.Provider {
	case "file":
		mnemonicBytes, err := os.ReadFile(cfg.KeyFilePath)
		if err != nil {
			return nil, bundlerrors.New(bundlerrors.Config, "failed to read mnemonic file "+cfg.KeyFilePath, err)
		}
		return signing.NewInProcessFromMnemonic(string(mnemonicBytes), cfg.Passphrase, cfg.AccountIndices)
	case "env":
		return signing.NewFromEnvironment(cfg.EnvVar, cfg.Passphrase)
	case "external":
		return signing.NewExternalService(ctx, cfg.ExternalBaseURL, cfg.ExternalAPIKey, 10*time.Second)
	default:
		return nil, bundlerrors.New(bundlerrors.Config, "unknown signing provider "+cfg.Provider, nil)
	}
}

func parseKeySet(encoded []string) (map[solana.PublicKey]struct{}, error) {
	if len(encoded) == 0 {
		return nil, nil
	}
	out := make(map[solana.PublicKey]struct{}, len(encoded))
	for _, s := range encoded {
		pk, err := solana.PublicKeyFromBase58(s)
		if err != nil {
			return nil, bundlerrors.New(bundlerrors.Config, "invalid whitelist entry "+s, err)
		}
		out[pk] = struct{}{}
	}
	return out, nil
}

func succeed(command, requestID string, start time.Time, result interface{}) int {
	if cli.IsDashboard() {
		cli.WriteJSON(cli.Response{Success: true, Command: command, RequestID: requestID, Result: result, DurationMs: time.Since(start).Milliseconds()})
		return 0
	}
	fmt.Printf("%s: ok (%s)\n", command, time.Since(start))
	fmt.Printf("%+v\n", result)
	return 0
}

func fail(command string, start time.Time, err error) int {
	kind := string(bundlerrors.KindOf(err))
	if cli.IsDashboard() {
		cli.WriteJSON(cli.Response{
			Success:    false,
			Command:    command,
			Error:      &cli.Error{Kind: kind, Message: err.Error()},
			DurationMs: time.Since(start).Milliseconds(),
		})
	} else {
		cli.WriteLog(fmt.Sprintf("%s: failed: %v", command, err))
	}
	return cli.ExitCode(kind)
}
