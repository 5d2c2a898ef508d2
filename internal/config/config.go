// Package config loads the YAML configuration schema of §6: file read,
// defaults, then Validate. Environment variables are not consulted. Configuration here is operational
// (endpoints, fees, whitelists), never user-secret material.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/yourusername/solbundler/internal/bundlerrors"
)

type Config struct {
	RPC      RPCConfig      `yaml:"rpc"`
	Fees     FeesConfig     `yaml:"fees"`
	Security SecurityConfig `yaml:"security"`
	Bundle   BundleConfig   `yaml:"bundle"`
	Signing  SigningConfig  `yaml:"signing"`
}

type EndpointConfig struct {
	URL       string `yaml:"url"`
	Weight    int    `yaml:"weight"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type RPCConfig struct {
	Endpoints           []EndpointConfig `yaml:"endpoints"`
	MaxRetries          int              `yaml:"max_retries"`
	ProbeIntervalMs     int              `yaml:"probe_interval_ms"`
	QuarantineInitialMs int              `yaml:"quarantine_initial_ms"`
	QuarantineMaxMs     int              `yaml:"quarantine_max_ms"`
}

type FeesConfig struct {
	Strategy        string  `yaml:"strategy"`
	WindowSeconds   int     `yaml:"window_seconds"`
	BufferRatio     float64 `yaml:"buffer_ratio"`
	BumpMultiplier  float64 `yaml:"bump_multiplier"`
	MinIncrement    uint64  `yaml:"min_increment"`
	MaxPriceLamports uint64 `yaml:"max_price_lamports"`
	BaseFeeLamports uint64  `yaml:"base_fee_lamports"`
	FixedPrice      uint64  `yaml:"fixed_price"`
	// MinSamples is S_min: the minimum number of account-scoped fee samples
	// required before trusting that window over the global one. Default 10.
	MinSamples int `yaml:"min_samples"`
}

type SecurityConfig struct {
	ProgramWhitelist []string `yaml:"program_whitelist"`
	AccountWhitelist []string `yaml:"account_whitelist"`
}

type BundleConfig struct {
	MaxAttempts         int   `yaml:"max_attempts"`
	Parallelism         int   `yaml:"parallelism"`
	PollIntervalMs      int   `yaml:"poll_interval_ms"`
	ConfirmDeadlineMs   int   `yaml:"confirm_deadline_ms"`
	PerTxComputeUnitCap int   `yaml:"per_tx_cu_cap"`
	PerTxSizeCapBytes   int   `yaml:"per_tx_size_cap"`
	ResimulateOnBump    bool  `yaml:"resimulate_on_bump"`

	// CountConfirmedAsSuccess is a *bool because its YAML absence must be
	// distinguishable from an explicit false; nil means "use the default".
	CountConfirmedAsSuccess *bool `yaml:"count_confirmed_as_success"`
}

// CountsConfirmedAsSuccess reports whether "confirmed" commitment (rather
// than only "finalized") counts as a landed transaction, defaulting to
// true when unset in the config file.
func (b BundleConfig) CountsConfirmedAsSuccess() bool {
	if b.CountConfirmedAsSuccess == nil {
		return true
	}
	return *b.CountConfirmedAsSuccess
}

type SigningConfig struct {
	Provider string `yaml:"provider"` // "env" | "file" | "external"

	// provider == "file": KeyFilePath holds a BIP39 mnemonic, derived
	// in-process into one Ed25519 keypair per AccountIndices.
	KeyFilePath    string   `yaml:"key_file_path"`
	Passphrase     string   `yaml:"passphrase"`
	AccountIndices []uint32 `yaml:"account_indices"`

	// provider == "env": EnvVar holds a base64(EncryptedBlob) whose
	// plaintext is a raw Ed25519 seed, decrypted with Passphrase.
	EnvVar string `yaml:"env_var"`

	// provider == "external"
	ExternalBaseURL string `yaml:"external_base_url"`
	ExternalAPIKey  string `yaml:"external_api_key"`
}

// Load reads and validates a YAML config file at path, matching the
// ecosystem's read-then-unmarshal-then-validate loader shape.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, bundlerrors.New(bundlerrors.Config, "failed to read config file", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, bundlerrors.New(bundlerrors.Config, "failed to parse config YAML", err)
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.RPC.MaxRetries == 0 {
		cfg.RPC.MaxRetries = 3
	}
	if cfg.RPC.ProbeIntervalMs == 0 {
		cfg.RPC.ProbeIntervalMs = 10000
	}
	if cfg.RPC.QuarantineInitialMs == 0 {
		cfg.RPC.QuarantineInitialMs = 5000
	}
	if cfg.RPC.QuarantineMaxMs == 0 {
		cfg.RPC.QuarantineMaxMs = 60000
	}
	if cfg.Fees.Strategy == "" {
		cfg.Fees.Strategy = "p75_plus_buffer"
	}
	if cfg.Fees.WindowSeconds == 0 {
		cfg.Fees.WindowSeconds = 60
	}
	if cfg.Fees.BufferRatio == 0 {
		cfg.Fees.BufferRatio = 0.10
	}
	if cfg.Fees.BumpMultiplier == 0 {
		cfg.Fees.BumpMultiplier = 1.3
	}
	if cfg.Bundle.MaxAttempts == 0 {
		cfg.Bundle.MaxAttempts = 3
	}
	if cfg.Bundle.Parallelism == 0 {
		cfg.Bundle.Parallelism = 4
	}
	if cfg.Bundle.PollIntervalMs == 0 {
		cfg.Bundle.PollIntervalMs = 400
	}
	if cfg.Bundle.ConfirmDeadlineMs == 0 {
		cfg.Bundle.ConfirmDeadlineMs = 30000
	}
}

// Validate checks required fields and cross-field constraints.
func (c *Config) Validate() error {
	if len(c.RPC.Endpoints) == 0 {
		return bundlerrors.New(bundlerrors.Config, "rpc.endpoints must have at least one entry", nil)
	}
	for _, e := range c.RPC.Endpoints {
		if e.URL == "" {
			return bundlerrors.New(bundlerrors.Config, "rpc.endpoints[].url is required", nil)
		}
	}
	switch c.Fees.Strategy {
	case "p75_plus_buffer", "fixed":
	default:
		return bundlerrors.New(bundlerrors.Config, fmt.Sprintf("unknown fees.strategy %q", c.Fees.Strategy), nil)
	}
	switch c.Signing.Provider {
	case "env", "file", "external":
	default:
		return bundlerrors.New(bundlerrors.Config, fmt.Sprintf("unknown signing.provider %q", c.Signing.Provider), nil)
	}
	return nil
}
