package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yourusername/solbundler/internal/bundlerrors"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalValidConfig = `
rpc:
  endpoints:
    - url: "https://rpc-a.example.com"
      weight: 1
signing:
  provider: env
  env_var: SOLBUNDLER_KEY
`

func TestLoad_MinimalConfigAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, minimalValidConfig)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.RPC.MaxRetries)
	require.Equal(t, "p75_plus_buffer", cfg.Fees.Strategy)
	require.Equal(t, 1.3, cfg.Fees.BumpMultiplier)
	require.Equal(t, 4, cfg.Bundle.Parallelism)
	require.True(t, cfg.Bundle.CountsConfirmedAsSuccess())
}

func TestLoad_MissingFileReturnsConfigError(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	require.Error(t, err)
	require.Equal(t, bundlerrors.Config, bundlerrors.KindOf(err))
}

func TestLoad_NoEndpointsFailsValidation(t *testing.T) {
	path := writeTempConfig(t, `
signing:
  provider: env
  env_var: X
`)
	_, err := Load(path)
	require.Error(t, err)
	require.Equal(t, bundlerrors.Config, bundlerrors.KindOf(err))
}

func TestLoad_UnknownFeeStrategyFailsValidation(t *testing.T) {
	path := writeTempConfig(t, `
rpc:
  endpoints:
    - url: "https://rpc-a.example.com"
fees:
  strategy: made_up_strategy
signing:
  provider: env
  env_var: X
`)
	_, err := Load(path)
	require.Error(t, err)
	require.Equal(t, bundlerrors.Config, bundlerrors.KindOf(err))
}

func TestLoad_UnknownSigningProviderFailsValidation(t *testing.T) {
	path := writeTempConfig(t, `
rpc:
  endpoints:
    - url: "https://rpc-a.example.com"
signing:
  provider: carrier_pigeon
`)
	_, err := Load(path)
	require.Error(t, err)
	require.Equal(t, bundlerrors.Config, bundlerrors.KindOf(err))
}

func TestLoad_ExplicitFalseCountConfirmedIsPreserved(t *testing.T) {
	path := writeTempConfig(t, `
rpc:
  endpoints:
    - url: "https://rpc-a.example.com"
signing:
  provider: env
  env_var: X
bundle:
  count_confirmed_as_success: false
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.False(t, cfg.Bundle.CountsConfirmedAsSuccess())
}

func TestLoad_EndpointWithoutURLFailsValidation(t *testing.T) {
	path := writeTempConfig(t, `
rpc:
  endpoints:
    - weight: 1
signing:
  provider: env
  env_var: X
`)
	_, err := Load(path)
	require.Error(t, err)
}
