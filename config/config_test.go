package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slotlens.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rpcUrl: http://localhost:8545\ncacheSize: 128\n"), 0o600))

	cfg, err := Load(path, Default())
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8545", cfg.RPCURL)
	require.Equal(t, 128, cfg.CacheSize)
	require.Equal(t, uint64(1), cfg.ChainID, "unset fields keep the default")
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slotlens.toml")
	require.NoError(t, os.WriteFile(path, []byte("rpcUrl = \"http://localhost:8545\"\nchainId = 137\n"), 0o600))

	cfg, err := Load(path, Default())
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8545", cfg.RPCURL)
	require.Equal(t, uint64(137), cfg.ChainID)
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slotlens.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))

	_, err := Load(path, Default())
	require.Error(t, err)
}

func TestEnvOverridesRPCURL(t *testing.T) {
	t.Setenv("SLOTLENS_RPC_URL", "http://env:8545")
	cfg, err := Load("", Default())
	require.NoError(t, err)
	require.Equal(t, "http://env:8545", cfg.RPCURL)
}

func TestValidateRequiresRPCURL(t *testing.T) {
	err := Default().Validate()
	require.Error(t, err)
}
