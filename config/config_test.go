package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8651", cfg.RPCAddress)
	require.Equal(t, "127.0.0.1:8652", cfg.GatewayAddress)
	require.Equal(t, "groupbuy-local", cfg.NetworkName)
	require.Empty(t, cfg.RPCAuthToken)

	_, err = os.Stat(path)
	require.NoError(t, err)

	// Loading the freshly written file yields the same settings.
	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, again)
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("RPCAddress = \"0.0.0.0:9000\"\nRPCAuthToken = \"hunter2\"\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", cfg.RPCAddress)
	require.Equal(t, "hunter2", cfg.RPCAuthToken)
	require.Equal(t, "127.0.0.1:8652", cfg.GatewayAddress)
	require.Equal(t, "./groupbuy-data", cfg.DataDir)
}
