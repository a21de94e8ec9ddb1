package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgernet/ledgerdb/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	require.NoError(t, cfg.ValidateBasic())

	assert.Equal(t, "pebbledb", cfg.DBBackend)
	assert.Equal(t, "data", cfg.DBPath)

	// DBDir is relative to the root dir unless absolute.
	cfg.RootDir = "/root"
	assert.Equal(t, filepath.Join("/root", "data"), cfg.DBDir())

	cfg.DBPath = "/var/ledger/data"
	assert.Equal(t, "/var/ledger/data", cfg.DBDir())
}

func TestTestConfig(t *testing.T) {
	cfg := config.TestConfig()
	require.NoError(t, cfg.ValidateBasic())
	assert.Equal(t, "memdb", cfg.DBBackend)
}

func TestValidateBasic(t *testing.T) {
	cfg := config.DefaultConfig()

	cfg.DBBackend = "boltdb"
	require.Error(t, cfg.ValidateBasic())

	cfg = config.DefaultConfig()
	cfg.ReadCacheSize = -1
	require.Error(t, cfg.ValidateBasic())
}

func TestConfigFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := config.DefaultConfig()
	cfg.DBBackend = "goleveldb"
	cfg.DBPath = "state-data"
	cfg.ReadCacheSize = 500
	require.NoError(t, config.WriteConfigFile(path, cfg))

	loaded, err := config.LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, "goleveldb", loaded.DBBackend)
	assert.Equal(t, "state-data", loaded.DBPath)
	assert.Equal(t, 500, loaded.ReadCacheSize)
}

func TestLoadConfigFileDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`db_backend = "memdb"`), 0o600))

	// Unset keys keep their defaults.
	loaded, err := config.LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, "memdb", loaded.DBBackend)
	assert.Equal(t, config.DefaultConfig().DBPath, loaded.DBPath)
	assert.Equal(t, config.DefaultConfig().ReadCacheSize, loaded.ReadCacheSize)
}

func TestLoadConfigFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`db_backend = "boltdb"`), 0o600))

	_, err := config.LoadConfigFile(path)
	require.Error(t, err)
}
