// Package config holds the storage configuration. It is deliberately small:
// consensus, networking and process wiring live with the embedding
// application, not here.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/ledgernet/ledgerdb/storage"
)

// NOTE: Most of the structs & relevant comments + the default configuration
// options were used to manually generate the config.toml. Please reflect any
// changes made here in the defaultConfigTemplate constant in toml.go.

const (
	defaultDBBackend = string(storage.PebbleDBBackend)
	defaultDBPath    = "data"

	// defaultReadCacheSize bounds the resolved historical-read cache. Each
	// entry is one (address, column, height) probe result.
	defaultReadCacheSize = 10_000
)

// Config defines the configuration of the ledger store.
type Config struct {
	// RootDir is the root directory for all data.
	RootDir string `toml:"home"`

	// DBBackend selects the embedded engine: "pebbledb" | "goleveldb" | "memdb".
	DBBackend string `toml:"db_backend"`

	// DBPath is the database directory, relative to RootDir unless absolute.
	DBPath string `toml:"db_dir"`

	// ReadCacheSize is the number of resolved historical reads kept in
	// memory. Zero disables the cache.
	ReadCacheSize int `toml:"read_cache_size"`
}

// DefaultConfig returns a default configuration for the ledger store.
func DefaultConfig() *Config {
	return &Config{
		DBBackend:     defaultDBBackend,
		DBPath:        defaultDBPath,
		ReadCacheSize: defaultReadCacheSize,
	}
}

// TestConfig returns a configuration for testing the ledger store: the
// database is kept in memory and nothing survives the test process.
func TestConfig() *Config {
	cfg := DefaultConfig()
	cfg.DBBackend = string(storage.MemDBBackend)
	return cfg
}

// DBDir returns the full path to the database directory.
func (cfg *Config) DBDir() string {
	return rootify(cfg.DBPath, cfg.RootDir)
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *Config) ValidateBasic() error {
	switch storage.BackendType(cfg.DBBackend) {
	case storage.PebbleDBBackend, storage.GoLevelDBBackend, storage.MemDBBackend:
	default:
		return fmt.Errorf("unknown db_backend %q", cfg.DBBackend)
	}
	if cfg.ReadCacheSize < 0 {
		return fmt.Errorf("read_cache_size cannot be negative")
	}
	return nil
}

// rootify makes sure paths are relative to root unless they are absolute.
func rootify(path, root string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
