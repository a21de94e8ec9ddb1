package config

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"github.com/BurntSushi/toml"
)

// DefaultConfigTemplate must be kept in sync with the Config struct fields.
const defaultConfigTemplate = `# This is a TOML config file.
# For more information, see https://github.com/toml-lang/toml

# NOTE: Any path below can be absolute (e.g. "/var/myledger/data") or
# relative to the home directory (e.g. "data").

# Database backend: pebbledb | goleveldb | memdb
# * pebbledb (default)
# * goleveldb
# * memdb (testing only, not persisted across restarts)
db_backend = "{{ .DBBackend }}"

# Database directory
db_dir = "{{ .DBPath }}"

# Number of resolved historical reads kept in memory. 0 disables the cache.
read_cache_size = {{ .ReadCacheSize }}
`

var configTemplate *template.Template

func init() {
	var err error
	tmpl := template.New("configFileTemplate")
	if configTemplate, err = tmpl.Parse(defaultConfigTemplate); err != nil {
		panic(err)
	}
}

// LoadConfigFile reads a TOML config file into a Config, starting from the
// defaults for any key the file does not set.
func LoadConfigFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decoding config file %s: %w", path, err)
	}
	if err := cfg.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// WriteConfigFile renders config using the defaultConfigTemplate and writes
// it to path.
func WriteConfigFile(path string, cfg *Config) error {
	var buf bytes.Buffer
	if err := configTemplate.Execute(&buf, cfg); err != nil {
		panic(err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config file %s: %w", path, err)
	}
	return nil
}
