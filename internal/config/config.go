// Package config loads CoreDB's server configuration from a TOML file,
// following the teacher corpus's convention (dolthub-dolt vendors
// BurntSushi/toml for its own config surface) of keeping runtime tuning
// knobs out of code and flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the full set of tunables a CoreDB server reads at startup.
// Every field has a sane default so a missing config file is not an error.
type Config struct {
	DataDir         string `toml:"data_dir"`
	ListenAddr      string `toml:"listen_addr"`
	BufferPoolSize  int    `toml:"buffer_pool_size"`
	LogBufferBytes  int    `toml:"log_buffer_bytes"`
	CheckpointEvery int    `toml:"checkpoint_every_commits"`
	LogLevel        string `toml:"log_level"`
}

// Default returns the configuration CoreDB uses when no file is present.
func Default(dataDir string) Config {
	return Config{
		DataDir:         dataDir,
		ListenAddr:      "127.0.0.1:5433",
		BufferPoolSize:  512,
		LogBufferBytes:  64 * 1024,
		CheckpointEvery: 1000,
		LogLevel:        "info",
	}
}

// Load reads <dataDir>/coredb.toml if present, overlaying it onto the
// defaults; a missing file is not an error.
func Load(dataDir string) (Config, error) {
	cfg := Default(dataDir)

	path := filepath.Join(dataDir, "coredb.toml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	cfg.DataDir = dataDir
	return cfg, nil
}

// Save persists cfg to <DataDir>/coredb.toml.
func (c Config) Save() error {
	path := filepath.Join(c.DataDir, "coredb.toml")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(c)
}
