// Package config is the ambient configuration layer for cmd/slotlens: RPC
// endpoint, explorer credentials, cache sizing, and poll interval, loadable
// from a YAML or TOML file (following the teacher's own
// setFlagsFromConfigFile convention) with environment-variable overrides
// (spec.md §6 "Environment variables: RPC URLs and explorer API keys").
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v2"
)

// Config holds every value the CLI and the analysis engine need that isn't
// part of a single transaction input.
type Config struct {
	RPCURL              string `yaml:"rpcUrl" toml:"rpcUrl"`
	ExplorerAPIURL      string `yaml:"explorerApiUrl" toml:"explorerApiUrl"`
	ExplorerAPIKey      string `yaml:"explorerApiKey" toml:"explorerApiKey"`
	ChainID             uint64 `yaml:"chainId" toml:"chainId"`
	CacheSize           int    `yaml:"cacheSize" toml:"cacheSize"`
	PollIntervalSeconds int    `yaml:"pollIntervalSeconds" toml:"pollIntervalSeconds"`
	ListenAddr          string `yaml:"listenAddr" toml:"listenAddr"`
}

// PollInterval returns the configured poll interval as a time.Duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// Default returns the baseline configuration; callers layer a config file
// and environment overrides on top of it.
func Default() Config {
	return Config{
		ChainID:             1,
		CacheSize:           512,
		PollIntervalSeconds: 4,
		ListenAddr:          "127.0.0.1:8585",
	}
}

// Load reads path (.yaml/.yml or .toml) into a copy of base, only
// overwriting fields the file sets, then applies environment overrides.
// This mirrors the teacher's own setFlagsFromConfigFile behavior of never
// clobbering a value the caller already set explicitly.
func Load(path string, base Config) (Config, error) {
	cfg := base
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		switch filepath.Ext(path) {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse yaml %s: %w", path, err)
			}
		case ".toml":
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse toml %s: %w", path, err)
			}
		default:
			return Config{}, fmt.Errorf("config: unsupported file extension %q (want .yaml or .toml)", filepath.Ext(path))
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyEnvOverrides layers RPC URLs and explorer credentials from the
// environment on top of file/default values (spec.md §6): these are opaque
// strings, never interpreted by the core.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SLOTLENS_RPC_URL"); v != "" {
		cfg.RPCURL = v
	}
	if v := os.Getenv("SLOTLENS_EXPLORER_API_URL"); v != "" {
		cfg.ExplorerAPIURL = v
	}
	if v := os.Getenv("SLOTLENS_EXPLORER_API_KEY"); v != "" {
		cfg.ExplorerAPIKey = v
	}
}

// Validate reports the first missing required field, or nil.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("config: rpcUrl is required")
	}
	if c.ExplorerAPIURL == "" {
		return fmt.Errorf("config: explorerApiUrl is required")
	}
	return nil
}
