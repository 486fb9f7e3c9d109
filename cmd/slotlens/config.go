package main

import (
	"github.com/urfave/cli/v2"

	"github.com/bytesentry/slotlens/config"
)

// loadConfig layers a config file (if any) over config.Default(), then lets
// global flags win over the file so an operator can override one field on
// the command line without editing slotlens.yaml.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String(configFlag.Name), config.Default())
	if err != nil {
		return config.Config{}, err
	}
	if v := c.String(rpcURLFlag.Name); v != "" {
		cfg.RPCURL = v
	}
	if v := c.String(explorerURLFlag.Name); v != "" {
		cfg.ExplorerAPIURL = v
	}
	if v := c.String(explorerKeyFlag.Name); v != "" {
		cfg.ExplorerAPIKey = v
	}
	if v := c.Uint64(chainIDFlag.Name); v != 0 {
		cfg.ChainID = v
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
