package main

import (
	"fmt"

	"github.com/erigontech/erigon-lib/log/v3"
	"github.com/urfave/cli/v2"

	slotlens "github.com/bytesentry/slotlens"
	"github.com/bytesentry/slotlens/config"
	"github.com/bytesentry/slotlens/evmcommon"
	"github.com/bytesentry/slotlens/layoutcache"
	"github.com/bytesentry/slotlens/layoutsource"
)

// buildAnalyzer wires a config into a ready-to-use Analyzer: a live
// JSON-RPC oracle, an explorer-backed LayoutSource, and a bounded layout
// cache shared across every call this process makes (spec.md §5).
func buildAnalyzer(cfg config.Config) (*slotlens.Analyzer, error) {
	cache, err := layoutcache.New(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("slotlens: build layout cache: %w", err)
	}
	source := layoutsource.NewClient(cfg.ExplorerAPIURL, cfg.ExplorerAPIKey)
	logger := log.New("component", "slotlens-engine")
	return slotlens.New(cfg.RPCURL, source, cfg.ChainID, slotlens.WithCache(cache), slotlens.WithLogger(logger)), nil
}

// parseTxInput builds a TransactionInput from the trace/watch flag set. A
// --tx-hash replays a historical transaction; otherwise it is a raw call,
// with a plain value transfer a legitimate instance of that shape
// (spec.md §6 — the three input shapes are mutually exclusive, not one
// mandatory and two optional).
func parseTxInput(c *cli.Context) (slotlens.TransactionInput, error) {
	to := evmcommon.HexToAddress(c.String(toFlag.Name))
	tx := slotlens.TransactionInput{To: &to}

	if h := c.String(txHashFlag.Name); h != "" {
		hash := evmcommon.HexToHash(h)
		tx.TxHash = &hash
		return tx, nil
	}

	if from := c.String(fromFlag.Name); from != "" {
		tx.From = evmcommon.HexToAddress(from)
	}
	if data := c.String(dataFlag.Name); data != "" {
		tx.Data = evmcommon.FromHex(data)
	}
	if v := c.String(valueFlag.Name); v != "" {
		value := evmcommon.HexToHash(v)
		tx.Value = &value
	}
	return tx, nil
}
