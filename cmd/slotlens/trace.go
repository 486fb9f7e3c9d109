package main

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/urfave/cli/v2"
)

var jsonOut = jsoniter.ConfigCompatibleWithStandardLibrary

// runTrace implements `slotlens trace`: one traceStorageAccess call,
// printed as indented JSON (spec.md §6).
func runTrace(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	analyzer, err := buildAnalyzer(cfg)
	if err != nil {
		return err
	}
	tx, err := parseTxInput(c)
	if err != nil {
		return err
	}

	traces, err := analyzer.TraceStorageAccess(c.Context, tx)
	if err != nil && traces == nil {
		return fmt.Errorf("slotlens: trace: %w", err)
	}

	enc, encErr := jsonOut.MarshalIndent(traces, "", "  ")
	if encErr != nil {
		return fmt.Errorf("slotlens: encode trace: %w", encErr)
	}
	fmt.Fprintln(os.Stdout, string(enc))

	if err != nil {
		// A reverted simulation still yields a partial trace (spec.md §6
		// "partial traces on revert") — report it, but exit non-zero.
		return fmt.Errorf("slotlens: transaction reverted: %w", err)
	}
	return nil
}
