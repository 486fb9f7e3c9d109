package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/erigontech/erigon-lib/log/v3"
	"github.com/urfave/cli/v2"

	"github.com/bytesentry/slotlens/assembler"
	"github.com/bytesentry/slotlens/evmcommon"
)

// runWatch implements `slotlens watch`: subscribes to watchStorage for one
// address and prints every StorageAccessTrace it produces until the
// process receives SIGINT/SIGTERM (spec.md §6), mirroring the teacher's
// handleTerminationSignals idiom.
func runWatch(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	analyzer, err := buildAnalyzer(cfg)
	if err != nil {
		return err
	}

	address := evmcommon.HexToAddress(c.String(toFlag.Name))
	pollInterval := c.Duration(pollFlag.Name)
	if pollInterval <= 0 {
		pollInterval = cfg.PollInterval()
	}

	unsubscribe := analyzer.WatchStorage(c.Context, address,
		func(trace assembler.StorageAccessTrace) {
			enc, _ := jsonOut.MarshalIndent(trace, "", "  ")
			fmt.Fprintln(os.Stdout, string(enc))
		},
		func(err error) {
			log.Warn("slotlens watch: poll failed", "address", address.Hex(), "err", err)
		},
		pollInterval,
	)

	handleTerminationSignals(unsubscribe)
	return nil
}

func handleTerminationSignals(stop func()) {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGTERM, syscall.SIGINT)

	switch s := <-signalCh; s {
	case syscall.SIGTERM:
		log.Info("slotlens watch: stopping")
		stop()
	case syscall.SIGINT:
		log.Info("slotlens watch: terminating")
		stop()
		os.Exit(-int(syscall.SIGINT))
	}
}
