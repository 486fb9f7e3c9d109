package main

import (
	"fmt"
	"os"

	"github.com/erigontech/erigon-lib/log/v3"
	"github.com/urfave/cli/v2"
)

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "path to a slotlens.yaml or slotlens.toml config file",
	}
	rpcURLFlag = &cli.StringFlag{
		Name:  "rpc-url",
		Usage: "JSON-RPC endpoint exposing eth_* and debug_trace*",
	}
	explorerURLFlag = &cli.StringFlag{
		Name:  "explorer-url",
		Usage: "block explorer API base URL (Etherscan-family getstoragelayout/getabi)",
	}
	explorerKeyFlag = &cli.StringFlag{
		Name:  "explorer-key",
		Usage: "block explorer API key",
	}
	chainIDFlag = &cli.Uint64Flag{
		Name:  "chain-id",
		Usage: "chain ID, used to key the layout cache",
	}
	toFlag = &cli.StringFlag{
		Name:     "to",
		Usage:    "contract address the call targets",
		Required: true,
	}
	fromFlag = &cli.StringFlag{
		Name:  "from",
		Usage: "caller address",
	}
	dataFlag = &cli.StringFlag{
		Name:  "data",
		Usage: "hex-encoded calldata",
	}
	txHashFlag = &cli.StringFlag{
		Name:  "tx-hash",
		Usage: "replay a historical transaction instead of simulating a new call",
	}
	valueFlag = &cli.StringFlag{
		Name:  "value",
		Usage: "hex-encoded wei value sent with a raw call",
	}
	pollFlag = &cli.DurationFlag{
		Name:  "poll-interval",
		Usage: "how often to poll for new blocks",
	}
	listenFlag = &cli.StringFlag{
		Name:  "listen",
		Usage: "address to serve the HTTP facade on",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "slotlens"
	app.Usage = "label EVM storage-slot accesses with the declared variable that produced them"
	app.UsageText = app.Name + " [global flags] command [command flags]"

	app.Flags = []cli.Flag{configFlag, rpcURLFlag, explorerURLFlag, explorerKeyFlag, chainIDFlag}

	app.Commands = []*cli.Command{
		{
			Name:   "trace",
			Usage:  "label the storage accesses of one transaction",
			Flags:  []cli.Flag{toFlag, fromFlag, dataFlag, txHashFlag, valueFlag},
			Action: withRecovery(runTrace),
		},
		{
			Name:   "watch",
			Usage:  "label the storage accesses of every new transaction touching an address",
			Flags:  []cli.Flag{toFlag, pollFlag},
			Action: withRecovery(runWatch),
		},
		{
			Name:   "serve",
			Usage:  "expose the one-shot trace API over HTTP",
			Flags:  []cli.Flag{listenFlag},
			Action: withRecovery(runServe),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error("slotlens: fatal", "err", err)
		os.Exit(1)
	}
}

// withRecovery mirrors the teacher's top-level panic guard (cmd/erigon's
// main.go catches panics so a single bad trace doesn't dump a raw stack to
// an operator's terminal) scoped down to one subcommand action.
func withRecovery(action cli.ActionFunc) cli.ActionFunc {
	return func(c *cli.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("slotlens: panic: %v", r)
			}
		}()
		return action(c)
	}
}
