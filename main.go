package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Golem-Base/fx-bridge/cmd"

	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
)

const envVarPrefix = "FX_BRIDGE"

func main() {
	oplog.SetupDefaults()

	app := &cli.App{
		Name:     "fx-bridge",
		Usage:    "Bridges ERC-20 tokens between Ethereum and Polygon through FxPortal tunnels",
		Flags:    append(append([]cli.Flag{}, cmd.Flags...), oplog.CLIFlags(envVarPrefix)...),
		Commands: cmd.Commands,
		Before: func(c *cli.Context) error {
			logger := oplog.NewLogger(oplog.AppOut(c), oplog.ReadCLIConfig(c))
			oplog.SetGlobalLogHandler(logger.Handler())
			return nil
		},
		Action: cmd.OperationAction,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Crit("Application failed", "err", err)
	}
}
