package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/Golem-Base/fx-bridge/bridge"
	"github.com/Golem-Base/fx-bridge/internal"
	"github.com/urfave/cli/v2"
)

var DepositCommand = &cli.Command{
	Name:  OpDeposit,
	Usage: "Deposits LP tokens from L2 into the child tunnel and finalizes the transfer on L1",
	Flags: transferFlags,
	Action: func(c *cli.Context) error {
		amount, err := parseAmount(c.String(AmountFlag.Name))
		if err != nil {
			return cli.Exit("Amount is incorrect", 1)
		}
		destination, err := parseDestination(c.String(DestinationFlag.Name))
		if err != nil {
			return cli.Exit(fmt.Sprintf("Destination is incorrect: %v", err), 1)
		}

		return withSession(c, func(s *Session, out io.Writer) error {
			ctx := c.Context

			balance, err := s.Bridger.CheckBalance(ctx, bridge.Deposit, amount)
			if balance != nil {
				fmt.Fprintf(out, "Account balance: %s\n", internal.FormatTokens(balance))
			}
			if errors.Is(err, bridge.ErrInsufficientBalance) {
				return cli.Exit("Insufficient balance", 1)
			}
			if err != nil {
				return err
			}

			l2Tx, err := s.Bridger.Deposit(ctx, amount, destination)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Deposit on L2 tx: %s\n", l2Tx.Hex())
			fmt.Fprintln(out, "Waiting for the proofs to finalize tx on L1...")

			l1Tx, err := s.Relay.WaitForFinalization(ctx, l2Tx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Receive message on L1 tx: %s\n", l1Tx.Hex())
			fmt.Fprintln(out, "Deposit has been completed")
			return nil
		})
	},
}
