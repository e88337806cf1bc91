package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/Golem-Base/fx-bridge/bridge"
	"github.com/Golem-Base/fx-bridge/internal"
	"github.com/urfave/cli/v2"
)

var WithdrawCommand = &cli.Command{
	Name:  OpWithdraw,
	Usage: "Withdraws bridged tokens from L1 through the root tunnel back to L2",
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

			balance, err := s.Bridger.CheckBalance(ctx, bridge.Withdraw, amount)
			if balance != nil {
				fmt.Fprintf(out, "Account balance: %s\n", internal.FormatTokens(balance))
			}
			if errors.Is(err, bridge.ErrInsufficientBalance) {
				return cli.Exit("Insufficient balance", 1)
			}
			if err != nil {
				return err
			}

			l1Tx, err := s.Bridger.Withdraw(ctx, amount, destination)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Withdraw on L1 tx: %s\n", l1Tx.Hex())
			fmt.Fprintln(out, "Withdraw has been initiated, check balances in about half an hour or more")
			return nil
		})
	},
}
