package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"
)

const (
	OpDeposit            = "deposit"
	OpWithdraw           = "withdraw"
	OpBalances           = "balances"
	OpFinalizeL1Deposits = "finalize_l1_deposits"
	OpListL1Deposits     = "list_l1_deposits"
)

var Operations = []string{OpDeposit, OpWithdraw, OpBalances, OpFinalizeL1Deposits, OpListL1Deposits}

// Commands exposes every operation as a subcommand as well.
var Commands = []*cli.Command{
	DepositCommand,
	WithdrawCommand,
	BalancesCommand,
	FinalizeL1DepositsCommand,
	ListL1DepositsCommand,
}

// Flags are the root flags selecting and parameterizing an operation.
var Flags = []cli.Flag{OperationFlag, AmountFlag, DestinationFlag, ConfigFlag}

// OperationAction runs the operation named by --operation. A missing or unknown
// operation prints the usage and fails.
func OperationAction(c *cli.Context) error {
	op := c.String(OperationFlag.Name)
	for _, command := range Commands {
		if command.Name == op {
			return command.Action(c)
		}
	}

	_ = cli.ShowAppHelp(c)
	if op == "" {
		return cli.Exit("", 1)
	}
	return cli.Exit(fmt.Sprintf("Invalid operation: %s", op), 1)
}

// withSession opens a session for the duration of run and converts failures into
// exit code 1.
func withSession(c *cli.Context, run func(s *Session, out io.Writer) error) error {
	s, err := openSession(c)
	if err != nil {
		return exitError(fmt.Errorf("could not set up bridge: %w", err))
	}
	defer s.Close()

	return exitError(run(s, c.App.Writer))
}

func exitError(err error) error {
	if err == nil {
		return nil
	}
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		return err
	}
	return cli.Exit(err.Error(), 1)
}
