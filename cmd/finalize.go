package cmd

import (
	"fmt"
	"io"

	"github.com/Golem-Base/fx-bridge/bridge"
	"github.com/urfave/cli/v2"
)

var FinalizeL1DepositsCommand = &cli.Command{
	Name:  OpFinalizeL1Deposits,
	Usage: "Relays every pending deposit message of the account to L1",
	Action: func(c *cli.Context) error {
		return withSession(c, func(s *Session, out io.Writer) error {
			summary, err := s.Relay.FinalizeAll(c.Context, s.Bridger.Account())
			for _, entry := range summary.Entries {
				fmt.Fprintf(out, "Checking tx hash %s: %s\n", entry.L2TxHash.Hex(), entry.Result.Status)
				if entry.Result.Status == bridge.FinalizeReady {
					fmt.Fprintf(out, "  finalized in L1 tx %s\n", entry.Result.L1TxHash.Hex())
				}
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Checked %d deposits: %d finalized, %d already processed, %d pending\n",
				len(summary.Entries),
				summary.Counts[bridge.FinalizeReady],
				summary.Counts[bridge.FinalizeAlreadyProcessed],
				summary.Counts[bridge.FinalizePending],
			)
			return nil
		})
	},
}
