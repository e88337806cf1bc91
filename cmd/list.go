package cmd

import (
	"fmt"
	"io"

	"github.com/Golem-Base/fx-bridge/internal"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
)

var ListL1DepositsCommand = &cli.Command{
	Name:  OpListL1Deposits,
	Usage: "Lists the deposit messages of the account and whether their proofs are ready",
	Action: func(c *cli.Context) error {
		return withSession(c, func(s *Session, out io.Writer) error {
			statuses, err := s.Relay.ListMessages(c.Context, s.Bridger.Account())
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(out)
			table.SetHeader([]string{"L2 Tx", "Block", "Amount", "Proof"})
			for _, st := range statuses {
				amount := "-"
				if a := st.Amount(); a != nil {
					amount = internal.FormatTokens(a)
				}
				table.Append([]string{st.L2TxHash.Hex(), fmt.Sprint(st.BlockNumber), amount, st.Proof.String()})
			}
			table.Render()
			return nil
		})
	},
}
