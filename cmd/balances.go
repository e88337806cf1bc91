package cmd

import (
	"io"

	"github.com/Golem-Base/fx-bridge/internal"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
)

var BalancesCommand = &cli.Command{
	Name:  OpBalances,
	Usage: "Prints the LP token balance on L2 and the bridged token balance on L1",
	Action: func(c *cli.Context) error {
		return withSession(c, func(s *Session, out io.Writer) error {
			balances, err := s.Bridger.Balances(c.Context)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(out)
			table.SetHeader([]string{"Chain", "Token", "Address", "Balance"})
			for _, b := range balances {
				table.Append([]string{b.Chain, b.Token, b.Address.Hex(), internal.FormatTokens(b.Amount)})
			}
			table.Render()
			return nil
		})
	},
}
