package cmd

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/Golem-Base/fx-bridge/internal"
	"github.com/Golem-Base/fx-bridge/internal/config"
	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"
)

var (
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Usage:   "Path to the JSON or YAML config file",
		Value:   config.DefaultPath,
		EnvVars: []string{"FX_BRIDGE_CONFIG"},
	}
	OperationFlag = &cli.StringFlag{
		Name:    "operation",
		Aliases: []string{"o"},
		Usage:   "Operation to run: " + strings.Join(Operations, ", "),
	}
	AmountFlag = &cli.StringFlag{
		Name:    "amount",
		Aliases: []string{"a"},
		Usage:   "Amount of tokens to bridge, in whole tokens (e.g. 1.5)",
	}
	DestinationFlag = &cli.StringFlag{
		Name:    "destination",
		Aliases: []string{"d"},
		Usage:   "Address receiving the tokens, defaults to the signing account",
	}
)

var transferFlags = []cli.Flag{AmountFlag, DestinationFlag}

// parseAmount scales a decimal token amount by 10^18. Only positive amounts are valid.
func parseAmount(value string) (*big.Int, error) {
	amount, err := internal.ParseTokenAmount(value, internal.TokenDecimals)
	if err != nil {
		return nil, err
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}

// parseDestination returns the zero address when no destination was given.
func parseDestination(value string) (common.Address, error) {
	if strings.TrimSpace(value) == "" {
		return common.Address{}, nil
	}
	return internal.SafeParseAddress(value)
}
