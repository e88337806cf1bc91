package internal

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/retry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
)

const ZeroAddressString string = "0x0000000000000000000000000000000000000000"

var ZeroAddress common.Address = common.HexToAddress(ZeroAddressString)

func ParseUint256BigInt(value string) (*big.Int, error) {
	uint, err := uint256.FromDecimal(value)
	if err != nil {
		return nil, fmt.Errorf("could not parse value as valid uint256: %w", err)
	}
	return uint.ToBig(), nil
}

func SafeParseAddress(addressHex string) (common.Address, error) {
	addressHex = strings.ToLower(strings.TrimSpace(addressHex))
	if !common.IsHexAddress(addressHex) {
		return common.Address{}, fmt.Errorf("invalid Ethereum address: %s", addressHex)
	}

	address := common.HexToAddress(addressHex)
	if address == ZeroAddress {
		return common.Address{}, fmt.Errorf("zero address is not allowed")
	}

	return address, nil
}

func WaitForChainsStart(ctx context.Context, clients []*ethclient.Client) error {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	readyClients := make(map[*ethclient.Client]bool)

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for all clients to report block production")

		case <-ticker.C:
			for _, client := range clients {
				if readyClients[client] {
					continue
				}

				header, err := client.HeaderByNumber(ctx, nil)
				if err != nil {
					log.Error("received error fetching header", "error", err)
					continue
				}

				if header.Number.Uint64() > 0 {
					readyClients[client] = true
				}
			}

			if len(readyClients) == len(clients) {
				return nil
			}
		}
	}
}

// ConnectClient dials rpcUrl and returns the client together with its chain id.
// The url is never logged since provider urls embed the api key.
func ConnectClient(ctx context.Context, name, rpcUrl string) (*ethclient.Client, *big.Int, error) {
	client, err := ethclient.DialContext(ctx, rpcUrl)
	if err != nil {
		return nil, nil, fmt.Errorf("could not dial %s rpc: %w", name, err)
	}

	log.Info("Successfully dialed client", "chain", name)

	timeoutCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	if err := WaitForChainsStart(timeoutCtx, []*ethclient.Client{client}); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("%s client has not started: %w", name, err)
	}

	chainId, err := retry.Do(ctx, 3, retry.Fixed(2*time.Second), func() (*big.Int, error) {
		return client.ChainID(ctx)
	})
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("could not fetch %s chain id: %w", name, err)
	}

	log.Info("Successfully connected to chain", "chain", name, "chainId", chainId)

	return client, chainId, nil
}
