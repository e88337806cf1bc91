package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum-optimism/optimism/op-service/txmgr"
	"github.com/ethereum/go-ethereum/core/types"
)

var ErrInvalidFeeArgs = errors.New("chain: invalid fee args")

// DynamicFeeCaps prices a dynamic-fee transaction against the head's base fee. The tip
// never drops below minTip, and the fee cap leaves room for the base fee to double.
func DynamicFeeCaps(baseFee, suggestedTip, minTip *big.Int) (tipCap, feeCap *big.Int, err error) {
	for _, v := range []*big.Int{baseFee, suggestedTip, minTip} {
		if v == nil || v.Sign() < 0 {
			return nil, nil, ErrInvalidFeeArgs
		}
	}

	tipCap = suggestedTip
	if minTip.Cmp(tipCap) > 0 {
		tipCap = minTip
	}
	tipCap = new(big.Int).Set(tipCap)
	feeCap = new(big.Int).Lsh(baseFee, 1)
	feeCap.Add(feeCap, tipCap)
	return tipCap, feeCap, nil
}

// priceTx builds the unsigned transaction for candidate. Heads without a base fee get
// a legacy transaction at the node's suggested gas price.
func (g *Gateway) priceTx(ctx context.Context, head *types.Header, nonce uint64, candidate txmgr.TxCandidate, value *big.Int) (types.TxData, error) {
	if head.BaseFee == nil {
		gasPrice, err := g.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("could not fetch %s gas price: %w", g.cfg.Name, err)
		}
		return &types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      candidate.GasLimit,
			To:       candidate.To,
			Value:    value,
			Data:     candidate.TxData,
		}, nil
	}

	suggestedTip, err := g.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not fetch %s tip cap: %w", g.cfg.Name, err)
	}
	tipCap, feeCap, err := DynamicFeeCaps(head.BaseFee, suggestedTip, g.cfg.MinTipCap)
	if err != nil {
		return nil, err
	}
	return &types.DynamicFeeTx{
		ChainID:   g.cfg.ChainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       candidate.GasLimit,
		To:        candidate.To,
		Value:     value,
		Data:      candidate.TxData,
	}, nil
}
