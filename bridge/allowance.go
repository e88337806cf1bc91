package bridge

import (
	"context"
	"fmt"
	"math/big"

	"github.com/Golem-Base/fx-bridge/internal"
	"github.com/Golem-Base/fx-bridge/internal/chain"
	"github.com/ethereum-optimism/optimism/op-service/txmgr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

type AllowanceManager struct {
	log log.Logger
}

func NewAllowanceManager(lgr log.Logger) *AllowanceManager {
	return &AllowanceManager{log: lgr}
}

// EnsureAllowance makes sure spender may move at least required tokens of the gateway's
// account. Only the missing amount is approved. It returns nil when no transaction was
// needed.
func (m *AllowanceManager) EnsureAllowance(
	ctx context.Context,
	gw *chain.Gateway,
	token *internal.Contract,
	spender common.Address,
	required *big.Int,
) (*chain.TxOutcome, error) {
	owner := gw.Account()

	current, err := token.CallBigInt(ctx, "allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("could not read allowance: %w", err)
	}
	if current.Cmp(required) >= 0 {
		m.log.Info("allowance is sufficient", "token", token.Name, "spender", spender, "allowance", internal.FormatTokens(current))
		return nil, nil
	}

	deficit := new(big.Int).Sub(required, current)
	data, err := token.Pack("approve", spender, deficit)
	if err != nil {
		return nil, err
	}

	tokenAddress := token.Address
	candidate := txmgr.TxCandidate{TxData: data, To: &tokenAddress}
	candidate.GasLimit = estimateGasOrFallback(ctx, m.log, gw, candidate, FALLBACK_GAS_LIMIT)

	m.log.Info("approving tokens", "token", token.Name, "spender", spender, "amount", internal.FormatTokens(deficit))

	outcome, err := gw.SendAndWait(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("could not complete approval: %w", err)
	}
	if !outcome.OK() {
		return &outcome, &TxFailedError{Op: "approve", Chain: gw.Name(), TxHash: outcome.Hash, base: ErrApprovalFailed}
	}

	m.log.Info("approval has been mined successfully", "tx", outcome.Hash.Hex())
	return &outcome, nil
}
