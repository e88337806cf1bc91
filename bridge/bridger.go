package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/Golem-Base/fx-bridge/internal"
	"github.com/Golem-Base/fx-bridge/internal/chain"
	"github.com/ethereum-optimism/optimism/op-service/txmgr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

const (
	// FALLBACK_GAS_LIMIT is used for approve, deposit and withdraw when estimation fails.
	FALLBACK_GAS_LIMIT uint64 = 200_000
	// FALLBACK_RECEIVE_GAS_LIMIT is used for receiveMessage when estimation fails.
	FALLBACK_RECEIVE_GAS_LIMIT uint64 = 500_000
)

var (
	ErrInvalidAmount       = errors.New("bridge: amount must be positive")
	ErrInsufficientBalance = errors.New("bridge: insufficient balance")
	ErrApprovalFailed      = errors.New("bridge: approval transaction failed")
	ErrBridgeTxFailed      = errors.New("bridge: bridge transaction failed")
	ErrFinalizeFailed      = errors.New("bridge: finalize transaction failed")
)

// TxFailedError reports a mined transaction whose receipt status is not successful.
type TxFailedError struct {
	Op     string
	Chain  string
	TxHash common.Hash

	base error
}

func (e *TxFailedError) Error() string {
	return fmt.Sprintf("%v: %s on %s reverted in tx %s", e.base, e.Op, e.Chain, e.TxHash.Hex())
}

func (e *TxFailedError) Unwrap() error { return e.base }

type Direction int

const (
	// Deposit moves LP tokens from L2 into the child tunnel; they are released on L1
	// once the message is relayed.
	Deposit Direction = iota
	// Withdraw moves bridged tokens from L1 into the root tunnel; the L2 side is
	// credited by state sync without further action.
	Withdraw
)

func (d Direction) String() string {
	switch d {
	case Deposit:
		return "deposit"
	case Withdraw:
		return "withdraw"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

type TransferRequest struct {
	Amount *big.Int
	// Destination defaults to the signer's own account when zero.
	Destination common.Address
	Direction   Direction
}

// route is everything that differs between the two directions.
type route struct {
	gateway    *chain.Gateway
	token      *internal.Contract
	tunnel     *internal.Contract
	selfMethod string
	toMethod   string
}

type Bridger struct {
	log       log.Logger
	l1        *chain.Gateway
	l2        *chain.Gateway
	contracts *internal.BridgeContracts
	allowance *AllowanceManager
}

func NewBridger(lgr log.Logger, l1, l2 *chain.Gateway, contracts *internal.BridgeContracts) *Bridger {
	return &Bridger{
		log:       lgr,
		l1:        l1,
		l2:        l2,
		contracts: contracts,
		allowance: NewAllowanceManager(lgr),
	}
}

// Account is the signer's address, shared by both gateways.
func (b *Bridger) Account() common.Address {
	return b.l2.Account()
}

func (b *Bridger) route(d Direction) (route, error) {
	switch d {
	case Deposit:
		return route{
			gateway:    b.l2,
			token:      b.contracts.LPToken,
			tunnel:     b.contracts.ChildTunnel,
			selfMethod: "deposit",
			toMethod:   "depositTo",
		}, nil
	case Withdraw:
		return route{
			gateway:    b.l1,
			token:      b.contracts.BridgedERC20,
			tunnel:     b.contracts.RootTunnel,
			selfMethod: "withdraw",
			toMethod:   "withdrawTo",
		}, nil
	default:
		return route{}, fmt.Errorf("unknown transfer direction %d", int(d))
	}
}

func (b *Bridger) Deposit(ctx context.Context, amount *big.Int, destination common.Address) (common.Hash, error) {
	return b.Transfer(ctx, TransferRequest{Amount: amount, Destination: destination, Direction: Deposit})
}

func (b *Bridger) Withdraw(ctx context.Context, amount *big.Int, destination common.Address) (common.Hash, error) {
	return b.Transfer(ctx, TransferRequest{Amount: amount, Destination: destination, Direction: Withdraw})
}

// Transfer approves the tunnel for the amount if needed, then calls the tunnel's deposit
// or withdraw method and waits for it to be mined. It returns the hash of the bridge
// transaction. Reverted transactions are never retried.
func (b *Bridger) Transfer(ctx context.Context, req TransferRequest) (common.Hash, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return common.Hash{}, ErrInvalidAmount
	}

	r, err := b.route(req.Direction)
	if err != nil {
		return common.Hash{}, err
	}
	account := r.gateway.Account()

	if _, err := b.allowance.EnsureAllowance(ctx, r.gateway, r.token, r.tunnel.Address, req.Amount); err != nil {
		return common.Hash{}, err
	}

	destination := req.Destination
	if destination == internal.ZeroAddress {
		destination = account
	}

	var data []byte
	if destination == account {
		data, err = r.tunnel.Pack(r.selfMethod, req.Amount)
	} else {
		data, err = r.tunnel.Pack(r.toMethod, destination, req.Amount)
	}
	if err != nil {
		return common.Hash{}, err
	}

	tunnel := r.tunnel.Address
	candidate := txmgr.TxCandidate{TxData: data, To: &tunnel}
	candidate.GasLimit = estimateGasOrFallback(ctx, b.log, r.gateway, candidate, FALLBACK_GAS_LIMIT)

	b.log.Info("submitting bridge transaction",
		"direction", req.Direction,
		"chain", r.gateway.Name(),
		"amount", internal.FormatTokens(req.Amount),
		"destination", destination,
	)

	outcome, err := r.gateway.SendAndWait(ctx, candidate)
	if err != nil {
		return common.Hash{}, fmt.Errorf("could not complete %s transaction: %w", req.Direction, err)
	}
	if !outcome.OK() {
		return outcome.Hash, &TxFailedError{Op: req.Direction.String(), Chain: r.gateway.Name(), TxHash: outcome.Hash, base: ErrBridgeTxFailed}
	}

	b.log.Info("bridge transaction has been mined successfully", "direction", req.Direction, "tx", outcome.Hash.Hex())
	return outcome.Hash, nil
}

// Balance returns the signer's balance of the token sent in direction d.
func (b *Bridger) Balance(ctx context.Context, d Direction) (*big.Int, error) {
	r, err := b.route(d)
	if err != nil {
		return nil, err
	}
	return r.token.CallBigInt(ctx, "balanceOf", r.gateway.Account())
}

// CheckBalance fails with ErrInsufficientBalance when the signer holds less than amount
// of the token sent in direction d. The balance is returned either way.
func (b *Bridger) CheckBalance(ctx context.Context, d Direction, amount *big.Int) (*big.Int, error) {
	balance, err := b.Balance(ctx, d)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(amount) < 0 {
		return balance, fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance,
			internal.FormatTokens(balance), internal.FormatTokens(amount))
	}
	return balance, nil
}

type TokenBalance struct {
	Chain   string
	Token   string
	Address common.Address
	Amount  *big.Int
}

// Balances reads the LP token balance on L2 and the bridged token balance on L1.
func (b *Bridger) Balances(ctx context.Context) ([]TokenBalance, error) {
	var out []TokenBalance
	for _, d := range []Direction{Deposit, Withdraw} {
		r, err := b.route(d)
		if err != nil {
			return nil, err
		}
		amount, err := b.Balance(ctx, d)
		if err != nil {
			return nil, err
		}
		out = append(out, TokenBalance{
			Chain:   r.gateway.Name(),
			Token:   r.token.Name,
			Address: r.token.Address,
			Amount:  amount,
		})
	}
	return out, nil
}

func estimateGasOrFallback(ctx context.Context, lgr log.Logger, gw *chain.Gateway, candidate txmgr.TxCandidate, fallback uint64) uint64 {
	gas, err := gw.EstimateGas(ctx, candidate)
	if err != nil {
		lgr.Warn("gas estimation failed, using fallback gas limit", "chain", gw.Name(), "gas", fallback, "err", err)
		return fallback
	}
	return gas
}
