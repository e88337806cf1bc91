package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/txmgr"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
)

var (
	ErrInvalidConfig    = errors.New("chain: invalid gateway config")
	ErrInvalidCandidate = errors.New("chain: invalid transaction candidate")
)

// Backend is the subset of the JSON-RPC surface the gateway needs.
// *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractCaller

	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

type TxStatus int

const (
	TxSuccess TxStatus = iota
	TxReverted
)

func (s TxStatus) String() string {
	switch s {
	case TxSuccess:
		return "success"
	case TxReverted:
		return "reverted"
	default:
		return fmt.Sprintf("TxStatus(%d)", int(s))
	}
}

type TxOutcome struct {
	Hash    common.Hash
	Status  TxStatus
	Receipt *types.Receipt
}

func (o TxOutcome) OK() bool {
	return o.Status == TxSuccess
}

type Config struct {
	// Name is used in logs and errors only.
	Name    string
	ChainID *big.Int

	MinTipCap           *big.Int
	ReceiptPollInterval time.Duration

	Sleep func(ctx context.Context, d time.Duration) error
}

// Gateway gives read and write access to a single chain for the account held by its
// signer. The signer is chosen once at startup.
type Gateway struct {
	log     log.Logger
	backend Backend
	signer  Signer
	cfg     Config
}

func NewGateway(lgr log.Logger, backend Backend, signer Signer, cfg Config) (*Gateway, error) {
	if backend == nil || signer == nil {
		return nil, ErrInvalidConfig
	}
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, fmt.Errorf("%w: missing chain id", ErrInvalidConfig)
	}
	if cfg.MinTipCap == nil {
		cfg.MinTipCap = new(big.Int)
	}
	if cfg.ReceiptPollInterval <= 0 {
		cfg.ReceiptPollInterval = 2 * time.Second
	}
	if cfg.Sleep == nil {
		cfg.Sleep = SleepCtx
	}

	return &Gateway{
		log:     lgr.New("chain", cfg.Name),
		backend: backend,
		signer:  signer,
		cfg:     cfg,
	}, nil
}

func (g *Gateway) Name() string { return g.cfg.Name }

func (g *Gateway) Account() common.Address { return g.signer.Address() }

func (g *Gateway) Nonce(ctx context.Context) (uint64, error) {
	nonce, err := g.backend.PendingNonceAt(ctx, g.Account())
	if err != nil {
		return 0, fmt.Errorf("could not fetch %s nonce: %w", g.cfg.Name, err)
	}
	return nonce, nil
}

func (g *Gateway) EstimateGas(ctx context.Context, candidate txmgr.TxCandidate) (uint64, error) {
	value := candidate.Value
	if value == nil {
		value = new(big.Int)
	}
	return g.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  g.Account(),
		To:    candidate.To,
		Value: value,
		Data:  candidate.TxData,
	})
}

func (g *Gateway) BlockNumber(ctx context.Context) (uint64, error) {
	return g.backend.BlockNumber(ctx)
}

func (g *Gateway) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return g.backend.FilterLogs(ctx, q)
}

// Submit signs and broadcasts the candidate. The nonce is read right before signing so
// that transactions sent earlier in the same run are accounted for.
func (g *Gateway) Submit(ctx context.Context, candidate txmgr.TxCandidate) (common.Hash, error) {
	if candidate.To == nil || candidate.GasLimit == 0 {
		return common.Hash{}, ErrInvalidCandidate
	}
	value := candidate.Value
	if value == nil {
		value = new(big.Int)
	}

	header, err := g.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("could not fetch %s head: %w", g.cfg.Name, err)
	}

	nonce, err := g.Nonce(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	txData, err := g.priceTx(ctx, header, nonce, candidate, value)
	if err != nil {
		return common.Hash{}, err
	}

	tx := types.NewTx(txData)
	g.log.Info("signing transaction",
		"from", g.Account(),
		"to", tx.To(),
		"nonce", tx.Nonce(),
		"gas", tx.Gas(),
		"value", tx.Value(),
		"data", hexutil.Encode(tx.Data()),
	)

	signed, err := g.signer.SignTx(tx, g.cfg.ChainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("could not sign %s transaction: %w", g.cfg.Name, err)
	}
	if err := g.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("could not send %s transaction: %w", g.cfg.Name, err)
	}

	g.log.Info("sent transaction, waiting for confirmation", "tx", signed.Hash().Hex())
	return signed.Hash(), nil
}

// WaitForReceipt blocks until the transaction is mined. There is no timeout: only
// context cancellation or an rpc failure other than not-found stops the wait.
func (g *Gateway) WaitForReceipt(ctx context.Context, hash common.Hash) (TxOutcome, error) {
	for {
		receipt, err := g.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			status := TxSuccess
			if receipt.Status != types.ReceiptStatusSuccessful {
				status = TxReverted
			}
			g.log.Info("transaction has been mined", "tx", hash.Hex(), "status", status, "block", receipt.BlockNumber)
			return TxOutcome{Hash: hash, Status: status, Receipt: receipt}, nil
		}
		if err != nil && !isReceiptPending(err) {
			return TxOutcome{Hash: hash}, fmt.Errorf("failed to get %s receipt for %s: %w", g.cfg.Name, hash.Hex(), err)
		}
		if err := g.cfg.Sleep(ctx, g.cfg.ReceiptPollInterval); err != nil {
			return TxOutcome{Hash: hash}, err
		}
	}
}

func (g *Gateway) SendAndWait(ctx context.Context, candidate txmgr.TxCandidate) (TxOutcome, error) {
	hash, err := g.Submit(ctx, candidate)
	if err != nil {
		return TxOutcome{}, err
	}
	return g.WaitForReceipt(ctx, hash)
}

func isReceiptPending(err error) bool {
	return errors.Is(err, ethereum.NotFound) || strings.Contains(err.Error(), "transaction indexing is in progress")
}

// IsExecutionReverted reports whether err is a node's report of a reverting call, as
// opposed to a transport or availability failure.
func IsExecutionReverted(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

func SleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
