// Package chaintest provides an in-memory chain.Backend for tests.
package chaintest

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// TestKey is a throwaway secp256k1 key for signing in tests.
const TestKey = "4f3edf983ac636a65a842ce7c78d9aa706d3b113b37c2b1b4c1c5f5d8f5e2d3a"

var TestAddress = crypto.PubkeyToAddress(crypto.ToECDSAUnsafe(common.FromHex(TestKey)).PublicKey)

// CallHandler answers eth_call for one contract address.
type CallHandler func(input []byte) ([]byte, error)

// Backend mines every transaction immediately. The receipt status of each
// transaction is decided by StatusFor (successful when nil).
type Backend struct {
	mu sync.Mutex

	Nonce    uint64
	BaseFee  *big.Int
	TipCap   *big.Int
	GasPrice *big.Int
	Head     uint64

	EstimateFn func(msg ethereum.CallMsg) (uint64, error)
	SendErr    error
	FilterErr  error
	StatusFor  func(tx *types.Transaction) uint64

	// ReceiptErrs are returned, one per call, before receipts are looked up.
	ReceiptErrs []error

	Contracts map[common.Address]CallHandler
	Logs      []types.Log

	Sent         []*types.Transaction
	Estimates    []ethereum.CallMsg
	FilterCalls  []ethereum.FilterQuery
	ReceiptCalls int

	receipts map[common.Hash]*types.Receipt
}

func NewBackend() *Backend {
	return &Backend{
		BaseFee:   big.NewInt(100),
		TipCap:    big.NewInt(2),
		GasPrice:  big.NewInt(50),
		Head:      1000,
		Contracts: make(map[common.Address]CallHandler),
		receipts:  make(map[common.Hash]*types.Receipt),
	}
}

func (b *Backend) CodeAt(_ context.Context, _ common.Address, _ *big.Int) ([]byte, error) {
	return []byte{0x1}, nil
}

func (b *Backend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if call.To == nil {
		return nil, fmt.Errorf("call without target")
	}
	handler, ok := b.Contracts[*call.To]
	if !ok {
		return nil, fmt.Errorf("no contract at %s", call.To.Hex())
	}
	return handler(call.Data)
}

func (b *Backend) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Nonce, nil
}

func (b *Backend) SuggestGasTipCap(_ context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.TipCap), nil
}

func (b *Backend) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.GasPrice), nil
}

func (b *Backend) HeaderByNumber(_ context.Context, _ *big.Int) (*types.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	header := &types.Header{Number: new(big.Int).SetUint64(b.Head)}
	if b.BaseFee != nil {
		header.BaseFee = new(big.Int).Set(b.BaseFee)
	}
	return header, nil
}

func (b *Backend) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Estimates = append(b.Estimates, msg)
	if b.EstimateFn != nil {
		return b.EstimateFn(msg)
	}
	return 60_000, nil
}

func (b *Backend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SendErr != nil {
		return b.SendErr
	}
	b.Sent = append(b.Sent, tx)
	b.Nonce++

	status := types.ReceiptStatusSuccessful
	if b.StatusFor != nil {
		status = b.StatusFor(tx)
	}
	b.receipts[tx.Hash()] = &types.Receipt{
		Status:      status,
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).SetUint64(b.Head),
		GasUsed:     tx.Gas(),
	}
	return nil
}

func (b *Backend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ReceiptCalls++
	if len(b.ReceiptErrs) > 0 {
		err := b.ReceiptErrs[0]
		b.ReceiptErrs = b.ReceiptErrs[1:]
		return nil, err
	}
	if r, ok := b.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (b *Backend) BlockNumber(_ context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Head, nil
}

func (b *Backend) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.FilterCalls = append(b.FilterCalls, q)
	if b.FilterErr != nil {
		return nil, b.FilterErr
	}

	var out []types.Log
	for _, l := range b.Logs {
		if q.FromBlock != nil && l.BlockNumber < q.FromBlock.Uint64() {
			continue
		}
		if q.ToBlock != nil && l.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		if len(q.Addresses) > 0 && !containsAddress(q.Addresses, l.Address) {
			continue
		}
		if len(q.Topics) > 0 && len(q.Topics[0]) > 0 && (len(l.Topics) == 0 || !containsHash(q.Topics[0], l.Topics[0])) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// SentCall decodes the calldata of the i-th sent transaction against parsed.
func (b *Backend) SentCall(parsed *abi.ABI, i int) (string, []interface{}, error) {
	b.mu.Lock()
	tx := b.Sent[i]
	b.mu.Unlock()
	return DecodeCall(parsed, tx.Data())
}

func DecodeCall(parsed *abi.ABI, data []byte) (string, []interface{}, error) {
	if len(data) < 4 {
		return "", nil, fmt.Errorf("calldata too short")
	}
	method, err := parsed.MethodById(data[:4])
	if err != nil {
		return "", nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return "", nil, err
	}
	return method.Name, args, nil
}

func MustParseABI(definition string) *abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(err)
	}
	return &parsed
}

func containsAddress(list []common.Address, a common.Address) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}

func containsHash(list []common.Hash, h common.Hash) bool {
	for _, x := range list {
		if x == h {
			return true
		}
	}
	return false
}
