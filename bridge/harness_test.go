package bridge

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/Golem-Base/fx-bridge/internal"
	"github.com/Golem-Base/fx-bridge/internal/chain"
	"github.com/Golem-Base/fx-bridge/internal/chain/chaintest"
	"github.com/Golem-Base/fx-bridge/internal/proofs"
	"github.com/ethereum-optimism/optimism/op-service/testlog"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"
)

var (
	lpTokenAddress      = common.HexToAddress("0x1000000000000000000000000000000000000001")
	bridgedERC20Address = common.HexToAddress("0x2000000000000000000000000000000000000002")
	rootTunnelAddress   = common.HexToAddress("0x3000000000000000000000000000000000000003")
	childTunnelAddress  = common.HexToAddress("0x4000000000000000000000000000000000000004")

	otherAccount = common.HexToAddress("0x5000000000000000000000000000000000000005")
)

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func noSleep(context.Context, time.Duration) error { return nil }

type harness struct {
	l1, l2     *chaintest.Backend
	l1gw, l2gw *chain.Gateway

	lpToken      *chaintest.Token
	bridgedERC20 *chaintest.Token

	erc20ABI  *abi.ABI
	tunnelABI *abi.ABI

	contracts *internal.BridgeContracts
	bridger   *Bridger
	lgr       log.Logger
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		l1:           chaintest.NewBackend(),
		l2:           chaintest.NewBackend(),
		lpToken:      chaintest.NewToken(),
		bridgedERC20: chaintest.NewToken(),
		erc20ABI:     chaintest.MustParseABI(chaintest.ERC20ABI),
		tunnelABI:    chaintest.MustParseABI(chaintest.TunnelABI),
		lgr:          testlog.Logger(t, log.LevelInfo),
	}
	h.l2.Contracts[lpTokenAddress] = h.lpToken.Handle
	h.l1.Contracts[bridgedERC20Address] = h.bridgedERC20.Handle

	signer, err := chain.ParseLocalSigner(chaintest.TestKey)
	require.NoError(t, err)

	h.l1gw, err = chain.NewGateway(h.lgr, h.l1, signer, chain.Config{Name: "L1", ChainID: big.NewInt(1), Sleep: noSleep})
	require.NoError(t, err)
	h.l2gw, err = chain.NewGateway(h.lgr, h.l2, signer, chain.Config{Name: "L2", ChainID: big.NewInt(137), Sleep: noSleep})
	require.NoError(t, err)

	h.contracts = &internal.BridgeContracts{
		LPToken:      internal.NewContract("lp_token", lpTokenAddress, h.erc20ABI, h.l2),
		BridgedERC20: internal.NewContract("bridged_erc20", bridgedERC20Address, h.erc20ABI, h.l1),
		RootTunnel:   internal.NewContract("fx_erc20_root_tunnel", rootTunnelAddress, h.tunnelABI, h.l1),
		ChildTunnel:  internal.NewContract("fx_erc20_child_tunnel", childTunnelAddress, h.tunnelABI, h.l2),
	}
	h.bridger = NewBridger(h.lgr, h.l1gw, h.l2gw, h.contracts)
	return h
}

func (h *harness) relay(source ProofSource, cfg RelayConfig) *Relay {
	return NewRelay(h.lgr, h.l1gw, h.l2gw, h.contracts, source, cfg)
}

// fakeProofs answers each hash from its queue; the last answer repeats.
type fakeProofs struct {
	mu      sync.Mutex
	answers map[common.Hash][]proofs.Result
	queries []common.Hash
}

func newFakeProofs() *fakeProofs {
	return &fakeProofs{answers: make(map[common.Hash][]proofs.Result)}
}

func (f *fakeProofs) add(hash common.Hash, results ...proofs.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers[hash] = append(f.answers[hash], results...)
}

func (f *fakeProofs) Query(_ context.Context, hash common.Hash) proofs.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, hash)

	queue := f.answers[hash]
	if len(queue) == 0 {
		return proofs.Result{Status: proofs.StatusPending, Reason: "unknown"}
	}
	res := queue[0]
	if len(queue) > 1 {
		f.answers[hash] = queue[1:]
	}
	return res
}

func ready(payload []byte) proofs.Result {
	return proofs.Result{Status: proofs.StatusReady, Payload: payload}
}

var pending = proofs.Result{Status: proofs.StatusPending, Reason: "not checkpointed"}
