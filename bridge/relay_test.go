package bridge

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/Golem-Base/fx-bridge/internal/chain/chaintest"
	"github.com/Golem-Base/fx-bridge/internal/proofs"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

var (
	l2Tx    = common.HexToHash("0x01")
	payload = []byte{0xde, 0xad, 0xbe, 0xef}
)

func TestTryFinalize_SubmitsPayloadWithFallbackGas(t *testing.T) {
	h := newHarness(t)
	h.l1.EstimateFn = func(ethereum.CallMsg) (uint64, error) {
		return 0, errors.New("connection refused")
	}
	source := newFakeProofs()
	source.add(l2Tx, ready(payload))

	res := h.relay(source, RelayConfig{}).TryFinalize(context.Background(), l2Tx, true)
	require.Equal(t, FinalizeReady, res.Status)
	require.NoError(t, res.Err)

	require.Len(t, h.l1.Sent, 1)
	tx := h.l1.Sent[0]
	require.Equal(t, res.L1TxHash, tx.Hash())
	require.Equal(t, rootTunnelAddress, *tx.To())
	require.Equal(t, FALLBACK_RECEIVE_GAS_LIMIT, tx.Gas())

	method, args, err := h.l1.SentCall(h.tunnelABI, 0)
	require.NoError(t, err)
	require.Equal(t, "receiveMessage", method)
	require.Equal(t, payload, args[0])
	require.Equal(t, []common.Hash{l2Tx}, source.queries)
}

func TestTryFinalize_UsesEstimatedGas(t *testing.T) {
	h := newHarness(t)
	source := newFakeProofs()
	source.add(l2Tx, ready(payload))

	res := h.relay(source, RelayConfig{}).TryFinalize(context.Background(), l2Tx, true)
	require.Equal(t, FinalizeReady, res.Status)
	require.Equal(t, uint64(60_000), h.l1.Sent[0].Gas())
}

func TestTryFinalize_PendingProofSendsNothing(t *testing.T) {
	h := newHarness(t)
	source := newFakeProofs()
	source.add(l2Tx, pending)

	res := h.relay(source, RelayConfig{}).TryFinalize(context.Background(), l2Tx, true)
	require.Equal(t, FinalizePending, res.Status)
	require.Empty(t, h.l1.Estimates)
	require.Empty(t, h.l1.Sent)
}

func TestTryFinalize_RevertingEstimateIsAlreadyProcessed(t *testing.T) {
	h := newHarness(t)
	h.l1.EstimateFn = func(ethereum.CallMsg) (uint64, error) {
		return 0, errors.New("execution reverted: EXIT_ALREADY_PROCESSED")
	}
	source := newFakeProofs()
	source.add(l2Tx, ready(payload))

	res := h.relay(source, RelayConfig{}).TryFinalize(context.Background(), l2Tx, true)
	require.Equal(t, FinalizeAlreadyProcessed, res.Status)
	require.Empty(t, h.l1.Sent)
}

func TestTryFinalize_SubmissionErrorIsAlreadyProcessed(t *testing.T) {
	h := newHarness(t)
	h.l1.SendErr = errors.New("nonce too low")
	source := newFakeProofs()
	source.add(l2Tx, ready(payload))

	res := h.relay(source, RelayConfig{}).TryFinalize(context.Background(), l2Tx, true)
	require.Equal(t, FinalizeAlreadyProcessed, res.Status)
	require.ErrorContains(t, res.Err, "nonce too low")
}

func TestTryFinalize_RevertedReceipt(t *testing.T) {
	for _, exitOnError := range []bool{true, false} {
		h := newHarness(t)
		h.l1.StatusFor = revertTo(rootTunnelAddress)
		source := newFakeProofs()
		source.add(l2Tx, ready(payload))

		res := h.relay(source, RelayConfig{}).TryFinalize(context.Background(), l2Tx, exitOnError)
		require.ErrorIs(t, res.Err, ErrFinalizeFailed)
		require.Equal(t, h.l1.Sent[0].Hash(), res.L1TxHash)
		if exitOnError {
			require.Equal(t, FinalizeFatal, res.Status)
		} else {
			require.Equal(t, FinalizeAlreadyProcessed, res.Status)
		}
	}
}

type sleepRecorder struct {
	slept []time.Duration
	err   error
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.slept = append(s.slept, d)
	return s.err
}

func TestWaitForFinalization_PollsUntilReady(t *testing.T) {
	h := newHarness(t)
	source := newFakeProofs()
	source.add(l2Tx, pending, pending, pending, ready(payload))

	// the first ready attempt hits an unavailable checkpoint, the next one succeeds
	var estimates int
	h.l1.EstimateFn = func(ethereum.CallMsg) (uint64, error) {
		estimates++
		if estimates == 1 {
			return 0, errors.New("execution reverted")
		}
		return 70_000, nil
	}

	sleeper := &sleepRecorder{}
	relay := h.relay(source, RelayConfig{PollInterval: 42 * time.Second, Sleep: sleeper.sleep})

	l1Tx, err := relay.WaitForFinalization(context.Background(), l2Tx)
	require.NoError(t, err)
	require.Equal(t, h.l1.Sent[0].Hash(), l1Tx)
	require.Len(t, h.l1.Sent, 1)

	require.Equal(t, []time.Duration{42 * time.Second, 42 * time.Second, 42 * time.Second, 42 * time.Second}, sleeper.slept)
	require.Len(t, source.queries, 5)
}

func TestWaitForFinalization_DefaultInterval(t *testing.T) {
	h := newHarness(t)
	source := newFakeProofs()
	source.add(l2Tx, pending, ready(payload))

	sleeper := &sleepRecorder{}
	_, err := h.relay(source, RelayConfig{Sleep: sleeper.sleep}).WaitForFinalization(context.Background(), l2Tx)
	require.NoError(t, err)
	require.Equal(t, []time.Duration{5 * time.Minute}, sleeper.slept)
}

func TestWaitForFinalization_FatalStops(t *testing.T) {
	h := newHarness(t)
	h.l1.StatusFor = revertTo(rootTunnelAddress)
	source := newFakeProofs()
	source.add(l2Tx, ready(payload))

	sleeper := &sleepRecorder{}
	_, err := h.relay(source, RelayConfig{Sleep: sleeper.sleep}).WaitForFinalization(context.Background(), l2Tx)
	require.ErrorIs(t, err, ErrFinalizeFailed)
	require.Empty(t, sleeper.slept)
}

func TestWaitForFinalization_StopsOnCancellation(t *testing.T) {
	h := newHarness(t)
	source := newFakeProofs()
	source.add(l2Tx, pending)

	sleeper := &sleepRecorder{err: context.Canceled}
	_, err := h.relay(source, RelayConfig{Sleep: sleeper.sleep}).WaitForFinalization(context.Background(), l2Tx)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, sleeper.slept, 1)
}

func TestWaitForFinalization_ReceiptErrorWaitsOnSubmittedTx(t *testing.T) {
	h := newHarness(t)
	h.l1.ReceiptErrs = []error{errors.New("502 bad gateway")}
	// a second receiveMessage for the same exit would revert on chain
	var submitted int
	h.l1.StatusFor = func(*types.Transaction) uint64 {
		submitted++
		if submitted > 1 {
			return types.ReceiptStatusFailed
		}
		return types.ReceiptStatusSuccessful
	}
	source := newFakeProofs()
	source.add(l2Tx, ready(payload))

	sleeper := &sleepRecorder{}
	l1Tx, err := h.relay(source, RelayConfig{Sleep: sleeper.sleep}).WaitForFinalization(context.Background(), l2Tx)
	require.NoError(t, err)
	require.Len(t, h.l1.Sent, 1)
	require.Equal(t, h.l1.Sent[0].Hash(), l1Tx)
	require.Equal(t, []common.Hash{l2Tx}, source.queries)
	require.Len(t, h.l1.Estimates, 1)
	require.Len(t, sleeper.slept, 1)
}

func TestTryFinalize_ReceiptErrorIsPendingWithHash(t *testing.T) {
	h := newHarness(t)
	h.l1.ReceiptErrs = []error{errors.New("502 bad gateway")}
	source := newFakeProofs()
	source.add(l2Tx, ready(payload))

	res := h.relay(source, RelayConfig{}).TryFinalize(context.Background(), l2Tx, true)
	require.Equal(t, FinalizePending, res.Status)
	require.Equal(t, h.l1.Sent[0].Hash(), res.L1TxHash)
	require.ErrorContains(t, res.Err, "502 bad gateway")
}

func messageLog(t *testing.T, txHash common.Hash, block uint64, message []byte) types.Log {
	data, err := messageSentArgs.Pack(message)
	require.NoError(t, err)
	return types.Log{
		Address:     childTunnelAddress,
		Topics:      []common.Hash{proofs.MessageSentTopic},
		Data:        data,
		BlockNumber: block,
		TxHash:      txHash,
	}
}

func transferMessage(t *testing.T, sender, receiver common.Address, amount *big.Int) []byte {
	message, err := messageLayouts[0].Pack(sender, receiver, amount)
	require.NoError(t, err)
	return message
}

func TestMessage_References(t *testing.T) {
	account := chaintest.TestAddress

	require.True(t, Message{Payload: transferMessage(t, account, otherAccount, big.NewInt(1))}.References(account))
	require.True(t, Message{Payload: transferMessage(t, otherAccount, account, big.NewInt(1))}.References(account))
	require.False(t, Message{Payload: transferMessage(t, otherAccount, otherAccount, big.NewInt(1))}.References(account))

	fourWords, err := messageLayouts[1].Pack(rootTunnelAddress, childTunnelAddress, account, big.NewInt(9))
	require.NoError(t, err)
	require.True(t, Message{Payload: fourWords}.References(account))

	// unknown layouts fall back to searching for the account bytes
	opaque := append([]byte{0x01, 0x02}, account.Bytes()...)
	require.True(t, Message{Payload: opaque}.References(account))
	require.False(t, Message{Payload: []byte{0x01, 0x02}}.References(account))
}

func TestFindMessages_ScansInWindows(t *testing.T) {
	h := newHarness(t)
	h.l2.Head = 1000

	relay := h.relay(newFakeProofs(), RelayConfig{FromBlock: 750, BlockRange: 100})
	_, err := relay.FindMessages(context.Background(), chaintest.TestAddress)
	require.NoError(t, err)

	require.Len(t, h.l2.FilterCalls, 3)
	windows := [][2]uint64{{750, 849}, {850, 949}, {950, 1000}}
	for i, q := range h.l2.FilterCalls {
		require.Equal(t, windows[i][0], q.FromBlock.Uint64())
		require.Equal(t, windows[i][1], q.ToBlock.Uint64())
		require.Equal(t, []common.Address{childTunnelAddress}, q.Addresses)
		require.Equal(t, [][]common.Hash{{proofs.MessageSentTopic}}, q.Topics)
	}

	h.l2.FilterCalls = nil
	relay = h.relay(newFakeProofs(), RelayConfig{FromBlock: 10})
	_, err = relay.FindMessages(context.Background(), chaintest.TestAddress)
	require.NoError(t, err)
	require.Len(t, h.l2.FilterCalls, 1)

	h.l2.FilterCalls = nil
	relay = h.relay(newFakeProofs(), RelayConfig{FromBlock: 5000})
	messages, err := relay.FindMessages(context.Background(), chaintest.TestAddress)
	require.NoError(t, err)
	require.Empty(t, messages)
	require.Empty(t, h.l2.FilterCalls)
}

func TestFinalizeAll_ContinuesPastEveryOutcome(t *testing.T) {
	h := newHarness(t)
	account := chaintest.TestAddress

	var (
		readyTx     = common.HexToHash("0xa1")
		pendingTx   = common.HexToHash("0xa2")
		processedTx = common.HexToHash("0xa3")
		foreignTx   = common.HexToHash("0xa4")
		failingTx   = common.HexToHash("0xa5")
	)
	h.l2.Logs = []types.Log{
		messageLog(t, pendingTx, 100, transferMessage(t, account, otherAccount, big.NewInt(1))),
		messageLog(t, processedTx, 200, transferMessage(t, otherAccount, account, big.NewInt(2))),
		messageLog(t, foreignTx, 300, transferMessage(t, otherAccount, otherAccount, big.NewInt(3))),
		messageLog(t, failingTx, 400, transferMessage(t, account, account, big.NewInt(4))),
		messageLog(t, readyTx, 500, transferMessage(t, account, account, big.NewInt(5))),
		messageLog(t, readyTx, 500, transferMessage(t, account, account, big.NewInt(5))),
	}

	processedPayload := []byte("already processed")
	failingPayload := []byte("reverts on chain")

	source := newFakeProofs()
	source.add(pendingTx, pending)
	source.add(processedTx, ready(processedPayload))
	source.add(failingTx, ready(failingPayload))
	source.add(readyTx, ready(payload))

	h.l1.EstimateFn = func(msg ethereum.CallMsg) (uint64, error) {
		if bytes.Contains(msg.Data, processedPayload) {
			return 0, errors.New("execution reverted: EXIT_ALREADY_PROCESSED")
		}
		return 80_000, nil
	}
	failingData, err := h.contracts.RootTunnel.Pack("receiveMessage", failingPayload)
	require.NoError(t, err)
	h.l1.StatusFor = func(tx *types.Transaction) uint64 {
		if bytes.Equal(tx.Data(), failingData) {
			return types.ReceiptStatusFailed
		}
		return types.ReceiptStatusSuccessful
	}

	summary, err := h.relay(source, RelayConfig{}).FinalizeAll(context.Background(), account)
	require.NoError(t, err)

	require.Len(t, summary.Entries, 4)
	require.Equal(t, pendingTx, summary.Entries[0].L2TxHash)
	require.Equal(t, FinalizePending, summary.Entries[0].Result.Status)
	require.Equal(t, FinalizeAlreadyProcessed, summary.Entries[1].Result.Status)
	require.Equal(t, FinalizeAlreadyProcessed, summary.Entries[2].Result.Status)
	require.ErrorIs(t, summary.Entries[2].Result.Err, ErrFinalizeFailed)
	require.Equal(t, readyTx, summary.Entries[3].L2TxHash)
	require.Equal(t, FinalizeReady, summary.Entries[3].Result.Status)

	require.Equal(t, 1, summary.Counts[FinalizePending])
	require.Equal(t, 2, summary.Counts[FinalizeAlreadyProcessed])
	require.Equal(t, 1, summary.Counts[FinalizeReady])
	require.Zero(t, summary.Counts[FinalizeFatal])

	require.NotContains(t, source.queries, foreignTx)
	require.Len(t, h.l1.Sent, 2)
}

func TestFinalizeAll_LogErrorAborts(t *testing.T) {
	h := newHarness(t)
	h.l2.FilterErr = errors.New("query returned more than 10000 results")
	source := newFakeProofs()

	_, err := h.relay(source, RelayConfig{}).FinalizeAll(context.Background(), chaintest.TestAddress)
	require.ErrorContains(t, err, "more than 10000 results")
	require.Empty(t, source.queries)
}

func TestFinalizeAll_StopsOnCancellation(t *testing.T) {
	h := newHarness(t)
	h.l2.Logs = []types.Log{messageLog(t, l2Tx, 1, transferMessage(t, chaintest.TestAddress, otherAccount, big.NewInt(1)))}
	source := newFakeProofs()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.relay(source, RelayConfig{}).FinalizeAll(ctx, chaintest.TestAddress)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, source.queries)
}

func TestListMessages(t *testing.T) {
	h := newHarness(t)
	account := chaintest.TestAddress

	first, second := common.HexToHash("0xb1"), common.HexToHash("0xb2")
	h.l2.Logs = []types.Log{
		messageLog(t, first, 10, transferMessage(t, account, account, big.NewInt(11))),
		messageLog(t, second, 20, append([]byte{0xff}, account.Bytes()...)),
	}
	source := newFakeProofs()
	source.add(first, ready(payload))

	statuses, err := h.relay(source, RelayConfig{}).ListMessages(context.Background(), account)
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	require.Equal(t, first, statuses[0].L2TxHash)
	require.Equal(t, proofs.StatusReady, statuses[0].Proof)
	require.Equal(t, big.NewInt(11), statuses[0].Amount())

	require.Equal(t, uint64(20), statuses[1].BlockNumber)
	require.Equal(t, proofs.StatusPending, statuses[1].Proof)
	require.Nil(t, statuses[1].Amount())

	require.Empty(t, h.l1.Sent)
	require.Empty(t, h.l1.Estimates)
}
