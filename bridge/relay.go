package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/Golem-Base/fx-bridge/internal"
	"github.com/Golem-Base/fx-bridge/internal/chain"
	"github.com/Golem-Base/fx-bridge/internal/proofs"
	"github.com/ethereum-optimism/optimism/op-service/txmgr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

const DefaultPollInterval = 5 * time.Minute

type FinalizeStatus int

const (
	FinalizePending FinalizeStatus = iota
	FinalizeReady
	FinalizeAlreadyProcessed
	FinalizeFatal
)

func (s FinalizeStatus) String() string {
	switch s {
	case FinalizePending:
		return "pending"
	case FinalizeReady:
		return "ready"
	case FinalizeAlreadyProcessed:
		return "already processed"
	case FinalizeFatal:
		return "fatal"
	default:
		return fmt.Sprintf("FinalizeStatus(%d)", int(s))
	}
}

type FinalizeResult struct {
	Status FinalizeStatus
	// L1TxHash is set once a receiveMessage transaction has been submitted.
	L1TxHash common.Hash
	Err      error
}

// ProofSource is implemented by *proofs.Client.
type ProofSource interface {
	Query(ctx context.Context, l2TxHash common.Hash) proofs.Result
}

type RelayConfig struct {
	PollInterval time.Duration
	// FromBlock and BlockRange bound the MessageSent scan of FinalizeAll. A zero
	// BlockRange scans up to the head in a single query.
	FromBlock  uint64
	BlockRange uint64

	Sleep func(ctx context.Context, d time.Duration) error
}

// Relay completes L2 to L1 messages by submitting proof payloads to the root tunnel.
type Relay struct {
	log         log.Logger
	l1          *chain.Gateway
	l2          *chain.Gateway
	rootTunnel  *internal.Contract
	childTunnel *internal.Contract
	proofs      ProofSource
	cfg         RelayConfig
}

func NewRelay(lgr log.Logger, l1, l2 *chain.Gateway, contracts *internal.BridgeContracts, source ProofSource, cfg RelayConfig) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Sleep == nil {
		cfg.Sleep = chain.SleepCtx
	}
	return &Relay{
		log:         lgr,
		l1:          l1,
		l2:          l2,
		rootTunnel:  contracts.RootTunnel,
		childTunnel: contracts.ChildTunnel,
		proofs:      source,
		cfg:         cfg,
	}
}

// TryFinalize makes one attempt at relaying the message emitted by l2TxHash.
//
// A reverting gas estimate means the message was already relayed or its checkpoint has
// not reached L1 yet; both are reported as AlreadyProcessed. A mined but reverted
// receiveMessage is Fatal only when exitOnError is set.
func (r *Relay) TryFinalize(ctx context.Context, l2TxHash common.Hash, exitOnError bool) FinalizeResult {
	proof := r.proofs.Query(ctx, l2TxHash)
	if proof.Status != proofs.StatusReady {
		return FinalizeResult{Status: FinalizePending}
	}

	data, err := r.rootTunnel.Pack("receiveMessage", proof.Payload)
	if err != nil {
		return FinalizeResult{Status: FinalizeFatal, Err: fmt.Errorf("%w: %v", ErrFinalizeFailed, err)}
	}

	rootTunnel := r.rootTunnel.Address
	candidate := txmgr.TxCandidate{TxData: data, To: &rootTunnel}

	gas, err := r.l1.EstimateGas(ctx, candidate)
	switch {
	case chain.IsExecutionReverted(err):
		r.log.Info("payload processing on L1 failed, message already processed or checkpoint pending", "l2Tx", l2TxHash.Hex(), "err", err)
		return FinalizeResult{Status: FinalizeAlreadyProcessed, Err: err}
	case err != nil:
		r.log.Warn("gas estimation failed, using fallback gas limit", "gas", FALLBACK_RECEIVE_GAS_LIMIT, "err", err)
		gas = FALLBACK_RECEIVE_GAS_LIMIT
	}
	candidate.GasLimit = gas

	r.log.Info("processing proof payload on L1", "l2Tx", l2TxHash.Hex())

	hash, err := r.l1.Submit(ctx, candidate)
	if err != nil {
		r.log.Info("payload processing on L1 failed", "l2Tx", l2TxHash.Hex(), "err", err)
		return FinalizeResult{Status: FinalizeAlreadyProcessed, Err: err}
	}

	return r.settle(ctx, l2TxHash, hash, exitOnError)
}

// settle waits for the receiveMessage transaction l1TxHash. A failed receipt lookup
// leaves the result Pending with the hash set, so the caller can wait on it again.
func (r *Relay) settle(ctx context.Context, l2TxHash, hash common.Hash, exitOnError bool) FinalizeResult {
	outcome, err := r.l1.WaitForReceipt(ctx, hash)
	if err != nil {
		return FinalizeResult{Status: FinalizePending, L1TxHash: hash, Err: err}
	}
	if !outcome.OK() {
		failure := &TxFailedError{Op: "receiveMessage", Chain: r.l1.Name(), TxHash: hash, base: ErrFinalizeFailed}
		if exitOnError {
			r.log.Error("receive transaction failed on L1", "tx", hash.Hex())
			return FinalizeResult{Status: FinalizeFatal, L1TxHash: hash, Err: failure}
		}
		r.log.Warn("receive transaction failed on L1", "tx", hash.Hex())
		return FinalizeResult{Status: FinalizeAlreadyProcessed, L1TxHash: hash, Err: failure}
	}

	r.log.Info("message has been relayed to L1", "l2Tx", l2TxHash.Hex(), "l1Tx", hash.Hex())
	return FinalizeResult{Status: FinalizeReady, L1TxHash: hash}
}

// WaitForFinalization retries TryFinalize every poll interval until the message is
// relayed or the relay fails on chain. It only gives up early when ctx is done.
//
// While a submitted receiveMessage has no receipt yet, later attempts keep waiting on
// that transaction instead of querying the proof service and submitting again.
func (r *Relay) WaitForFinalization(ctx context.Context, l2TxHash common.Hash) (common.Hash, error) {
	var inFlight common.Hash
	for attempt := 1; ; attempt++ {
		var res FinalizeResult
		if inFlight != (common.Hash{}) {
			r.log.Info("waiting again for submitted receive transaction", "l2Tx", l2TxHash.Hex(), "l1Tx", inFlight.Hex())
			res = r.settle(ctx, l2TxHash, inFlight, true)
		} else {
			res = r.TryFinalize(ctx, l2TxHash, true)
		}
		switch res.Status {
		case FinalizeReady:
			return res.L1TxHash, nil
		case FinalizeFatal:
			return res.L1TxHash, res.Err
		}

		inFlight = common.Hash{}
		if res.Status == FinalizePending {
			inFlight = res.L1TxHash
		}

		r.log.Info("waiting for the proofs to finalize tx on L1",
			"l2Tx", l2TxHash.Hex(), "status", res.Status, "attempt", attempt, "nextCheckIn", r.cfg.PollInterval)
		if err := r.cfg.Sleep(ctx, r.cfg.PollInterval); err != nil {
			return common.Hash{}, err
		}
	}
}

type FinalizeEntry struct {
	L2TxHash common.Hash
	Result   FinalizeResult
}

type FinalizeSummary struct {
	Entries []FinalizeEntry
	Counts  map[FinalizeStatus]int
}

// FinalizeAll attempts to relay every message of account found since the configured
// start block. Per-message outcomes never stop the scan.
func (r *Relay) FinalizeAll(ctx context.Context, account common.Address) (FinalizeSummary, error) {
	summary := FinalizeSummary{Counts: make(map[FinalizeStatus]int)}

	messages, err := r.FindMessages(ctx, account)
	if err != nil {
		return summary, err
	}
	r.log.Info("found messages to finalize", "account", account, "count", len(messages))

	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		r.log.Info("checking tx hash", "l2Tx", msg.L2TxHash.Hex(), "block", msg.BlockNumber)

		res := r.TryFinalize(ctx, msg.L2TxHash, false)
		summary.Entries = append(summary.Entries, FinalizeEntry{L2TxHash: msg.L2TxHash, Result: res})
		summary.Counts[res.Status]++
	}
	return summary, nil
}

type MessageStatus struct {
	Message
	Proof proofs.Status
}

// ListMessages reports the messages of account together with the proof service's
// current answer for each. Nothing is submitted.
func (r *Relay) ListMessages(ctx context.Context, account common.Address) ([]MessageStatus, error) {
	messages, err := r.FindMessages(ctx, account)
	if err != nil {
		return nil, err
	}

	out := make([]MessageStatus, 0, len(messages))
	for _, msg := range messages {
		res := r.proofs.Query(ctx, msg.L2TxHash)
		out = append(out, MessageStatus{Message: msg, Proof: res.Status})
	}
	return out, nil
}
