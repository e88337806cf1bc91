package bridge

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/Golem-Base/fx-bridge/internal/proofs"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Message is a MessageSent event of the child tunnel.
type Message struct {
	L2TxHash    common.Hash
	BlockNumber uint64
	Payload     []byte
}

var (
	bytesType, _   = abi.NewType("bytes", "", nil)
	addressType, _ = abi.NewType("address", "", nil)
	uint256Type, _ = abi.NewType("uint256", "", nil)

	messageSentArgs = abi.Arguments{{Name: "message", Type: bytesType}}

	// Known tunnel message layouts, tried in order.
	messageLayouts = []abi.Arguments{
		// (sender, receiver, amount)
		{{Type: addressType}, {Type: addressType}, {Type: uint256Type}},
		// (rootToken, childToken, receiver, amount)
		{{Type: addressType}, {Type: addressType}, {Type: addressType}, {Type: uint256Type}},
	}
)

func decodeMessageSent(l types.Log) (Message, error) {
	values, err := messageSentArgs.Unpack(l.Data)
	if err != nil {
		return Message{}, fmt.Errorf("could not decode MessageSent in tx %s: %w", l.TxHash.Hex(), err)
	}
	return Message{L2TxHash: l.TxHash, BlockNumber: l.BlockNumber, Payload: values[0].([]byte)}, nil
}

// decode unpacks the payload against the first known layout of matching size.
func (m Message) decode() ([]interface{}, bool) {
	for _, layout := range messageLayouts {
		if len(m.Payload) != 32*len(layout) {
			continue
		}
		if values, err := layout.Unpack(m.Payload); err == nil {
			return values, true
		}
	}
	return nil, false
}

// References reports whether the message moves tokens from or to account. When the
// payload matches no known layout, the hex account is searched for in the hex payload.
func (m Message) References(account common.Address) bool {
	if values, ok := m.decode(); ok {
		for _, v := range values {
			if addr, isAddr := v.(common.Address); isAddr && addr == account {
				return true
			}
		}
		return false
	}

	needle := strings.ToLower(strings.TrimPrefix(account.Hex(), "0x"))
	return bytes.Contains([]byte(common.Bytes2Hex(m.Payload)), []byte(needle))
}

// Amount is the token amount carried by the message, or nil for unknown layouts.
func (m Message) Amount() *big.Int {
	values, ok := m.decode()
	if !ok {
		return nil
	}
	amount, _ := values[len(values)-1].(*big.Int)
	return amount
}

// FindMessages lists the MessageSent events of the child tunnel between the configured
// start block and the current L2 head that reference account. Each transaction is
// reported once.
func (r *Relay) FindMessages(ctx context.Context, account common.Address) ([]Message, error) {
	head, err := r.l2.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not fetch %s head: %w", r.l2.Name(), err)
	}
	if r.cfg.FromBlock > head {
		return nil, nil
	}

	var (
		out  []Message
		seen = make(map[common.Hash]struct{})
	)
	for start := r.cfg.FromBlock; start <= head; {
		end := head
		if r.cfg.BlockRange > 0 && start+r.cfg.BlockRange-1 < head {
			end = start + r.cfg.BlockRange - 1
		}

		logs, err := r.l2.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(start),
			ToBlock:   new(big.Int).SetUint64(end),
			Addresses: []common.Address{r.childTunnel.Address},
			Topics:    [][]common.Hash{{proofs.MessageSentTopic}},
		})
		if err != nil {
			return nil, fmt.Errorf("could not filter MessageSent logs in blocks %d-%d: %w", start, end, err)
		}
		r.log.Debug("scanned MessageSent logs", "from", start, "to", end, "count", len(logs))

		for _, l := range logs {
			if l.Removed {
				continue
			}
			msg, err := decodeMessageSent(l)
			if err != nil {
				r.log.Warn("skipping undecodable message", "err", err)
				continue
			}
			if _, dup := seen[msg.L2TxHash]; dup || !msg.References(account) {
				continue
			}
			seen[msg.L2TxHash] = struct{}{}
			out = append(out, msg)
		}

		if end == head {
			break
		}
		start = end + 1
	}
	return out, nil
}
