// Package proofs queries the proof-generation service that turns an L2 transaction
// emitting a tunnel message into the payload accepted by the L1 root tunnel.
package proofs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/go-resty/resty/v2"
)

// SuccessMessage is the service message accompanying a generated payload.
const SuccessMessage = "Payload generation success"

// MessageSentTopic is the topic of the child tunnel's MessageSent(bytes) event.
var MessageSentTopic = crypto.Keccak256Hash([]byte("MessageSent(bytes)"))

type Status int

const (
	StatusPending Status = iota
	StatusReady
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result is never an error: anything short of a usable payload is Pending, with
// Reason saying why.
type Result struct {
	Status  Status
	Payload []byte
	Reason  string
}

type Client struct {
	log     log.Logger
	rest    *resty.Client
	baseURL string
	topic   common.Hash
}

type payloadResponse struct {
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func NewClient(lgr log.Logger, baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		log:     lgr,
		rest:    resty.New().SetTimeout(timeout),
		baseURL: baseURL,
		topic:   MessageSentTopic,
	}
}

// Query asks for the payload proving the message emitted by l2TxHash. The request
// url is the configured prefix followed by the hash.
func (c *Client) Query(ctx context.Context, l2TxHash common.Hash) Result {
	var body payloadResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("eventSignature", c.topic.Hex()).
		ForceContentType("application/json").
		SetResult(&body).
		Get(c.baseURL + l2TxHash.Hex())
	if err != nil {
		return c.pending(l2TxHash, fmt.Sprintf("request failed: %v", err))
	}
	if resp.IsError() {
		return c.pending(l2TxHash, fmt.Sprintf("http status %d", resp.StatusCode()))
	}
	if body.Message != SuccessMessage {
		return c.pending(l2TxHash, fmt.Sprintf("service message %q", body.Message))
	}

	var encoded string
	if err := json.Unmarshal(body.Result, &encoded); err != nil {
		return c.pending(l2TxHash, fmt.Sprintf("malformed result: %v", err))
	}
	if !strings.HasPrefix(encoded, "0x") {
		encoded = "0x" + encoded
	}
	payload, err := hexutil.Decode(encoded)
	if err != nil || len(payload) == 0 {
		return c.pending(l2TxHash, fmt.Sprintf("undecodable payload: %v", err))
	}

	c.log.Info("proof payload is ready", "l2Tx", l2TxHash.Hex(), "size", len(payload))
	return Result{Status: StatusReady, Payload: payload}
}

func (c *Client) pending(l2TxHash common.Hash, reason string) Result {
	c.log.Info("proof payload not available yet", "l2Tx", l2TxHash.Hex(), "reason", reason)
	return Result{Status: StatusPending, Reason: reason}
}
