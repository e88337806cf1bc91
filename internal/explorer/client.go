// Package explorer fetches verified contract ABIs from an Etherscan-compatible
// block explorer API.
package explorer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/retry"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/go-resty/resty/v2"
)

var ErrABIUnavailable = errors.New("explorer: abi unavailable")

const statusOK = "1"

type Config struct {
	BaseURL string
	APIKey  string

	Timeout    time.Duration
	Attempts   int
	RetryDelay time.Duration
}

type Client struct {
	log  log.Logger
	rest *resty.Client
	cfg  Config
}

type abiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  string `json:"result"`
}

func NewClient(lgr log.Logger, cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}

	rest := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout)

	return &Client{log: lgr, rest: rest, cfg: cfg}
}

// FetchABI returns the ABI published for address. Failures are retried with a fixed
// delay; the last failure is returned once the attempts are used up.
func (c *Client) FetchABI(ctx context.Context, address common.Address) (*abi.ABI, error) {
	return retry.Do(ctx, c.cfg.Attempts, retry.Fixed(c.cfg.RetryDelay), func() (*abi.ABI, error) {
		parsed, err := c.fetchABI(ctx, address)
		if err != nil {
			c.log.Warn("could not fetch abi", "address", address, "err", err)
		}
		return parsed, err
	})
}

func (c *Client) fetchABI(ctx context.Context, address common.Address) (*abi.ABI, error) {
	var body abiResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"module":  "contract",
			"action":  "getabi",
			"address": address.Hex(),
			"apikey":  c.cfg.APIKey,
		}).
		ForceContentType("application/json").
		SetResult(&body).
		Get("/api")
	if err != nil {
		return nil, fmt.Errorf("explorer request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("explorer returned http status %d", resp.StatusCode())
	}
	if body.Status != statusOK {
		return nil, fmt.Errorf("%w: %s", ErrABIUnavailable, body.Result)
	}

	parsed, err := abi.JSON(strings.NewReader(body.Result))
	if err != nil {
		return nil, fmt.Errorf("could not parse abi of %s: %w", address.Hex(), err)
	}

	c.log.Debug("fetched abi", "address", address, "methods", len(parsed.Methods), "events", len(parsed.Events))
	return &parsed, nil
}
