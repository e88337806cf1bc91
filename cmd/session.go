package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/Golem-Base/fx-bridge/bridge"
	"github.com/Golem-Base/fx-bridge/internal"
	"github.com/Golem-Base/fx-bridge/internal/chain"
	"github.com/Golem-Base/fx-bridge/internal/config"
	"github.com/Golem-Base/fx-bridge/internal/explorer"
	"github.com/Golem-Base/fx-bridge/internal/proofs"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
)

// Session is everything an operation needs, built once per invocation.
type Session struct {
	Log     log.Logger
	Bridger *bridge.Bridger
	Relay   *bridge.Relay

	closers []func()
}

func (s *Session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// openSession is swapped out in tests.
var openSession = func(c *cli.Context) (*Session, error) {
	cfg, err := config.Load(c.String(ConfigFlag.Name))
	if err != nil {
		return nil, err
	}
	return NewSession(c.Context, log.Root(), cfg)
}

// NewSession selects the signer, connects to both chains, resolves the contracts from
// the block explorers and wires the bridger and relay.
func NewSession(ctx context.Context, lgr log.Logger, cfg *config.Config) (*Session, error) {
	s := &Session{Log: lgr}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	signer, err := newSigner(lgr, cfg)
	if err != nil {
		return nil, err
	}
	if closer, isCloser := signer.(interface{ Close() error }); isCloser {
		s.closers = append(s.closers, func() { _ = closer.Close() })
	}
	lgr.Info("Using account", "address", signer.Address(), "ledger", cfg.Ledger)

	httpTimeout := time.Duration(cfg.HTTPTimeout)

	l1Endpoint, l2Endpoint := cfg.L1(), cfg.L2()
	l1Client, l1ChainId, err := internal.ConnectClient(ctx, l1Endpoint.Name, l1Endpoint.RPCURL)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, l1Client.Close)

	l2Client, l2ChainId, err := internal.ConnectClient(ctx, l2Endpoint.Name, l2Endpoint.RPCURL)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, l2Client.Close)

	l1, err := chain.NewGateway(lgr, l1Client, signer, chain.Config{Name: l1Endpoint.Name, ChainID: l1ChainId})
	if err != nil {
		return nil, err
	}
	l2, err := chain.NewGateway(lgr, l2Client, signer, chain.Config{Name: l2Endpoint.Name, ChainID: l2ChainId})
	if err != nil {
		return nil, err
	}

	specs, err := cfg.BridgeSpecs()
	if err != nil {
		return nil, err
	}
	contracts, err := internal.NewBridgeContracts(ctx,
		newExplorer(lgr, l1Endpoint, httpTimeout),
		newExplorer(lgr, l2Endpoint, httpTimeout),
		l1Client, l2Client,
		specs,
	)
	if err != nil {
		return nil, fmt.Errorf("could not resolve bridge contracts: %w", err)
	}

	s.Bridger = bridge.NewBridger(lgr, l1, l2, contracts)
	s.Relay = bridge.NewRelay(lgr, l1, l2, contracts,
		proofs.NewClient(lgr, cfg.ProofGeneratorURL, httpTimeout),
		bridge.RelayConfig{
			PollInterval: time.Duration(cfg.PollInterval),
			FromBlock:    cfg.FromBlockL2,
			BlockRange:   cfg.LogBlockRange,
		},
	)

	ok = true
	return s, nil
}

func newSigner(lgr log.Logger, cfg *config.Config) (chain.Signer, error) {
	if !cfg.Ledger {
		return chain.ParseLocalSigner(cfg.Env.PrivateKey)
	}

	path, err := chain.LedgerPath(cfg.LedgerDerivationPath, cfg.AccountIndex)
	if err != nil {
		return nil, err
	}
	lgr.Info("Ledger note: confirm every transaction on the device", "path", path.String())
	return chain.NewLedgerSigner(lgr, path)
}

func newExplorer(lgr log.Logger, endpoint config.ChainEndpoint, timeout time.Duration) *explorer.Client {
	return explorer.NewClient(lgr.New("explorer", endpoint.Name), explorer.Config{
		BaseURL:    endpoint.ExplorerURL,
		APIKey:     endpoint.ExplorerAPIKey,
		Timeout:    timeout,
		Attempts:   3,
		RetryDelay: 2 * time.Second,
	})
}
