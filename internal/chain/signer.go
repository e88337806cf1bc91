package chain

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/usbwallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
)

var (
	ErrInvalidSigner = errors.New("chain: invalid signer")
	ErrNoLedger      = errors.New("chain: no ledger device found")
)

// Signer signs transactions for a single from-address. Key material never leaves
// the implementation.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

type LocalSigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

func NewLocalSigner(key *ecdsa.PrivateKey) *LocalSigner {
	var addr common.Address
	if key != nil {
		addr = crypto.PubkeyToAddress(key.PublicKey)
	}
	return &LocalSigner{key: key, addr: addr}
}

// ParseLocalSigner builds a LocalSigner from a hex private key, with or without 0x.
func ParseLocalSigner(hexKey string) (*LocalSigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return NewLocalSigner(key), nil
}

func (s *LocalSigner) Address() common.Address { return s.addr }

func (s *LocalSigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if s.key == nil || tx == nil || chainID == nil || chainID.Sign() <= 0 {
		return nil, ErrInvalidSigner
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}

// LedgerSigner signs on a Ledger device over USB. Every signature needs a manual
// confirmation on the device.
type LedgerSigner struct {
	log     log.Logger
	wallet  accounts.Wallet
	account accounts.Account
}

func NewLedgerSigner(lgr log.Logger, path accounts.DerivationPath) (*LedgerSigner, error) {
	hub, err := usbwallet.NewLedgerHub()
	if err != nil {
		return nil, fmt.Errorf("could not open ledger hub: %w", err)
	}

	wallets := hub.Wallets()
	if len(wallets) == 0 {
		return nil, ErrNoLedger
	}
	wallet := wallets[0]
	if err := wallet.Open(""); err != nil {
		return nil, fmt.Errorf("could not open ledger wallet: %w", err)
	}

	account, err := wallet.Derive(path, true)
	if err != nil {
		wallet.Close()
		return nil, fmt.Errorf("could not derive ledger account at %s: %w", path, err)
	}

	lgr.Info("Using ledger account", "address", account.Address, "path", path.String())

	return &LedgerSigner{log: lgr, wallet: wallet, account: account}, nil
}

func (s *LedgerSigner) Address() common.Address { return s.account.Address }

func (s *LedgerSigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if tx == nil || chainID == nil || chainID.Sign() <= 0 {
		return nil, ErrInvalidSigner
	}
	s.log.Info("Sign on your ledger now ...", "to", tx.To(), "nonce", tx.Nonce())
	return s.wallet.SignTx(s.account, tx, chainID)
}

func (s *LedgerSigner) Close() error {
	return s.wallet.Close()
}

// LedgerPath returns the derivation path for the given account index: the last
// component of base (the default Ethereum path when empty) is replaced by index.
func LedgerPath(base string, index uint32) (accounts.DerivationPath, error) {
	path := make(accounts.DerivationPath, len(accounts.DefaultBaseDerivationPath))
	copy(path, accounts.DefaultBaseDerivationPath)

	if strings.TrimSpace(base) != "" {
		parsed, err := accounts.ParseDerivationPath(base)
		if err != nil {
			return nil, fmt.Errorf("invalid ledger derivation path %q: %w", base, err)
		}
		path = parsed
	}
	if len(path) == 0 {
		return nil, fmt.Errorf("empty ledger derivation path")
	}

	path[len(path)-1] = index
	return path, nil
}
