package internal

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// ABISource resolves the ABI of a deployed contract. The block explorer client is the
// production implementation.
type ABISource interface {
	FetchABI(ctx context.Context, address common.Address) (*abi.ABI, error)
}

// Contract is a contract handle bound to the chain it is deployed on.
type Contract struct {
	Name    string
	Address common.Address
	ABI     *abi.ABI

	bound *bind.BoundContract
}

func NewContract(name string, address common.Address, parsed *abi.ABI, caller bind.ContractCaller) *Contract {
	return &Contract{
		Name:    name,
		Address: address,
		ABI:     parsed,
		bound:   bind.NewBoundContract(address, *parsed, caller, nil, nil),
	}
}

func (c *Contract) Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := c.bound.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("could not call %s.%s: %w", c.Name, method, err)
	}
	return out, nil
}

// CallBigInt calls a view method returning a single uint256.
func (c *Contract) CallBigInt(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	out, err := c.Call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s.%s returned no values", c.Name, method)
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (c *Contract) Pack(method string, args ...interface{}) ([]byte, error) {
	data, err := c.ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("could not pack %s.%s: %w", c.Name, method, err)
	}
	return data, nil
}

// ContractSpec names a deployed contract and the address its ABI is published under.
// The two differ for proxies, where the explorer holds the ABI of the implementation.
type ContractSpec struct {
	Name       string
	Address    common.Address
	ABIAddress common.Address
}

type BridgeSpecs struct {
	LPToken      ContractSpec
	BridgedERC20 ContractSpec
	RootTunnel   ContractSpec
	ChildTunnel  ContractSpec
}

// BridgeContracts holds the four tunnel contracts. LPToken and ChildTunnel live on
// L2, BridgedERC20 and RootTunnel on L1.
type BridgeContracts struct {
	LPToken      *Contract
	BridgedERC20 *Contract
	RootTunnel   *Contract
	ChildTunnel  *Contract
}

func NewBridgeContracts(
	ctx context.Context,
	l1ABIs, l2ABIs ABISource,
	l1Caller, l2Caller bind.ContractCaller,
	specs BridgeSpecs,
) (*BridgeContracts, error) {
	lpToken, err := resolveContract(ctx, l2ABIs, l2Caller, specs.LPToken)
	if err != nil {
		return nil, err
	}
	bridgedERC20, err := resolveContract(ctx, l1ABIs, l1Caller, specs.BridgedERC20)
	if err != nil {
		return nil, err
	}
	rootTunnel, err := resolveContract(ctx, l1ABIs, l1Caller, specs.RootTunnel)
	if err != nil {
		return nil, err
	}
	childTunnel, err := resolveContract(ctx, l2ABIs, l2Caller, specs.ChildTunnel)
	if err != nil {
		return nil, err
	}

	return &BridgeContracts{
		LPToken:      lpToken,
		BridgedERC20: bridgedERC20,
		RootTunnel:   rootTunnel,
		ChildTunnel:  childTunnel,
	}, nil
}

func resolveContract(ctx context.Context, abis ABISource, caller bind.ContractCaller, spec ContractSpec) (*Contract, error) {
	abiAddress := spec.ABIAddress
	if abiAddress == ZeroAddress {
		abiAddress = spec.Address
	}

	parsed, err := abis.FetchABI(ctx, abiAddress)
	if err != nil {
		return nil, fmt.Errorf("could not get %s abi: %w", spec.Name, err)
	}

	return NewContract(spec.Name, spec.Address, parsed, caller), nil
}
