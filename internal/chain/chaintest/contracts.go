package chaintest

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const ERC20ABI = `[
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

const TunnelABI = `[
	{"type":"function","name":"deposit","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"depositTo","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"withdrawTo","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"receiveMessage","stateMutability":"nonpayable","inputs":[{"name":"inputData","type":"bytes"}],"outputs":[]},
	{"type":"event","name":"MessageSent","anonymous":false,"inputs":[{"name":"message","type":"bytes","indexed":false}]}
]`

// Token is an ERC-20 answering balanceOf and allowance from its maps.
type Token struct {
	ABI *abi.ABI

	mu         sync.Mutex
	balances   map[common.Address]*big.Int
	allowances map[[2]common.Address]*big.Int
}

func NewToken() *Token {
	return &Token{
		ABI:        MustParseABI(ERC20ABI),
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[[2]common.Address]*big.Int),
	}
}

func (t *Token) SetBalance(owner common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances[owner] = new(big.Int).Set(amount)
}

func (t *Token) SetAllowance(owner, spender common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.allowances[[2]common.Address{owner, spender}] = new(big.Int).Set(amount)
}

func (t *Token) Handle(input []byte) ([]byte, error) {
	name, args, err := DecodeCall(t.ABI, input)
	if err != nil {
		return nil, err
	}
	method := t.ABI.Methods[name]

	t.mu.Lock()
	defer t.mu.Unlock()

	var value *big.Int
	switch name {
	case "balanceOf":
		value = t.balances[args[0].(common.Address)]
	case "allowance":
		value = t.allowances[[2]common.Address{args[0].(common.Address), args[1].(common.Address)}]
	default:
		return nil, fmt.Errorf("token: unsupported call %s", name)
	}
	if value == nil {
		value = new(big.Int)
	}
	return method.Outputs.Pack(value)
}
