// Package config loads the bridge configuration from a JSON or YAML file, the
// process environment and an optional .env file.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Golem-Base/fx-bridge/internal"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath         = "config.json"
	DefaultPollInterval = 5 * time.Minute
	DefaultHTTPTimeout  = 30 * time.Second
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

// Duration accepts Go duration strings ("5m", "30s") in the config file.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	return d.set(raw)
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return d.set(raw)
}

func (d *Duration) set(raw string) error {
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// File mirrors the keys of the config file.
type File struct {
	FromBlockL1       uint64 `json:"from_block_l1" yaml:"from_block_l1"`
	FromBlockL2       uint64 `json:"from_block_l2" yaml:"from_block_l2"`
	ProofGeneratorURL string `json:"proof_generator_url" yaml:"proof_generator_url"`

	Ledger               bool   `json:"ledger" yaml:"ledger"`
	AccountIndex         uint32 `json:"account_index" yaml:"account_index"`
	LedgerDerivationPath string `json:"ledger_derivation_path" yaml:"ledger_derivation_path"`

	AlchemyURLEth     string `json:"alchemy_url_eth" yaml:"alchemy_url_eth"`
	AlchemyURLPolygon string `json:"alchemy_url_polygon" yaml:"alchemy_url_polygon"`
	URLAPIEth         string `json:"url_api_eth" yaml:"url_api_eth"`
	URLAPIPolygon     string `json:"url_api_polygon" yaml:"url_api_polygon"`

	LPTokenAddress               string `json:"lp_token_address" yaml:"lp_token_address"`
	ABILPTokenAddress            string `json:"abi_lp_token_address" yaml:"abi_lp_token_address"`
	BridgedERC20Address          string `json:"bridged_erc20_address" yaml:"bridged_erc20_address"`
	ABIBridgedERC20Address       string `json:"abi_bridged_erc20_address" yaml:"abi_bridged_erc20_address"`
	FxERC20RootTunnelAddress     string `json:"fx_erc20_root_tunnel_address" yaml:"fx_erc20_root_tunnel_address"`
	ABIFxERC20RootTunnelAddress  string `json:"abi_fx_erc20_root_tunnel_address" yaml:"abi_fx_erc20_root_tunnel_address"`
	FxERC20ChildTunnelAddress    string `json:"fx_erc20_child_tunnel_address" yaml:"fx_erc20_child_tunnel_address"`
	ABIFxERC20ChildTunnelAddress string `json:"abi_fx_erc20_child_tunnel_address" yaml:"abi_fx_erc20_child_tunnel_address"`

	PollInterval  Duration `json:"poll_interval" yaml:"poll_interval"`
	LogBlockRange uint64   `json:"log_block_range" yaml:"log_block_range"`
	HTTPTimeout   Duration `json:"http_timeout" yaml:"http_timeout"`
}

// Env holds the secrets, which are only ever read from the environment.
type Env struct {
	AlchemyAPIKeyEth     string `envconfig:"ALCHEMY_API_KEY_ETH"`
	AlchemyAPIKeyPolygon string `envconfig:"ALCHEMY_API_KEY_POLYGON"`
	EtherscanAPIKey      string `envconfig:"ETHERSCAN_API_KEY"`
	PolygonscanAPIKey    string `envconfig:"POLYGONSCAN_API_KEY"`
	PrivateKey           string `envconfig:"PRIVATE_KEY"`
}

type Config struct {
	File
	Env Env
}

// ChainEndpoint describes how to reach one chain and its block explorer.
type ChainEndpoint struct {
	Name           string
	RPCURL         string
	ExplorerURL    string
	ExplorerAPIKey string
}

// Load reads .env (when present), then the config file at path, then the environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("could not load .env: %w", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config file %s: %w", path, err)
	}

	cfg, err := parse(raw, isJSON(path, raw))
	if err != nil {
		return nil, fmt.Errorf("could not parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a config document and completes it from the environment. Documents
// starting with '{' are read as JSON, anything else as YAML.
func Parse(raw []byte) (*Config, error) {
	return parse(raw, isJSON("", raw))
}

func isJSON(path string, raw []byte) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return true
	case ".yaml", ".yml":
		return false
	}
	return bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{"))
}

func parse(raw []byte, asJSON bool) (*Config, error) {
	cfg := &Config{}
	if asJSON {
		if err := json.Unmarshal(raw, &cfg.File); err != nil {
			return nil, err
		}
	} else if err := yaml.Unmarshal(raw, &cfg.File); err != nil {
		return nil, err
	}
	if err := envconfig.Process("", &cfg.Env); err != nil {
		return nil, fmt.Errorf("could not read environment: %w", err)
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = Duration(DefaultPollInterval)
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = Duration(DefaultHTTPTimeout)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if !c.Ledger && strings.TrimSpace(c.Env.PrivateKey) == "" {
		return fmt.Errorf("%w: PRIVATE_KEY is required unless ledger signing is enabled", ErrInvalidConfig)
	}
	if c.ProofGeneratorURL == "" {
		return fmt.Errorf("%w: proof_generator_url is required", ErrInvalidConfig)
	}
	if c.AlchemyURLEth == "" || c.AlchemyURLPolygon == "" {
		return fmt.Errorf("%w: alchemy_url_eth and alchemy_url_polygon are required", ErrInvalidConfig)
	}
	if c.URLAPIEth == "" || c.URLAPIPolygon == "" {
		return fmt.Errorf("%w: url_api_eth and url_api_polygon are required", ErrInvalidConfig)
	}
	if _, err := c.BridgeSpecs(); err != nil {
		return err
	}
	return nil
}

func (c *Config) L1() ChainEndpoint {
	return ChainEndpoint{
		Name:           "L1",
		RPCURL:         c.AlchemyURLEth + c.Env.AlchemyAPIKeyEth,
		ExplorerURL:    c.URLAPIEth,
		ExplorerAPIKey: c.Env.EtherscanAPIKey,
	}
}

func (c *Config) L2() ChainEndpoint {
	return ChainEndpoint{
		Name:           "L2",
		RPCURL:         c.AlchemyURLPolygon + c.Env.AlchemyAPIKeyPolygon,
		ExplorerURL:    c.URLAPIPolygon,
		ExplorerAPIKey: c.Env.PolygonscanAPIKey,
	}
}

func (c *Config) BridgeSpecs() (internal.BridgeSpecs, error) {
	var specs internal.BridgeSpecs
	var err error

	if specs.LPToken, err = contractSpec("lp_token", c.LPTokenAddress, c.ABILPTokenAddress); err != nil {
		return specs, err
	}
	if specs.BridgedERC20, err = contractSpec("bridged_erc20", c.BridgedERC20Address, c.ABIBridgedERC20Address); err != nil {
		return specs, err
	}
	if specs.RootTunnel, err = contractSpec("fx_erc20_root_tunnel", c.FxERC20RootTunnelAddress, c.ABIFxERC20RootTunnelAddress); err != nil {
		return specs, err
	}
	if specs.ChildTunnel, err = contractSpec("fx_erc20_child_tunnel", c.FxERC20ChildTunnelAddress, c.ABIFxERC20ChildTunnelAddress); err != nil {
		return specs, err
	}
	return specs, nil
}

// contractSpec parses a contract address and its optional abi source address.
func contractSpec(name, address, abiAddress string) (internal.ContractSpec, error) {
	addr, err := internal.SafeParseAddress(address)
	if err != nil {
		return internal.ContractSpec{}, fmt.Errorf("%w: %s_address: %v", ErrInvalidConfig, name, err)
	}

	spec := internal.ContractSpec{Name: name, Address: addr, ABIAddress: addr}
	if abiAddress != "" {
		if spec.ABIAddress, err = internal.SafeParseAddress(abiAddress); err != nil {
			return internal.ContractSpec{}, fmt.Errorf("%w: abi_%s_address: %v", ErrInvalidConfig, name, err)
		}
	}
	return spec, nil
}
