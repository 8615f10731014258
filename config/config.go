package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	defaultRPCTimeout          = 30 * time.Second
	defaultReceiptsInterval    = 5 * time.Second
	defaultDepositsInterval    = 10 * time.Second
	defaultWithdrawalsInterval = 30 * time.Second
	defaultMaxConcurrency      = 10
	defaultMaxBackoff          = 5 * time.Minute
	defaultFlushInterval       = 5 * time.Second
)

var (
	ErrMissingChain    = errors.New("chain config is missing")
	ErrSameChainIDs    = errors.New("l1 and l2 chain ids must differ")
	ErrMissingContract = errors.New("bridge contract address is missing")
)

// ArbSys and NodeInterface are precompiles with fixed addresses on every rollup chain.
var (
	DefaultArbSysAddress        = common.HexToAddress("0x0000000000000000000000000000000000000064")
	DefaultNodeInterfaceAddress = common.HexToAddress("0x00000000000000000000000000000000000000C8")
)

type RPCConfig struct {
	Host    string        `yaml:"host"`
	Timeout time.Duration `yaml:"timeout"`
}

type ChainConfig struct {
	RPC     *RPCConfig `yaml:"rpc"`
	ChainID uint64     `yaml:"chain_id"`
}

type ChainsConfig struct {
	L1 *ChainConfig `yaml:"l1"`
	L2 *ChainConfig `yaml:"l2"`
}

type BridgeConfig struct {
	InboxAddress         common.Address `yaml:"inbox_address"`
	OutboxAddress        common.Address `yaml:"outbox_address"`
	GatewayRouterAddress common.Address `yaml:"gateway_router_address"`
	ArbSysAddress        common.Address `yaml:"arbsys_address"`
	NodeInterfaceAddress common.Address `yaml:"node_interface_address"`
	Account              common.Address `yaml:"account"`
	PrivateKey           string         `yaml:"private_key"`
}

type PollersConfig struct {
	ReceiptsInterval    time.Duration `yaml:"receipts_interval"`
	DepositsInterval    time.Duration `yaml:"deposits_interval"`
	WithdrawalsInterval time.Duration `yaml:"withdrawals_interval"`
	MaxConcurrency      int           `yaml:"max_concurrency"`
	MaxBackoff          time.Duration `yaml:"max_backoff"`
}

type PersistenceConfig struct {
	FlushInterval time.Duration `yaml:"flush_interval"`
}

type DBConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       string `yaml:"database"`
	MaxConns int    `yaml:"max_conns"`
}

type PresenterConfig struct {
	Host string `yaml:"host"`
}

type Config struct {
	Chains      *ChainsConfig      `yaml:"chains"`
	Bridge      *BridgeConfig      `yaml:"bridge"`
	Pollers     *PollersConfig     `yaml:"pollers"`
	Persistence *PersistenceConfig `yaml:"persistence"`
	DBConfig    *DBConfig          `yaml:"postgres"`
	LogLevel    logrus.Level       `yaml:"log_level"`
	Presenter   *PresenterConfig   `yaml:"presenter"`
}

func readYamlConfig(blob []byte) (*Config, error) {
	cfg := new(Config)
	dec := yaml.NewDecoder(bytes.NewReader(blob))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("can't parse yaml: %w", err)
	}
	return cfg, nil
}

func (cfg *Config) init() error {
	if cfg.Chains == nil || cfg.Chains.L1 == nil {
		return fmt.Errorf("l1: %w", ErrMissingChain)
	}
	if cfg.Chains.L2 == nil {
		return fmt.Errorf("l2: %w", ErrMissingChain)
	}
	if cfg.Chains.L1.ChainID == cfg.Chains.L2.ChainID {
		return fmt.Errorf("chain id %d: %w", cfg.Chains.L1.ChainID, ErrSameChainIDs)
	}
	for _, chain := range [2]*ChainConfig{cfg.Chains.L1, cfg.Chains.L2} {
		if chain.RPC == nil {
			chain.RPC = new(RPCConfig)
		}
		if chain.RPC.Timeout == 0 {
			chain.RPC.Timeout = defaultRPCTimeout
		}
	}

	if cfg.Bridge == nil {
		cfg.Bridge = new(BridgeConfig)
	}
	if cfg.Bridge.InboxAddress == (common.Address{}) {
		return fmt.Errorf("inbox_address: %w", ErrMissingContract)
	}
	if cfg.Bridge.OutboxAddress == (common.Address{}) {
		return fmt.Errorf("outbox_address: %w", ErrMissingContract)
	}
	if cfg.Bridge.ArbSysAddress == (common.Address{}) {
		cfg.Bridge.ArbSysAddress = DefaultArbSysAddress
	}
	if cfg.Bridge.NodeInterfaceAddress == (common.Address{}) {
		cfg.Bridge.NodeInterfaceAddress = DefaultNodeInterfaceAddress
	}

	if cfg.Pollers == nil {
		cfg.Pollers = new(PollersConfig)
	}
	if cfg.Pollers.ReceiptsInterval == 0 {
		cfg.Pollers.ReceiptsInterval = defaultReceiptsInterval
	}
	if cfg.Pollers.DepositsInterval == 0 {
		cfg.Pollers.DepositsInterval = defaultDepositsInterval
	}
	if cfg.Pollers.WithdrawalsInterval == 0 {
		cfg.Pollers.WithdrawalsInterval = defaultWithdrawalsInterval
	}
	if cfg.Pollers.MaxConcurrency == 0 {
		cfg.Pollers.MaxConcurrency = defaultMaxConcurrency
	}
	if cfg.Pollers.MaxBackoff == 0 {
		cfg.Pollers.MaxBackoff = defaultMaxBackoff
	}

	if cfg.Persistence == nil {
		cfg.Persistence = new(PersistenceConfig)
	}
	if cfg.Persistence.FlushInterval == 0 {
		cfg.Persistence.FlushInterval = defaultFlushInterval
	}

	if cfg.LogLevel == 0 {
		cfg.LogLevel = logrus.InfoLevel
	}
	return nil
}

// ChainIDs returns L1 and L2 chain ids, in that order.
func (cfg *Config) ChainIDs() []uint64 {
	return []uint64{cfg.Chains.L1.ChainID, cfg.Chains.L2.ChainID}
}

func ReadConfig(blob []byte) (*Config, error) {
	cfg, err := readYamlConfig(blob)
	if err != nil {
		return nil, err
	}
	if err = cfg.init(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func ReadConfigWithEnv(blob []byte) (*Config, error) {
	return ReadConfig([]byte(os.ExpandEnv(string(blob))))
}

func ReadConfigFromFile(path string) (*Config, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("can't read config file: %w", err)
	}
	return ReadConfigWithEnv(blob)
}
