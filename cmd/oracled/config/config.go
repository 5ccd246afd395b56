// Package config loads the oracled YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListenAddr      = ":8546"
	DefaultMetricsAddr     = ":9090"
	DefaultPollInterval    = 12 * time.Second
	DefaultReadConcurrency = 16
)

// PoolConfig names one live pool to mirror.
type PoolConfig struct {
	// ID defaults to the checksummed address.
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

type Config struct {
	ChainID          uint64        `yaml:"chain_id"`
	RPCURL           string        `yaml:"rpc_url"`
	ListenAddr       string        `yaml:"listen_addr"`
	MetricsAddr      string        `yaml:"metrics_addr"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	MaxCardinality   uint16        `yaml:"max_cardinality"`
	ReadConcurrency  int           `yaml:"read_concurrency"`
	SubscriberBuffer int           `yaml:"subscriber_buffer"`
	Pools            []PoolConfig  `yaml:"pools"`
}

// LoadConfig reads path, applies defaults and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = DefaultMetricsAddr
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.ReadConcurrency == 0 {
		c.ReadConcurrency = DefaultReadConcurrency
	}
	for i := range c.Pools {
		p := &c.Pools[i]
		if p.ID == "" && common.IsHexAddress(p.Address) {
			p.ID = common.HexToAddress(p.Address).Hex()
		}
	}
}

func (c *Config) Validate() error {
	if c.ChainID == 0 {
		return errors.New("config: chain_id is required")
	}
	if c.RPCURL == "" {
		return errors.New("config: rpc_url is required")
	}
	if c.PollInterval < 0 {
		return errors.New("config: poll_interval cannot be negative")
	}
	if c.ReadConcurrency < 0 {
		return errors.New("config: read_concurrency cannot be negative")
	}
	if c.SubscriberBuffer < 0 {
		return errors.New("config: subscriber_buffer cannot be negative")
	}
	if len(c.Pools) == 0 {
		return errors.New("config: at least one pool is required")
	}

	seen := make(map[string]bool, len(c.Pools))
	for i, p := range c.Pools {
		if !common.IsHexAddress(p.Address) {
			return fmt.Errorf("config: pools[%d]: invalid address %q", i, p.Address)
		}
		if seen[p.ID] {
			return fmt.Errorf("config: pools[%d]: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}
