package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultTWAPWindow = 30 * time.Minute
	DefaultBufferSize = 100
)

// ClientConfig holds the client's configuration.
type ClientConfig struct {
	ChainID        uint64        `yaml:"chain_id"`
	StateStreamURL string        `yaml:"stream_url"`
	TWAPWindow     time.Duration `yaml:"twap_window"`
	BufferSize     uint          `yaml:"buffer_size"`
}

// LoadConfig reads and validates the YAML file at path.
func LoadConfig(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg ClientConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.TWAPWindow == 0 {
		cfg.TWAPWindow = DefaultTWAPWindow
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *ClientConfig) validate() error {
	if c.ChainID == 0 {
		return errors.New("config: chain_id is required")
	}
	if c.StateStreamURL == "" {
		return errors.New("config: stream_url is required")
	}
	if c.TWAPWindow < time.Second {
		return errors.New("config: twap_window must be at least one second")
	}
	if c.TWAPWindow.Seconds() > float64(^uint32(0)) {
		return errors.New("config: twap_window does not fit in 32 bits of seconds")
	}
	return nil
}

// WindowSeconds is the TWAP window as an observe argument.
func (c *ClientConfig) WindowSeconds() uint32 {
	return uint32(c.TWAPWindow / time.Second)
}
