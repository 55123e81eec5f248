// Package config holds the YAML configuration surface of the simulator.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"rai-sim-lab/internal/agent"
	"rai-sim-lab/internal/cdp"
	"rai-sim-lab/internal/prices"
)

// Config holds all simulator configuration.
type Config struct {
	Run struct {
		Days            int     `yaml:"days"`
		Seed            int64   `yaml:"seed"`
		UpdatePeriod    int     `yaml:"update_period"`     // ticks between controller updates
		WarmupTicks     int     `yaml:"warmup_ticks"`      // ticks before the controller engages
		RateWindowTicks int     `yaml:"rate_window_ticks"` // trailing window for the positive-rate signal
		FLXPerDay       float64 `yaml:"flx_per_day"`       // reward drip to liquidity providers
		LogLevel        string  `yaml:"log_level"`
	} `yaml:"run"`

	Pool struct {
		InitialRAI float64 `yaml:"initial_rai"`
		InitialETH float64 `yaml:"initial_eth"`
	} `yaml:"pool"`

	Controller struct {
		Kind  string    `yaml:"kind"`
		Gains []float64 `yaml:"gains"`
	} `yaml:"controller"`

	ETHPrice prices.WalkConfig `yaml:"eth_price"`

	Agents agent.PopulationConfig `yaml:"agents"`

	Storage struct {
		Backend       string `yaml:"backend"` // memory | postgres | clickhouse
		PostgresDSN   string `yaml:"postgres_dsn"`
		ClickhouseDSN string `yaml:"clickhouse_dsn"`
	} `yaml:"storage"`

	Stream struct {
		Enabled    bool   `yaml:"enabled"`
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"stream"`
}

// Storage backend names.
const (
	BackendMemory     = "memory"
	BackendPostgres   = "postgres"
	BackendClickhouse = "clickhouse"
)

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("RAISIM_POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("RAISIM_CLICKHOUSE_DSN"); v != "" {
		cfg.Storage.ClickhouseDSN = v
	}
	if v := os.Getenv("RAISIM_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("RAISIM_LOG_LEVEL"); v != "" {
		cfg.Run.LogLevel = v
	}
	if v := os.Getenv("RAISIM_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Run.Seed = seed
		}
	}

	applyDefaults(cfg)

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Run.Days == 0 {
		cfg.Run.Days = 365
	}
	if cfg.Run.UpdatePeriod == 0 {
		cfg.Run.UpdatePeriod = 4
	}
	if cfg.Run.WarmupTicks == 0 {
		cfg.Run.WarmupTicks = 2
	}
	if cfg.Run.RateWindowTicks == 0 {
		cfg.Run.RateWindowTicks = 96
	}
	if cfg.Run.FLXPerDay == 0 {
		cfg.Run.FLXPerDay = 100
	}
	if cfg.Run.LogLevel == "" {
		cfg.Run.LogLevel = "info"
	}
	if cfg.Controller.Kind == "" {
		cfg.Controller.Kind = string(cdp.ControllerP)
		cfg.Controller.Gains = []float64{-0.0001}
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendMemory
	}
	if cfg.Stream.ListenAddr == "" {
		cfg.Stream.ListenAddr = ":8080"
	}
	if cfg.ETHPrice.Length == 0 {
		cfg.ETHPrice.Length = cfg.Run.Days * 24
	}
}

// Validate checks that the configuration describes a runnable simulation.
func (c *Config) Validate() error {
	if c.Run.Days <= 0 {
		return fmt.Errorf("run.days must be positive")
	}
	if c.Run.UpdatePeriod <= 0 {
		return fmt.Errorf("run.update_period must be positive")
	}
	if c.Run.RateWindowTicks <= 0 {
		return fmt.Errorf("run.rate_window_ticks must be positive")
	}
	if c.Pool.InitialRAI <= 0 || c.Pool.InitialETH <= 0 {
		return fmt.Errorf("pool reserves must be positive")
	}
	ctrl := cdp.Controller{Kind: cdp.ControllerKind(c.Controller.Kind), Gains: c.Controller.Gains}
	if err := ctrl.Validate(); err != nil {
		return fmt.Errorf("controller: %w", err)
	}
	if err := c.ETHPrice.Validate(); err != nil {
		return fmt.Errorf("eth_price: %w", err)
	}
	if c.ETHPrice.Length != c.Run.Days*24 {
		return fmt.Errorf("eth_price.length %d must equal run.days*24 = %d", c.ETHPrice.Length, c.Run.Days*24)
	}
	if err := c.Agents.Validate(); err != nil {
		return fmt.Errorf("agents: %w", err)
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres backend")
		}
	case BackendClickhouse:
		if c.Storage.ClickhouseDSN == "" {
			return fmt.Errorf("storage.clickhouse_dsn is required for the clickhouse backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	return nil
}
