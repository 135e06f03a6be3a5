package config

import (
	"fmt"
	"os"
	"time"

	"lotto/internal/models"
	"lotto/internal/pricing"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the service configuration read from a YAML file.
type Config struct {
	Server struct {
		Port    int    `yaml:"port"`
		LogFile string `yaml:"log_file"`
		Verbose bool   `yaml:"verbose"`
		// LogMaxSizeMB rotates the log file once it reaches this size.
		LogMaxSizeMB int `yaml:"log_max_size_mb"`
	} `yaml:"server"`

	Lottery struct {
		Size     uint32              `yaml:"size"`
		MaxRange uint32              `yaml:"max_range"`
		Decimals int32               `yaml:"decimals"`
		Buckets  models.BucketConfig `yaml:"buckets"`
	} `yaml:"lottery"`

	// Admins may run operator actions.
	Admins []string `yaml:"admins"`

	Auth struct {
		JWT struct {
			Secret string `yaml:"secret"`
			Issuer string `yaml:"issuer"`
			TTLSec int    `yaml:"ttl_sec"`
		} `yaml:"jwt"`
	} `yaml:"auth"`

	Oracle struct {
		Mode          string `yaml:"mode"` // local | callback
		Secret        string `yaml:"secret"`
		DelayMs       int    `yaml:"delay_ms"`
		CallbackToken string `yaml:"callback_token"`
	} `yaml:"oracle"`

	Ledger struct {
		Custody string `yaml:"custody"`
		// Genesis balances in whole tokens.
		Genesis map[string]string `yaml:"genesis"`
	} `yaml:"ledger"`

	Database struct {
		DSN          string `yaml:"dsn"`
		MaxOpenConns int    `yaml:"max_open_conns"`
	} `yaml:"database"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
}

const (
	OracleLocal    = "local"
	OracleCallback = "callback"
)

// Default returns a configuration usable for local development.
func Default() *Config {
	c := &Config{}
	c.Server.Port = 8080
	c.Server.LogMaxSizeMB = 100
	c.Lottery.Size = 4
	c.Lottery.MaxRange = 20
	c.Lottery.Decimals = 18
	c.Lottery.Buckets = models.BucketConfig{
		BucketOneMax:  20,
		BucketTwoMax:  50,
		DiscountOne:   5,
		DiscountTwo:   10,
		DiscountThree: 15,
	}
	c.Auth.JWT.Issuer = "lotto"
	c.Auth.JWT.TTLSec = 86400
	c.Oracle.Mode = OracleLocal
	c.Oracle.DelayMs = 2000
	c.Ledger.Custody = "lottery"
	c.Database.MaxOpenConns = 10
	c.Metrics.Enabled = true
	c.Metrics.Path = "/metrics"
	return c
}

// Load reads path over the defaults. DATABASE_URL overrides database.dsn.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Database.DSN = dsn
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Lottery.Size == 0 {
		return fmt.Errorf("lottery.size: %w", models.ErrInvalidLotterySize)
	}
	if c.Lottery.MaxRange == 0 {
		return fmt.Errorf("lottery.max_range: %w", models.ErrInvalidMaxRange)
	}
	if c.Lottery.Decimals < 0 {
		return fmt.Errorf("lottery.decimals must not be negative")
	}
	if err := pricing.ValidateBuckets(c.Lottery.Buckets); err != nil {
		return fmt.Errorf("lottery.buckets: %w", err)
	}
	if len(c.Admins) == 0 {
		return fmt.Errorf("admins: at least one admin address is required")
	}
	if c.Auth.JWT.Secret == "" {
		return fmt.Errorf("auth.jwt.secret is required")
	}
	switch c.Oracle.Mode {
	case OracleLocal:
		if c.Oracle.Secret == "" {
			return fmt.Errorf("oracle.secret is required in local mode")
		}
	case OracleCallback:
		if c.Oracle.CallbackToken == "" {
			return fmt.Errorf("oracle.callback_token is required in callback mode")
		}
	default:
		return fmt.Errorf("oracle.mode %q is not one of local, callback", c.Oracle.Mode)
	}
	if c.Ledger.Custody == "" {
		return fmt.Errorf("ledger.custody is required")
	}
	for holder, amount := range c.Ledger.Genesis {
		d, err := decimal.NewFromString(amount)
		if err != nil || !d.IsPositive() {
			return fmt.Errorf("ledger.genesis[%s]: %q is not a positive amount", holder, amount)
		}
	}
	return nil
}

// TokenTTL is the lifetime of issued API tokens.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.JWT.TTLSec) * time.Second
}

// OracleDelay is how long the local oracle waits before answering.
func (c *Config) OracleDelay() time.Duration {
	return time.Duration(c.Oracle.DelayMs) * time.Millisecond
}
