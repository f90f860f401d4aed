// Package config defines the top-level configuration for the soothsayer
// adjudicator and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SOOTHSAYER_* environment variables.
type Config struct {
	Adjudicator AdjudicatorConfig `toml:"adjudicator"`
	Chain       ChainConfig       `toml:"chain"`
	Registry    RegistryConfig    `toml:"registry"`
	Redis       RedisConfig       `toml:"redis"`
	CoinGecko   CoinGeckoConfig   `toml:"coingecko"`
	Moltbook    MoltbookConfig    `toml:"moltbook"`
	Cycle       CycleConfig       `toml:"cycle"`
	Notify      NotifyConfig      `toml:"notify"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
}

// AdjudicatorConfig holds the adjudicator's signing identity.
type AdjudicatorConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ChainConfig holds the settlement chain endpoint and contract parameters.
type ChainConfig struct {
	RPCURL           string  `toml:"rpc_url"`
	Name             string  `toml:"name"`
	ChainID          int64   `toml:"chain_id"`
	FactoryAddress   string  `toml:"factory_address"`
	Guardian         string  `toml:"guardian"`
	InitialLiquidity float64 `toml:"initial_liquidity"`
	MinValidators    int     `toml:"min_validators"`
	// DisputeWindow is how long a settled market waits before finalize.
	DisputeWindow duration `toml:"dispute_window"`
}

// RegistryConfig holds PostgreSQL connection parameters for the market
// registry.
type RegistryConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	// MetricTTL is how long cached metric values stay fresh.
	MetricTTL duration `toml:"metric_ttl"`
}

// CoinGeckoConfig holds the price data source parameters.
type CoinGeckoConfig struct {
	BaseURL    string   `toml:"base_url"`
	APIKey     string   `toml:"api_key"`
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// MoltbookConfig holds the social platform API parameters.
type MoltbookConfig struct {
	BaseURL    string   `toml:"base_url"`
	APIKey     string   `toml:"api_key"`
	Submolt    string   `toml:"submolt"`
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// CycleConfig holds the timing and concurrency of the adjudication cycles.
type CycleConfig struct {
	// Interval is how often the daemon loop repeats its cycles.
	Interval duration `toml:"interval"`
	// ResolveParallelism bounds concurrent market resolution.
	ResolveParallelism int `toml:"resolve_parallelism"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			Name:             "basecamp",
			ChainID:          123420001114,
			InitialLiquidity: 10.0,
			MinValidators:    3,
			DisputeWindow:    duration{48 * time.Hour},
		},
		Registry: RegistryConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "soothsayer",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
			MetricTTL:  duration{2 * time.Minute},
		},
		CoinGecko: CoinGeckoConfig{
			BaseURL:    "https://api.coingecko.com/api/v3",
			RateLimit:  30,
			RateWindow: duration{time.Minute},
		},
		Moltbook: MoltbookConfig{
			BaseURL:    "https://www.moltbook.com/api/v1",
			Submolt:    "predictions",
			RateLimit:  60,
			RateWindow: duration{time.Minute},
		},
		Cycle: CycleConfig{
			Interval:           duration{5 * time.Minute},
			ResolveParallelism: 4,
		},
		Notify: NotifyConfig{
			Events: []string{"market_resolved", "market_graduated", "settlement_submitted", "error"},
		},
		Mode:     "all",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"scan":        true,
	"sync":        true,
	"resolve":     true,
	"graduate":    true,
	"settle":      true,
	"leaderboard": true,
	"all":         true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// chainModes are the modes that submit transactions and therefore need a
// signing key and contract addresses.
func chainMode(mode string) bool {
	return mode == "graduate" || mode == "settle" || mode == "all"
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: scan, sync, resolve, graduate, settle, leaderboard, all)", c.Mode))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Adjudicator key is required for any mode that writes to the chain.
	if chainMode(mode) {
		if c.Adjudicator.PrivateKey == "" && c.Adjudicator.EncryptedKeyPath == "" {
			errs = append(errs, "adjudicator: either private_key or encrypted_key_path must be set for mode "+c.Mode)
		}
		if c.Adjudicator.EncryptedKeyPath != "" && c.Adjudicator.KeyPassword == "" {
			errs = append(errs, "adjudicator: key_password is required when encrypted_key_path is set")
		}
		if c.Chain.RPCURL == "" {
			errs = append(errs, "chain: rpc_url must not be empty for mode "+c.Mode)
		}
		if c.Chain.FactoryAddress == "" {
			errs = append(errs, "chain: factory_address must not be empty for mode "+c.Mode)
		}
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}
	if c.Chain.InitialLiquidity < 0 {
		errs = append(errs, "chain: initial_liquidity must not be negative")
	}
	if c.Chain.MinValidators < 1 {
		errs = append(errs, "chain: min_validators must be >= 1")
	}
	if c.Chain.DisputeWindow.Duration < 0 {
		errs = append(errs, "chain: dispute_window must not be negative")
	}

	// Registry
	if strings.TrimSpace(c.Registry.DSN) == "" {
		if c.Registry.Host == "" {
			errs = append(errs, "registry: host must not be empty (or set registry.dsn)")
		}
		if c.Registry.Port <= 0 || c.Registry.Port > 65535 {
			errs = append(errs, fmt.Sprintf("registry: port must be 1-65535, got %d", c.Registry.Port))
		}
		if c.Registry.Database == "" {
			errs = append(errs, "registry: database must not be empty")
		}
	}
	if c.Registry.PoolMaxConns < 1 {
		errs = append(errs, "registry: pool_max_conns must be >= 1")
	}
	if c.Registry.PoolMinConns < 0 {
		errs = append(errs, "registry: pool_min_conns must be >= 0")
	}
	if c.Registry.PoolMinConns > c.Registry.PoolMaxConns {
		errs = append(errs, "registry: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}
	if c.Redis.MetricTTL.Duration <= 0 {
		errs = append(errs, "redis: metric_ttl must be positive")
	}

	// CoinGecko
	if c.CoinGecko.BaseURL == "" {
		errs = append(errs, "coingecko: base_url must not be empty")
	}
	if c.CoinGecko.RateLimit < 0 {
		errs = append(errs, "coingecko: rate_limit must not be negative")
	}

	// Moltbook. The scan, sync, and leaderboard modes talk to the platform.
	if mode == "scan" || mode == "sync" || mode == "leaderboard" || mode == "all" {
		if c.Moltbook.BaseURL == "" {
			errs = append(errs, "moltbook: base_url must not be empty for mode "+c.Mode)
		}
		if c.Moltbook.APIKey == "" {
			errs = append(errs, "moltbook: api_key is required for mode "+c.Mode)
		}
		if c.Moltbook.Submolt == "" {
			errs = append(errs, "moltbook: submolt must not be empty")
		}
	}

	// Cycle
	if c.Cycle.Interval.Duration <= 0 {
		errs = append(errs, "cycle: interval must be positive")
	}
	if c.Cycle.ResolveParallelism < 1 {
		errs = append(errs, "cycle: resolve_parallelism must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
