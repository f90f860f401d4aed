package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "resolve"
log_level = "debug"

[registry]
host = "db.internal"
database = "soothsayer"

[chain]
rpc_url = "https://rpc.basecamp.t.raas.gelato.cloud"
factory_address = "0x1111111111111111111111111111111111111111"
dispute_window = "24h"

[cycle]
interval = "90s"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "resolve", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "db.internal", cfg.Registry.Host)
	assert.Equal(t, 24*time.Hour, cfg.Chain.DisputeWindow.Duration)
	assert.Equal(t, 90*time.Second, cfg.Cycle.Interval.Duration)

	// Untouched sections keep their defaults.
	assert.Equal(t, 5432, cfg.Registry.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "https://api.coingecko.com/api/v3", cfg.CoinGecko.BaseURL)
	assert.Equal(t, "predictions", cfg.Moltbook.Submolt)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
mode = "resolve"

[moltbook]
api_key = "from-file"
`)

	t.Setenv("SOOTHSAYER_MOLTBOOK_API_KEY", "from-env")
	t.Setenv("SOOTHSAYER_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("SOOTHSAYER_CHAIN_ID", "8453")
	t.Setenv("SOOTHSAYER_CYCLE_INTERVAL", "30s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Moltbook.APIKey)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, int64(8453), cfg.Chain.ChainID)
	assert.Equal(t, 30*time.Second, cfg.Cycle.Interval.Duration)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Defaults()
		cfg.Mode = "resolve"
		cfg.Registry.Database = "soothsayer"
		return cfg
	}

	t.Run("valid resolve config", func(t *testing.T) {
		cfg := valid()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("chain mode requires key and contracts", func(t *testing.T) {
		cfg := valid()
		cfg.Mode = "settle"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "private_key or encrypted_key_path")
		assert.Contains(t, err.Error(), "rpc_url")
		assert.Contains(t, err.Error(), "factory_address")
	})

	t.Run("all mode requires moltbook key", func(t *testing.T) {
		cfg := valid()
		cfg.Mode = "all"
		cfg.Adjudicator.PrivateKey = "0xabc123"
		cfg.Chain.RPCURL = "https://rpc.example"
		cfg.Chain.FactoryAddress = "0x1111111111111111111111111111111111111111"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "moltbook: api_key")
	})

	t.Run("unknown mode", func(t *testing.T) {
		cfg := valid()
		cfg.Mode = "turbo"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown mode")
	})

	t.Run("encrypted key requires password", func(t *testing.T) {
		cfg := valid()
		cfg.Mode = "graduate"
		cfg.Adjudicator.EncryptedKeyPath = "/etc/soothsayer/key.json"
		cfg.Chain.RPCURL = "https://rpc.example"
		cfg.Chain.FactoryAddress = "0x1111111111111111111111111111111111111111"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "key_password")
	})

	t.Run("pool bounds", func(t *testing.T) {
		cfg := valid()
		cfg.Registry.PoolMinConns = 20
		cfg.Registry.PoolMaxConns = 10
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pool_min_conns must not exceed pool_max_conns")
	})
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Adjudicator.PrivateKey = "0xdeadbeef"
	cfg.Registry.Password = "hunter2"
	cfg.Moltbook.APIKey = "moltbook-key"
	cfg.Notify.TelegramToken = "tg-token"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Adjudicator.PrivateKey)
	assert.Equal(t, "***", red.Registry.Password)
	assert.Equal(t, "***", red.Moltbook.APIKey)
	assert.Equal(t, "***", red.Notify.TelegramToken)

	// Original untouched.
	assert.Equal(t, "0xdeadbeef", cfg.Adjudicator.PrivateKey)

	// Non-secrets survive.
	assert.Equal(t, cfg.Redis.Addr, red.Redis.Addr)
}
