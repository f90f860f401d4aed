package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SOOTHSAYER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SOOTHSAYER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Adjudicator ──
	setStr(&cfg.Adjudicator.PrivateKey, "SOOTHSAYER_ADJUDICATOR_PRIVATE_KEY")
	setStr(&cfg.Adjudicator.EncryptedKeyPath, "SOOTHSAYER_ADJUDICATOR_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Adjudicator.KeyPassword, "SOOTHSAYER_ADJUDICATOR_KEY_PASSWORD")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "SOOTHSAYER_CHAIN_RPC_URL")
	setStr(&cfg.Chain.Name, "SOOTHSAYER_CHAIN_NAME")
	setInt64(&cfg.Chain.ChainID, "SOOTHSAYER_CHAIN_ID")
	setStr(&cfg.Chain.FactoryAddress, "SOOTHSAYER_CHAIN_FACTORY_ADDRESS")
	setStr(&cfg.Chain.Guardian, "SOOTHSAYER_CHAIN_GUARDIAN")
	setFloat64(&cfg.Chain.InitialLiquidity, "SOOTHSAYER_CHAIN_INITIAL_LIQUIDITY")
	setInt(&cfg.Chain.MinValidators, "SOOTHSAYER_CHAIN_MIN_VALIDATORS")
	setDuration(&cfg.Chain.DisputeWindow, "SOOTHSAYER_CHAIN_DISPUTE_WINDOW")

	// ── Registry ──
	setStr(&cfg.Registry.DSN, "SOOTHSAYER_REGISTRY_DSN")
	setStr(&cfg.Registry.DSN, "SOOTHSAYER_DATABASE_URL") // compatibility alias
	setStr(&cfg.Registry.Host, "SOOTHSAYER_REGISTRY_HOST")
	setInt(&cfg.Registry.Port, "SOOTHSAYER_REGISTRY_PORT")
	setStr(&cfg.Registry.Database, "SOOTHSAYER_REGISTRY_DATABASE")
	setStr(&cfg.Registry.User, "SOOTHSAYER_REGISTRY_USER")
	setStr(&cfg.Registry.Password, "SOOTHSAYER_REGISTRY_PASSWORD")
	setStr(&cfg.Registry.SSLMode, "SOOTHSAYER_REGISTRY_SSLMODE")
	setInt(&cfg.Registry.PoolMaxConns, "SOOTHSAYER_REGISTRY_POOL_MAX_CONNS")
	setInt(&cfg.Registry.PoolMinConns, "SOOTHSAYER_REGISTRY_POOL_MIN_CONNS")
	setBool(&cfg.Registry.RunMigrations, "SOOTHSAYER_REGISTRY_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SOOTHSAYER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SOOTHSAYER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SOOTHSAYER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SOOTHSAYER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SOOTHSAYER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SOOTHSAYER_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.MetricTTL, "SOOTHSAYER_REDIS_METRIC_TTL")

	// ── CoinGecko ──
	setStr(&cfg.CoinGecko.BaseURL, "SOOTHSAYER_COINGECKO_BASE_URL")
	setStr(&cfg.CoinGecko.APIKey, "SOOTHSAYER_COINGECKO_API_KEY")
	setInt(&cfg.CoinGecko.RateLimit, "SOOTHSAYER_COINGECKO_RATE_LIMIT")
	setDuration(&cfg.CoinGecko.RateWindow, "SOOTHSAYER_COINGECKO_RATE_WINDOW")

	// ── Moltbook ──
	setStr(&cfg.Moltbook.BaseURL, "SOOTHSAYER_MOLTBOOK_BASE_URL")
	setStr(&cfg.Moltbook.APIKey, "SOOTHSAYER_MOLTBOOK_API_KEY")
	setStr(&cfg.Moltbook.Submolt, "SOOTHSAYER_MOLTBOOK_SUBMOLT")
	setInt(&cfg.Moltbook.RateLimit, "SOOTHSAYER_MOLTBOOK_RATE_LIMIT")
	setDuration(&cfg.Moltbook.RateWindow, "SOOTHSAYER_MOLTBOOK_RATE_WINDOW")

	// ── Cycle ──
	setDuration(&cfg.Cycle.Interval, "SOOTHSAYER_CYCLE_INTERVAL")
	setInt(&cfg.Cycle.ResolveParallelism, "SOOTHSAYER_CYCLE_RESOLVE_PARALLELISM")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SOOTHSAYER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SOOTHSAYER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SOOTHSAYER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SOOTHSAYER_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SOOTHSAYER_MODE")
	setStr(&cfg.LogLevel, "SOOTHSAYER_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
