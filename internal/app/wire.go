package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Tora-Build/soothsayer-core/internal/cache/redis"
	"github.com/Tora-Build/soothsayer-core/internal/chain"
	"github.com/Tora-Build/soothsayer-core/internal/config"
	"github.com/Tora-Build/soothsayer-core/internal/crypto"
	"github.com/Tora-Build/soothsayer-core/internal/datasource"
	"github.com/Tora-Build/soothsayer-core/internal/datasource/coingecko"
	"github.com/Tora-Build/soothsayer-core/internal/domain"
	"github.com/Tora-Build/soothsayer-core/internal/notify"
	"github.com/Tora-Build/soothsayer-core/internal/platform/moltbook"
	"github.com/Tora-Build/soothsayer-core/internal/registry/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Registry stores
	Markets     domain.MarketStore
	Commitments domain.CommitmentStore
	Mappings    domain.ChainMappingStore
	Reputation  domain.ReputationStore
	Events      domain.EventStore

	// Coordination and caching
	LockManager domain.LockManager
	RateLimiter domain.RateLimiter
	MetricCache domain.MetricCache

	// Boundaries
	Source      domain.MetricSource // routed and cached
	Chain       domain.MarketChain  // nil for modes that never touch the chain
	Adjudicator string              // address derived from the signing key
	Moltbook    *moltbook.Client

	// Notifications
	Notifier *notify.Notifier
}

// needsChain returns true for modes that submit chain transactions.
func needsChain(mode string) bool {
	switch mode {
	case "graduate", "settle", "all":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL registry ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Registry.DSN,
		Host:     cfg.Registry.Host,
		Port:     cfg.Registry.Port,
		Database: cfg.Registry.Database,
		User:     cfg.Registry.User,
		Password: cfg.Registry.Password,
		SSLMode:  cfg.Registry.SSLMode,
		MaxConns: cfg.Registry.PoolMaxConns,
		MinConns: cfg.Registry.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Registry.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Markets = postgres.NewMarketStore(pool)
	deps.Commitments = postgres.NewCommitmentStore(pool)
	deps.Mappings = postgres.NewChainMappingStore(pool)
	deps.Reputation = postgres.NewReputationStore(pool)
	deps.Events = postgres.NewEventStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.LockManager = redis.NewLockManager(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.MetricCache = redis.NewMetricCache(redisClient, cfg.Redis.MetricTTL.Duration)

	// --- Metric sources ---
	gecko := coingecko.New(coingecko.Config{
		BaseURL:    cfg.CoinGecko.BaseURL,
		APIKey:     cfg.CoinGecko.APIKey,
		RateLimit:  cfg.CoinGecko.RateLimit,
		RateWindow: cfg.CoinGecko.RateWindow.Duration,
	}, deps.RateLimiter, logger)

	router := datasource.NewRouter()
	router.Register("coingecko", gecko)
	deps.Source = datasource.Cached(router, deps.MetricCache, cfg.Redis.MetricTTL.Duration)

	// --- Chain (only for modes that settle or graduate) ---
	if needsChain(cfg.Mode) {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Adjudicator.PrivateKey,
			EncryptedKeyPath: cfg.Adjudicator.EncryptedKeyPath,
			KeyPassword:      cfg.Adjudicator.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: adjudicator key: %w", err)
		}

		chainClient, err := chain.New(chain.Config{
			RPCURL:         cfg.Chain.RPCURL,
			ChainName:      cfg.Chain.Name,
			ChainID:        cfg.Chain.ChainID,
			FactoryAddress: cfg.Chain.FactoryAddress,
			PrivateKey:     key,
		}, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: chain: %w", err)
		}
		closers = append(closers, chainClient.Close)
		deps.Chain = chainClient
		deps.Adjudicator = chainClient.Adjudicator()
	}

	// --- Moltbook ---
	deps.Moltbook = moltbook.New(moltbook.Config{
		BaseURL:    cfg.Moltbook.BaseURL,
		APIKey:     cfg.Moltbook.APIKey,
		RateLimit:  cfg.Moltbook.RateLimit,
		RateWindow: cfg.Moltbook.RateWindow.Duration,
	}, deps.RateLimiter, logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
