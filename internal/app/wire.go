package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "ladderbot/internal/blob/s3"
	"ladderbot/internal/cache/redis"
	"ladderbot/internal/config"
	"ladderbot/internal/crypto"
	"ladderbot/internal/domain"
	"ladderbot/internal/notify"
	"ladderbot/internal/oracle"
	"ladderbot/internal/platform/pancake"
	"ladderbot/internal/platform/paper"
	"ladderbot/internal/store/postgres"
)

// paperLiquidity is the fixed pool depth reported in paper mode.
const paperLiquidity = 1_000_000

// Dependencies bundles every domain-level dependency the trading mode needs.
// It is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	PositionStore domain.PositionStore
	BaselineStore domain.BaselineStore

	// Caches (nil when Redis is disabled)
	PriceCache  domain.PriceCache
	LockManager domain.LockManager

	// Blob storage (nil when archive is disabled)
	Archiver *s3blob.Archiver

	// Market access
	Oracle    domain.PriceOracle
	Swapper   domain.SwapExecutor
	Gas       domain.GasOracle
	Liquidity domain.LiquiditySource

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.PositionStore = postgres.NewPositionStore(pool)
	deps.BaselineStore = postgres.NewBaselineStore(pool)

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.Dial(ctx, redis.ClientConfig{
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

		deps.PriceCache = redis.NewPriceCache(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
	}

	// --- Price oracle ---
	var priceOracle domain.PriceOracle = oracle.NewBinanceOracle(
		cfg.Oracle.RESTURL, cfg.Oracle.Symbol, logger)
	if deps.PriceCache != nil {
		priceOracle = oracle.NewCachedOracle(
			priceOracle, deps.PriceCache, cfg.Oracle.Staleness.Duration, logger)
	}
	deps.Oracle = priceOracle

	// --- Trading backend ---
	switch strings.ToLower(cfg.Mode) {
	case "live":
		key, err := crypto.LoadECDSAKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: wallet key: %w", err)
		}

		chainClient, err := pancake.Dial(ctx, cfg.Chain.RPCURL, cfg.Chain.ChainID, key, cfg.Chain.ExplorerTxURL, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: chain client: %w", err)
		}
		closers = append(closers, chainClient.Close)

		deps.Swapper = pancake.NewExecutor(chainClient, cfg.Chain.RouterAddress, cfg.Strategy.Slippage, logger)
		deps.Gas = chainClient
		deps.Liquidity = pancake.NewLiquidity(chainClient, cfg.Chain.PairAddress, cfg.Pair.QuoteToken, logger)

	default: // paper
		deps.Swapper = paper.NewExecutor(priceOracle, cfg.Pair.QuoteToken, cfg.Strategy.SwapFeeRate, logger)
		deps.Gas = paper.Gas{Gwei: 1}
		deps.Liquidity = paper.Liquidity{Amount: paperLiquidity}
	}

	// --- S3 archival ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.Archive.Endpoint,
			Region:         cfg.Archive.Region,
			Bucket:         cfg.Archive.Bucket,
			AccessKey:      cfg.Archive.AccessKey,
			SecretKey:      cfg.Archive.SecretKey,
			UseSSL:         cfg.Archive.UseSSL,
			ForcePathStyle: cfg.Archive.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		retention := time.Duration(cfg.Archive.RetentionDays) * 24 * time.Hour
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			deps.PositionStore,
			retention,
			cfg.Archive.Interval.Duration,
			logger,
		)
	}

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
