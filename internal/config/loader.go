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
// built-in defaults, applies LADDER_* environment variable overrides, and
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

// applyEnvOverrides reads well-known LADDER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "LADDER_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "LADDER_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "LADDER_WALLET_KEY_PASSWORD")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "LADDER_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "LADDER_CHAIN_ID")
	setStr(&cfg.Chain.RouterAddress, "LADDER_CHAIN_ROUTER_ADDRESS")
	setStr(&cfg.Chain.PairAddress, "LADDER_CHAIN_PAIR_ADDRESS")
	setStr(&cfg.Chain.ExplorerTxURL, "LADDER_CHAIN_EXPLORER_TX_URL")

	// ── Pair ──
	setStr(&cfg.Pair.Name, "LADDER_PAIR_NAME")
	setStr(&cfg.Pair.BaseToken, "LADDER_PAIR_BASE_TOKEN")
	setStr(&cfg.Pair.QuoteToken, "LADDER_PAIR_QUOTE_TOKEN")

	// ── Strategy ──
	setFloat64(&cfg.Strategy.EntryAmount, "LADDER_STRATEGY_ENTRY_AMOUNT")
	setFloat64(&cfg.Strategy.BaseLeverage, "LADDER_STRATEGY_BASE_LEVERAGE")
	setFloat64(&cfg.Strategy.ProfitTarget, "LADDER_STRATEGY_PROFIT_TARGET")
	setFloat64(&cfg.Strategy.SwapFeeRate, "LADDER_STRATEGY_SWAP_FEE_RATE")
	setFloat64(&cfg.Strategy.Slippage, "LADDER_STRATEGY_SLIPPAGE_TOLERANCE")
	setFloat64(&cfg.Strategy.Step2, "LADDER_STRATEGY_STEP2_DROP")
	setFloat64(&cfg.Strategy.Step3, "LADDER_STRATEGY_STEP3_DROP")
	setFloat64(&cfg.Strategy.Step4, "LADDER_STRATEGY_STEP4_DROP")
	setFloat64(&cfg.Strategy.Recovery, "LADDER_STRATEGY_RECOVERY_REBOUND")
	setDuration(&cfg.Strategy.TickInterval, "LADDER_STRATEGY_TICK_INTERVAL")

	// ── Risk ──
	setInt(&cfg.Risk.MaxPositions, "LADDER_RISK_MAX_POSITIONS")
	setFloat64(&cfg.Risk.MaxLeverage, "LADDER_RISK_MAX_LEVERAGE")
	setFloat64(&cfg.Risk.MaxDrawdown, "LADDER_RISK_MAX_DRAWDOWN")
	setFloat64(&cfg.Risk.MaxDailyLoss, "LADDER_RISK_MAX_DAILY_LOSS")
	setFloat64(&cfg.Risk.StopLoss, "LADDER_RISK_STOP_LOSS")
	setFloat64(&cfg.Risk.TakeProfit, "LADDER_RISK_TAKE_PROFIT")
	setFloat64(&cfg.Risk.MaxGasPriceGwei, "LADDER_RISK_MAX_GAS_PRICE_GWEI")
	setFloat64(&cfg.Risk.MinLiquidity, "LADDER_RISK_MIN_LIQUIDITY")
	setFloat64(&cfg.Risk.InitialBaseline, "LADDER_RISK_INITIAL_BASELINE")

	// ── Oracle ──
	setStr(&cfg.Oracle.RESTURL, "LADDER_ORACLE_REST_URL")
	setStr(&cfg.Oracle.WSURL, "LADDER_ORACLE_WS_URL")
	setStr(&cfg.Oracle.Symbol, "LADDER_ORACLE_SYMBOL")
	setDuration(&cfg.Oracle.Staleness, "LADDER_ORACLE_STALENESS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "LADDER_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "LADDER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "LADDER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "LADDER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "LADDER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "LADDER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "LADDER_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "LADDER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "LADDER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "LADDER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "LADDER_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "LADDER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "LADDER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "LADDER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "LADDER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "LADDER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "LADDER_REDIS_TLS_ENABLED")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "LADDER_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Endpoint, "LADDER_ARCHIVE_ENDPOINT")
	setStr(&cfg.Archive.Region, "LADDER_ARCHIVE_REGION")
	setStr(&cfg.Archive.Bucket, "LADDER_ARCHIVE_BUCKET")
	setStr(&cfg.Archive.AccessKey, "LADDER_ARCHIVE_ACCESS_KEY")
	setStr(&cfg.Archive.SecretKey, "LADDER_ARCHIVE_SECRET_KEY")
	setBool(&cfg.Archive.UseSSL, "LADDER_ARCHIVE_USE_SSL")
	setBool(&cfg.Archive.ForcePathStyle, "LADDER_ARCHIVE_FORCE_PATH_STYLE")
	setInt(&cfg.Archive.RetentionDays, "LADDER_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "LADDER_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "LADDER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "LADDER_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "LADDER_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "LADDER_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "LADDER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "LADDER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "LADDER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "LADDER_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "LADDER_MODE")
	setStr(&cfg.LogLevel, "LADDER_LOG_LEVEL")
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
