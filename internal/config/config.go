// Package config defines the top-level configuration for the ladder trading
// controller and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by LADDER_* environment variables.
type Config struct {
	Wallet   WalletConfig   `toml:"wallet"`
	Chain    ChainConfig    `toml:"chain"`
	Pair     PairConfig     `toml:"pair"`
	Strategy StrategyConfig `toml:"strategy"`
	Risk     RiskConfig     `toml:"risk"`
	Oracle   OracleConfig   `toml:"oracle"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// WalletConfig holds the trading wallet credentials. Either a raw hex key or
// an encrypted key file plus password may be supplied.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ChainConfig holds EVM chain endpoints and contract addresses.
type ChainConfig struct {
	RPCURL        string `toml:"rpc_url"`
	ChainID       int64  `toml:"chain_id"`
	RouterAddress string `toml:"router_address"`
	PairAddress   string `toml:"pair_address"`
	ExplorerTxURL string `toml:"explorer_tx_url"`
}

// PairConfig identifies the traded pair and its token contracts.
type PairConfig struct {
	Name       string `toml:"name"`
	BaseToken  string `toml:"base_token"`
	QuoteToken string `toml:"quote_token"`
}

// StrategyConfig holds the ladder parameters. The four drop thresholds are
// required deployment inputs with no defaults.
type StrategyConfig struct {
	EntryAmount   float64  `toml:"entry_amount"`
	BaseLeverage  float64  `toml:"base_leverage"`
	ProfitTarget  float64  `toml:"profit_target"`
	SwapFeeRate   float64  `toml:"swap_fee_rate"`
	Slippage      float64  `toml:"slippage_tolerance"`
	Step2         float64  `toml:"step2_drop"`
	Step3         float64  `toml:"step3_drop"`
	Step4         float64  `toml:"step4_drop"`
	Recovery      float64  `toml:"recovery_rebound"`
	TickInterval  duration `toml:"tick_interval"`
}

// RiskConfig holds the immutable risk limits.
type RiskConfig struct {
	MaxPositions    int     `toml:"max_positions"`
	MaxLeverage     float64 `toml:"max_leverage"`
	MaxDrawdown     float64 `toml:"max_drawdown"`
	MaxDailyLoss    float64 `toml:"max_daily_loss"`
	StopLoss        float64 `toml:"stop_loss"`
	TakeProfit      float64 `toml:"take_profit"`
	MaxGasPriceGwei float64 `toml:"max_gas_price_gwei"`
	MinLiquidity    float64 `toml:"min_liquidity"`
	// InitialBaseline seeds the daily baseline when no persisted record
	// exists; without it the exposure guard denies every entry.
	InitialBaseline float64 `toml:"initial_baseline"`
}

// OracleConfig holds price oracle endpoints.
type OracleConfig struct {
	RESTURL   string   `toml:"rest_url"`
	WSURL     string   `toml:"ws_url"`
	Symbol    string   `toml:"symbol"`
	Staleness duration `toml:"staleness"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// ArchiveConfig holds cold-storage archival parameters for closed positions.
type ArchiveConfig struct {
	Enabled        bool     `toml:"enabled"`
	Endpoint       string   `toml:"endpoint"`
	Region         string   `toml:"region"`
	Bucket         string   `toml:"bucket"`
	AccessKey      string   `toml:"access_key"`
	SecretKey      string   `toml:"secret_key"`
	UseSSL         bool     `toml:"use_ssl"`
	ForcePathStyle bool     `toml:"force_path_style"`
	RetentionDays  int      `toml:"retention_days"`
	Interval       duration `toml:"interval"`
}

// ServerConfig holds HTTP control-surface parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "10s", "5m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for the TOML decoder.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values. The
// ladder drop thresholds are deliberately left zero: they are required
// deployment inputs and Validate rejects a config that omits them.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:        "https://bsc-dataseed.binance.org",
			ChainID:       56,
			RouterAddress: "0x10ED43C718714eb63d5aA57B78B54704e256024E",
			ExplorerTxURL: "https://bscscan.com/tx/",
		},
		Pair: PairConfig{
			Name:       "BTCB/USDT",
			BaseToken:  "0x7130d2A12B9BCbFAe4f2634d864A1Ee1Ce3Ead9c",
			QuoteToken: "0x55d398326f99059fF775485246999027B3197955",
		},
		Strategy: StrategyConfig{
			EntryAmount:  1000,
			BaseLeverage: 2,
			ProfitTarget: 0.01,
			SwapFeeRate:  0.0025,
			Slippage:     0.005,
			TickInterval: duration{10 * time.Second},
		},
		Risk: RiskConfig{
			MaxPositions:    4,
			MaxLeverage:     5,
			MaxDrawdown:     0.1,
			MaxDailyLoss:    0.05,
			StopLoss:        0.03,
			TakeProfit:      0.02,
			MaxGasPriceGwei: 50,
			MinLiquidity:    100_000,
		},
		Oracle: OracleConfig{
			RESTURL:   "https://api.binance.com",
			WSURL:     "wss://stream.binance.com:9443/ws",
			Symbol:    "BTCUSDT",
			Staleness: duration{15 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "ladderbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Region:        "us-east-1",
			Bucket:        "ladderbot-data",
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events: []string{"position_opened", "position_closed", "risk_denied", "error"},
		},
		Mode:     "paper",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"live":  true,
	"paper": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var problems []string

	if !validModes[strings.ToLower(c.Mode)] {
		problems = append(problems, fmt.Sprintf("mode %q is not one of live, paper", c.Mode))
	}
	if c.LogLevel != "" && !validLogLevels[c.LogLevel] {
		problems = append(problems, fmt.Sprintf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}

	if c.Strategy.EntryAmount <= 0 {
		problems = append(problems, "strategy.entry_amount must be positive")
	}
	if c.Strategy.BaseLeverage < 1 {
		problems = append(problems, "strategy.base_leverage must be >= 1")
	}
	if c.Strategy.TickInterval.Duration <= 0 {
		problems = append(problems, "strategy.tick_interval must be positive")
	}
	if c.Strategy.Step2 <= 0 || c.Strategy.Step3 <= 0 || c.Strategy.Step4 <= 0 || c.Strategy.Recovery <= 0 {
		problems = append(problems, "strategy.step2_drop, step3_drop, step4_drop and recovery_rebound are required and must be positive")
	} else if !(c.Strategy.Step2 < c.Strategy.Step3 && c.Strategy.Step3 < c.Strategy.Step4) {
		problems = append(problems, "strategy ladder thresholds must be strictly increasing: step2_drop < step3_drop < step4_drop")
	}

	if c.Risk.MaxPositions <= 0 {
		problems = append(problems, "risk.max_positions must be positive")
	}
	if c.Risk.MaxLeverage < c.Strategy.BaseLeverage {
		problems = append(problems, "risk.max_leverage must be >= strategy.base_leverage")
	}
	if c.Risk.InitialBaseline <= 0 {
		problems = append(problems, "risk.initial_baseline is required and must be positive")
	}

	if strings.ToLower(c.Mode) == "live" {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			problems = append(problems, "wallet.private_key or wallet.encrypted_key_path is required in live mode")
		}
		if c.Chain.RPCURL == "" {
			problems = append(problems, "chain.rpc_url is required in live mode")
		}
		if c.Chain.PairAddress == "" {
			problems = append(problems, "chain.pair_address is required in live mode")
		}
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		problems = append(problems, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}

	if c.Archive.Enabled {
		if c.Archive.Bucket == "" {
			problems = append(problems, "archive.bucket is required when archive is enabled")
		}
		if c.Archive.RetentionDays <= 0 {
			problems = append(problems, "archive.retention_days must be positive")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}
