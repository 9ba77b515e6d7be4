// Package config defines the top-level configuration for the funding bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by FUNDINGBOT_* environment
// variables.
type Config struct {
	Hyperliquid HyperliquidConfig `toml:"hyperliquid"`
	Paradex     ParadexConfig     `toml:"paradex"`
	Lighter     LighterConfig     `toml:"lighter"`
	Extended    ExtendedConfig    `toml:"extended"`
	Scanner     ScannerConfig     `toml:"scanner"`
	Executor    ExecutorConfig    `toml:"executor"`
	Monitor     MonitorConfig     `toml:"monitor"`
	Redis       RedisConfig       `toml:"redis"`
	Postgres    PostgresConfig    `toml:"postgres"`
	S3          S3Config          `toml:"s3"`
	Server      ServerConfig      `toml:"server"`
	Notify      NotifyConfig      `toml:"notify"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
}

// HyperliquidConfig holds Hyperliquid venue credentials.
type HyperliquidConfig struct {
	Enabled    bool   `toml:"enabled"`
	BaseURL    string `toml:"base_url"`
	PrivateKey string `toml:"private_key"`
}

// ParadexConfig holds Paradex venue credentials.
type ParadexConfig struct {
	Enabled  bool   `toml:"enabled"`
	BaseURL  string `toml:"base_url"`
	Wallet   string `toml:"wallet"`
	JWTToken string `toml:"jwt_token"`
}

// LighterConfig holds Lighter venue credentials.
type LighterConfig struct {
	Enabled      bool   `toml:"enabled"`
	BaseURL      string `toml:"base_url"`
	APIKey       string `toml:"api_key"`
	AccountIndex int    `toml:"account_index"`
	APIKeyIndex  int    `toml:"api_key_index"`
}

// ExtendedConfig holds Extended venue credentials.
type ExtendedConfig struct {
	Enabled   bool   `toml:"enabled"`
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	APISecret string `toml:"api_secret"`
	VaultID   int64  `toml:"vault_id"`
}

// ScannerConfig holds opportunity scan parameters.
type ScannerConfig struct {
	Interval         duration `toml:"interval"`
	MinSpread        float64  `toml:"min_spread"`
	MinLeverage      int      `toml:"min_leverage"`
	TopN             int      `toml:"top_n"`
	IncludeNetSpread bool     `toml:"include_net_spread"`
	HoldHours        int      `toml:"hold_hours"`
}

// ExecutorConfig holds trade sizing and auto-management parameters. Zero
// take_profit_usd / stop_loss_usd / max_hold_hours disable the respective
// auto-close trigger.
type ExecutorConfig struct {
	StakeUSD            float64  `toml:"stake_usd"`
	TargetLeverage      int      `toml:"target_leverage"`
	OrderTimeout        duration `toml:"order_timeout"`
	AutoCloseOnReversal bool     `toml:"auto_close_on_reversal"`
	TakeProfitUSD       float64  `toml:"take_profit_usd"`
	StopLossUSD         float64  `toml:"stop_loss_usd"`
	MaxHoldHours        int      `toml:"max_hold_hours"`
}

// MonitorConfig holds position monitoring parameters.
type MonitorConfig struct {
	Interval           duration `toml:"interval"`
	FetchTimeout       duration `toml:"fetch_timeout"`
	AlertOnProfit      bool     `toml:"alert_on_profit"`
	ProfitThresholdUSD float64  `toml:"profit_threshold_usd"`
	AlertOnLoss        bool     `toml:"alert_on_loss"`
	LossThresholdUSD   float64  `toml:"loss_threshold_usd"`
	AlertOnLiquidation bool     `toml:"alert_on_liquidation"`
	LiquidationRiskPct float64  `toml:"liquidation_risk_pct"`
	AlertOnReversal    bool     `toml:"alert_on_reversal"`
}

// RedisConfig holds Redis connection parameters for the scan cache and guard.
type RedisConfig struct {
	Enabled  bool     `toml:"enabled"`
	Addr     string   `toml:"addr"`
	Password string   `toml:"password"`
	DB       int      `toml:"db"`
	ScanTTL  duration `toml:"scan_ttl"`
}

// PostgresConfig holds PostgreSQL connection parameters for the archives.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
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

// S3Config holds S3-compatible object storage parameters for scan archival.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
}

// ServerConfig holds the WebSocket event server parameters.
type ServerConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// NotifyConfig holds notification channel credentials. Events selects which
// alert types are forwarded.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5s", "3m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Hyperliquid: HyperliquidConfig{
			Enabled: true,
			BaseURL: "https://api.hyperliquid.xyz",
		},
		Paradex: ParadexConfig{
			Enabled: true,
			BaseURL: "https://api.prod.paradex.trade/v1",
		},
		Lighter: LighterConfig{
			Enabled: true,
			BaseURL: "https://mainnet.zklighter.elliot.ai",
		},
		Extended: ExtendedConfig{
			Enabled: true,
			BaseURL: "https://api.extended.exchange",
		},
		Scanner: ScannerConfig{
			Interval:         duration{3 * time.Minute},
			MinSpread:        0,
			MinLeverage:      1,
			TopN:             25,
			IncludeNetSpread: true,
			HoldHours:        24,
		},
		Executor: ExecutorConfig{
			StakeUSD:            100,
			TargetLeverage:      3,
			OrderTimeout:        duration{10 * time.Second},
			AutoCloseOnReversal: false,
		},
		Monitor: MonitorConfig{
			Interval:           duration{5 * time.Second},
			FetchTimeout:       duration{10 * time.Second},
			AlertOnProfit:      true,
			ProfitThresholdUSD: 50,
			AlertOnLoss:        true,
			LossThresholdUSD:   -20,
			AlertOnLiquidation: true,
			LiquidationRiskPct: 20,
			AlertOnReversal:    true,
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			ScanTTL: duration{time.Hour},
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "fundingbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		S3: S3Config{
			Enabled:        false,
			Region:         "us-east-1",
			Bucket:         "fundingbot-data",
			ForcePathStyle: true,
			Prefix:         "scans",
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8000,
		},
		Notify: NotifyConfig{
			Events: []string{"auto_close", "liquidation_risk", "loss"},
		},
		Mode:     "scan",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"scan":    true,
	"trade":   true,
	"monitor": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found. Missing venue credentials
// are deliberately not validation errors; the registry excludes venues that
// fail to construct.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: scan, trade, monitor, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Scanner.Interval.Duration <= 0 {
		errs = append(errs, "scanner: interval must be positive")
	}
	if c.Scanner.TopN < 1 {
		errs = append(errs, "scanner: top_n must be >= 1")
	}
	if c.Scanner.MinLeverage < 1 {
		errs = append(errs, "scanner: min_leverage must be >= 1")
	}
	if c.Scanner.HoldHours <= 0 {
		errs = append(errs, "scanner: hold_hours must be positive")
	}

	needsTrading := c.Mode == "trade" || c.Mode == "full"
	if needsTrading {
		if c.Executor.StakeUSD <= 0 {
			errs = append(errs, "executor: stake_usd must be > 0 for mode "+c.Mode)
		}
		if c.Executor.TargetLeverage < 1 {
			errs = append(errs, "executor: target_leverage must be >= 1")
		}
	}
	if c.Executor.TakeProfitUSD < 0 {
		errs = append(errs, "executor: take_profit_usd must be >= 0")
	}
	if c.Executor.StopLossUSD > 0 {
		errs = append(errs, "executor: stop_loss_usd must be <= 0 (a loss)")
	}
	if c.Executor.MaxHoldHours < 0 {
		errs = append(errs, "executor: max_hold_hours must be >= 0")
	}

	if c.Monitor.Interval.Duration <= 0 {
		errs = append(errs, "monitor: interval must be positive")
	}
	if c.Monitor.LiquidationRiskPct <= 0 || c.Monitor.LiquidationRiskPct >= 100 {
		errs = append(errs, "monitor: liquidation_risk_pct must be between 0 and 100")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty when enabled")
	}
	if c.Postgres.Enabled && strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
	}
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
