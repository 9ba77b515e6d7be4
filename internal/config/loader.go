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
// built-in defaults, applies FUNDINGBOT_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
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

// applyEnvOverrides reads well-known FUNDINGBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Venues ──
	setBool(&cfg.Hyperliquid.Enabled, "FUNDINGBOT_HYPERLIQUID_ENABLED")
	setStr(&cfg.Hyperliquid.BaseURL, "FUNDINGBOT_HYPERLIQUID_BASE_URL")
	setStr(&cfg.Hyperliquid.PrivateKey, "FUNDINGBOT_HYPERLIQUID_PRIVATE_KEY")

	setBool(&cfg.Paradex.Enabled, "FUNDINGBOT_PARADEX_ENABLED")
	setStr(&cfg.Paradex.BaseURL, "FUNDINGBOT_PARADEX_BASE_URL")
	setStr(&cfg.Paradex.Wallet, "FUNDINGBOT_PARADEX_WALLET")
	setStr(&cfg.Paradex.JWTToken, "FUNDINGBOT_PARADEX_JWT_TOKEN")

	setBool(&cfg.Lighter.Enabled, "FUNDINGBOT_LIGHTER_ENABLED")
	setStr(&cfg.Lighter.BaseURL, "FUNDINGBOT_LIGHTER_BASE_URL")
	setStr(&cfg.Lighter.APIKey, "FUNDINGBOT_LIGHTER_API_KEY")
	setInt(&cfg.Lighter.AccountIndex, "FUNDINGBOT_LIGHTER_ACCOUNT_INDEX")
	setInt(&cfg.Lighter.APIKeyIndex, "FUNDINGBOT_LIGHTER_API_KEY_INDEX")

	setBool(&cfg.Extended.Enabled, "FUNDINGBOT_EXTENDED_ENABLED")
	setStr(&cfg.Extended.BaseURL, "FUNDINGBOT_EXTENDED_BASE_URL")
	setStr(&cfg.Extended.APIKey, "FUNDINGBOT_EXTENDED_API_KEY")
	setStr(&cfg.Extended.APISecret, "FUNDINGBOT_EXTENDED_API_SECRET")
	setInt64(&cfg.Extended.VaultID, "FUNDINGBOT_EXTENDED_VAULT_ID")

	// ── Scanner ──
	setDuration(&cfg.Scanner.Interval, "FUNDINGBOT_SCANNER_INTERVAL")
	setFloat64(&cfg.Scanner.MinSpread, "FUNDINGBOT_SCANNER_MIN_SPREAD")
	setInt(&cfg.Scanner.MinLeverage, "FUNDINGBOT_SCANNER_MIN_LEVERAGE")
	setInt(&cfg.Scanner.TopN, "FUNDINGBOT_SCANNER_TOP_N")
	setBool(&cfg.Scanner.IncludeNetSpread, "FUNDINGBOT_SCANNER_INCLUDE_NET_SPREAD")
	setInt(&cfg.Scanner.HoldHours, "FUNDINGBOT_SCANNER_HOLD_HOURS")

	// ── Executor ──
	setFloat64(&cfg.Executor.StakeUSD, "FUNDINGBOT_EXECUTOR_STAKE_USD")
	setInt(&cfg.Executor.TargetLeverage, "FUNDINGBOT_EXECUTOR_TARGET_LEVERAGE")
	setDuration(&cfg.Executor.OrderTimeout, "FUNDINGBOT_EXECUTOR_ORDER_TIMEOUT")
	setBool(&cfg.Executor.AutoCloseOnReversal, "FUNDINGBOT_EXECUTOR_AUTO_CLOSE_ON_REVERSAL")
	setFloat64(&cfg.Executor.TakeProfitUSD, "FUNDINGBOT_EXECUTOR_TAKE_PROFIT_USD")
	setFloat64(&cfg.Executor.StopLossUSD, "FUNDINGBOT_EXECUTOR_STOP_LOSS_USD")
	setInt(&cfg.Executor.MaxHoldHours, "FUNDINGBOT_EXECUTOR_MAX_HOLD_HOURS")

	// ── Monitor ──
	setDuration(&cfg.Monitor.Interval, "FUNDINGBOT_MONITOR_INTERVAL")
	setDuration(&cfg.Monitor.FetchTimeout, "FUNDINGBOT_MONITOR_FETCH_TIMEOUT")
	setBool(&cfg.Monitor.AlertOnProfit, "FUNDINGBOT_MONITOR_ALERT_ON_PROFIT")
	setFloat64(&cfg.Monitor.ProfitThresholdUSD, "FUNDINGBOT_MONITOR_PROFIT_THRESHOLD_USD")
	setBool(&cfg.Monitor.AlertOnLoss, "FUNDINGBOT_MONITOR_ALERT_ON_LOSS")
	setFloat64(&cfg.Monitor.LossThresholdUSD, "FUNDINGBOT_MONITOR_LOSS_THRESHOLD_USD")
	setBool(&cfg.Monitor.AlertOnLiquidation, "FUNDINGBOT_MONITOR_ALERT_ON_LIQUIDATION")
	setFloat64(&cfg.Monitor.LiquidationRiskPct, "FUNDINGBOT_MONITOR_LIQUIDATION_RISK_PCT")
	setBool(&cfg.Monitor.AlertOnReversal, "FUNDINGBOT_MONITOR_ALERT_ON_REVERSAL")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "FUNDINGBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "FUNDINGBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "FUNDINGBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "FUNDINGBOT_REDIS_DB")
	setDuration(&cfg.Redis.ScanTTL, "FUNDINGBOT_REDIS_SCAN_TTL")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "FUNDINGBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "FUNDINGBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "FUNDINGBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "FUNDINGBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "FUNDINGBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "FUNDINGBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "FUNDINGBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "FUNDINGBOT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "FUNDINGBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "FUNDINGBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "FUNDINGBOT_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "FUNDINGBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "FUNDINGBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "FUNDINGBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "FUNDINGBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "FUNDINGBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "FUNDINGBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "FUNDINGBOT_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "FUNDINGBOT_S3_PREFIX")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "FUNDINGBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "FUNDINGBOT_SERVER_PORT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "FUNDINGBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "FUNDINGBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "FUNDINGBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "FUNDINGBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "FUNDINGBOT_MODE")
	setStr(&cfg.LogLevel, "FUNDINGBOT_LOG_LEVEL")
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
