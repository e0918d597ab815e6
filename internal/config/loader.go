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
// built-in defaults, applies SENTRY_* environment variable overrides, and
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

// applyEnvOverrides reads well-known SENTRY_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Collector ──
	setStringSlice(&cfg.Collector.Instruments, "SENTRY_COLLECTOR_INSTRUMENTS")
	setStr(&cfg.Collector.QuoteURL, "SENTRY_COLLECTOR_QUOTE_URL")
	setDuration(&cfg.Collector.TickInterval, "SENTRY_COLLECTOR_TICK_INTERVAL")
	setDuration(&cfg.Collector.FetchTimeout, "SENTRY_COLLECTOR_FETCH_TIMEOUT")
	setInt(&cfg.Collector.HistorySize, "SENTRY_COLLECTOR_HISTORY_SIZE")
	setInt(&cfg.Collector.BatchSize, "SENTRY_COLLECTOR_BATCH_SIZE")
	setInt(&cfg.Collector.FlushRetries, "SENTRY_COLLECTOR_FLUSH_RETRIES")

	// ── Metrics ──
	setInt(&cfg.Metrics.EquityCapacity, "SENTRY_METRICS_EQUITY_CAPACITY")
	setInt(&cfg.Metrics.ReturnWindow, "SENTRY_METRICS_RETURN_WINDOW")
	setInt(&cfg.Metrics.TradeCapacity, "SENTRY_METRICS_TRADE_CAPACITY")
	setDuration(&cfg.Metrics.CacheTTL, "SENTRY_METRICS_CACHE_TTL")
	setFloat64(&cfg.Metrics.VaRConfidence, "SENTRY_METRICS_VAR_CONFIDENCE")
	setFloat64(&cfg.Metrics.RiskFreeRate, "SENTRY_METRICS_RISK_FREE_RATE")
	setFloat64(&cfg.Metrics.PeriodsPerYear, "SENTRY_METRICS_PERIODS_PER_YEAR")
	setDuration(&cfg.Metrics.PollInterval, "SENTRY_METRICS_POLL_INTERVAL")

	// ── Alerts ──
	setFloat64(&cfg.Alerts.MaxDrawdown, "SENTRY_ALERTS_MAX_DRAWDOWN")
	setFloat64(&cfg.Alerts.LossLimit, "SENTRY_ALERTS_LOSS_LIMIT")
	setFloat64(&cfg.Alerts.VolatilityLimit, "SENTRY_ALERTS_VOLATILITY_LIMIT")
	setFloat64(&cfg.Alerts.VaRLimit, "SENTRY_ALERTS_VAR_LIMIT")
	setFloat64(&cfg.Alerts.MinWinRate, "SENTRY_ALERTS_MIN_WIN_RATE")
	setDuration(&cfg.Alerts.BaseCooldown, "SENTRY_ALERTS_BASE_COOLDOWN")
	setInt(&cfg.Alerts.MaxPerMinute, "SENTRY_ALERTS_MAX_PER_MINUTE")
	setDuration(&cfg.Alerts.AggregationWindow, "SENTRY_ALERTS_AGGREGATION_WINDOW")
	setStringSlice(&cfg.Alerts.AggregateLevels, "SENTRY_ALERTS_AGGREGATE_LEVELS")

	// ── Resource ──
	setBool(&cfg.Resource.Enabled, "SENTRY_RESOURCE_ENABLED")
	setDuration(&cfg.Resource.Interval, "SENTRY_RESOURCE_INTERVAL")
	setFloat64(&cfg.Resource.MaxCPUPercent, "SENTRY_RESOURCE_MAX_CPU_PERCENT")
	setFloat64(&cfg.Resource.MaxMemoryPercent, "SENTRY_RESOURCE_MAX_MEMORY_PERCENT")
	setInt(&cfg.Resource.MaxThreads, "SENTRY_RESOURCE_MAX_THREADS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SENTRY_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SENTRY_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SENTRY_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SENTRY_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SENTRY_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SENTRY_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SENTRY_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SENTRY_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SENTRY_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SENTRY_POSTGRES_RUN_MIGRATIONS")
	setInt(&cfg.Postgres.RetentionDays, "SENTRY_POSTGRES_RETENTION_DAYS")
	setDuration(&cfg.Postgres.ArchiveInterval, "SENTRY_POSTGRES_ARCHIVE_INTERVAL")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "SENTRY_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "SENTRY_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SENTRY_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SENTRY_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SENTRY_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SENTRY_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SENTRY_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "SENTRY_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "SENTRY_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SENTRY_S3_REGION")
	setStr(&cfg.S3.Bucket, "SENTRY_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SENTRY_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SENTRY_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SENTRY_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SENTRY_S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SENTRY_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SENTRY_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SENTRY_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.MinLevel, "SENTRY_NOTIFY_MIN_LEVEL")

	// ── Top-level ──
	setStr(&cfg.Mode, "SENTRY_MODE")
	setStr(&cfg.LogLevel, "SENTRY_LOG_LEVEL")
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
