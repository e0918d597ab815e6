// Package config defines the top-level configuration for the monitor and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SENTRY_* environment variables.
type Config struct {
	Collector CollectorConfig `toml:"collector"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Alerts    AlertsConfig    `toml:"alerts"`
	Resource  ResourceConfig  `toml:"resource"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// CollectorConfig holds market data collection parameters.
type CollectorConfig struct {
	Instruments  []string `toml:"instruments"`
	QuoteURL     string   `toml:"quote_url"`
	TickInterval duration `toml:"tick_interval"`
	FetchTimeout duration `toml:"fetch_timeout"`
	HistorySize  int      `toml:"history_size"`
	BatchSize    int      `toml:"batch_size"`
	FlushRetries int      `toml:"flush_retries"`
}

// MetricsConfig holds performance tracking parameters.
type MetricsConfig struct {
	EquityCapacity int      `toml:"equity_capacity"`
	ReturnWindow   int      `toml:"return_window"`
	TradeCapacity  int      `toml:"trade_capacity"`
	CacheTTL       duration `toml:"cache_ttl"`
	VaRConfidence  float64  `toml:"var_confidence"`
	RiskFreeRate   float64  `toml:"risk_free_rate"`
	PeriodsPerYear float64  `toml:"periods_per_year"`
	// PollInterval is how often the watcher reads equity and re-evaluates the
	// alert rules.
	PollInterval duration `toml:"poll_interval"`
}

// AlertsConfig holds alert rule thresholds and dispatch parameters.
type AlertsConfig struct {
	MaxDrawdown       float64  `toml:"max_drawdown"`
	LossLimit         float64  `toml:"loss_limit"`
	VolatilityLimit   float64  `toml:"volatility_limit"`
	VaRLimit          float64  `toml:"var_limit"`
	MinWinRate        float64  `toml:"min_win_rate"`
	BaseCooldown      duration `toml:"base_cooldown"`
	MaxPerMinute      int      `toml:"max_per_minute"`
	AggregationWindow duration `toml:"aggregation_window"`
	AggregateLevels   []string `toml:"aggregate_levels"`
}

// ResourceConfig holds process resource monitoring parameters.
type ResourceConfig struct {
	Enabled          bool     `toml:"enabled"`
	Interval         duration `toml:"interval"`
	MaxCPUPercent    float64  `toml:"max_cpu_percent"`
	MaxMemoryPercent float64  `toml:"max_memory_percent"`
	MaxThreads       int      `toml:"max_threads"`
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
	// RetentionDays controls how old a sample must be before the archiver
	// moves it to object storage. Zero disables archiving.
	RetentionDays int `toml:"retention_days"`
	// ArchiveInterval is how often the archiver wakes up.
	ArchiveInterval duration `toml:"archive_interval"`
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

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string `toml:"telegram_token"`
	TelegramChatID    string `toml:"telegram_chat_id"`
	DiscordWebhookURL string `toml:"discord_webhook_url"`
	// MinLevel is the lowest severity delivered to operators.
	MinLevel string `toml:"min_level"`
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

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Collector: CollectorConfig{
			Instruments:  []string{"BTCUSDT", "ETHUSDT"},
			QuoteURL:     "https://api.binance.com/api/v3/ticker/24hr",
			TickInterval: duration{5 * time.Second},
			FetchTimeout: duration{5 * time.Second},
			HistorySize:  1000,
			BatchSize:    50,
			FlushRetries: 3,
		},
		Metrics: MetricsConfig{
			EquityCapacity: 10000,
			ReturnWindow:   250,
			TradeCapacity:  1000,
			CacheTTL:       duration{time.Second},
			VaRConfidence:  0.95,
			RiskFreeRate:   0.0,
			PeriodsPerYear: 252,
			PollInterval:   duration{5 * time.Second},
		},
		Alerts: AlertsConfig{
			MaxDrawdown:       0.10,
			LossLimit:         0.05,
			VolatilityLimit:   0.40,
			VaRLimit:          0.03,
			MinWinRate:        0.35,
			BaseCooldown:      duration{5 * time.Minute},
			MaxPerMinute:      30,
			AggregationWindow: duration{time.Minute},
			AggregateLevels:   []string{"info"},
		},
		Resource: ResourceConfig{
			Enabled:          true,
			Interval:         duration{30 * time.Second},
			MaxCPUPercent:    80,
			MaxMemoryPercent: 85,
			MaxThreads:       200,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "tradesentry",
			User:            "postgres",
			SSLMode:         "disable",
			PoolMaxConns:    10,
			PoolMinConns:    2,
			RunMigrations:   true,
			RetentionDays:   30,
			ArchiveInterval: duration{6 * time.Hour},
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "tradesentry-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Notify: NotifyConfig{
			MinLevel: "warning",
		},
		Mode:     "watch",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"collect": true,
	"watch":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validAlertLevels enumerates the accepted alert severity names.
var validAlertLevels = map[string]bool{
	"info":     true,
	"warning":  true,
	"error":    true,
	"critical": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: collect, watch)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Collector
	if len(c.Collector.Instruments) == 0 {
		errs = append(errs, "collector: instruments must not be empty")
	}
	if c.Collector.QuoteURL == "" {
		errs = append(errs, "collector: quote_url must not be empty")
	}
	if c.Collector.TickInterval.Duration <= 0 {
		errs = append(errs, "collector: tick_interval must be > 0")
	}
	if c.Collector.HistorySize < 1 {
		errs = append(errs, "collector: history_size must be >= 1")
	}
	if c.Collector.BatchSize < 1 {
		errs = append(errs, "collector: batch_size must be >= 1")
	}

	// Metrics
	if c.Metrics.EquityCapacity < 2 {
		errs = append(errs, "metrics: equity_capacity must be >= 2")
	}
	if c.Metrics.ReturnWindow < 2 {
		errs = append(errs, "metrics: return_window must be >= 2")
	}
	if c.Metrics.VaRConfidence <= 0 || c.Metrics.VaRConfidence >= 1 {
		errs = append(errs, fmt.Sprintf("metrics: var_confidence must be in (0, 1), got %g", c.Metrics.VaRConfidence))
	}
	if c.Metrics.PeriodsPerYear <= 0 {
		errs = append(errs, "metrics: periods_per_year must be > 0")
	}
	if c.Metrics.PollInterval.Duration <= 0 {
		errs = append(errs, "metrics: poll_interval must be > 0")
	}

	// Alerts
	if c.Alerts.MaxPerMinute < 1 {
		errs = append(errs, "alerts: max_per_minute must be >= 1")
	}
	if c.Alerts.AggregationWindow.Duration <= 0 {
		errs = append(errs, "alerts: aggregation_window must be > 0")
	}
	for _, lvl := range c.Alerts.AggregateLevels {
		if !validAlertLevels[strings.ToLower(lvl)] {
			errs = append(errs, fmt.Sprintf("alerts: unknown aggregate level %q (valid: info, warning, error, critical)", lvl))
		}
	}

	// Resource
	if c.Resource.Enabled && c.Resource.Interval.Duration <= 0 {
		errs = append(errs, "resource: interval must be > 0 when enabled")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}
	if c.Postgres.RetentionDays < 0 {
		errs = append(errs, "postgres: retention_days must be >= 0")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	// Notify
	if c.Notify.MinLevel != "" && !validAlertLevels[strings.ToLower(c.Notify.MinLevel)] {
		errs = append(errs, fmt.Sprintf("notify: unknown min_level %q (valid: info, warning, error, critical)", c.Notify.MinLevel))
	}
	tgToken := c.Notify.TelegramToken != ""
	tgChat := c.Notify.TelegramChatID != ""
	if tgToken != tgChat {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
