package config

import (
	"fmt"
	"time"
)

// Config holds runtime configuration for the debt bot.
type Config struct {
	AppEnv      string            `mapstructure:"app_env"`
	Bot         BotConfig         `mapstructure:"bot"`
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Logger      LoggerConfig      `mapstructure:"logger"`
	Sentry      SentryConfig      `mapstructure:"sentry"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Ledger      LedgerConfig      `mapstructure:"ledger"`
	Rates       RatesConfig       `mapstructure:"rates"`
	Jobs        JobsConfig        `mapstructure:"jobs"`
	State       StateConfig       `mapstructure:"state"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
}

// BotConfig configures the Telegram transport. Mode is "polling" or "webhook".
type BotConfig struct {
	Token         string        `mapstructure:"token" validate:"required"`
	Mode          string        `mapstructure:"mode" validate:"oneof=polling webhook"`
	Timeout       time.Duration `mapstructure:"timeout"`
	WebhookListen string        `mapstructure:"webhook_listen" validate:"required_if=Mode webhook"`
	WebhookURL    string        `mapstructure:"webhook_url" validate:"required_if=Mode webhook"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host" validate:"required"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode" validate:"oneof=disable require verify-ca verify-full"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	Password        string        `mapstructure:"password"`
	DB              int           `mapstructure:"db"`
	PoolSize        int           `mapstructure:"pool_size"`
	MinIdleConns    int           `mapstructure:"min_idle_conns"`
	PoolTimeout     time.Duration `mapstructure:"pool_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	MinRetryBackoff time.Duration `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`
}

type LoggerConfig struct {
	Level       string        `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format      string        `mapstructure:"format" validate:"oneof=json text"`
	SentryLevel string        `mapstructure:"sentry_level" validate:"omitempty,oneof=warn error"`
	File        LogFileConfig `mapstructure:"file"`
}

// LogFileConfig enables a rotating file sink next to stdout.
type LogFileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path" validate:"required_if=Enabled true"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn" validate:"required_if=Enabled true"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate" validate:"min=0,max=1"`
}

type RateLimitRule struct {
	Limit  int    `mapstructure:"limit"`
	Window string `mapstructure:"window"`
}

type RateLimitConfig struct {
	Enabled   bool                     `mapstructure:"enabled"`
	Global    RateLimitRule            `mapstructure:"global"`
	PerUser   RateLimitRule            `mapstructure:"per_user"`
	Commands  map[string]RateLimitRule `mapstructure:"commands"`
	Whitelist []int64                  `mapstructure:"whitelist"`
}

// LedgerConfig selects the ledger backend ("postgres" or "memory") and currencies.
type LedgerConfig struct {
	Store           string        `mapstructure:"store" validate:"oneof=postgres memory"`
	Currencies      []string      `mapstructure:"currencies" validate:"min=1,dive,len=3"`
	DefaultLanguage string        `mapstructure:"default_language" validate:"oneof=en ru"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
}

type RatesConfig struct {
	BaseURL        string        `mapstructure:"base_url" validate:"required,url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	LookbackDays   int           `mapstructure:"lookback_days" validate:"min=1"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	BreakerTimeout time.Duration `mapstructure:"breaker_timeout"`
}

type JobsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Concurrency int    `mapstructure:"concurrency"`
	WarmupCron  string `mapstructure:"warmup_cron" validate:"required_if=Enabled true"`
}

type StateConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type IdempotencyConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// Addr returns the HTTP listen address for metrics and health endpoints.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
