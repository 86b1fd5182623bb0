package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// environment overrides for secrets
const (
	EnvSessionToken  = "QUOTEWATCH_SESSION_TOKEN"
	EnvTelegramToken = "QUOTEWATCH_TELEGRAM_TOKEN"
	EnvPostgresDSN   = "QUOTEWATCH_POSTGRES_DSN"
	EnvRedisPassword = "QUOTEWATCH_REDIS_PASSWORD"
)

type Account struct {
	UserID    int64  `toml:"user_id"`
	APIKey    string `toml:"api_key"`
	SecretKey string `toml:"secret_key"`
}

type Config struct {
	App struct {
		Name string `toml:"name"`
	} `toml:"app"`

	Log struct {
		Level      string `toml:"level"`
		File       string `toml:"file"`
		MaxSizeMB  int    `toml:"max_size_mb"`
		MaxBackups int    `toml:"max_backups"`
		MaxAgeDays int    `toml:"max_age_days"`
		Compress   bool   `toml:"compress"`
	} `toml:"log"`

	Venue struct {
		WsURL                string `toml:"ws_url"`
		SessionToken         string `toml:"session_token"`
		ConnectTimeoutSec    int    `toml:"connect_timeout_sec"`
		ReconnectBaseMs      int    `toml:"reconnect_base_ms"`
		ReconnectMaxAttempts int    `toml:"reconnect_max_attempts"`
		DispatchWorkers      int    `toml:"dispatch_workers"`
		DispatchBuffer       int    `toml:"dispatch_buffer"`
	} `toml:"venue"`

	Subscriptions struct {
		RefreshIntervalSec int `toml:"refresh_interval_sec"`
		PollParallelism    int `toml:"poll_parallelism"`
	} `toml:"subscriptions"`

	Quotes struct {
		TimeoutMs  int  `toml:"timeout_ms"`
		RequireAll bool `toml:"require_all"`
	} `toml:"quotes"`

	Alerts struct {
		CooldownSec int `toml:"cooldown_sec"`
	} `toml:"alerts"`

	Broker struct {
		BaseURL    string    `toml:"base_url"`
		TimeoutSec int       `toml:"timeout_sec"`
		Accounts   []Account `toml:"accounts"`
	} `toml:"broker"`

	Notify struct {
		Driver     string `toml:"driver"`
		TimeoutSec int    `toml:"timeout_sec"`
		Telegram   struct {
			Token   string `toml:"token"`
			BaseURL string `toml:"base_url"`
		} `toml:"telegram"`
	} `toml:"notify"`

	Storage struct {
		SQLite struct {
			Enabled bool   `toml:"enabled"`
			Path    string `toml:"path"`
		} `toml:"sqlite"`

		Redis struct {
			Enabled     bool   `toml:"enabled"`
			Addr        string `toml:"addr"`
			Password    string `toml:"password"`
			DB          int    `toml:"db"`
			Prefix      string `toml:"prefix"`
			TTLSeconds  int    `toml:"ttl_seconds"`
			AlertStream string `toml:"alert_stream"`
			AlertChan   string `toml:"alert_channel"`
		} `toml:"redis"`

		Postgres struct {
			Enabled bool   `toml:"enabled"`
			DSN     string `toml:"dsn"`
		} `toml:"postgres"`
	} `toml:"storage"`
}

// Load reads path, applies defaults and environment overrides, then
// validates. A .env file in the working directory is honoured when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // best-effort: .env is optional

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	applyDefaults(&cfg)
	applyEnv(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "quotewatch"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = 10
	}
	if cfg.Log.MaxBackups <= 0 {
		cfg.Log.MaxBackups = 3
	}
	if cfg.Log.MaxAgeDays <= 0 {
		cfg.Log.MaxAgeDays = 28
	}
	if cfg.Venue.WsURL == "" {
		cfg.Venue.WsURL = "wss://wss.tradernet.com/"
	}
	if cfg.Venue.ConnectTimeoutSec <= 0 {
		cfg.Venue.ConnectTimeoutSec = 10
	}
	if cfg.Venue.ReconnectBaseMs <= 0 {
		cfg.Venue.ReconnectBaseMs = 1000
	}
	if cfg.Venue.ReconnectMaxAttempts <= 0 {
		cfg.Venue.ReconnectMaxAttempts = 5
	}
	if cfg.Venue.DispatchWorkers <= 0 {
		cfg.Venue.DispatchWorkers = 4
	}
	if cfg.Venue.DispatchBuffer <= 0 {
		cfg.Venue.DispatchBuffer = 1024
	}
	if cfg.Subscriptions.PollParallelism <= 0 {
		cfg.Subscriptions.PollParallelism = 4
	}
	if cfg.Quotes.TimeoutMs <= 0 {
		cfg.Quotes.TimeoutMs = 3000
	}
	if cfg.Alerts.CooldownSec <= 0 {
		cfg.Alerts.CooldownSec = 300
	}
	if cfg.Broker.BaseURL == "" {
		cfg.Broker.BaseURL = "https://tradernet.com"
	}
	if cfg.Broker.TimeoutSec <= 0 {
		cfg.Broker.TimeoutSec = 10
	}
	if cfg.Notify.Driver == "" {
		cfg.Notify.Driver = "console"
	}
	if cfg.Notify.TimeoutSec <= 0 {
		cfg.Notify.TimeoutSec = 10
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = "data/quotewatch.db"
	}
	if cfg.Storage.Redis.Addr == "" {
		cfg.Storage.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.Storage.Redis.Prefix == "" {
		cfg.Storage.Redis.Prefix = "quotewatch"
	}
}

func applyEnv(cfg *Config) {
	override := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	override(&cfg.Venue.SessionToken, EnvSessionToken)
	override(&cfg.Notify.Telegram.Token, EnvTelegramToken)
	override(&cfg.Storage.Postgres.DSN, EnvPostgresDSN)
	override(&cfg.Storage.Redis.Password, EnvRedisPassword)
}

func validate(cfg *Config) error {
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q invalid", cfg.Log.Level)
	}
	if strings.TrimSpace(cfg.Venue.WsURL) == "" {
		return errors.New("venue.ws_url empty")
	}
	if cfg.Notify.Driver == "telegram" && strings.TrimSpace(cfg.Notify.Telegram.Token) == "" {
		return errors.New("notify.telegram.token empty but driver is telegram")
	}
	if cfg.Storage.Postgres.Enabled && strings.TrimSpace(cfg.Storage.Postgres.DSN) == "" {
		return errors.New("storage.postgres.dsn empty but enabled")
	}
	for i, acc := range cfg.Broker.Accounts {
		if acc.UserID == 0 || acc.APIKey == "" || acc.SecretKey == "" {
			return fmt.Errorf("broker.accounts[%d] incomplete", i)
		}
	}
	return nil
}

func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Venue.ConnectTimeoutSec) * time.Second
}

func (c *Config) ReconnectBaseDelay() time.Duration {
	return time.Duration(c.Venue.ReconnectBaseMs) * time.Millisecond
}

func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Subscriptions.RefreshIntervalSec) * time.Second
}

func (c *Config) QuoteTimeout() time.Duration {
	return time.Duration(c.Quotes.TimeoutMs) * time.Millisecond
}

func (c *Config) AlertCooldown() time.Duration {
	return time.Duration(c.Alerts.CooldownSec) * time.Second
}

func (c *Config) BrokerTimeout() time.Duration {
	return time.Duration(c.Broker.TimeoutSec) * time.Second
}

func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Notify.TimeoutSec) * time.Second
}

func (c *Config) RedisTTL() time.Duration {
	return time.Duration(c.Storage.Redis.TTLSeconds) * time.Second
}
