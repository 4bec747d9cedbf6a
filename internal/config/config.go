// Package config defines the top-level configuration for tradepilot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/tradepilot/internal/autopilot"
	"github.com/alanyoungcy/tradepilot/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TRADEPILOT_* environment variables.
type Config struct {
	AutoPilot AutoPilotConfig `toml:"autopilot"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Audit     AuditConfig     `toml:"audit"`
	Executor  ExecutorConfig  `toml:"executor"`
	Rollover  RolloverConfig  `toml:"rollover"`
	Archive   ArchiveConfig   `toml:"archive"`
	Feed      FeedConfig      `toml:"feed"`
	RunMode   string          `toml:"run_mode"`
	LogLevel  string          `toml:"log_level"`
}

// AutoPilotConfig holds the decision engine's limits and approval policy.
type AutoPilotConfig struct {
	Mode                   string   `toml:"mode"`
	MaxDailyLoss           float64  `toml:"max_daily_loss"`
	MaxDrawdown            float64  `toml:"max_drawdown"`
	MinRiskReward          float64  `toml:"min_risk_reward"`
	DefaultStopLoss        float64  `toml:"default_stop_loss"`
	DefaultTakeProfit      float64  `toml:"default_take_profit"`
	HighExposureFraction   float64  `toml:"high_exposure_fraction"`
	MediumExposureFraction float64  `toml:"medium_exposure_fraction"`
	AutoApproveBelow       float64  `toml:"auto_approve_below"`
	AutoApproveConfidence  float64  `toml:"auto_approve_confidence"`
	ApprovalTimeout        duration `toml:"approval_timeout"`
	SweepInterval          duration `toml:"sweep_interval"`
	HistoryLimit           int      `toml:"history_limit"`
	RestoreRiskState       bool     `toml:"restore_risk_state"`
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
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
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

// ServerConfig holds HTTP server parameters. APIKeyHash is a bcrypt hash of
// the operator API key; leaving it empty disables auth.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKeyHash      string   `toml:"api_key_hash"`
	RateLimitPerMin int      `toml:"rate_limit_per_min"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// AuditConfig controls audit log signing.
type AuditConfig struct {
	SigningPassphrase string `toml:"signing_passphrase"`
	SigningSalt       string `toml:"signing_salt"`
}

// ExecutorConfig controls the paper execution worker.
type ExecutorConfig struct {
	Enabled         bool     `toml:"enabled"`
	RateLimitPerSec int      `toml:"rate_limit_per_sec"`
	LockTTL         duration `toml:"lock_ttl"`
	DedupTTL        duration `toml:"dedup_ttl"`
}

// RolloverConfig controls the daily P&L reset.
type RolloverConfig struct {
	Enabled       bool     `toml:"enabled"`
	Timezone      string   `toml:"timezone"`
	CheckInterval duration `toml:"check_interval"`
}

// ArchiveConfig controls moving old decisions to object storage.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
}

// FeedConfig names the bus channel opportunities arrive on.
type FeedConfig struct {
	Enabled            bool   `toml:"enabled"`
	OpportunityChannel string `toml:"opportunity_channel"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	ap := autopilot.DefaultConfig()
	return Config{
		AutoPilot: AutoPilotConfig{
			Mode:                   string(ap.Mode),
			MaxDailyLoss:           ap.Limits.MaxDailyLoss,
			MaxDrawdown:            ap.Limits.MaxDrawdown,
			MinRiskReward:          ap.Limits.MinRiskReward,
			DefaultStopLoss:        ap.Limits.DefaultStopLoss,
			DefaultTakeProfit:      ap.Limits.DefaultTakeProfit,
			HighExposureFraction:   ap.Limits.HighExposureFraction,
			MediumExposureFraction: ap.Limits.MediumExposureFraction,
			AutoApproveBelow:       ap.AutoApproveBelow,
			AutoApproveConfidence:  ap.AutoApproveConfidence,
			ApprovalTimeout:        duration{ap.ApprovalTimeout},
			SweepInterval:          duration{ap.SweepInterval},
			HistoryLimit:           ap.HistoryLimit,
			RestoreRiskState:       true,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "tradepilot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "tradepilot-data",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitPerMin: 120,
		},
		Notify: NotifyConfig{
			Events: eventNames(ap.NotifyEvents),
		},
		Executor: ExecutorConfig{
			Enabled:         true,
			RateLimitPerSec: 5,
			LockTTL:         duration{30 * time.Second},
			DedupTTL:        duration{10 * time.Minute},
		},
		Rollover: RolloverConfig{
			Enabled:       true,
			Timezone:      "UTC",
			CheckInterval: duration{time.Minute},
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
		},
		Feed: FeedConfig{
			Enabled:            true,
			OpportunityChannel: "ch:opportunity",
		},
		RunMode:  "server",
		LogLevel: "info",
	}
}

func eventNames(types []domain.EventType) []string {
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, string(t))
	}
	return out
}

// validRunModes enumerates the accepted values for Config.RunMode.
var validRunModes = map[string]bool{
	"server": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validRunModes[strings.ToLower(c.RunMode)] {
		errs = append(errs, fmt.Sprintf("unknown run_mode %q (valid: server, full)", c.RunMode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// AutoPilot
	if _, err := domain.ParseMode(c.AutoPilot.Mode); err != nil {
		errs = append(errs, "autopilot: "+err.Error())
	} else if err := c.EngineConfig().Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	// Postgres is only required when persistence is wired.
	if c.RunMode == "full" {
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
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.RunMode != "full" {
			errs = append(errs, "archive: requires run_mode full")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimitPerMin < 0 {
			errs = append(errs, "server: rate_limit_per_min must be >= 0")
		}
	}

	// Notify
	known := make(map[string]bool, len(domain.AllEventTypes))
	for _, t := range domain.AllEventTypes {
		known[string(t)] = true
	}
	for _, ev := range c.Notify.Events {
		if !known[ev] {
			errs = append(errs, fmt.Sprintf("notify: unknown event %q", ev))
		}
	}
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	// Audit
	if c.Audit.SigningPassphrase != "" && c.Audit.SigningSalt == "" {
		errs = append(errs, "audit: signing_salt is required when signing_passphrase is set")
	}

	// Executor
	if c.Executor.Enabled {
		if c.Executor.RateLimitPerSec < 1 {
			errs = append(errs, "executor: rate_limit_per_sec must be >= 1")
		}
		if c.Executor.LockTTL.Duration <= 0 {
			errs = append(errs, "executor: lock_ttl must be > 0")
		}
	}

	// Rollover
	if c.Rollover.Enabled {
		if _, err := time.LoadLocation(c.Rollover.Timezone); err != nil {
			errs = append(errs, fmt.Sprintf("rollover: unknown timezone %q", c.Rollover.Timezone))
		}
		if c.Rollover.CheckInterval.Duration <= 0 {
			errs = append(errs, "rollover: check_interval must be > 0")
		}
	}

	// Feed
	if c.Feed.Enabled && c.Feed.OpportunityChannel == "" {
		errs = append(errs, "feed: opportunity_channel must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// EngineConfig converts the [autopilot] section into an engine config. An
// unparseable mode is passed through so engine validation reports it.
func (c *Config) EngineConfig() autopilot.Config {
	mode, err := domain.ParseMode(c.AutoPilot.Mode)
	if err != nil {
		mode = domain.Mode(c.AutoPilot.Mode)
	}
	events := make([]domain.EventType, 0, len(c.Notify.Events))
	for _, ev := range c.Notify.Events {
		events = append(events, domain.EventType(ev))
	}
	return autopilot.Config{
		Mode: mode,
		Limits: domain.RiskLimits{
			MaxDailyLoss:           c.AutoPilot.MaxDailyLoss,
			MaxDrawdown:            c.AutoPilot.MaxDrawdown,
			MinRiskReward:          c.AutoPilot.MinRiskReward,
			DefaultStopLoss:        c.AutoPilot.DefaultStopLoss,
			DefaultTakeProfit:      c.AutoPilot.DefaultTakeProfit,
			HighExposureFraction:   c.AutoPilot.HighExposureFraction,
			MediumExposureFraction: c.AutoPilot.MediumExposureFraction,
		},
		AutoApproveBelow:      c.AutoPilot.AutoApproveBelow,
		AutoApproveConfidence: c.AutoPilot.AutoApproveConfidence,
		ApprovalTimeout:       c.AutoPilot.ApprovalTimeout.Duration,
		SweepInterval:         c.AutoPilot.SweepInterval.Duration,
		HistoryLimit:          c.AutoPilot.HistoryLimit,
		NotifyEvents:          events,
	}
}
