package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TRADEPILOT_* environment variable overrides, and
// returns the final Config. A missing file is not an error: defaults plus
// environment are enough to run. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, err
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TRADEPILOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── AutoPilot ──
	setStr(&cfg.AutoPilot.Mode, "TRADEPILOT_AUTOPILOT_MODE")
	setFloat64(&cfg.AutoPilot.MaxDailyLoss, "TRADEPILOT_AUTOPILOT_MAX_DAILY_LOSS")
	setFloat64(&cfg.AutoPilot.MaxDrawdown, "TRADEPILOT_AUTOPILOT_MAX_DRAWDOWN")
	setFloat64(&cfg.AutoPilot.MinRiskReward, "TRADEPILOT_AUTOPILOT_MIN_RISK_REWARD")
	setFloat64(&cfg.AutoPilot.DefaultStopLoss, "TRADEPILOT_AUTOPILOT_DEFAULT_STOP_LOSS")
	setFloat64(&cfg.AutoPilot.DefaultTakeProfit, "TRADEPILOT_AUTOPILOT_DEFAULT_TAKE_PROFIT")
	setFloat64(&cfg.AutoPilot.AutoApproveBelow, "TRADEPILOT_AUTOPILOT_AUTO_APPROVE_BELOW")
	setFloat64(&cfg.AutoPilot.AutoApproveConfidence, "TRADEPILOT_AUTOPILOT_AUTO_APPROVE_CONFIDENCE")
	setDuration(&cfg.AutoPilot.ApprovalTimeout, "TRADEPILOT_AUTOPILOT_APPROVAL_TIMEOUT")
	setDuration(&cfg.AutoPilot.SweepInterval, "TRADEPILOT_AUTOPILOT_SWEEP_INTERVAL")
	setInt(&cfg.AutoPilot.HistoryLimit, "TRADEPILOT_AUTOPILOT_HISTORY_LIMIT")
	setBool(&cfg.AutoPilot.RestoreRiskState, "TRADEPILOT_AUTOPILOT_RESTORE_RISK_STATE")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "TRADEPILOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "TRADEPILOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TRADEPILOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TRADEPILOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TRADEPILOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TRADEPILOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TRADEPILOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TRADEPILOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TRADEPILOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TRADEPILOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "TRADEPILOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRADEPILOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRADEPILOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRADEPILOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRADEPILOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRADEPILOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "TRADEPILOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRADEPILOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRADEPILOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRADEPILOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRADEPILOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TRADEPILOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRADEPILOT_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "TRADEPILOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "TRADEPILOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "TRADEPILOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKeyHash, "TRADEPILOT_SERVER_API_KEY_HASH")
	setInt(&cfg.Server.RateLimitPerMin, "TRADEPILOT_SERVER_RATE_LIMIT_PER_MIN")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TRADEPILOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRADEPILOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRADEPILOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRADEPILOT_NOTIFY_EVENTS")

	// ── Audit ──
	setStr(&cfg.Audit.SigningPassphrase, "TRADEPILOT_AUDIT_SIGNING_PASSPHRASE")
	setStr(&cfg.Audit.SigningSalt, "TRADEPILOT_AUDIT_SIGNING_SALT")

	// ── Executor ──
	setBool(&cfg.Executor.Enabled, "TRADEPILOT_EXECUTOR_ENABLED")
	setInt(&cfg.Executor.RateLimitPerSec, "TRADEPILOT_EXECUTOR_RATE_LIMIT_PER_SEC")
	setDuration(&cfg.Executor.LockTTL, "TRADEPILOT_EXECUTOR_LOCK_TTL")
	setDuration(&cfg.Executor.DedupTTL, "TRADEPILOT_EXECUTOR_DEDUP_TTL")

	// ── Rollover ──
	setBool(&cfg.Rollover.Enabled, "TRADEPILOT_ROLLOVER_ENABLED")
	setStr(&cfg.Rollover.Timezone, "TRADEPILOT_ROLLOVER_TIMEZONE")
	setDuration(&cfg.Rollover.CheckInterval, "TRADEPILOT_ROLLOVER_CHECK_INTERVAL")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "TRADEPILOT_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "TRADEPILOT_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "TRADEPILOT_ARCHIVE_INTERVAL")

	// ── Feed ──
	setBool(&cfg.Feed.Enabled, "TRADEPILOT_FEED_ENABLED")
	setStr(&cfg.Feed.OpportunityChannel, "TRADEPILOT_FEED_OPPORTUNITY_CHANNEL")

	// ── Top-level ──
	setStr(&cfg.RunMode, "TRADEPILOT_RUN_MODE")
	setStr(&cfg.LogLevel, "TRADEPILOT_LOG_LEVEL")
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
