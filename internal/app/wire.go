package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/tradepilot/internal/blob/s3"
	"github.com/alanyoungcy/tradepilot/internal/cache/redis"
	"github.com/alanyoungcy/tradepilot/internal/config"
	"github.com/alanyoungcy/tradepilot/internal/crypto"
	"github.com/alanyoungcy/tradepilot/internal/domain"
	"github.com/alanyoungcy/tradepilot/internal/notify"
	"github.com/alanyoungcy/tradepilot/internal/store/postgres"
)

// Dependencies bundles every infrastructure dependency the run modes need.
// It is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Redis
	Redis       *redis.Client
	SignalBus   *redis.SignalBus
	RateLimiter *redis.RateLimiter
	LockManager domain.LockManager
	RiskCache   *redis.RiskStateCache

	// Postgres (full mode only)
	Postgres      *postgres.Client
	DecisionStore domain.DecisionStore
	AuditStore    domain.AuditStore
	RiskSnapshots domain.RiskSnapshotStore

	// Blob storage (full mode with archive enabled)
	S3       *s3blob.Client
	Archiver domain.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// needsPostgres returns true for modes that persist decisions and audit rows.
func needsPostgres(mode string) bool {
	return mode == "full"
}

// needsS3 returns true when the archive job has somewhere to write.
func needsS3(cfg *config.Config) bool {
	return needsPostgres(cfg.RunMode) && cfg.Archive.Enabled
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Redis = redisClient
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient, cfg.Executor.RateLimitPerSec, time.Second)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.RiskCache = redis.NewRiskStateCache(redisClient)

	// --- PostgreSQL (only for modes that need persistence) ---
	if needsPostgres(cfg.RunMode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		// Run migrations if enabled.
		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		var signer postgres.Signer
		if cfg.Audit.SigningPassphrase != "" {
			s, err := crypto.NewAuditSigner(cfg.Audit.SigningPassphrase, cfg.Audit.SigningSalt)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: audit signer: %w", err)
			}
			signer = s
		} else {
			logger.WarnContext(ctx, "audit.signing_passphrase is empty; audit rows will be unsigned")
		}

		pool := pgClient.Pool()
		deps.Postgres = pgClient
		deps.DecisionStore = postgres.NewDecisionStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool, signer)
		deps.RiskSnapshots = postgres.NewRiskSnapshotStore(pool)
	}

	// --- S3 blob storage (only when the archive job runs) ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.S3 = s3Client

		objects := s3blob.NewObjects(s3Client)
		deps.Archiver = s3blob.NewArchiver(objects, objects, deps.DecisionStore, deps.AuditStore)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
			"",
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.EngineConfig().NotifyEvents, logger)

	return deps, cleanup, nil
}
