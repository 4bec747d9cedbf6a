package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

// ArchiveJob runs the archiver once a day's worth of records is complete.
type ArchiveJob struct {
	archiver  domain.Archiver
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewArchiveJob keeps retentionDays of decisions in the database.
func NewArchiveJob(archiver domain.Archiver, retentionDays int, interval time.Duration, logger *slog.Logger) *ArchiveJob {
	if retentionDays < 1 {
		retentionDays = 1
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &ArchiveJob{
		archiver:  archiver,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		interval:  interval,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "archive")),
	}
}

// RunOnce archives decisions older than the retention window and the audit
// rows of the previous UTC day.
func (j *ArchiveJob) RunOnce(ctx context.Context) error {
	today := DayOpen(time.UTC, j.now())
	cutoff := today.Add(-j.retention)

	decisions, err := j.archiver.ArchiveDecisions(ctx, cutoff)
	if err != nil {
		return err
	}
	audit, err := j.archiver.ArchiveAudit(ctx, today)
	if err != nil {
		return err
	}
	if decisions > 0 || audit > 0 {
		j.logger.InfoContext(ctx, "archive completed",
			slog.Int64("decisions", decisions),
			slog.Int64("audit_entries", audit),
			slog.Time("cutoff", cutoff),
		)
	}
	return nil
}

// Run calls RunOnce at start and then on every tick until ctx ends. Failed
// runs are logged and retried on the next tick.
func (j *ArchiveJob) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		if err := j.RunOnce(ctx); err != nil && ctx.Err() == nil {
			j.logger.WarnContext(ctx, "archive run failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
