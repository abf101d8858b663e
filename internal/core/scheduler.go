package core

// scheduler.go runs periodic maintenance. The only job today purges audit
// entries older than the retention window. A failed run is logged and the
// next tick tries again.

import (
	"context"
	"log/slog"
	"time"
)

// RetentionConfig controls the audit retention job.
type RetentionConfig struct {
	RetentionDays int           // entries older than this are purged; <= 0 disables the job
	CheckInterval time.Duration // default 24h
}

// StartRetentionScheduler purges immediately and then every CheckInterval
// until ctx is cancelled. It blocks; run it in its own goroutine.
func (s *Service) StartRetentionScheduler(ctx context.Context, cfg RetentionConfig) {
	if cfg.RetentionDays <= 0 {
		slog.Info("audit retention disabled")
		return
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 24 * time.Hour
	}

	slog.Info("retention scheduler started",
		"retention_days", cfg.RetentionDays,
		"interval", cfg.CheckInterval.String(),
	)

	s.runRetentionJob(ctx, cfg)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("retention scheduler stopped")
			return
		case <-ticker.C:
			s.runRetentionJob(ctx, cfg)
		}
	}
}

// runRetentionJob performs one purge and returns the number of entries removed.
func (s *Service) runRetentionJob(ctx context.Context, cfg RetentionConfig) int64 {
	start := time.Now()
	cutoff := s.now().UTC().AddDate(0, 0, -cfg.RetentionDays)

	purged, err := s.store.PurgeAuditLogs(ctx, cutoff)
	if err != nil {
		slog.Error("audit purge failed", "cutoff", cutoff, "error", err)
		return 0
	}

	slog.Info("audit purge completed",
		"entries_purged", purged,
		"cutoff", cutoff,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return purged
}
