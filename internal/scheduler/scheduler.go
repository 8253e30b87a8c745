// Package scheduler runs background maintenance for the serve command:
// daily history retention cleanup, log pruning and profile cache expiry.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/banprobe-project/banprobe/internal/config"
	"github.com/banprobe-project/banprobe/internal/events"
	"github.com/banprobe-project/banprobe/internal/util"
)

// CacheCleanInterval is how often expired profile cache entries are dropped.
const CacheCleanInterval = 5 * time.Minute

// Pruner deletes history older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// CacheCleaner drops expired cache entries.
type CacheCleaner interface {
	CleanExpiredCache() int
}

// Scheduler manages periodic background tasks.
type Scheduler struct {
	cfg      *config.Config
	eventBus *events.EventBus
	history  Pruner
	cache    CacheCleaner
	now      func() time.Time
}

// NewScheduler creates a task scheduler. history and cache may be nil.
func NewScheduler(cfg *config.Config, eventBus *events.EventBus, history Pruner, cache CacheCleaner) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		eventBus: eventBus,
		history:  history,
		cache:    cache,
		now:      time.Now,
	}
}

// Start runs all scheduled tasks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	log.Info().Msg("scheduler started")

	go s.runDailyLoop(ctx)

	if s.cache != nil {
		go s.runCacheCleanLoop(ctx)
	}

	<-ctx.Done()
	log.Info().Msg("scheduler stopped")
	return nil
}

// runDailyLoop runs the daily maintenance at history.cleanup_time.
func (s *Scheduler) runDailyLoop(ctx context.Context) {
	for {
		nextRun := NextRun(s.cfg.GetHistory().CleanupTime, s.now())
		sleepDuration := nextRun.Sub(s.now())
		if sleepDuration <= 0 {
			sleepDuration = 24 * time.Hour
		}

		log.Info().
			Time("next_run", nextRun).
			Dur("sleep", sleepDuration).
			Msg("daily maintenance scheduled")

		timer := time.NewTimer(sleepDuration)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.RunDaily(ctx)
		}
	}
}

// RunDaily prunes history past its retention and removes old log files.
func (s *Scheduler) RunDaily(ctx context.Context) {
	if _, err := s.PruneHistory(ctx); err != nil {
		log.Warn().Err(err).Msg("history cleanup failed")
	}

	logCfg := s.cfg.GetLogging()
	if removed := util.CleanOldLogs(logCfg.Directory, logCfg.MaxBackups); removed > 0 {
		log.Info().Int("removed", removed).Msg("old log files removed")
	}
}

// PruneHistory deletes results older than history.retention_days. It does
// nothing when history is disabled or retention is not positive.
func (s *Scheduler) PruneHistory(ctx context.Context) (int64, error) {
	histCfg := s.cfg.GetHistory()
	if s.history == nil || !histCfg.Enabled || histCfg.RetentionDays <= 0 {
		return 0, nil
	}

	before := s.now().AddDate(0, 0, -histCfg.RetentionDays)
	removed, err := s.history.Prune(ctx, before)
	if err != nil {
		return 0, err
	}

	log.Info().
		Int64("removed", removed).
		Int("retention_days", histCfg.RetentionDays).
		Msg("history cleanup completed")

	if s.eventBus != nil {
		s.eventBus.Emit(ctx, events.New(events.EventHistoryPruned, "scheduler", events.HistoryPrunedPayload{
			Removed: removed,
			Before:  before.UTC(),
		}))
	}
	return removed, nil
}

func (s *Scheduler) runCacheCleanLoop(ctx context.Context) {
	ticker := time.NewTicker(CacheCleanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.cache.CleanExpiredCache(); removed > 0 {
				log.Debug().Int("removed", removed).Msg("expired profile cache entries removed")
			}
		}
	}
}

// NextRun returns the first time at or after now matching cleanupTime
// (HH:MM, local to now). An unparseable value falls back to 04:00.
func NextRun(cleanupTime string, now time.Time) time.Time {
	hour, minute := 4, 0
	if t, err := time.Parse("15:04", cleanupTime); err == nil {
		hour, minute = t.Hour(), t.Minute()
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if next.Before(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
