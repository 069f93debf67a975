package jobs

import (
	"context"
	"time"

	"github.com/nerrad567/irrigation-core/internal/scheduleserver"
)

// Job names.
const (
	JobScheduleSync  = "schedule_sync"
	JobEventLogPrune = "event_log_prune"
)

// Syncer pulls the upstream plan into the engine.
type Syncer interface {
	Sync(ctx context.Context, engine scheduleserver.Engine, now time.Time) (scheduleserver.SyncReport, error)
}

// Pruner removes old history.
type Pruner interface {
	Prune(ctx context.Context, now time.Time, days int) (int64, error)
}

// ScheduleSync returns a job that replaces the engine's AI schedules with
// the schedule server plan. onDone, if set, receives every successful
// report (the daemon persists and republishes on it).
func ScheduleSync(s Syncer, engine scheduleserver.Engine, logger Logger, onDone func(scheduleserver.SyncReport)) Func {
	return func(ctx context.Context) error {
		report, err := s.Sync(ctx, engine, time.Now())
		if err != nil {
			return err
		}
		logger.Info("schedule sync complete",
			"days", report.Days, "loaded", report.Loaded, "skipped", report.Skipped, "removed", report.Removed)
		if onDone != nil {
			onDone(report)
		}
		return nil
	}
}

// EventLogPrune returns a job deleting events older than retentionDays.
func EventLogPrune(p Pruner, retentionDays int, logger Logger) Func {
	return func(ctx context.Context) error {
		n, err := p.Prune(ctx, time.Now(), retentionDays)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("pruned watering events", "deleted", n, "retention_days", retentionDays)
		}
		return nil
	}
}
