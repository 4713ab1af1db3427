// Package scheduler runs periodic background maintenance tasks against the
// store: memory ranking, duplicate cleanup, embedding backfill, and skill
// cleanup, plus an unconditional WAL checkpoint. Ported from
// original_source/src/scheduler/mod.rs.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/yologdev/yocore-go/internal/config"
	"github.com/yologdev/yocore-go/internal/store"
)

// walCheckpointInterval matches start_wal_checkpoint_task's fixed period;
// SQLite's wal_autocheckpoint can fail to trigger under write contention, so
// this runs unconditionally regardless of AI feature state.
const walCheckpointInterval = 5 * time.Minute

// TaskResult summarizes one task execution for logging and events.
type TaskResult struct {
	TaskName        string
	ItemsProcessed  int
	ItemsAffected   int
	Errors          int
	Detail          string
}

// EventPublisher is the subset of events.Broadcaster the scheduler needs.
// Defined here to avoid a dependency cycle with internal/events.
type EventPublisher interface {
	RankingStart(projectID string)
	RankingComplete(projectID string, promoted, demoted, removed int)
	RankingError(projectID, errMsg string)
	SchedulerTaskStart(name, projectID string)
	SchedulerTaskComplete(name, projectID, detail string)
	SchedulerTaskError(name, projectID, errMsg string)
}

// Checkpointer is implemented by store.SQLiteStore; the volatile backend has
// no WAL to checkpoint, so StartScheduler only starts the checkpoint loop
// when the store satisfies this interface.
type Checkpointer interface {
	Checkpoint(ctx context.Context) error
}

// Task is one periodic maintenance job, run in its own goroutine with its
// own ticker. Mirrors the ScheduledTask enum's per-variant methods.
type Task interface {
	Name() string
	ParentFeature() config.AiFeature
	IntervalHours(cfg *config.Config) uint32
	Execute(ctx context.Context, st store.Store, cfg *config.Config, pub EventPublisher) TaskResult
}

// StartScheduler launches the WAL checkpoint loop (unconditionally) plus one
// goroutine per task whose parent AI feature is active, staggered by 10
// seconds each to avoid simultaneous DB contention. It returns immediately;
// tasks run until ctx is cancelled.
func StartScheduler(ctx context.Context, cfg *config.Config, st store.Store, pub EventPublisher, log zerolog.Logger) {
	if cp, ok := st.(Checkpointer); ok {
		go runWalCheckpoint(ctx, cp, log)
	}

	tasks := []Task{RankingTask{}, DuplicateCleanupTask{}, EmbeddingRefreshTask{}, SkillCleanupTask{}}

	for idx, task := range tasks {
		if !cfg.IsFeatureActive(task.ParentFeature()) {
			log.Info().Str("task", task.Name()).Msg("scheduler: task skipped, parent feature not active")
			continue
		}

		intervalHours := task.IntervalHours(cfg)
		log.Info().Str("task", task.Name()).Uint32("interval_hours", intervalHours).Msg("scheduler: starting task")

		stagger := time.Duration(idx) * 10 * time.Second
		go runTask(ctx, task, stagger, intervalHours, st, cfg, pub, log)
	}
}

func runTask(ctx context.Context, task Task, stagger time.Duration, intervalHours uint32, st store.Store, cfg *config.Config, pub EventPublisher, log zerolog.Logger) {
	select {
	case <-time.After(stagger):
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(time.Duration(intervalHours) * time.Hour)
	defer ticker.Stop()

	// A time.Ticker sends its first tick only after a full interval, so tasks
	// run after the interval elapses, not as soon as the goroutine starts.
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Info().Str("task", task.Name()).Msg("scheduler: running task")
			result := task.Execute(ctx, st, cfg, pub)
			switch {
			case result.Errors > 0:
				log.Warn().Str("task", task.Name()).Int("errors", result.Errors).Str("detail", result.Detail).Msg("scheduler: task completed with errors")
			case result.ItemsAffected > 0:
				log.Info().Str("task", task.Name()).Str("detail", result.Detail).Msg("scheduler: task completed")
			default:
				log.Debug().Str("task", task.Name()).Msg("scheduler: task completed, no changes")
			}
		}
	}
}

func runWalCheckpoint(ctx context.Context, cp Checkpointer, log zerolog.Logger) {
	ticker := time.NewTicker(walCheckpointInterval)
	defer ticker.Stop()

	select {
	case <-ticker.C:
	case <-ctx.Done():
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := cp.Checkpoint(ctx); err != nil {
				log.Warn().Err(err).Msg("scheduler: wal checkpoint failed")
			} else {
				log.Debug().Msg("scheduler: wal checkpoint completed")
			}
		}
	}
}
