package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/yologdev/yocore-go/internal/config"
	"github.com/yologdev/yocore-go/internal/similarity"
	"github.com/yologdev/yocore-go/internal/store"
)

// duplicateCleanupTimeout matches the original's 120-second per-project
// timeout.
const duplicateCleanupTimeout = 120 * time.Second

// DuplicateCleanupTask retroactively soft-removes near-duplicate memories
// within a project, using a stricter similarity threshold than
// extraction-time dedup to minimize false positives. Ported from
// scheduler/tasks/duplicate_cleanup.rs.
type DuplicateCleanupTask struct{}

func (DuplicateCleanupTask) Name() string { return "duplicate_cleanup" }
func (DuplicateCleanupTask) ParentFeature() config.AiFeature { return config.FeatureMemoryExtraction }
func (DuplicateCleanupTask) IntervalHours(cfg *config.Config) uint32 {
	return cfg.Scheduler.DuplicateCleanup.IntervalHours
}

func (DuplicateCleanupTask) Execute(ctx context.Context, st store.Store, cfg *config.Config, pub EventPublisher) TaskResult {
	threshold := cfg.Scheduler.DuplicateCleanup.SimilarityThreshold
	batchSize := cfg.Scheduler.DuplicateCleanup.BatchSize

	projectIDs, err := st.ListProjectIDs(ctx)
	if err != nil {
		return TaskResult{TaskName: "duplicate_cleanup", Errors: 1, Detail: fmt.Sprintf("failed to list projects: %v", err)}
	}

	var scanned, removed, errs int

	for _, projectID := range projectIDs {
		pub.SchedulerTaskStart("duplicate_cleanup", projectID)

		s, r, err := cleanupProjectDuplicatesWithTimeout(ctx, st, projectID, threshold, batchSize)
		if err != nil {
			errs++
			pub.SchedulerTaskError("duplicate_cleanup", projectID, err.Error())
			continue
		}

		scanned += s
		removed += r
		pub.SchedulerTaskComplete("duplicate_cleanup", projectID, fmt.Sprintf("%d scanned, %d duplicates removed", s, r))
	}

	return TaskResult{
		TaskName:       "duplicate_cleanup",
		ItemsProcessed: scanned,
		ItemsAffected:  removed,
		Errors:         errs,
		Detail:         fmt.Sprintf("%d memories scanned, %d duplicates removed", scanned, removed),
	}
}

func cleanupProjectDuplicatesWithTimeout(ctx context.Context, st store.Store, projectID string, threshold float64, batchSize int) (scanned, removed int, err error) {
	ctx, cancel := context.WithTimeout(ctx, duplicateCleanupTimeout)
	defer cancel()

	type result struct {
		scanned, removed int
		err              error
	}
	done := make(chan result, 1)
	go func() {
		s, r, e := cleanupProjectDuplicates(ctx, st, projectID, threshold, batchSize)
		done <- result{s, r, e}
	}()

	select {
	case r := <-done:
		return r.scanned, r.removed, r.err
	case <-ctx.Done():
		return 0, 0, fmt.Errorf("duplicate cleanup timed out after %s", duplicateCleanupTimeout)
	}
}

// cleanupProjectDuplicates orders memories oldest-first so the
// longer-established memory in a duplicate pair is kept and the newer one
// is soft-removed, matching cleanup_project_duplicates.
func cleanupProjectDuplicates(ctx context.Context, st store.Store, projectID string, threshold float64, batchSize int) (scanned, removed int, err error) {
	memories, err := st.ListMemories(ctx, store.MemoryFilter{ProjectID: projectID, ExcludeState: store.MemoryStateRemoved, Limit: batchSize})
	if err != nil {
		return 0, 0, fmt.Errorf("list memories: %w", err)
	}

	// ListMemories orders DESC (newest first); walk in reverse to scan
	// oldest-first as the original does.
	for i, j := 0, len(memories)-1; i < j; i, j = i+1, j-1 {
		memories[i], memories[j] = memories[j], memories[i]
	}

	var seen []*store.Memory
	var duplicateIDs []int64

	for _, m := range memories {
		isDup := false
		for _, s := range seen {
			if similarity.IsSimilarMemory(m.Title, m.Content, s.Title, s.Content, threshold) {
				isDup = true
				break
			}
		}
		if isDup {
			duplicateIDs = append(duplicateIDs, m.ID)
		} else {
			seen = append(seen, m)
		}
	}

	for _, id := range duplicateIDs {
		if err := st.UpdateMemoryState(ctx, id, store.MemoryStateRemoved); err != nil {
			return len(memories), len(duplicateIDs), fmt.Errorf("remove duplicate %d: %w", id, err)
		}
	}

	return len(memories), len(duplicateIDs), nil
}
