package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/yologdev/yocore-go/internal/config"
	"github.com/yologdev/yocore-go/internal/similarity"
	"github.com/yologdev/yocore-go/internal/store"
)

// skillCleanupTimeout matches the original's 120-second per-project
// timeout.
const skillCleanupTimeout = 120 * time.Second

// SkillCleanupTask hard-deletes near-duplicate skills within a project.
// Unlike memories, skills have no state column to soft-remove through, so
// duplicates are deleted outright. Ported from
// scheduler/tasks/skill_cleanup.rs.
type SkillCleanupTask struct{}

func (SkillCleanupTask) Name() string { return "skill_cleanup" }
func (SkillCleanupTask) ParentFeature() config.AiFeature { return config.FeatureSkillsDiscovery }
func (SkillCleanupTask) IntervalHours(cfg *config.Config) uint32 {
	return cfg.Scheduler.SkillCleanup.IntervalHours
}

func (SkillCleanupTask) Execute(ctx context.Context, st store.Store, cfg *config.Config, pub EventPublisher) TaskResult {
	threshold := cfg.Scheduler.SkillCleanup.SimilarityThreshold
	batchSize := cfg.Scheduler.SkillCleanup.BatchSize

	projectIDs, err := st.ListProjectIDs(ctx)
	if err != nil {
		return TaskResult{TaskName: "skill_cleanup", Errors: 1, Detail: fmt.Sprintf("failed to list projects: %v", err)}
	}

	var scanned, removed, errs int

	for _, projectID := range projectIDs {
		pub.SchedulerTaskStart("skill_cleanup", projectID)

		s, r, err := cleanupProjectSkillsWithTimeout(ctx, st, projectID, threshold, batchSize)
		if err != nil {
			errs++
			pub.SchedulerTaskError("skill_cleanup", projectID, err.Error())
			continue
		}

		scanned += s
		removed += r
		pub.SchedulerTaskComplete("skill_cleanup", projectID, fmt.Sprintf("%d scanned, %d duplicates removed", s, r))
	}

	return TaskResult{
		TaskName:       "skill_cleanup",
		ItemsProcessed: scanned,
		ItemsAffected:  removed,
		Errors:         errs,
		Detail:         fmt.Sprintf("%d skills scanned, %d duplicates removed", scanned, removed),
	}
}

func cleanupProjectSkillsWithTimeout(ctx context.Context, st store.Store, projectID string, threshold float64, batchSize int) (scanned, removed int, err error) {
	ctx, cancel := context.WithTimeout(ctx, skillCleanupTimeout)
	defer cancel()

	type result struct {
		scanned, removed int
		err              error
	}
	done := make(chan result, 1)
	go func() {
		s, r, e := cleanupProjectSkills(ctx, st, projectID, threshold, batchSize)
		done <- result{s, r, e}
	}()

	select {
	case r := <-done:
		return r.scanned, r.removed, r.err
	case <-ctx.Done():
		return 0, 0, fmt.Errorf("skill cleanup timed out after %s", skillCleanupTimeout)
	}
}

// cleanupProjectSkills relies on ListSkills' own oldest-first ordering, so
// the established skill in a duplicate pair is kept and the newer one is
// deleted, matching cleanup_project_skills.
func cleanupProjectSkills(ctx context.Context, st store.Store, projectID string, threshold float64, batchSize int) (scanned, removed int, err error) {
	skills, err := st.ListSkills(ctx, store.SkillFilter{ProjectID: projectID, Limit: batchSize})
	if err != nil {
		return 0, 0, fmt.Errorf("list skills: %w", err)
	}

	var seen []*store.Skill
	var duplicateIDs []int64

	for _, sk := range skills {
		isDup := false
		for _, s := range seen {
			if similarity.IsSimilarSkill(sk.Name, sk.Description, s.Name, s.Description, threshold) {
				isDup = true
				break
			}
		}
		if isDup {
			duplicateIDs = append(duplicateIDs, sk.ID)
		} else {
			seen = append(seen, sk)
		}
	}

	for _, id := range duplicateIDs {
		if err := st.DeleteSkill(ctx, id); err != nil {
			return len(skills), len(duplicateIDs), fmt.Errorf("delete duplicate skill %d: %w", id, err)
		}
	}

	return len(skills), len(duplicateIDs), nil
}
