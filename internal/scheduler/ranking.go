package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/yologdev/yocore-go/internal/config"
	"github.com/yologdev/yocore-go/internal/store"
)

// rankingTimeout bounds a single project's ranking pass, matching the
// original's 60-second per-project timeout.
const rankingTimeout = 60 * time.Second

// scoreWeights mirror the original's ScoreWeights defaults.
const (
	weightAccess     = 0.35
	weightConfidence = 0.25
	weightRecency    = 0.25
	weightValidated  = 0.15
)

// rankingThresholds mirror the original's RankingConfig defaults; these are
// not exposed in config.toml because the original never made them
// configurable either (only interval_hours/batch_size are).
const (
	highThreshold     = 0.7
	minAccessForHigh  = 3
	demotionThreshold = 0.4
	removalThreshold  = 0.3
	staleDays         = 90
	demotionAgeDays   = 14
	removalAgeDays    = 30
)

// RankingTask evaluates memories per project and transitions their state
// (new/low/high/removed) based on a recency+confidence+access score.
// Ported from original_source/src/ai/ranking.rs and
// scheduler/tasks/ranking.rs.
type RankingTask struct{}

func (RankingTask) Name() string { return "ranking" }
func (RankingTask) ParentFeature() config.AiFeature { return config.FeatureMemoryExtraction }
func (RankingTask) IntervalHours(cfg *config.Config) uint32 { return cfg.Scheduler.Ranking.IntervalHours }

func (RankingTask) Execute(ctx context.Context, st store.Store, cfg *config.Config, pub EventPublisher) TaskResult {
	batchSize := cfg.Scheduler.Ranking.BatchSize

	projectIDs, err := st.ListProjectIDs(ctx)
	if err != nil {
		return TaskResult{TaskName: "ranking", Errors: 1, Detail: fmt.Sprintf("failed to list projects: %v", err)}
	}

	var evaluated, affected, errs int

	for _, projectID := range projectIDs {
		pub.RankingStart(projectID)

		result, err := rankProjectWithTimeout(ctx, st, projectID, batchSize)
		if err != nil {
			errs++
			pub.RankingError(projectID, err.Error())
			continue
		}

		evaluated += result.evaluated
		affected += result.promoted + result.demoted + result.removed
		pub.RankingComplete(projectID, result.promoted, result.demoted, result.removed)
	}

	return TaskResult{
		TaskName:       "ranking",
		ItemsProcessed: evaluated,
		ItemsAffected:  affected,
		Errors:         errs,
		Detail:         fmt.Sprintf("%d memories evaluated, %d state changes", evaluated, affected),
	}
}

type rankingOutcome struct {
	evaluated, promoted, demoted, removed int
}

func rankProjectWithTimeout(ctx context.Context, st store.Store, projectID string, batchSize int) (rankingOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, rankingTimeout)
	defer cancel()

	type result struct {
		outcome rankingOutcome
		err     error
	}
	done := make(chan result, 1)
	go func() {
		outcome, err := rankProjectMemories(ctx, st, projectID, batchSize)
		done <- result{outcome, err}
	}()

	select {
	case r := <-done:
		return r.outcome, r.err
	case <-ctx.Done():
		return rankingOutcome{}, fmt.Errorf("ranking timed out after %s", rankingTimeout)
	}
}

func rankProjectMemories(ctx context.Context, st store.Store, projectID string, batchSize int) (rankingOutcome, error) {
	memories, err := st.ListMemories(ctx, store.MemoryFilter{ProjectID: projectID, ExcludeState: store.MemoryStateRemoved, Limit: batchSize})
	if err != nil {
		return rankingOutcome{}, fmt.Errorf("list memories: %w", err)
	}

	now := time.Now().UTC()
	outcome := rankingOutcome{evaluated: len(memories)}

	for _, m := range memories {
		score := calculateMemoryScore(m, now)
		toState, ok := determineTransition(m, score, now)
		if !ok {
			continue
		}
		if err := st.UpdateMemoryState(ctx, m.ID, toState); err != nil {
			return outcome, fmt.Errorf("update memory %d: %w", m.ID, err)
		}
		switch toState {
		case store.MemoryStateHigh:
			outcome.promoted++
		case store.MemoryStateLow:
			outcome.demoted++
		case store.MemoryStateRemoved:
			outcome.removed++
		}
	}

	return outcome, nil
}

// calculateMemoryScore weights access frequency, extraction confidence,
// recency of last access, and manual validation, matching
// calculate_memory_score exactly.
func calculateMemoryScore(m *store.Memory, now time.Time) float64 {
	accessScore := minF(float64(m.AccessCount)/10.0, 1.0)

	lastRelevant := m.ExtractedAt
	if m.LastAccessedAt != nil {
		lastRelevant = *m.LastAccessedAt
	}
	daysSince := now.Sub(lastRelevant).Hours() / 24
	if daysSince < 0 {
		daysSince = 0
	}
	recencyScore := maxF(1.0-daysSince/90.0, 0.0)

	validatedScore := 0.0
	if m.IsValidated {
		validatedScore = 1.0
	}

	return weightAccess*accessScore + weightConfidence*m.Confidence + weightRecency*recencyScore + weightValidated*validatedScore
}

// determineTransition mirrors determine_transition's per-state rule table;
// removal is checked before demotion within the "new" state since it is the
// more severe outcome.
func determineTransition(m *store.Memory, score float64, now time.Time) (string, bool) {
	ageDays := int(now.Sub(m.ExtractedAt).Hours() / 24)
	staleFor := ageDays
	if m.LastAccessedAt != nil {
		staleFor = int(now.Sub(*m.LastAccessedAt).Hours() / 24)
	}

	switch m.State {
	case store.MemoryStateNew:
		if score >= highThreshold && m.AccessCount >= minAccessForHigh {
			return store.MemoryStateHigh, true
		}
		if score < removalThreshold && ageDays > removalAgeDays && m.AccessCount == 0 {
			return store.MemoryStateRemoved, true
		}
		if score < demotionThreshold && ageDays > demotionAgeDays {
			return store.MemoryStateLow, true
		}
	case store.MemoryStateLow:
		if score >= 0.6 && m.AccessCount >= 5 {
			return store.MemoryStateHigh, true
		}
	case store.MemoryStateHigh:
		if score < demotionThreshold && staleFor > staleDays && !m.IsValidated {
			return store.MemoryStateLow, true
		}
	}
	return "", false
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
