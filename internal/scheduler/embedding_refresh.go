package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/yologdev/yocore-go/internal/config"
	"github.com/yologdev/yocore-go/internal/embedding"
	"github.com/yologdev/yocore-go/internal/store"
)

// embeddingRefreshTimeout matches the original's 5-minute per-project
// timeout; embedding generation is CPU-intensive.
const embeddingRefreshTimeout = 5 * time.Minute

// EmbeddingRefreshTask backfills embeddings for memories that don't have
// one yet — extraction ran before embeddings were enabled, or embedding
// generation failed at extraction time. Ported from
// scheduler/tasks/embedding_refresh.rs.
type EmbeddingRefreshTask struct {
	Provider embedding.Provider
}

func (EmbeddingRefreshTask) Name() string { return "embedding_refresh" }
func (EmbeddingRefreshTask) ParentFeature() config.AiFeature { return config.FeatureMemoryExtraction }
func (EmbeddingRefreshTask) IntervalHours(cfg *config.Config) uint32 {
	return cfg.Scheduler.EmbeddingRefresh.IntervalHours
}

func (t EmbeddingRefreshTask) Execute(ctx context.Context, st store.Store, cfg *config.Config, pub EventPublisher) TaskResult {
	provider := t.Provider
	if provider == nil {
		provider = providerFromConfig(cfg.Embedding)
	}
	batchSize := cfg.Scheduler.EmbeddingRefresh.BatchSize

	projectIDs, err := st.ListProjectIDs(ctx)
	if err != nil {
		return TaskResult{TaskName: "embedding_refresh", Errors: 1, Detail: fmt.Sprintf("failed to list projects: %v", err)}
	}

	var found, embedded, errs int

	for _, projectID := range projectIDs {
		pub.SchedulerTaskStart("embedding_refresh", projectID)

		f, e, failed, err := refreshProjectEmbeddingsWithTimeout(ctx, st, provider, projectID, batchSize)
		if err != nil {
			errs++
			pub.SchedulerTaskError("embedding_refresh", projectID, err.Error())
			continue
		}

		found += f
		embedded += e
		errs += failed
		pub.SchedulerTaskComplete("embedding_refresh", projectID, fmt.Sprintf("%d missing, %d embedded, %d failed", f, e, failed))
	}

	return TaskResult{
		TaskName:       "embedding_refresh",
		ItemsProcessed: found,
		ItemsAffected:  embedded,
		Errors:         errs,
		Detail:         fmt.Sprintf("%d missing embeddings found, %d embedded", found, embedded),
	}
}

// providerFromConfig picks the embedding backend an operator selected in
// config.toml's [embedding] table; "lmstudio" reaches an OpenAI-compatible
// HTTP endpoint, anything else (including the empty default) falls back to
// the dependency-free local hasher.
func providerFromConfig(cfg config.EmbeddingConfig) embedding.Provider {
	if cfg.Provider == "lmstudio" {
		return embedding.NewLMStudioProvider(cfg.BaseURL, cfg.Model)
	}
	return embedding.NewLocalProvider()
}

func refreshProjectEmbeddingsWithTimeout(ctx context.Context, st store.Store, provider embedding.Provider, projectID string, batchSize int) (found, embedded, failed int, err error) {
	ctx, cancel := context.WithTimeout(ctx, embeddingRefreshTimeout)
	defer cancel()

	type result struct {
		found, embedded, failed int
		err                     error
	}
	done := make(chan result, 1)
	go func() {
		f, e, fa, er := refreshProjectEmbeddings(ctx, st, provider, projectID, batchSize)
		done <- result{f, e, fa, er}
	}()

	select {
	case r := <-done:
		return r.found, r.embedded, r.failed, r.err
	case <-ctx.Done():
		return 0, 0, 0, fmt.Errorf("embedding refresh timed out after %s", embeddingRefreshTimeout)
	}
}

func refreshProjectEmbeddings(ctx context.Context, st store.Store, provider embedding.Provider, projectID string, batchSize int) (found, embedded, failed int, err error) {
	memories, err := st.MemoriesMissingEmbedding(ctx, projectID, batchSize)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("list memories missing embedding: %w", err)
	}
	if len(memories) == 0 {
		return 0, 0, 0, nil
	}

	for _, m := range memories {
		text := m.Title + "\n" + m.Content
		vec, embedErr := provider.Embed(text)
		if embedErr != nil {
			failed++
			continue
		}
		if err := st.SetMemoryEmbedding(ctx, m.ID, embedding.ToBytes(vec)); err != nil {
			failed++
			continue
		}
		embedded++
	}

	return len(memories), embedded, failed, nil
}
