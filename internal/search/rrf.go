// Package search combines the FTS5 keyword ranking and the vector
// cosine-similarity ranking of internal/store and internal/embedding into a
// single ordering via Reciprocal Rank Fusion, per spec.md §1 item 6 and the
// GLOSSARY's RRF definition.
package search

import (
	"context"
	"fmt"
	"sort"

	"github.com/yologdev/yocore-go/internal/embedding"
	"github.com/yologdev/yocore-go/internal/store"
)

// DefaultK is the RRF smoothing constant named by spec.md §8's S6 scenario.
const DefaultK = 60

// Fuse merges ranked id lists into one ordering by summing 1/(k+rank+1)
// across every list an id appears in. Ids are ordered by descending fused
// score; ties are broken by the order in which an id was first encountered
// walking the lists left to right, so a tie between the top of list one and
// the top of list two favors list one.
func Fuse(k int, lists ...[]int64) []int64 {
	scores := make(map[int64]float64)
	var order []int64

	for _, list := range lists {
		for rank, id := range list {
			if _, seen := scores[id]; !seen {
				order = append(order, id)
			}
			scores[id] += 1.0 / float64(k+rank+1)
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})
	return order
}

// HybridSearch runs an FTS5 keyword query and a cosine-similarity vector
// query over a project's memories and fuses the two rankings. Soft-removed
// memories are excluded from both halves.
func HybridSearch(ctx context.Context, st *store.SQLiteStore, provider embedding.Provider, projectID, query string, limit int) ([]*store.Memory, error) {
	ftsLimit := limit * 4
	if ftsLimit < limit {
		ftsLimit = limit // overflow guard for pathological limits
	}

	ftsIDs, err := st.SearchMemoriesFTS(ctx, projectID, query, ftsLimit)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}

	vectorIDs, err := vectorRank(ctx, st, provider, projectID, query)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	fused := Fuse(DefaultK, ftsIDs, vectorIDs)
	if limit > 0 && len(fused) > limit {
		fused = fused[:limit]
	}
	if len(fused) == 0 {
		return nil, nil
	}

	memories, err := st.ListMemories(ctx, store.MemoryFilter{ProjectID: projectID, ExcludeState: store.MemoryStateRemoved})
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	byID := make(map[int64]*store.Memory, len(memories))
	for _, m := range memories {
		byID[m.ID] = m
	}

	out := make([]*store.Memory, 0, len(fused))
	for _, id := range fused {
		if m, ok := byID[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func vectorRank(ctx context.Context, st *store.SQLiteStore, provider embedding.Provider, projectID, query string) ([]int64, error) {
	embeddings, err := st.MemoryEmbeddings(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, nil
	}

	qvec, err := provider.Embed(query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	type candidate struct {
		id  int64
		sim float32
	}
	candidates := make([]candidate, 0, len(embeddings))
	for id, blob := range embeddings {
		vec := embedding.FromBytes(blob)
		candidates = append(candidates, candidate{id, embedding.CosineSimilarity(qvec, vec)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].sim != candidates[j].sim {
			return candidates[i].sim > candidates[j].sim
		}
		return candidates[i].id < candidates[j].id
	})

	ids := make([]int64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.id
	}
	return ids, nil
}
