package search

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/yologdev/yocore-go/internal/embedding"
	"github.com/yologdev/yocore-go/internal/store"
)

func TestFuseTieBrokenByFirstListEncountered(t *testing.T) {
	// S6: M1 tops the FTS list, M2 tops the vector list; both rank second
	// in the other list. Their fused scores tie exactly, so the tie must
	// resolve to M1 because the FTS list was passed first.
	fts := []int64{1, 2}
	vector := []int64{2, 1}

	fused := Fuse(60, fts, vector)
	if len(fused) != 2 {
		t.Fatalf("expected 2 fused results, got %d", len(fused))
	}
	if fused[0] != 1 {
		t.Errorf("expected id 1 first on tie (first list encountered), got %d", fused[0])
	}

	if got := fused[:1]; got[0] != 1 {
		t.Errorf("limit=1 must be deterministic and match list order, got %v", got)
	}
}

func TestFuseScoresDecreasingRankLower(t *testing.T) {
	fused := Fuse(60, []int64{10, 20, 30})
	want := []int64{10, 20, 30}
	for i, id := range want {
		if fused[i] != id {
			t.Errorf("position %d: want %d, got %d", i, id, fused[i])
		}
	}
}

func TestFuseCombinesAcrossLists(t *testing.T) {
	// id 5 appears near the top of both lists and should outrank an id that
	// only appears once, even near the top of its single list.
	fused := Fuse(60, []int64{5, 99}, []int64{5, 42})
	if fused[0] != 5 {
		t.Fatalf("expected id 5 (present in both lists) to rank first, got %v", fused)
	}
}

func newTestSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.OpenSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

type fakeProvider struct {
	vectors map[string][]float32
}

func (p fakeProvider) Embed(text string) ([]float32, error)        { return p.vectors[text], nil }
func (p fakeProvider) EmbedBatch(texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.vectors[t]
	}
	return out, nil
}
func (p fakeProvider) Dims() int { return 2 }

func TestHybridSearchFusesKeywordAndVectorRankings(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	if _, err := st.StoreFullParse(ctx, "/home/user/project/sess-1.jsonl", "sess-1", "claude_code", store.ParseResult{
		Events: []store.Message{{SequenceNum: 0, Role: store.RoleUser, ContentPreview: "hi", SearchContent: "hi"}},
	}); err != nil {
		t.Fatalf("StoreFullParse: %v", err)
	}
	sess, err := st.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	projectID := sess.ProjectID

	m1 := &store.Memory{ProjectID: projectID, SessionID: "sess-1", MemoryType: "fact",
		Title: "rust panic", Content: "panics on byte index slicing", State: store.MemoryStateNew}
	if created, err := st.StoreMemory(ctx, m1); err != nil || !created {
		t.Fatalf("StoreMemory m1: created=%v err=%v", created, err)
	}
	m2 := &store.Memory{ProjectID: projectID, SessionID: "sess-1", MemoryType: "fact",
		Title: "go goroutine leak", Content: "panics under unbounded fan-out", State: store.MemoryStateNew}
	if created, err := st.StoreMemory(ctx, m2); err != nil || !created {
		t.Fatalf("StoreMemory m2: created=%v err=%v", created, err)
	}

	// Neither memory contains "query", so FTS5's implicit AND of the two
	// keyword terms matches nothing and the order comes from the vector
	// half: m1's embedding is the closer one to the query vector.
	provider := fakeProvider{vectors: map[string][]float32{
		"rust panic\npanics on byte index slicing": {1, 0},
		"go goroutine leak\npanics under unbounded fan-out": {0, 1},
		"panic query": {0.9, 0.1},
	}}
	if err := st.SetMemoryEmbedding(ctx, m1.ID, embedding.ToBytes(provider.vectors["rust panic\npanics on byte index slicing"])); err != nil {
		t.Fatalf("SetMemoryEmbedding m1: %v", err)
	}
	if err := st.SetMemoryEmbedding(ctx, m2.ID, embedding.ToBytes(provider.vectors["go goroutine leak\npanics under unbounded fan-out"])); err != nil {
		t.Fatalf("SetMemoryEmbedding m2: %v", err)
	}

	results, err := HybridSearch(ctx, st, provider, projectID, "panic query", 2)
	if err != nil {
		t.Fatalf("HybridSearch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d: %v", len(results), results)
	}
	if results[0].ID != m1.ID {
		t.Errorf("expected m1 to rank first by vector similarity, got %q", results[0].Title)
	}
}
