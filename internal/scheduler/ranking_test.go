package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/yologdev/yocore-go/internal/config"
	"github.com/yologdev/yocore-go/internal/store"
)

// fakePublisher discards every event; the ranking/cleanup tests only assert
// on store state, not on the published event stream.
type fakePublisher struct{}

func (fakePublisher) RankingStart(string)                        {}
func (fakePublisher) RankingComplete(string, int, int, int)       {}
func (fakePublisher) RankingError(string, string)                 {}
func (fakePublisher) SchedulerTaskStart(string, string)           {}
func (fakePublisher) SchedulerTaskComplete(string, string, string) {}
func (fakePublisher) SchedulerTaskError(string, string, string)   {}

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

func insertProjectAndSession(t *testing.T, st *store.SQLiteStore, folder, sessionID string) {
	t.Helper()
	ctx := context.Background()
	if _, err := st.StoreFullParse(ctx, folder+"/"+sessionID+".jsonl", sessionID, "claude_code", store.ParseResult{
		Events: []store.Message{{SequenceNum: 0, Role: store.RoleUser, ContentPreview: "hi", SearchContent: "hi"}},
	}); err != nil {
		t.Fatalf("StoreFullParse: %v", err)
	}
}

// TestRankingPromoteAndRemove is the S4 scenario: a well-accessed,
// confident, recently-touched memory promotes new->high, while a stale,
// never-accessed, low-confidence memory is removed outright (removal takes
// precedence over demotion within the "new" state).
func TestRankingPromoteAndRemove(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	insertProjectAndSession(t, st, "/home/user/project", "sess-1")

	sess, err := st.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	projectID := sess.ProjectID

	now := time.Now().UTC()

	promoteAt := now.Add(-1 * 24 * time.Hour)
	created, err := st.StoreMemory(ctx, &store.Memory{
		ProjectID: projectID, SessionID: "sess-1", MemoryType: "fact",
		Title: "promote me", Content: "a memory that should be promoted",
		Confidence: 0.9, IsValidated: true, AccessCount: 5,
		ExtractedAt: now.Add(-10 * 24 * time.Hour), LastAccessedAt: &promoteAt,
		State: store.MemoryStateNew,
	})
	if err != nil || !created {
		t.Fatalf("StoreMemory (promote): created=%v err=%v", created, err)
	}

	created, err = st.StoreMemory(ctx, &store.Memory{
		ProjectID: projectID, SessionID: "sess-1", MemoryType: "fact",
		Title: "remove me", Content: "a completely unrelated stale memory",
		Confidence: 0.5, IsValidated: false, AccessCount: 0,
		ExtractedAt: now.Add(-100 * 24 * time.Hour),
		State:       store.MemoryStateNew,
	})
	if err != nil || !created {
		t.Fatalf("StoreMemory (remove): created=%v err=%v", created, err)
	}

	cfg := config.Default()
	cfg.Scheduler.Ranking.BatchSize = 500

	result := RankingTask{}.Execute(ctx, st, cfg, fakePublisher{})
	if result.Errors != 0 {
		t.Fatalf("unexpected errors: %s", result.Detail)
	}
	if result.ItemsProcessed != 2 {
		t.Fatalf("expected 2 memories evaluated, got %d", result.ItemsProcessed)
	}

	memories, err := st.ListMemories(ctx, store.MemoryFilter{ProjectID: projectID})
	if err != nil {
		t.Fatalf("ListMemories: %v", err)
	}
	states := make(map[string]string)
	for _, m := range memories {
		states[m.Title] = m.State
	}

	if states["promote me"] != store.MemoryStateHigh {
		t.Errorf("expected 'promote me' -> high, got %q", states["promote me"])
	}
	if states["remove me"] != store.MemoryStateRemoved {
		t.Errorf("expected 'remove me' -> removed, got %q", states["remove me"])
	}
}
