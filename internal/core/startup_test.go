package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/yologdev/yocore-go/internal/autotrigger"
	"github.com/yologdev/yocore-go/internal/config"
	"github.com/yologdev/yocore-go/internal/extract"
	"github.com/yologdev/yocore-go/internal/invoker"
	"github.com/yologdev/yocore-go/internal/queue"
	"github.com/yologdev/yocore-go/internal/store"
)

func ptr(s string) *string { return &s }

func fakeInvoker(t *testing.T, response string) *invoker.Invoker {
	t.Helper()
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-cli")
	contents := "#!/bin/sh\ncat <<'EOF'\n" + response + "\nEOF\n"
	if err := os.WriteFile(script, []byte(contents), 0o755); err != nil {
		t.Fatalf("write fake cli: %v", err)
	}
	inv, err := invoker.New(invoker.Detected{Provider: invoker.ClaudeCode, Installed: true, Path: script}, zerolog.Nop())
	if err != nil {
		t.Fatalf("invoker.New: %v", err)
	}
	return inv
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

func TestRecoverPendingExtractionsSkipsWhenAIInactive(t *testing.T) {
	st := newTestSQLiteStore(t)
	cfg := config.Default() // no AI provider configured

	trigger := autotrigger.New(func() (*config.Config, error) { return cfg, nil }, st, nil, queue.New(1), extract.NoopNotifier{}, zerolog.Nop())

	if err := RecoverPendingExtractions(context.Background(), st, cfg, trigger, zerolog.Nop()); err != nil {
		t.Fatalf("RecoverPendingExtractions: %v", err)
	}
}

func TestRecoverPendingExtractionsRetriggersTitleGeneration(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var events []store.Message
	for i := 0; i < 25; i++ {
		events = append(events, store.Message{SequenceNum: i, Role: store.RoleUser, ContentPreview: "fix the bug", SearchContent: "fix the bug"})
	}
	if _, err := st.StoreFullParse(ctx, "/home/user/project/sess-1.jsonl", "sess-1", "claude_code", store.ParseResult{Events: events}); err != nil {
		t.Fatalf("StoreFullParse: %v", err)
	}

	inv := fakeInvoker(t, "Bug Fix Session")
	cfg := config.Default()
	cfg.AI.Provider = ptr("claude_code")
	cfg.AI.TitleGeneration = true

	tasks := queue.New(2)
	trigger := autotrigger.New(func() (*config.Config, error) { return cfg, nil }, st, inv, tasks, extract.NoopNotifier{}, zerolog.Nop())

	if err := RecoverPendingExtractions(ctx, st, cfg, trigger, zerolog.Nop()); err != nil {
		t.Fatalf("RecoverPendingExtractions: %v", err)
	}

	// Title generation is dispatched on the task queue in a background
	// goroutine; draining every permit blocks until it has released.
	for i := 0; i < 2; i++ {
		permit, err := tasks.Acquire(ctx)
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}
		defer permit.Release()
	}

	sess, err := st.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.Title == nil {
		t.Fatalf("expected recovery to have generated a title")
	}
}
