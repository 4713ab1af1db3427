package autotrigger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/yologdev/yocore-go/internal/config"
	"github.com/yologdev/yocore-go/internal/extract"
	"github.com/yologdev/yocore-go/internal/invoker"
	"github.com/yologdev/yocore-go/internal/queue"
	"github.com/yologdev/yocore-go/internal/store"
)

func provider(s string) *string { return &s }

func activeConfig() *config.Config {
	cfg := config.Default()
	cfg.AI.Provider = provider("claude_code")
	return cfg
}

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

func TestShouldTriggerExtractionFirstCrossing(t *testing.T) {
	at := New(func() (*config.Config, error) { return activeConfig(), nil }, nil, nil, queue.New(1), extract.NoopNotifier{}, zerolog.Nop())
	if at.shouldTriggerExtraction("s1", 5) {
		t.Error("below threshold should not trigger")
	}
	if !at.shouldTriggerExtraction("s1", 10) {
		t.Error("crossing the threshold should trigger")
	}
}

func TestShouldTriggerExtractionPeriodicInterval(t *testing.T) {
	at := New(func() (*config.Config, error) { return activeConfig(), nil }, nil, nil, queue.New(1), extract.NoopNotifier{}, zerolog.Nop())
	at.recordExtraction("s1", 10)
	if at.shouldTriggerExtraction("s1", 40) {
		t.Error("40 messages since last extraction (30) is below the 50 interval")
	}
	if !at.shouldTriggerExtraction("s1", 60) {
		t.Error("60 messages since last extraction (50) should trigger")
	}
}

func TestOnSessionParsedSkipsWhenAIInactive(t *testing.T) {
	cfg := config.Default()
	cfg.AI.Provider = nil
	at := New(func() (*config.Config, error) { return cfg, nil }, nil, nil, queue.New(1), extract.NoopNotifier{}, zerolog.Nop())

	// Should return immediately without touching the nil store/invoker.
	at.OnSessionParsed(context.Background(), "s1", 100)
}

func TestOnSessionParsedGeneratesTitle(t *testing.T) {
	st := store.NewVolatileStore(10, 1000)
	defer st.Close()

	events := make([]store.Message, 0, 30)
	for i := 0; i < 30; i++ {
		events = append(events, store.Message{SequenceNum: i, Role: store.RoleUser, ContentPreview: "fix the bug", SearchContent: "fix the bug"})
	}
	if _, err := st.StoreFullParse(context.Background(), "/home/user/project/session.jsonl", "sess-1", "claude_code", store.ParseResult{Events: events}); err != nil {
		t.Fatalf("StoreFullParse: %v", err)
	}

	inv := fakeInvoker(t, "Fix the reported bug")
	at := New(func() (*config.Config, error) { return activeConfig(), nil }, st, inv, queue.New(2), extract.NoopNotifier{}, zerolog.Nop())

	at.OnSessionParsed(context.Background(), "sess-1", 30)

	// Title generation runs in a background goroutine behind the task
	// queue; acquiring every permit blocks until they've all been released.
	for i := 0; i < 2; i++ {
		p, err := at.tasks.Acquire(context.Background())
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}
		p.Release()
	}

	sess, err := st.GetSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.Title == nil {
		t.Error("expected a title to have been generated")
	}
}
