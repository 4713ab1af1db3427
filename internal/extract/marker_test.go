package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/yologdev/yocore-go/internal/invoker"
	"github.com/yologdev/yocore-go/internal/store"
)

func TestParseMarkersValid(t *testing.T) {
	resp := `[{"event_index":12,"marker_type":"breakthrough","label":"fixed the race"}]`
	markers, err := parseMarkers(resp)
	if err != nil {
		t.Fatalf("parseMarkers: %v", err)
	}
	if len(markers) != 1 || markers[0].MarkerType != "breakthrough" {
		t.Errorf("markers = %+v", markers)
	}
}

func TestIndexedLinesSkipsSystemEvents(t *testing.T) {
	messages := []*store.Message{
		{Role: store.RoleUser, SequenceNum: 1, ContentPreview: "let's fix the race"},
		{Role: store.RoleSystem, SequenceNum: 2, ContentPreview: "session started"},
		{Role: store.RoleAssistant, SequenceNum: 3, ContentPreview: "found it"},
	}
	lines := indexedLines(messages)
	if len(lines) != 2 {
		t.Fatalf("len(lines) = %d, want 2 (system event skipped)", len(lines))
	}
}

func TestDetectMarkersEndToEnd(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-cli")
	cliResponse := `[{"event_index":5,"marker_type":"ship","label":"shipped the retry fix"},{"event_index":9,"marker_type":"unknown-type","label":"ignored"}]`
	contents := "#!/bin/sh\ncat <<'EOF'\n" + cliResponse + "\nEOF\n"
	if err := os.WriteFile(script, []byte(contents), 0o755); err != nil {
		t.Fatalf("write fake cli: %v", err)
	}
	detected := invoker.Detected{Provider: invoker.ClaudeCode, Installed: true, Path: script}
	inv, err := invoker.New(detected, zerolog.Nop())
	if err != nil {
		t.Fatalf("invoker.New: %v", err)
	}

	st := store.NewVolatileStore(10, 1000)
	defer st.Close()

	events := make([]store.Message, 0, 15)
	for i := 0; i < 15; i++ {
		events = append(events, store.Message{SequenceNum: i, Role: store.RoleUser, ContentPreview: "msg", SearchContent: "msg"})
	}
	if _, err := st.StoreFullParse(context.Background(), "/home/user/project/session.jsonl", "sess-1", "claude_code", store.ParseResult{Events: events}); err != nil {
		t.Fatalf("StoreFullParse: %v", err)
	}

	result := DetectMarkers(context.Background(), st, inv, "sess-1", NoopNotifier{})
	if result.Err != nil {
		t.Fatalf("DetectMarkers: %v", result.Err)
	}
	if result.Created != 1 {
		t.Errorf("Created = %d, want 1 (unknown-type marker should be rejected)", result.Created)
	}

	markers, err := st.ListMarkers(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("ListMarkers: %v", err)
	}
	if len(markers) != 1 || markers[0].MarkerType != "ship" {
		t.Errorf("markers = %+v", markers)
	}
}

func TestDetectMarkersSkipsShortSessions(t *testing.T) {
	st := store.NewVolatileStore(10, 1000)
	defer st.Close()

	events := []store.Message{
		{SequenceNum: 0, Role: store.RoleUser, ContentPreview: "hi", SearchContent: "hi"},
	}
	if _, err := st.StoreFullParse(context.Background(), "/home/user/project/session.jsonl", "sess-short", "claude_code", store.ParseResult{Events: events}); err != nil {
		t.Fatalf("StoreFullParse: %v", err)
	}

	result := DetectMarkers(context.Background(), st, nil, "sess-short", NoopNotifier{})
	if result.Err != nil {
		t.Fatalf("DetectMarkers: %v", result.Err)
	}
	if result.Created != 0 {
		t.Errorf("Created = %d, want 0", result.Created)
	}
}
