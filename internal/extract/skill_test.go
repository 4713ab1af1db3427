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

func TestParseSkillsPlainArray(t *testing.T) {
	resp := `[{"name":"debugging-flaky-tests","description":"finds and fixes non-deterministic test failures","steps":["reproduce","bisect","fix"],"confidence":0.85}]`
	skills, err := parseSkills(resp)
	if err != nil {
		t.Fatalf("parseSkills: %v", err)
	}
	if len(skills) != 1 || skills[0].Name != "debugging-flaky-tests" {
		t.Errorf("skills = %+v", skills)
	}
}

func TestParseSkillsEmptyArray(t *testing.T) {
	skills, err := parseSkills("[]")
	if err != nil {
		t.Fatalf("parseSkills: %v", err)
	}
	if len(skills) != 0 {
		t.Errorf("skills = %+v, want empty", skills)
	}
}

func TestParseSkillsSurroundingProse(t *testing.T) {
	resp := "Here is what I found:\n\n[{\"name\":\"x\",\"description\":\"y\",\"steps\":[],\"confidence\":0.8}]\n\nHope that helps."
	skills, err := parseSkills(resp)
	if err != nil {
		t.Fatalf("parseSkills: %v", err)
	}
	if len(skills) != 1 {
		t.Errorf("skills = %+v", skills)
	}
}

func TestParseSkillsNoBracketsErrors(t *testing.T) {
	if _, err := parseSkills("no json here"); err == nil {
		t.Error("expected an error when no JSON array is present")
	}
}

func TestCondensedSkillLinesFormats(t *testing.T) {
	useType := store.ToolTypeUse
	resultType := store.ToolTypeResult
	messages := []*store.Message{
		{Role: store.RoleUser, SequenceNum: 1, ContentPreview: "fix the flaky test"},
		{Role: store.RoleAssistant, SequenceNum: 2, ToolType: &useType, ToolName: strPtr("Bash")},
		{Role: store.RoleAssistant, SequenceNum: 3, ToolType: &resultType, ToolName: strPtr("Bash"), ContentPreview: "ok"},
	}
	lines := condensedSkillLines(messages)
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	if lines[0] != "[1] U: fix the flaky test" {
		t.Errorf("lines[0] = %q", lines[0])
	}
	if lines[1] != "[2] A -> Bash" {
		t.Errorf("lines[1] = %q", lines[1])
	}
	if lines[2] != "[3] A <- Bash ok" {
		t.Errorf("lines[2] = %q", lines[2])
	}
}

func strPtr(s string) *string { return &s }

func TestExtractSkillsEndToEnd(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-cli")
	cliResponse := `[{"name":"bisecting-regressions","description":"narrows a regression to the offending commit via binary search","steps":["pick midpoint","test","repeat"],"confidence":0.9}]`
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

	events := make([]store.Message, 0, 30)
	for i := 0; i < 30; i++ {
		events = append(events, store.Message{SequenceNum: i, Role: store.RoleUser, ContentPreview: "msg", SearchContent: "msg"})
	}
	if _, err := st.StoreFullParse(context.Background(), "/home/user/project/session.jsonl", "sess-1", "claude_code", store.ParseResult{Events: events}); err != nil {
		t.Fatalf("StoreFullParse: %v", err)
	}

	result := ExtractSkills(context.Background(), st, inv, "sess-1", NoopNotifier{})
	if result.Err != nil {
		t.Fatalf("ExtractSkills: %v", result.Err)
	}
	if result.Extracted != 1 {
		t.Errorf("Extracted = %d, want 1", result.Extracted)
	}

	skills, err := st.ListSkills(context.Background(), store.SkillFilter{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("ListSkills: %v", err)
	}
	if len(skills) != 1 || skills[0].Name != "bisecting-regressions" {
		t.Errorf("skills = %+v", skills)
	}
}

func TestExtractSkillsDeduplicatesByName(t *testing.T) {
	st := store.NewVolatileStore(10, 1000)
	defer st.Close()

	events := make([]store.Message, 0, 30)
	for i := 0; i < 30; i++ {
		events = append(events, store.Message{SequenceNum: i, Role: store.RoleUser, ContentPreview: "msg", SearchContent: "msg"})
	}
	if _, err := st.StoreFullParse(context.Background(), "/home/user/project/session.jsonl", "sess-a", "claude_code", store.ParseResult{Events: events}); err != nil {
		t.Fatalf("StoreFullParse(a): %v", err)
	}
	if _, err := st.StoreFullParse(context.Background(), "/home/user/project/session.jsonl", "sess-b", "claude_code", store.ParseResult{Events: events}); err != nil {
		t.Fatalf("StoreFullParse(b): %v", err)
	}

	created, linked, err := st.StoreSkill(context.Background(), &store.Skill{ProjectID: "proj-1", SessionID: "sess-a", Name: "shared-skill", Description: "d", Confidence: 0.9})
	if err != nil || !created {
		t.Fatalf("StoreSkill(a): created=%v err=%v", created, err)
	}
	created, linked, err = st.StoreSkill(context.Background(), &store.Skill{ProjectID: "proj-1", SessionID: "sess-b", Name: "shared-skill", Description: "d", Confidence: 0.9})
	if err != nil {
		t.Fatalf("StoreSkill(b): %v", err)
	}
	if created {
		t.Error("expected the second store to be a duplicate, not a new skill")
	}
	if linked != "sess-b" {
		t.Errorf("linked = %q, want sess-b", linked)
	}
}
