package store

import (
	"context"
	"path/filepath"
	"testing"
)

// TestSkillDuplicateByName implements S5: two sessions extracting a skill
// with the same name must produce one skills row and a skill_sessions link
// for the second session, not a second row.
func TestSkillDuplicateByName(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	filePath := "/home/user/project/session-a.jsonl"
	if _, err := s.StoreFullParse(ctx, filePath, "session-a", "claude_code", ParseResult{Events: buildEvents(1, 0)}); err != nil {
		t.Fatalf("StoreFullParse(a): %v", err)
	}
	sessA, err := s.GetSession(ctx, "session-a")
	if err != nil {
		t.Fatalf("GetSession(a): %v", err)
	}

	filePathB := filepath.Join(filepath.Dir(filePath), "session-b.jsonl")
	if _, err := s.StoreFullParse(ctx, filePathB, "session-b", "claude_code", ParseResult{Events: buildEvents(1, 0)}); err != nil {
		t.Fatalf("StoreFullParse(b): %v", err)
	}

	skillA := &Skill{
		ProjectID:   sessA.ProjectID,
		SessionID:   "session-a",
		Name:        "reviewing-pull-requests",
		Description: "Reviews open pull requests for style and correctness issues",
		Steps:       []string{"checkout branch", "read diff", "leave comments"},
		Confidence:  0.92,
	}
	created, _, err := s.StoreSkill(ctx, skillA)
	if err != nil {
		t.Fatalf("StoreSkill(a): %v", err)
	}
	if !created {
		t.Fatal("expected first skill to be created")
	}

	skillB := &Skill{
		ProjectID:   sessA.ProjectID,
		SessionID:   "session-b",
		Name:        "reviewing-pull-requests",
		Description: "A differently-worded description of the same skill",
		Steps:       []string{"different", "steps"},
		Confidence:  0.95,
	}
	created, linked, err := s.StoreSkill(ctx, skillB)
	if err != nil {
		t.Fatalf("StoreSkill(b): %v", err)
	}
	if created {
		t.Error("expected duplicate-named skill not to create a second row")
	}
	if linked != "session-b" {
		t.Errorf("linked session = %q, want session-b", linked)
	}

	skills, err := s.ListSkills(ctx, SkillFilter{ProjectID: sessA.ProjectID})
	if err != nil {
		t.Fatalf("ListSkills: %v", err)
	}
	if len(skills) != 1 {
		t.Fatalf("len(skills) = %d, want 1", len(skills))
	}

	linkedToB, err := s.ListSkills(ctx, SkillFilter{ProjectID: sessA.ProjectID, SessionID: "session-b"})
	if err != nil {
		t.Fatalf("ListSkills(session-b): %v", err)
	}
	if len(linkedToB) != 1 {
		t.Fatalf("session-b should be linked to the existing skill, got %d matches", len(linkedToB))
	}
}
