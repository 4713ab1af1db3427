package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/yologdev/yocore-go/internal/invoker"
	"github.com/yologdev/yocore-go/internal/store"
)

const (
	maxSkillInputChars    = 100_000
	minMessagesForSkills  = 25
	minSkillConfidence    = 0.90
	skillToolResultChars  = 100
	skillGenericLineChars = 200
)

const skillDiscoveryPrompt = `You are analyzing a coding session transcript to discover reusable skills: named, repeatable workflows that solved a real problem and could be followed again in a future session.

Only propose a skill when the transcript shows a concrete, repeatable procedure (not a one-off fix). Skip anything trivial, project-specific to the point of not generalizing, or already an obvious default workflow.

Naming rules:
- name: lowercase, hyphenated, gerund form (e.g. "debugging-flaky-tests", "migrating-database-schemas")
- description: third person, max 150 chars, states what the skill accomplishes and when to use it

For each skill, provide:
- name: gerund-form hyphenated identifier
- description: third-person summary (max 150 chars)
- steps: ordered list of concrete steps that make up the workflow
- confidence: how confident are you this is a genuine, reusable skill (0.0-1.0)

Respond with ONLY a JSON array of skills, no markdown. If no genuine skill is present, return an empty array.`

// rawSkill is the shape an AI provider returns for one discovered skill.
type rawSkill struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Steps       []string `json:"steps"`
	Confidence  float64  `json:"confidence"`
}

func buildSkillDiscoveryPrompt(sessionContent string) string {
	return fmt.Sprintf("%s\n\n<session_content>\n%s\n</session_content>\n\nRespond with a JSON array of skills:",
		skillDiscoveryPrompt, sessionContent)
}

// condensedSkillLines renders messages in the tighter format used for skill
// discovery: "[seq] U/A -> Tool" for tool uses, "[seq] U/A <- Tool preview"
// for tool results, "[seq] U/A: preview" otherwise.
func condensedSkillLines(messages []*store.Message) []string {
	var lines []string
	for _, m := range messages {
		var side string
		switch m.Role {
		case store.RoleUser:
			side = "U"
		case store.RoleAssistant:
			side = "A"
		default:
			continue
		}

		switch {
		case m.ToolType != nil && *m.ToolType == store.ToolTypeUse:
			lines = append(lines, fmt.Sprintf("[%d] %s -> %s", m.SequenceNum, side, toolNameOr(m, "tool")))
		case m.ToolType != nil && *m.ToolType == store.ToolTypeResult:
			preview := truncateRunes(m.ContentPreview, skillToolResultChars)
			lines = append(lines, fmt.Sprintf("[%d] %s <- %s %s", m.SequenceNum, side, toolNameOr(m, "tool"), preview))
		default:
			preview := truncateRunes(m.ContentPreview, skillGenericLineChars)
			lines = append(lines, fmt.Sprintf("[%d] %s: %s", m.SequenceNum, side, preview))
		}
	}
	return lines
}

// truncateRunes truncates s to at most maxLen bytes, appending "..." when
// anything was cut. The cut moves back to a rune boundary, so a multi-byte
// rune is never split.
func truncateRunes(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

func toolNameOr(m *store.Message, fallback string) string {
	if m.ToolName != nil {
		return *m.ToolName
	}
	return fallback
}

// parseSkills extracts the JSON array of skills from response by scanning
// for the outermost brackets, matching the original's bracket-scan approach
// (skill responses are not wrapped in markdown fences the way memory
// responses sometimes are).
func parseSkills(response string) ([]rawSkill, error) {
	start := strings.IndexByte(response, '[')
	end := strings.LastIndexByte(response, ']')
	if start < 0 || end < 0 || end < start {
		return nil, fmt.Errorf("no JSON array found in skill discovery response")
	}

	var skills []rawSkill
	if err := invoker.ParseJSONResponse(response[start:end+1], &skills); err != nil {
		return nil, err
	}
	return skills, nil
}

// ExtractSkills gathers sess's transcript, asks the AI provider to discover
// reusable workflows, and persists each one via st.StoreSkill, which owns
// duplicate detection and session linking.
func ExtractSkills(ctx context.Context, st store.Store, inv *invoker.Invoker, sessionID string, notify Notifier) SkillResult {
	notify.SkillStart(sessionID)

	sess, err := st.GetSession(ctx, sessionID)
	if err != nil {
		notify.SkillError(sessionID, err.Error())
		return SkillResult{SessionID: sessionID, Err: err}
	}

	messages, err := st.GetMessages(ctx, sessionID, 0)
	if err != nil {
		notify.SkillError(sessionID, err.Error())
		return SkillResult{SessionID: sessionID, Err: err}
	}

	lines := condensedSkillLines(messages)
	if len(lines) < minMessagesForSkills {
		err := fmt.Errorf("not enough messages for skill discovery (%d < %d)", len(lines), minMessagesForSkills)
		return SkillResult{SessionID: sessionID, Err: err}
	}
	content := strings.Join(lines, "\n")
	if len(content) > maxSkillInputChars {
		content = content[:maxSkillInputChars]
	}

	output, err := inv.Run(ctx, buildSkillDiscoveryPrompt(content))
	if err != nil {
		notify.SkillError(sessionID, err.Error())
		return SkillResult{SessionID: sessionID, Err: err}
	}

	raw, err := parseSkills(output)
	if err != nil {
		notify.SkillError(sessionID, err.Error())
		return SkillResult{SessionID: sessionID, Err: err}
	}

	var extracted, duplicates int
	for _, sk := range raw {
		if sk.Confidence < minSkillConfidence {
			continue
		}
		created, _, err := st.StoreSkill(ctx, &store.Skill{
			ProjectID:   sess.ProjectID,
			SessionID:   sessionID,
			Name:        sk.Name,
			Description: sk.Description,
			Steps:       sk.Steps,
			Confidence:  sk.Confidence,
		})
		if err != nil {
			continue
		}
		if created {
			extracted++
		} else {
			duplicates++
		}
	}

	if err := st.MarkSkillsExtracted(ctx, sessionID, sess.MessageCount); err != nil {
		notify.SkillError(sessionID, err.Error())
		return SkillResult{SessionID: sessionID, Extracted: extracted, Duplicates: duplicates, Err: err}
	}

	notify.SkillComplete(sessionID, extracted)
	return SkillResult{SessionID: sessionID, Extracted: extracted, Duplicates: duplicates}
}
