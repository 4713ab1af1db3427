package parser

import (
	"fmt"
	"regexp"

	"github.com/tidwall/gjson"
	"github.com/yologdev/yocore-go/internal/store"
)

// ClaudeCodeParser parses Claude Code session transcripts. Grounded on
// original_source/src/parser/claude_code.rs: a two-pass walk that first
// indexes every line by uuid (so tool_result lines can look up the
// tool_use block on their parent), then builds one Event per line.
type ClaudeCodeParser struct{}

func (ClaudeCodeParser) Name() string { return "claude_code" }

var taskNotificationTag = regexp.MustCompile(`(?s)<task-notification>(.*?)</task-notification>`)

func extractTaskNotification(content string) string {
	if m := taskNotificationTag.FindStringSubmatch(content); m != nil {
		return m[1]
	}
	return ""
}

func isFileChangeTool(name string) bool {
	switch name {
	case "Write", "Edit", "NotebookEdit":
		return true
	default:
		return false
	}
}

// inferToolNameFromResult guesses a tool from the shape of its result when
// no parent tool_use line can be found, matching the original's
// infer_tool_name_from_result fallback heuristics.
func inferToolNameFromResult(v gjson.Result) string {
	tr := v.Get("toolUseResult")
	if !tr.Exists() {
		tr = findToolResultBlock(v)
	}
	switch {
	case tr.Get("file.filePath").Exists():
		return "Read"
	case tr.Get("exitCode").Exists():
		return "Bash"
	case tr.Get("success").Exists(), tr.Get("error").Exists():
		return "Write"
	default:
		return ""
	}
}

type parsedLine struct {
	value  gjson.Result
	offset int64
	length int64
}

func (ClaudeCodeParser) Parse(lines []string) (store.ParseResult, error) {
	byUUID := make(map[string]gjson.Result)
	parsed := make([]parsedLine, 0, len(lines))

	var offset int64
	for _, line := range lines {
		length := int64(len(line))
		if isBlank(line) {
			offset += length + 1
			continue
		}
		v := gjson.Parse(line)
		if uuid := v.Get("uuid"); uuid.Exists() {
			byUUID[uuid.String()] = v
		}
		parsed = append(parsed, parsedLine{value: v, offset: offset, length: length})
		offset += length + 1
	}

	detector := NewContentDetector()
	var events []Event
	var errs []string
	seq := 0

	for _, pl := range parsed {
		v := pl.value
		timestamp := v.Get("timestamp").String()
		eventType := v.Get("type").String()

		switch eventType {
		case "summary", "file-history-snapshot":
			continue

		case "system":
			content := v.Get("content").String()
			if isBlank(content) {
				content = extractTextContent(v)
			}
			kind := "system"
			if v.Get("isMeta").Bool() {
				kind = "skill-prompt"
			}
			preview := sanitizePreview(content, 200)
			events = append(events, newEvent(seq, store.RoleSystem, timestamp, pl.offset, pl.length).
				eventType(kind).
				content(preview, content).
				flags(detector.HasCode(content), detector.HasError(content), false).
				build())
			seq++

		case "user":
			if findToolResultBlock(v).Exists() || v.Get("toolUseResult").Exists() {
				events = append(events, buildToolResultEvent(seq, timestamp, pl, v, byUUID, detector))
				seq++
				continue
			}
			content := extractTextContent(v)
			if isBlank(content) {
				content = v.Get("message.content").String()
			}
			if note := extractTaskNotification(content); note != "" {
				content = note
			}
			preview := sanitizePreview(content, 200)
			events = append(events, newEvent(seq, store.RoleUser, timestamp, pl.offset, pl.length).
				content(preview, content).
				flags(detector.HasCode(content), detector.HasError(content), false).
				build())
			seq++

		case "assistant":
			model := extractModel(v)
			in, out, cacheRead, cacheCreate := extractUsage(v)

			if tu := findToolUseBlock(v); tu.Exists() {
				name := tu.Get("name").String()
				summary := generateToolSummary(name, tu.Get("input"))
				events = append(events, newEvent(seq, store.RoleAssistant, timestamp, pl.offset, pl.length).
					eventType("tool_use").
					content(summary, summary).
					tool(name, store.ToolTypeUse, summary).
					usage(in, out, cacheRead, cacheCreate).
					model(model).
					flags(false, false, isFileChangeTool(name)).
					build())
				seq++
				continue
			}

			text := extractTextContent(v)
			if isBlank(text) {
				continue
			}
			preview := sanitizePreview(text, 200)
			events = append(events, newEvent(seq, store.RoleAssistant, timestamp, pl.offset, pl.length).
				content(preview, text).
				usage(in, out, cacheRead, cacheCreate).
				model(model).
				flags(detector.HasCode(text), detector.HasError(text), false).
				build())
			seq++

		default:
			errs = append(errs, fmt.Sprintf("sequence %d: unrecognized event type %q", seq, eventType))
		}
	}

	result := Result{
		Events:   events,
		Metadata: extractMetadata(events),
		Stats:    calculateStats(events),
		Errors:   errs,
	}
	return result.ToStoreResult("claude_code"), nil
}

// buildToolResultEvent links a tool_result line back to the tool_use block
// on its parent (via parentUuid), falling back to inferToolNameFromResult
// when the parent can't be found.
func buildToolResultEvent(seq int, timestamp string, pl parsedLine, v gjson.Result, byUUID map[string]gjson.Result, detector *ContentDetector) Event {
	isError := false
	content := ""
	if tr := findToolResultBlock(v); tr.Exists() {
		isError = tr.Get("is_error").Bool()
		content = contentToString(tr.Get("content"))
	}
	if isBlank(content) {
		if tr := v.Get("toolUseResult"); tr.Exists() {
			content = tr.Raw
		}
	}

	toolName := ""
	if parent, ok := byUUID[v.Get("parentUuid").String()]; ok {
		if tu := findToolUseBlock(parent); tu.Exists() {
			toolName = tu.Get("name").String()
		}
	}
	if toolName == "" {
		toolName = inferToolNameFromResult(v)
	}

	summary := ""
	if toolName != "" {
		summary = toolName + " result"
	}

	preview := sanitizePreview(content, 200)
	return newEvent(seq, store.RoleUser, timestamp, pl.offset, pl.length).
		eventType("tool_result").
		content(preview, content).
		tool(toolName, store.ToolTypeResult, summary).
		flags(detector.HasCode(content), isError || detector.HasError(content), isFileChangeTool(toolName)).
		build()
}
