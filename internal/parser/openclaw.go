package parser

import (
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/yologdev/yocore-go/internal/store"
)

// OpenClawParser parses OpenClaw session transcripts. Grounded on
// original_source/src/parser/openclaw.rs, which (unlike claude_code.rs)
// calls straight into the shared common.rs helpers rather than keeping its
// own specialized copies. OpenClaw logs tool calls and their results as
// separate line types rather than content blocks nested in an assistant
// message, so a single forward pass (tracking calls by id as they're seen)
// is enough to link a result back to its call.
type OpenClawParser struct{}

func (OpenClawParser) Name() string { return "openclaw" }

func (OpenClawParser) Parse(lines []string) (store.ParseResult, error) {
	detector := NewContentDetector()
	toolCalls := make(map[string]gjson.Result)

	var events []Event
	var errs []string

	var offset int64
	seq := 0
	for _, line := range lines {
		length := int64(len(line))
		if isBlank(line) {
			offset += length + 1
			continue
		}
		v := gjson.Parse(line)
		timestamp := v.Get("timestamp").String()

		switch v.Get("type").String() {
		case "user":
			events = append(events, parseUserEvent(seq, timestamp, offset, length, v, detector))
			seq++

		case "assistant":
			events = append(events, parseAssistantEvent(seq, timestamp, offset, length, v, detector))
			seq++

		case "tool_call":
			if id := v.Get("id"); id.Exists() {
				toolCalls[id.String()] = v
			}
			events = append(events, parseToolCallEvent(seq, timestamp, offset, length, v))
			seq++

		case "tool_result":
			events = append(events, parseToolResultEvent(seq, timestamp, offset, length, v, toolCalls, detector))
			seq++

		case "system":
			events = append(events, parseSystemEvent(seq, timestamp, offset, length, v, detector))
			seq++

		default:
			errs = append(errs, fmt.Sprintf("sequence %d: unrecognized event type %q", seq, v.Get("type").String()))
		}

		offset += length + 1
	}

	result := Result{
		Events:   events,
		Metadata: extractMetadata(events),
		Stats:    calculateStats(events),
		Errors:   errs,
	}
	return result.ToStoreResult("openclaw"), nil
}

func parseUserEvent(seq int, timestamp string, offset, length int64, v gjson.Result, detector *ContentDetector) Event {
	content := extractTextContent(v)
	preview := sanitizePreview(content, 200)
	return newEvent(seq, store.RoleUser, timestamp, offset, length).
		content(preview, content).
		flags(detector.HasCode(content), detector.HasError(content), false).
		build()
}

// extractAssistantText joins only the text blocks of an assistant message,
// explicitly skipping tool_use blocks (those are surfaced as their own
// tool_call lines in OpenClaw transcripts).
func extractAssistantText(v gjson.Result) string {
	content := v.Get("message.content")
	if content.Type == gjson.String {
		return content.String()
	}
	if !content.IsArray() {
		return v.Get("content").String()
	}
	var text string
	for _, block := range content.Array() {
		if block.Get("type").String() == "text" {
			if t := block.Get("text"); t.Exists() {
				if text != "" {
					text += "\n\n"
				}
				text += t.String()
			}
		}
	}
	return text
}

func parseAssistantEvent(seq int, timestamp string, offset, length int64, v gjson.Result, detector *ContentDetector) Event {
	text := extractAssistantText(v)
	model := extractModel(v)
	in, out, cacheRead, cacheCreate := extractUsage(v)
	preview := sanitizePreview(text, 200)
	return newEvent(seq, store.RoleAssistant, timestamp, offset, length).
		content(preview, text).
		usage(in, out, cacheRead, cacheCreate).
		model(model).
		flags(detector.HasCode(text), detector.HasError(text), false).
		build()
}

func parseToolCallEvent(seq int, timestamp string, offset, length int64, v gjson.Result) Event {
	name := v.Get("name").String()
	if isBlank(name) {
		name = v.Get("tool").String()
	}
	summary := generateToolSummary(name, v.Get("input"))
	return newEvent(seq, store.RoleAssistant, timestamp, offset, length).
		eventType("tool_use").
		content(summary, summary).
		tool(name, store.ToolTypeUse, summary).
		flags(false, false, isFileChangeTool(name)).
		build()
}

func parseToolResultEvent(seq int, timestamp string, offset, length int64, v gjson.Result, toolCalls map[string]gjson.Result, detector *ContentDetector) Event {
	content := contentToString(v.Get("content"))
	if isBlank(content) {
		content = extractTextContent(v)
	}
	isError := v.Get("is_error").Bool()

	toolName := ""
	parentID := v.Get("parent_uuid").String()
	if isBlank(parentID) {
		parentID = v.Get("tool_use_id").String()
	}
	if call, ok := toolCalls[parentID]; ok {
		toolName = call.Get("name").String()
		if isBlank(toolName) {
			toolName = call.Get("tool").String()
		}
	}

	summary := ""
	if toolName != "" {
		summary = toolName + " result"
	}

	preview := sanitizePreview(content, 200)
	return newEvent(seq, store.RoleUser, timestamp, offset, length).
		eventType("tool_result").
		content(preview, content).
		tool(toolName, store.ToolTypeResult, summary).
		flags(detector.HasCode(content), isError || detector.HasError(content), isFileChangeTool(toolName)).
		build()
}

func parseSystemEvent(seq int, timestamp string, offset, length int64, v gjson.Result, detector *ContentDetector) Event {
	content := v.Get("content").String()
	if isBlank(content) {
		content = extractTextContent(v)
	}
	preview := sanitizePreview(content, 200)
	return newEvent(seq, store.RoleSystem, timestamp, offset, length).
		content(preview, content).
		flags(detector.HasCode(content), detector.HasError(content), false).
		build()
}
