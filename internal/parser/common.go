package parser

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/yologdev/yocore-go/internal/store"
)

// ContentDetector flags code snippets and error-shaped text in a message.
type ContentDetector struct {
	codeRegex  *regexp.Regexp
	errorRegex *regexp.Regexp
}

func NewContentDetector() *ContentDetector {
	return &ContentDetector{
		codeRegex:  regexp.MustCompile("```|`[^`]+`|function |class |const |let |var |import |export "),
		errorRegex: regexp.MustCompile(`(?i)error|exception|failed|cannot|undefined|null is not`),
	}
}

func (d *ContentDetector) HasCode(content string) bool  { return d.codeRegex.MatchString(content) }
func (d *ContentDetector) HasError(content string) bool { return d.errorRegex.MatchString(content) }

var lineNumberPrefix = regexp.MustCompile(`^\s*\d+→`)

var ansiEscape = regexp.MustCompile("\x1b\\[[0-9;?]*[A-Za-z]")

// truncateRunes truncates s to at most maxLen bytes at a valid rune
// boundary, appending "..." when truncation occurred.
func truncateRunes(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	end := 0
	for i := range s {
		if i > maxLen {
			break
		}
		end = i
	}
	return s[:end] + "..."
}

// sanitizePreview strips ANSI escapes and editor line-number prefixes,
// collapses whitespace, and truncates for display.
func sanitizePreview(content string, maxLen int) string {
	content = ansiEscape.ReplaceAllString(content, "")
	content = strings.ReplaceAll(content, "\x1b", "")

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = lineNumberPrefix.ReplaceAllString(line, "")
	}
	joined := strings.Join(lines, " ")
	normalized := strings.Join(strings.Fields(joined), " ")

	return truncateRunes(normalized, maxLen)
}

// calculateStats aggregates parsing statistics over a parsed event list.
func calculateStats(events []Event) Stats {
	var s Stats
	for _, e := range events {
		s.TotalEvents++

		switch e.Role {
		case store.RoleUser:
			if e.ToolType != "" {
				s.ToolUses++
			} else {
				s.HumanMessages++
			}
		case store.RoleAssistant:
			if e.ToolType != "" {
				s.ToolUses++
			} else {
				s.AssistantMessages++
			}
		}

		if e.HasCode {
			s.HasCode = true
		}
		if e.HasError {
			s.HasErrors = true
		}
		if e.InputTokens != nil {
			s.TotalInputTokens += *e.InputTokens
		}
		if e.OutputTokens != nil {
			s.TotalOutputTokens += *e.OutputTokens
		}
		if e.CacheReadTokens != nil {
			s.TotalCacheReadTokens += *e.CacheReadTokens
		}
		if e.CacheCreationTokens != nil {
			s.TotalCacheCreationTokens += *e.CacheCreationTokens
		}
	}
	return s
}

// idleThreshold excludes gaps longer than 30 minutes from the active
// duration calculation, matching the original's "ignore idle periods".
const idleThreshold = 30 * time.Minute

// extractMetadata derives session-level title, timestamps, active
// duration, and model from a parsed event list.
func extractMetadata(events []Event) Metadata {
	var meta Metadata

	var timestampsMs []int64
	for _, e := range events {
		if e.Role == store.RoleSystem {
			continue
		}
		if ts, err := time.Parse(time.RFC3339, e.Timestamp); err == nil {
			timestampsMs = append(timestampsMs, ts.UnixMilli())
		}
	}
	sort.Slice(timestampsMs, func(i, j int) bool { return timestampsMs[i] < timestampsMs[j] })

	if len(timestampsMs) > 0 {
		for _, e := range events {
			if e.Role == store.RoleSystem {
				continue
			}
			if _, err := time.Parse(time.RFC3339, e.Timestamp); err == nil {
				meta.StartTime = e.Timestamp
				break
			}
		}
		for i := len(events) - 1; i >= 0; i-- {
			e := events[i]
			if e.Role == store.RoleSystem {
				continue
			}
			if _, err := time.Parse(time.RFC3339, e.Timestamp); err == nil {
				meta.EndTime = e.Timestamp
				break
			}
		}

		if len(timestampsMs) > 1 {
			var active int64
			for i := 1; i < len(timestampsMs); i++ {
				gap := timestampsMs[i] - timestampsMs[i-1]
				if gap <= idleThreshold.Milliseconds() {
					active += gap
				}
			}
			meta.DurationMs = &active
		}
	}

	for _, e := range events {
		if e.Model != "" {
			meta.Model = e.Model
			break
		}
	}

	for _, e := range events {
		if e.Role == store.RoleUser && e.ToolType == "" {
			meta.Title = truncateRunes(e.SearchContent, 80)
			break
		}
	}

	return meta
}

// generateToolSummary builds a short human-readable description of a tool
// invocation from its input arguments.
func generateToolSummary(toolName string, input gjson.Result) string {
	switch toolName {
	case "Bash", "bash":
		if cmd := input.Get("command"); cmd.Exists() {
			return truncateRunes(cmd.String(), 50)
		}
		return "Bash command"
	case "Write", "write":
		if path := input.Get("file_path"); path.Exists() {
			return "Write " + baseName(path.String())
		}
		return "Writing file"
	case "Edit", "edit":
		if path := input.Get("file_path"); path.Exists() {
			return "Edit " + baseName(path.String())
		}
		return "Editing file"
	case "Read", "read":
		if path := input.Get("file_path"); path.Exists() {
			return "Read " + baseName(path.String())
		}
		return "Reading file"
	case "Grep", "grep":
		if pattern := input.Get("pattern"); pattern.Exists() {
			return "Search: " + truncateRunes(pattern.String(), 30)
		}
		return "Grep search"
	case "Glob", "glob":
		if pattern := input.Get("pattern"); pattern.Exists() {
			return "Files: " + pattern.String()
		}
		return "File glob"
	case "Task", "task":
		if desc := input.Get("description"); desc.Exists() {
			return truncateRunes(desc.String(), 50)
		}
		return "Task agent"
	default:
		return "Used " + toolName
	}
}

func baseName(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// extractTextContent pulls plain text out of a "content" or
// "message.content" field, which may be a string or a content-block array.
func extractTextContent(value gjson.Result) string {
	if content := value.Get("content"); content.Exists() {
		return contentToString(content)
	}
	if content := value.Get("message.content"); content.Exists() {
		return contentToString(content)
	}
	return ""
}

// contentToString converts a content value (string, or array of
// text/thinking blocks) into plain text.
func contentToString(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.String()
	}
	if content.IsArray() {
		var parts []string
		for _, block := range content.Array() {
			switch block.Get("type").String() {
			case "text":
				if text := block.Get("text"); text.Exists() {
					parts = append(parts, text.String())
				}
			case "thinking":
				thinking := block.Get("thinking")
				if !thinking.Exists() {
					thinking = block.Get("text")
				}
				if thinking.Exists() && thinking.String() != "" {
					parts = append(parts, "Thinking...\n\n"+thinking.String())
				}
			}
		}
		return strings.Join(parts, "\n\n")
	}
	return content.Raw
}

// extractUsage pulls token-usage counters out of an event's
// message.usage object.
func extractUsage(event gjson.Result) (input, output, cacheRead, cacheCreate *int64) {
	usage := event.Get("message.usage")
	get := func(path string) *int64 {
		v := usage.Get(path)
		if !v.Exists() {
			return nil
		}
		n := v.Int()
		return &n
	}
	return get("input_tokens"), get("output_tokens"), get("cache_read_input_tokens"), get("cache_creation_input_tokens")
}

func extractModel(event gjson.Result) string {
	return event.Get("message.model").String()
}

// findToolUseBlock returns the first tool_use content block in an event's
// message.content array, or the zero Result if there is none.
func findToolUseBlock(event gjson.Result) gjson.Result {
	return findBlockOfType(event, "tool_use")
}

// findToolResultBlock returns the first tool_result content block.
func findToolResultBlock(event gjson.Result) gjson.Result {
	return findBlockOfType(event, "tool_result")
}

func findBlockOfType(event gjson.Result, blockType string) gjson.Result {
	content := event.Get("message.content")
	if !content.IsArray() {
		return gjson.Result{}
	}
	for _, block := range content.Array() {
		if block.Get("type").String() == blockType {
			return block
		}
	}
	return gjson.Result{}
}
