package parser

import (
	"testing"

	"github.com/tidwall/gjson"
)

func TestContentDetectorHasCode(t *testing.T) {
	d := NewContentDetector()
	if !d.HasCode("```go\nfunc main() {}\n```") {
		t.Error("expected fenced code block to be detected")
	}
	if !d.HasCode("const x = 1") {
		t.Error("expected const declaration to be detected")
	}
	if d.HasCode("just a regular sentence about the weather") {
		t.Error("did not expect plain prose to be flagged as code")
	}
}

func TestContentDetectorHasError(t *testing.T) {
	d := NewContentDetector()
	if !d.HasError("TypeError: cannot read property of undefined") {
		t.Error("expected error-shaped text to be detected")
	}
	if d.HasError("everything built and tests passed") {
		t.Error("did not expect clean success text to be flagged as an error")
	}
}

func TestTruncateRunesShort(t *testing.T) {
	if got := truncateRunes("hello", 10); got != "hello" {
		t.Errorf("truncateRunes() = %q, want unchanged", got)
	}
}

func TestTruncateRunesMultiByte(t *testing.T) {
	s := "héllo wörld, this is a longer string with unicode"
	got := truncateRunes(s, 10)
	if len(got) == 0 {
		t.Fatal("expected non-empty result")
	}
	for i := 0; i < len(got); {
		r := got[i]
		switch {
		case r < 0x80:
			i++
		case r&0xE0 == 0xC0:
			i += 2
		case r&0xF0 == 0xE0:
			i += 3
		case r&0xF8 == 0xF0:
			i += 4
		default:
			t.Fatalf("invalid utf-8 lead byte at %d in %q", i, got)
		}
	}
}

func TestSanitizePreviewStripsAnsiAndLineNumbers(t *testing.T) {
	raw := "1→func main() {\n2→\x1b[31mpanic\x1b[0m()\n"
	got := sanitizePreview(raw, 200)
	if got == raw {
		t.Error("expected sanitize to change the raw content")
	}
	if containsByte(got, 0x1b) {
		t.Error("expected ANSI escape byte to be stripped")
	}
}

func containsByte(s string, b byte) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return true
		}
	}
	return false
}

func TestSanitizePreviewTruncates(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'a'
	}
	got := sanitizePreview(string(long), 200)
	if len(got) > 203 {
		t.Errorf("sanitizePreview() length = %d, want <= ~203", len(got))
	}
}

func TestGenerateToolSummaryBash(t *testing.T) {
	input := gjson.Parse(`{"command":"ls -la /tmp"}`)
	got := generateToolSummary("Bash", input)
	if got != "ls -la /tmp" {
		t.Errorf("generateToolSummary() = %q", got)
	}
}

func TestGenerateToolSummaryWrite(t *testing.T) {
	input := gjson.Parse(`{"file_path":"/root/module/main.go"}`)
	if got := generateToolSummary("Write", input); got != "Write main.go" {
		t.Errorf("generateToolSummary() = %q", got)
	}
}

func TestGenerateToolSummaryUnknownTool(t *testing.T) {
	input := gjson.Parse(`{}`)
	if got := generateToolSummary("CustomThing", input); got != "Used CustomThing" {
		t.Errorf("generateToolSummary() = %q", got)
	}
}

func TestContentToStringString(t *testing.T) {
	v := gjson.Parse(`"hello there"`)
	if got := contentToString(v); got != "hello there" {
		t.Errorf("contentToString() = %q", got)
	}
}

func TestContentToStringBlockArray(t *testing.T) {
	v := gjson.Parse(`[{"type":"text","text":"first"},{"type":"tool_use","name":"Bash"},{"type":"text","text":"second"}]`)
	got := contentToString(v)
	if got != "first\n\nsecond" {
		t.Errorf("contentToString() = %q, want text blocks joined and tool_use skipped", got)
	}
}

func TestExtractUsage(t *testing.T) {
	event := gjson.Parse(`{"message":{"usage":{"input_tokens":10,"output_tokens":20,"cache_read_input_tokens":5}}}`)
	in, out, cacheRead, cacheCreate := extractUsage(event)
	if in == nil || *in != 10 {
		t.Errorf("input tokens = %v, want 10", in)
	}
	if out == nil || *out != 20 {
		t.Errorf("output tokens = %v, want 20", out)
	}
	if cacheRead == nil || *cacheRead != 5 {
		t.Errorf("cache read tokens = %v, want 5", cacheRead)
	}
	if cacheCreate != nil {
		t.Errorf("cache creation tokens = %v, want nil", cacheCreate)
	}
}

func TestFindToolUseBlockMissing(t *testing.T) {
	event := gjson.Parse(`{"message":{"content":[{"type":"text","text":"hi"}]}}`)
	if block := findToolUseBlock(event); block.Exists() {
		t.Error("expected no tool_use block to be found")
	}
}

func TestFindToolUseBlockPresent(t *testing.T) {
	event := gjson.Parse(`{"message":{"content":[{"type":"tool_use","name":"Read","input":{"file_path":"x"}}]}}`)
	block := findToolUseBlock(event)
	if !block.Exists() {
		t.Fatal("expected tool_use block to be found")
	}
	if got := block.Get("name").String(); got != "Read" {
		t.Errorf("name = %q, want Read", got)
	}
}

func TestCalculateStatsCounts(t *testing.T) {
	events := []Event{
		{Role: "user"},
		{Role: "assistant"},
		{Role: "assistant", ToolType: "use"},
		{Role: "user", HasCode: true},
		{Role: "assistant", HasError: true},
	}
	stats := calculateStats(events)
	if stats.TotalEvents != 5 {
		t.Errorf("TotalEvents = %d, want 5", stats.TotalEvents)
	}
	if stats.HumanMessages != 2 {
		t.Errorf("HumanMessages = %d, want 2", stats.HumanMessages)
	}
	if stats.AssistantMessages != 2 {
		t.Errorf("AssistantMessages = %d, want 2", stats.AssistantMessages)
	}
	if stats.ToolUses != 1 {
		t.Errorf("ToolUses = %d, want 1", stats.ToolUses)
	}
	if !stats.HasCode || !stats.HasErrors {
		t.Error("expected HasCode and HasErrors to both be true")
	}
}

func TestExtractMetadataTitleFromFirstUserMessage(t *testing.T) {
	events := []Event{
		{Role: "system", Timestamp: "2026-01-01T00:00:00Z"},
		{Role: "user", SearchContent: "please fix the login bug", Timestamp: "2026-01-01T00:00:01Z"},
		{Role: "assistant", Timestamp: "2026-01-01T00:00:05Z"},
	}
	meta := extractMetadata(events)
	if meta.Title != "please fix the login bug" {
		t.Errorf("Title = %q", meta.Title)
	}
	if meta.StartTime == "" || meta.EndTime == "" {
		t.Error("expected start and end times to be set")
	}
}

func TestExtractMetadataExcludesIdleGaps(t *testing.T) {
	events := []Event{
		{Role: "user", Timestamp: "2026-01-01T00:00:00Z", SearchContent: "start"},
		{Role: "assistant", Timestamp: "2026-01-01T00:00:10Z"},
		// a 2 hour idle gap should not count toward active duration
		{Role: "user", Timestamp: "2026-01-01T02:00:10Z"},
		{Role: "assistant", Timestamp: "2026-01-01T02:00:20Z"},
	}
	meta := extractMetadata(events)
	if meta.DurationMs == nil {
		t.Fatal("expected a duration to be computed")
	}
	if *meta.DurationMs >= (30 * 60 * 1000) {
		t.Errorf("DurationMs = %d, expected idle gap excluded (< 30 min)", *meta.DurationMs)
	}
}
