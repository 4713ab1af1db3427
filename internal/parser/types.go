// Package parser turns a session's JSONL lines into the normalized form
// internal/store persists: one Message per event plus session-level
// metadata and aggregate stats. Grounded on original_source/src/parser
// (common.rs, claude_code.rs, openclaw.rs); JSON tree access uses gjson
// (promoted here from an indirect dependency shared by three pack repos)
// in place of the original's serde_json::Value::get chains.
package parser

import (
	"strings"
	"time"

	"github.com/yologdev/yocore-go/internal/store"
)

// Event is the rich intermediate record built while walking a session's
// lines, mirroring original_source's ParsedEvent. toMessage narrows it to
// what store.Message actually persists.
type Event struct {
	Sequence            int
	Role                string
	EventType           string // "tool_use", "tool_result", "system", "skill-prompt", or "" for plain text
	ContentPreview      string
	SearchContent       string
	HasCode             bool
	HasError            bool
	HasFileChanges      bool
	ToolName            string
	ToolType            string
	ToolSummary         string
	InputTokens         *int64
	OutputTokens        *int64
	CacheReadTokens     *int64
	CacheCreationTokens *int64
	Model               string
	Timestamp           string
	ByteOffset          int64
	ByteLength          int64
}

func (e Event) toMessage() store.Message {
	m := store.Message{
		SequenceNum:    e.Sequence,
		Role:           e.Role,
		ContentPreview: e.ContentPreview,
		SearchContent:  e.SearchContent,
		HasCode:        e.HasCode,
		HasError:       e.HasError,
		HasFileChanges: e.HasFileChanges,
		ByteOffset:     e.ByteOffset,
		ByteLength:     e.ByteLength,
	}
	if e.ToolName != "" {
		m.ToolName = strPtr(e.ToolName)
	}
	if e.ToolType != "" {
		m.ToolType = strPtr(e.ToolType)
	}
	if e.ToolSummary != "" {
		m.ToolSummary = strPtr(e.ToolSummary)
	}
	if e.Model != "" {
		m.Model = strPtr(e.Model)
	}
	m.InputTokens = e.InputTokens
	m.OutputTokens = e.OutputTokens
	m.CacheReadTokens = e.CacheReadTokens
	m.CacheCreationTokens = e.CacheCreationTokens
	if ts, err := time.Parse(time.RFC3339, e.Timestamp); err == nil {
		m.Timestamp = ts
	} else {
		m.Timestamp = time.Now().UTC()
	}
	return m
}

func strPtr(s string) *string { return &s }

// Stats are parsing-time aggregates, richer than store.ParseStats (which
// only keeps the has_code/has_errors flags a session row stores).
type Stats struct {
	TotalEvents              int
	HumanMessages            int
	AssistantMessages        int
	ToolUses                 int
	HasCode                  bool
	HasErrors                bool
	TotalInputTokens         int64
	TotalOutputTokens        int64
	TotalCacheReadTokens     int64
	TotalCacheCreationTokens int64
}

// Metadata is session-level information derived from the full event list.
type Metadata struct {
	Title      string
	StartTime  string
	EndTime    string
	DurationMs *int64
	Model      string
}

// Result is one parser's output for a whole session file, not yet narrowed
// to the store's persistence shape.
type Result struct {
	Events   []Event
	Metadata Metadata
	Stats    Stats
	Errors   []string
}

// ToStoreResult narrows Result to store.ParseResult, the shape
// internal/store actually persists.
func (r Result) ToStoreResult(aiTool string) store.ParseResult {
	messages := make([]store.Message, len(r.Events))
	for i, e := range r.Events {
		messages[i] = e.toMessage()
	}

	meta := store.ParseMetadata{
		Title:  r.Metadata.Title,
		AITool: aiTool,
	}
	if r.Metadata.Model != "" {
		meta.Model = strPtr(r.Metadata.Model)
	}
	if ts, err := time.Parse(time.RFC3339, r.Metadata.StartTime); err == nil {
		meta.StartTime = &ts
	}
	if ts, err := time.Parse(time.RFC3339, r.Metadata.EndTime); err == nil {
		meta.EndTime = &ts
	}
	if r.Metadata.DurationMs != nil {
		meta.Duration = time.Duration(*r.Metadata.DurationMs) * time.Millisecond
	}

	return store.ParseResult{
		Events:   messages,
		Metadata: meta,
		Stats:    store.ParseStats{HasCode: r.Stats.HasCode, HasErrors: r.Stats.HasErrors},
		Errors:   append([]string(nil), r.Errors...),
	}
}

// eventBuilder mirrors ParsedEventBuilder: fluent construction without a
// 19-field struct literal at every call site.
type eventBuilder struct {
	e Event
}

func newEvent(sequence int, role, timestamp string, byteOffset, byteLength int64) *eventBuilder {
	return &eventBuilder{e: Event{
		Sequence:   sequence,
		Role:       role,
		Timestamp:  timestamp,
		ByteOffset: byteOffset,
		ByteLength: byteLength,
	}}
}

func (b *eventBuilder) eventType(t string) *eventBuilder {
	b.e.EventType = t
	return b
}

func (b *eventBuilder) content(preview, search string) *eventBuilder {
	b.e.ContentPreview = preview
	b.e.SearchContent = search
	return b
}

func (b *eventBuilder) tool(name, toolType, summary string) *eventBuilder {
	b.e.ToolName = name
	b.e.ToolType = toolType
	b.e.ToolSummary = summary
	return b
}

func (b *eventBuilder) usage(input, output, cacheRead, cacheCreate *int64) *eventBuilder {
	b.e.InputTokens = input
	b.e.OutputTokens = output
	b.e.CacheReadTokens = cacheRead
	b.e.CacheCreationTokens = cacheCreate
	return b
}

func (b *eventBuilder) model(m string) *eventBuilder {
	b.e.Model = m
	return b
}

func (b *eventBuilder) flags(code, errorFlag, fileChanges bool) *eventBuilder {
	b.e.HasCode = code
	b.e.HasError = errorFlag
	b.e.HasFileChanges = fileChanges
	return b
}

func (b *eventBuilder) build() Event { return b.e }

// isBlank reports whether a string is empty once surrounding whitespace is
// trimmed, used by several "fall back to serialized JSON" branches.
func isBlank(s string) bool { return strings.TrimSpace(s) == "" }
