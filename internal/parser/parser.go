package parser

import "github.com/yologdev/yocore-go/internal/store"

// Parser turns a session's raw JSONL lines into a store.ParseResult.
// Grounded on original_source/src/parser/mod.rs's SessionParser trait.
type Parser interface {
	Parse(lines []string) (store.ParseResult, error)
	Name() string
}

// Get resolves the parser registered for an ai_tool identifier, matching
// the original's get_parser registry.
func Get(tool string) (Parser, bool) {
	switch tool {
	case "claude_code", "claude-code":
		return ClaudeCodeParser{}, true
	case "openclaw":
		return OpenClawParser{}, true
	default:
		return nil, false
	}
}
