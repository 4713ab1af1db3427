// Package invoker detects installed AI CLI tools and runs them as one-shot
// subprocesses for title generation, memory extraction, and skill discovery.
// Provider-specific quirks (argument shape, timeouts, JSON wrapper) live in
// the Provider type's methods; adding a new CLI requires only a new
// constant and the matching switch arms here.
package invoker

import "time"

// Provider identifies a supported AI CLI.
type Provider int

const (
	ClaudeCode Provider = iota
	OpenClaw
)

// ProviderFromConfig parses the config string form ("claude_code",
// "openclaw") into a Provider, mirroring CliProvider::from_config_str.
func ProviderFromConfig(s string) (Provider, bool) {
	switch s {
	case "claude_code":
		return ClaudeCode, true
	case "openclaw":
		return OpenClaw, true
	default:
		return 0, false
	}
}

// DisplayName is the human-readable provider name.
func (p Provider) DisplayName() string {
	switch p {
	case ClaudeCode:
		return "Claude Code"
	case OpenClaw:
		return "OpenClaw"
	default:
		return "unknown"
	}
}

// CommandName is the executable name looked up on common paths and PATH.
func (p Provider) CommandName() string {
	switch p {
	case ClaudeCode:
		return "claude"
	case OpenClaw:
		return "openclaw"
	default:
		return ""
	}
}

// TitleTimeout bounds a title-generation call.
func (p Provider) TitleTimeout() time.Duration {
	switch p {
	case OpenClaw:
		return 90 * time.Second
	default:
		return 60 * time.Second
	}
}

// ExtractionTimeout bounds a memory/skill extraction call.
func (p Provider) ExtractionTimeout() time.Duration {
	switch p {
	case OpenClaw:
		return 180 * time.Second
	default:
		return 120 * time.Second
	}
}

// BuildArgs builds CLI arguments for plain-text output.
func (p Provider) BuildArgs(prompt string) []string {
	switch p {
	case ClaudeCode:
		return []string{
			"-p", prompt,
			"--output-format", "text",
			"--model", "sonnet",
			// Avoid interactive permission prompts and slash-command handling.
			"--strict-mcp-config",
			"--disable-slash-commands",
			// Print mode: no session files written.
			"--print",
		}
	case OpenClaw:
		return []string{"agent", "--message", prompt, "--thinking", "high"}
	default:
		return nil
	}
}

// BuildJSONArgs builds CLI arguments for structured (JSON) output, used by
// marker detection, which needs a parseable response.
// Providers without a dedicated JSON mode fall back to BuildArgs.
func (p Provider) BuildJSONArgs(prompt string) []string {
	switch p {
	case ClaudeCode:
		return []string{
			"-p", prompt,
			"--output-format", "json",
			"--model", "sonnet",
			"--strict-mcp-config",
			"--mcp-config", `{"mcpServers":{}}`,
			"--disable-slash-commands",
			"--print",
		}
	case OpenClaw:
		// No JSON output mode; the prompt itself asks for JSON.
		return p.BuildArgs(prompt)
	default:
		return nil
	}
}

// HasJSONWrapper reports whether CLI output comes wrapped in an envelope
// that needs unwrapping, e.g. Claude Code's {"type":"result","result":"..."}.
func (p Provider) HasJSONWrapper() bool {
	return p == ClaudeCode
}

// CommonPaths lists install locations checked before falling back to PATH.
func (p Provider) CommonPaths() []string {
	home, _ := homeDir()
	var paths []string
	switch p {
	case ClaudeCode:
		if home != "" {
			paths = append(paths,
				join(home, ".npm-global/bin/claude"),
				join(home, ".claude/bin/claude"),
				join(home, ".local/bin/claude"),
			)
		}
		paths = append(paths, "/usr/local/bin/claude", "/opt/homebrew/bin/claude")
	case OpenClaw:
		if home != "" {
			paths = append(paths,
				join(home, ".npm-global/bin/openclaw"),
				join(home, ".local/bin/openclaw"),
			)
		}
		paths = append(paths, "/usr/local/bin/openclaw", "/opt/homebrew/bin/openclaw")
	}
	return paths
}
