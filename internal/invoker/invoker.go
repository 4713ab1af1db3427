package invoker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/yologdev/yocore-go/internal/yoerr"
)

// Invoker runs a detected CLI's one-shot prompt calls. Every call executes
// in the OS temp directory so the CLI doesn't write session files into a
// watched project folder.
type Invoker struct {
	detected Detected
	log      zerolog.Logger
}

// New wraps an already-detected CLI. Callers obtain Detected via Detect.
func New(detected Detected, log zerolog.Logger) (*Invoker, error) {
	if !detected.Installed {
		return nil, yoerr.ErrNotInstalled
	}
	return &Invoker{detected: detected, log: log}, nil
}

// Run executes the provider with plain-text output args and returns the
// trimmed stdout. Used for title generation, memory extraction and skill
// discovery. A nil
// receiver (no CLI detected at startup) reports yoerr.ErrNotInstalled
// instead of invoking anything, so a configured-but-missing provider only
// fails the individual AI pass rather than the whole process.
func (inv *Invoker) Run(ctx context.Context, prompt string) (string, error) {
	if inv == nil {
		return "", yoerr.ErrNotInstalled
	}
	args := inv.detected.Provider.BuildArgs(prompt)
	return inv.exec(ctx, args, inv.detected.Provider.TitleTimeout())
}

// CallWithPrompt executes the provider with JSON-output args, unwrapping the
// provider's response envelope when it has one. Used by marker detection,
// which needs a parseable response. A nil receiver reports yoerr.ErrNotInstalled.
func (inv *Invoker) CallWithPrompt(ctx context.Context, prompt string) (string, error) {
	if inv == nil {
		return "", yoerr.ErrNotInstalled
	}
	response, err := inv.exec(ctx, inv.detected.Provider.BuildJSONArgs(prompt), inv.detected.Provider.ExtractionTimeout())
	if err != nil {
		return "", err
	}
	if response == "" {
		return "", errors.New("cli returned empty response")
	}

	if inv.detected.Provider.HasJSONWrapper() {
		if unwrapped, ok := unwrapEnvelope(response); ok {
			return unwrapped, nil
		}
	}
	return response, nil
}

// unwrapEnvelope extracts the "result" field from Claude Code's
// {"type":"result","result":"..."} wrapper, if present and well-formed.
func unwrapEnvelope(response string) (string, bool) {
	var wrapper struct {
		Type   string `json:"type"`
		Result string `json:"result"`
	}
	if err := json.Unmarshal([]byte(response), &wrapper); err != nil {
		return "", false
	}
	if wrapper.Type != "result" {
		return "", false
	}
	return wrapper.Result, true
}

// exec runs the detected CLI with args, bounded by timeout, in the OS temp
// directory, and returns trimmed stdout on success.
func (inv *Invoker) exec(ctx context.Context, args []string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	inv.log.Debug().
		Str("provider", inv.detected.Provider.DisplayName()).
		Str("path", inv.detected.Path).
		Strs("args_preview", previewArgs(args)).
		Msg("invoking cli")

	cmd := exec.CommandContext(ctx, inv.detected.Path, args...)
	cmd.Dir = os.TempDir()
	cmd.Stdin = nil

	out, err := cmd.Output()
	if ctx.Err() == context.DeadlineExceeded {
		return "", yoerr.ErrTimeout
	}
	if err != nil {
		var exitErr *exec.ExitError
		stderr := ""
		if errors.As(err, &exitErr) {
			stderr = strings.TrimSpace(string(exitErr.Stderr))
		} else {
			stderr = err.Error()
		}
		return "", &yoerr.ExitError{Stderr: stderr}
	}

	return strings.TrimSpace(string(out)), nil
}

func previewArgs(args []string) []string {
	if len(args) <= 2 {
		return args
	}
	return args[:2]
}
