package invoker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/yologdev/yocore-go/internal/yoerr"
)

func TestProviderFromConfig(t *testing.T) {
	if p, ok := ProviderFromConfig("claude_code"); !ok || p != ClaudeCode {
		t.Errorf("claude_code: got (%v, %v)", p, ok)
	}
	if p, ok := ProviderFromConfig("openclaw"); !ok || p != OpenClaw {
		t.Errorf("openclaw: got (%v, %v)", p, ok)
	}
	if _, ok := ProviderFromConfig("unknown"); ok {
		t.Error("unknown provider string should not parse")
	}
}

func TestOpenClawBuildArgs(t *testing.T) {
	args := OpenClaw.BuildArgs("test prompt")
	want := []string{"agent", "--message", "test prompt", "--thinking", "high"}
	if len(args) != len(want) {
		t.Fatalf("len(args) = %d, want %d", len(args), len(want))
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("args[%d] = %q, want %q", i, args[i], want[i])
		}
	}
}

func TestOpenClawJSONArgsSameAsText(t *testing.T) {
	text := OpenClaw.BuildArgs("test")
	json := OpenClaw.BuildJSONArgs("test")
	if len(text) != len(json) {
		t.Fatalf("lengths differ: %d vs %d", len(text), len(json))
	}
	for i := range text {
		if text[i] != json[i] {
			t.Errorf("index %d differs: %q vs %q", i, text[i], json[i])
		}
	}
}

func TestClaudeJSONArgsDifferFromText(t *testing.T) {
	text := ClaudeCode.BuildArgs("test")
	jsonArgs := ClaudeCode.BuildJSONArgs("test")
	found := false
	for _, a := range jsonArgs {
		if a == "json" {
			found = true
		}
	}
	if !found {
		t.Error("expected \"json\" among BuildJSONArgs output")
	}
	if len(text) == len(jsonArgs) {
		same := true
		for i := range text {
			if text[i] != jsonArgs[i] {
				same = false
			}
		}
		if same {
			t.Error("expected text and json args to differ for claude_code")
		}
	}
}

func TestHasJSONWrapper(t *testing.T) {
	if !ClaudeCode.HasJSONWrapper() {
		t.Error("claude_code should have a json wrapper")
	}
	if OpenClaw.HasJSONWrapper() {
		t.Error("openclaw should not have a json wrapper")
	}
}

func TestOpenClawHigherTimeouts(t *testing.T) {
	if OpenClaw.TitleTimeout() < ClaudeCode.TitleTimeout() {
		t.Error("openclaw title timeout should be >= claude_code's")
	}
	if OpenClaw.ExtractionTimeout() < ClaudeCode.ExtractionTimeout() {
		t.Error("openclaw extraction timeout should be >= claude_code's")
	}
}

func TestUnwrapEnvelope(t *testing.T) {
	response := `{"type":"result","result":"the actual text"}`
	got, ok := unwrapEnvelope(response)
	if !ok || got != "the actual text" {
		t.Errorf("unwrapEnvelope(%q) = (%q, %v)", response, got, ok)
	}

	if _, ok := unwrapEnvelope("not json"); ok {
		t.Error("expected unwrap to fail on non-json input")
	}
	if _, ok := unwrapEnvelope(`{"type":"other"}`); ok {
		t.Error("expected unwrap to fail when type != result")
	}
}

func TestParseJSONResponseDirect(t *testing.T) {
	var out struct {
		Name string `json:"name"`
	}
	if err := ParseJSONResponse(`{"name":"alice"}`, &out); err != nil {
		t.Fatalf("ParseJSONResponse: %v", err)
	}
	if out.Name != "alice" {
		t.Errorf("Name = %q, want alice", out.Name)
	}
}

func TestParseJSONResponseFencedBlock(t *testing.T) {
	response := "Here is the result:\n```json\n{\"name\":\"bob\"}\n```\nLet me know if you need more."
	var out struct {
		Name string `json:"name"`
	}
	if err := ParseJSONResponse(response, &out); err != nil {
		t.Fatalf("ParseJSONResponse: %v", err)
	}
	if out.Name != "bob" {
		t.Errorf("Name = %q, want bob", out.Name)
	}
}

func TestParseJSONResponseUnparseable(t *testing.T) {
	var out struct{}
	if err := ParseJSONResponse("not json at all", &out); err == nil {
		t.Error("expected an error for unparseable response")
	}
}

// TestDetectMissingCLI exercises the not-installed path end to end using a
// provider whose command name will not exist on the test machine.
func TestDetectMissingCLI(t *testing.T) {
	missing := Provider(99)
	detected := Detect(context.Background(), missing)
	if detected.Installed {
		t.Error("expected an unrecognized provider to report not installed")
	}

	if _, err := New(detected, zerolog.Nop()); err == nil {
		t.Error("expected New to fail for an uninstalled CLI")
	}
}

// TestNilInvokerReportsNotInstalled exercises callers that leave *Invoker
// nil when a configured provider wasn't found at startup: calls must fail
// per-call with yoerr.ErrNotInstalled rather than panicking.
func TestNilInvokerReportsNotInstalled(t *testing.T) {
	var inv *Invoker

	if _, err := inv.Run(context.Background(), "prompt"); !errors.Is(err, yoerr.ErrNotInstalled) {
		t.Errorf("Run: expected ErrNotInstalled, got %v", err)
	}
	if _, err := inv.CallWithPrompt(context.Background(), "prompt"); !errors.Is(err, yoerr.ErrNotInstalled) {
		t.Errorf("CallWithPrompt: expected ErrNotInstalled, got %v", err)
	}
}

// TestInvokerRunsFakeCLI exercises the full exec path against a throwaway
// shell script standing in for a real provider CLI.
func TestInvokerRunsFakeCLI(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-cli")
	contents := "#!/bin/sh\necho \"hello from fake cli\"\n"
	if err := os.WriteFile(script, []byte(contents), 0o755); err != nil {
		t.Fatalf("write fake cli: %v", err)
	}

	detected := Detected{Provider: ClaudeCode, Installed: true, Path: script, Version: "1.0"}
	inv, err := New(detected, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := inv.Run(context.Background(), "irrelevant prompt")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "hello from fake cli" {
		t.Errorf("Run output = %q, want %q", out, "hello from fake cli")
	}
}

func TestInvokerNonZeroExit(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-cli")
	contents := "#!/bin/sh\necho \"boom\" >&2\nexit 1\n"
	if err := os.WriteFile(script, []byte(contents), 0o755); err != nil {
		t.Fatalf("write fake cli: %v", err)
	}

	detected := Detected{Provider: ClaudeCode, Installed: true, Path: script}
	inv, err := New(detected, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := inv.Run(context.Background(), "prompt"); err == nil {
		t.Error("expected a non-zero exit to surface as an error")
	}
}
