package invoker

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

func homeDir() (string, error) { return os.UserHomeDir() }
func join(elem ...string) string { return filepath.Join(elem...) }

// Detected describes the result of looking for a provider's CLI.
type Detected struct {
	Provider  Provider
	Installed bool
	Path      string
	Version   string
}

// Detect looks for provider's CLI binary, first among its common install
// paths, then on PATH, verifying each candidate actually runs via --version.
func Detect(ctx context.Context, p Provider) Detected {
	for _, path := range p.CommonPaths() {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if version, ok := checkVersion(ctx, path); ok {
			return Detected{Provider: p, Installed: true, Path: path, Version: version}
		}
	}

	if path, ok := findInPath(p.CommandName()); ok {
		if version, ok := checkVersion(ctx, path); ok {
			return Detected{Provider: p, Installed: true, Path: path, Version: version}
		}
	}

	return Detected{Provider: p, Installed: false}
}

// findInPath resolves command via the shell's lookup rules (exec.LookPath
// wraps the same which/where semantics the original shells out to).
func findInPath(command string) (string, bool) {
	path, err := exec.LookPath(command)
	if err != nil {
		return "", false
	}
	return path, true
}

// checkVersion runs "<path> --version" with a short deadline to confirm the
// binary is actually executable, not just present on disk.
func checkVersion(ctx context.Context, path string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(out)), true
}
