// Package yoerr defines the error kinds named in the specification's error
// handling design: sentinel errors checked with errors.Is, wrapped with
// fmt.Errorf("...: %w", ...) the way the teacher wraps sql/exec errors.
package yoerr

import "errors"

var (
	// ErrNotInstalled is returned by the subprocess invoker when a provider
	// CLI cannot be found on any common path or in PATH.
	ErrNotInstalled = errors.New("cli not installed")

	// ErrTimeout is returned when a subprocess call exceeds its deadline.
	ErrTimeout = errors.New("subprocess timed out")

	// ErrExitNonZero is returned when a subprocess exits with a non-zero
	// status; the trimmed stderr is carried via ExitError.
	ErrExitNonZero = errors.New("subprocess exited non-zero")

	// ErrParseError is returned when a subprocess response cannot be parsed
	// as JSON, directly or via fenced-block extraction.
	ErrParseError = errors.New("failed to parse response")

	// ErrProjectRejected names the case where a session's folder path
	// matches a temp/system directory pattern and the owning project is not
	// auto-created. StoreFullParse reports that case as stored=false and
	// does not return this error.
	ErrProjectRejected = errors.New("project path rejected")
)

// ExitError carries the captured stderr for a non-zero subprocess exit.
type ExitError struct {
	Stderr string
}

func (e *ExitError) Error() string { return ErrExitNonZero.Error() + ": " + e.Stderr }
func (e *ExitError) Unwrap() error { return ErrExitNonZero }

// ParseError carries the raw response that failed to parse.
type ParseError struct {
	Raw string
}

func (e *ParseError) Error() string { return ErrParseError.Error() }
func (e *ParseError) Unwrap() error { return ErrParseError }
