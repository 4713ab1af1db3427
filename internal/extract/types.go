// Package extract runs the four AI-assisted post-processing passes over a
// parsed session: title generation, memory extraction, skill discovery, and
// marker detection.
// Each follows the same gather→prompt→invoke→parse→persist shape, grounded
// on original_source/src/ai/{title,memory,skill,marker}.rs.
package extract

// TitleResult is the outcome of one title-generation attempt.
type TitleResult struct {
	SessionID string
	Title     string
	Err       error
}

// MemoryResult is the outcome of one memory-extraction pass.
type MemoryResult struct {
	SessionID  string
	Extracted  int
	Skipped    int
	Err        error
}

// SkillResult is the outcome of one skill-discovery pass.
type SkillResult struct {
	SessionID  string
	Extracted  int
	Duplicates int
	Err        error
}

// MarkerResult is the outcome of one marker-detection pass.
type MarkerResult struct {
	SessionID string
	Created   int
	Err       error
}

// Notifier receives lifecycle events for each extraction pass, mirroring
// original_source's AiEvent enum (title/memory/skill start/complete/error).
// Implemented by internal/events; accepting the interface here (rather than
// importing that package) keeps extract free of a dependency on the
// broadcaster's transport.
type Notifier interface {
	TitleStart(sessionID string)
	TitleComplete(sessionID, title string)
	TitleError(sessionID, errMsg string)

	MemoryStart(sessionID string)
	MemoryComplete(sessionID string, count int)
	MemoryError(sessionID, errMsg string)

	SkillStart(sessionID string)
	SkillComplete(sessionID string, count int)
	SkillError(sessionID, errMsg string)

	MarkerStart(sessionID string)
	MarkerComplete(sessionID string, count int)
	MarkerError(sessionID, errMsg string)
}

// NoopNotifier discards every event; the zero value is ready to use.
type NoopNotifier struct{}

func (NoopNotifier) TitleStart(string)            {}
func (NoopNotifier) TitleComplete(string, string) {}
func (NoopNotifier) TitleError(string, string)    {}
func (NoopNotifier) MemoryStart(string)           {}
func (NoopNotifier) MemoryComplete(string, int)   {}
func (NoopNotifier) MemoryError(string, string)   {}
func (NoopNotifier) SkillStart(string)            {}
func (NoopNotifier) SkillComplete(string, int)    {}
func (NoopNotifier) SkillError(string, string)    {}
func (NoopNotifier) MarkerStart(string)           {}
func (NoopNotifier) MarkerComplete(string, int)   {}
func (NoopNotifier) MarkerError(string, string)   {}
