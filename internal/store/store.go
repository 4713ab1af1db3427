package store

import "context"

// Store is the single contract implemented by both the persistent SQLite
// backend (sqlite.go) and the volatile in-memory backend (volatile.go),
// per spec.md §4.B.
type Store interface {
	// GetSessionState returns the incremental-parse checkpoint for a
	// session, or DefaultSessionState() if unknown.
	GetSessionState(ctx context.Context, sessionID string) (SessionState, error)

	// StoreFullParse upserts session metadata and replaces all messages.
	// stored is false if the owning project's folder path is rejected
	// (temp/system directory).
	StoreFullParse(ctx context.Context, filePath, sessionID, aiTool string, result ParseResult) (stored bool, err error)

	// StoreIncrementalParse re-bases incoming events onto the session's
	// prior counters and appends them. newTotal == lastMsgCount + len(events).
	StoreIncrementalParse(ctx context.Context, sessionID string, events []Message, stats ParseStats, lastOffset int64, lastMsgCount, lastMaxSeq int) (newTotal int, err error)

	GetSession(ctx context.Context, sessionID string) (*Session, error)
	ListSessions(ctx context.Context, projectID string) ([]*Session, error)
	GetMessages(ctx context.Context, sessionID string, limit int) ([]*Message, error)

	GetProject(ctx context.Context, projectID string) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)

	StoreMemory(ctx context.Context, m *Memory) (created bool, err error)
	ListMemories(ctx context.Context, filter MemoryFilter) ([]*Memory, error)
	UpdateMemoryState(ctx context.Context, id int64, state string) error
	TouchMemory(ctx context.Context, id int64) error
	SetMemoryEmbedding(ctx context.Context, id int64, embedding []byte) error
	MemoriesMissingEmbedding(ctx context.Context, projectID string, limit int) ([]*Memory, error)

	StoreSkill(ctx context.Context, s *Skill) (created bool, linkedSessionID string, err error)
	ListSkills(ctx context.Context, filter SkillFilter) ([]*Skill, error)
	DeleteSkill(ctx context.Context, id int64) error

	UpsertMarker(ctx context.Context, m *Marker) error
	ListMarkers(ctx context.Context, sessionID string) ([]*Marker, error)

	UpsertSessionContext(ctx context.Context, c *SessionContext) error
	GetSessionContext(ctx context.Context, sessionID string) (*SessionContext, error)

	SetSessionTitle(ctx context.Context, sessionID, title string, aiGenerated bool) error
	MarkMemoriesExtracted(ctx context.Context, sessionID string, atMessageCount int) error
	MarkSkillsExtracted(ctx context.Context, sessionID string, atMessageCount int) error

	// SessionsNeedingRecovery implements the startup-recovery query of
	// spec.md §7: sessions with message_count >= 25 lacking title/memory/
	// skill extraction, up to limit.
	SessionsNeedingRecovery(ctx context.Context, limit int) ([]*Session, error)

	// ListProjectIDs returns every project id, used by scheduler tasks that
	// iterate per-project.
	ListProjectIDs(ctx context.Context) ([]string, error)

	Close() error
}

// EphemeralStore is implemented only by the volatile backend; it exposes
// get_first_user_messages for the ephemeral title shortcut (spec.md §4.I).
type EphemeralStore interface {
	Store
	GetFirstUserMessages(ctx context.Context, sessionID string, max, chars int) ([]string, error)
}
