// Package store implements the dual-backend session store: a persistent
// SQLite backend (WAL, FTS5, embeddings) and a volatile in-memory backend,
// behind the single Store contract. Grounded on the teacher's
// internal/memory (SQLiteLearningDB) for the SQL access patterns and on
// original_source/src/db for the schema and connection-split design.
package store

import "time"

// Storage-independent entity types, per spec.md §3.

// Project is a logical grouping keyed by a watched folder path.
type Project struct {
	ID         string
	Name       string
	FolderPath string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Session is the index of one JSONL file.
type Session struct {
	ID                     string
	ProjectID              string
	FilePath               string
	Title                  *string
	AITool                 string
	MessageCount           int
	DurationMs             *int64
	HasCode                bool
	HasErrors              bool
	FileSize               int64
	FileModified           *time.Time
	TitleEdited            bool
	TitleAIGenerated       bool
	MemoriesExtractedAt    *time.Time
	MemoriesExtractedCount int
	SkillsExtractedAt      *time.Time
	SkillsExtractedCount   int
	IsHidden               bool
	CreatedAt              time.Time
	IndexedAt              time.Time
}

// Message role and tool-type enums.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"

	ToolTypeUse    = "use"
	ToolTypeResult = "result"
)

// Message is one parsed event within a session.
type Message struct {
	SessionID           string
	SequenceNum         int
	Role                string
	ContentPreview      string
	SearchContent       string
	HasCode             bool
	HasError            bool
	HasFileChanges      bool
	ToolName            *string
	ToolType            *string
	ToolSummary         *string
	ByteOffset          int64
	ByteLength          int64
	InputTokens         *int64
	OutputTokens        *int64
	CacheReadTokens     *int64
	CacheCreationTokens *int64
	Model               *string
	Timestamp           time.Time
}

// Memory lifecycle states and kinds, per spec.md §3.
const (
	MemoryTypeDecision   = "decision"
	MemoryTypeFact       = "fact"
	MemoryTypePreference = "preference"
	MemoryTypeContext    = "context"
	MemoryTypeTask       = "task"

	MemoryStateNew     = "new"
	MemoryStateLow     = "low"
	MemoryStateHigh    = "high"
	MemoryStateRemoved = "removed"
)

// Memory is a distilled knowledge item extracted from a session.
type Memory struct {
	ID             int64
	ProjectID      string
	SessionID      string
	MemoryType     string
	Title          string
	Content        string
	Context        *string
	Tags           []string
	Confidence     float64
	IsValidated    bool
	ExtractedAt    time.Time
	FileReference  *string
	State          string
	AccessCount    int
	LastAccessedAt *time.Time
}

// Skill is a reusable workflow pattern, unique by name per project.
type Skill struct {
	ID          int64
	ProjectID   string
	SessionID   string
	Name        string
	Description string
	Steps       []string
	Confidence  float64
	ExtractedAt time.Time
}

// Marker kinds, per spec.md §3.
const (
	MarkerBreakthrough = "breakthrough"
	MarkerShip         = "ship"
	MarkerDecision     = "decision"
	MarkerBug          = "bug"
	MarkerStuck        = "stuck"
)

// Marker flags a notable event within a session's timeline.
type Marker struct {
	ID          int64
	SessionID   string
	EventIndex  int
	MarkerType  string
	Label       string
	Description *string
	CreatedAt   time.Time
}

// SessionContext source kinds, per spec.md §3.
const (
	ContextSourceStartup = "startup"
	ContextSourceResume  = "resume"
	ContextSourceClear   = "clear"
	ContextSourceCompact = "compact"
)

// SessionContext is a per-session "lifeboat" snapshot.
type SessionContext struct {
	SessionID       string
	ProjectID       string
	ActiveTask      *string
	RecentDecisions []string
	OpenQuestions   []string
	ResumeContext   *string
	Source          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SessionState is the incremental-parse checkpoint returned by
// GetSessionState. An unknown session gets DefaultSessionState()
// (file_size=0, message_count=0, max_sequence=-1); the zero value differs
// from it in having MaxSequence 0.
type SessionState struct {
	FileSize     int64
	MessageCount int
	MaxSequence  int
}

// DefaultSessionState is returned by GetSessionState for an unknown session.
func DefaultSessionState() SessionState {
	return SessionState{FileSize: 0, MessageCount: 0, MaxSequence: -1}
}

// ParseResult is the normalized output of a parser pass (internal/parser),
// consumed here to avoid a store->parser import cycle.
type ParseResult struct {
	Events   []Message
	Metadata ParseMetadata
	Stats    ParseStats
	Errors   []string
}

// ParseMetadata carries the session-level fields derived during parsing.
type ParseMetadata struct {
	Title     string
	AITool    string
	StartTime *time.Time
	EndTime   *time.Time
	Duration  time.Duration
	Model     *string
}

// ParseStats carries per-parse aggregate flags used to merge into a session.
type ParseStats struct {
	HasCode   bool
	HasErrors bool
}

// MemoryFilter narrows ListMemories. Zero values mean "no filter" for that
// field; State defaults callers should pass MemoryStateNew etc. explicitly
// since the zero string is not a valid state — see the "removed" predicate
// note in DESIGN.md.
type MemoryFilter struct {
	ProjectID    string
	SessionID    string
	MemoryType   string
	Tag          string
	State        string
	ExcludeState string
	Limit        int
}

// SkillFilter narrows ListSkills.
type SkillFilter struct {
	ProjectID string
	SessionID string
	Limit     int
}
