package store

import (
	"bufio"
	"container/list"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/yologdev/yocore-go/internal/similarity"
)

var _ EphemeralStore = (*VolatileStore)(nil)

// VolatileStore is the in-memory backend: no durability across restarts,
// bounded by an LRU session eviction policy. Grounded on spec.md §4.B;
// the LRU is a hand-rolled container/list ring since the teacher's
// repo carries no off-the-shelf LRU cache dependency and none of the
// other example repos import one either (documented in DESIGN.md).
type VolatileStore struct {
	mu sync.RWMutex

	maxSessions           int
	maxMessagesPerSession int

	projects         map[string]*Project
	projectsByFolder map[string]string
	sessions         map[string]*Session
	messages         map[string][]*Message
	memories         map[int64]*Memory
	memoryEmbeddings map[int64][]byte
	skills           map[int64]*Skill
	skillSessions    map[int64]map[string]bool
	markers          map[string][]*Marker
	contexts         map[string]*SessionContext

	nextMemoryID int64
	nextSkillID  int64
	nextMarkerID int64

	lru        *list.List
	lruElement map[string]*list.Element
	lastAccess map[string]time.Time
}

// NewVolatileStore builds an empty in-memory store. maxSessions and
// maxMessagesPerSession are the [ephemeral] config limits (defaults 100/50).
func NewVolatileStore(maxSessions, maxMessagesPerSession int) *VolatileStore {
	if maxSessions <= 0 {
		maxSessions = 100
	}
	if maxMessagesPerSession <= 0 {
		maxMessagesPerSession = 50
	}
	return &VolatileStore{
		maxSessions:           maxSessions,
		maxMessagesPerSession: maxMessagesPerSession,
		projects:              make(map[string]*Project),
		projectsByFolder:      make(map[string]string),
		sessions:              make(map[string]*Session),
		messages:              make(map[string][]*Message),
		memories:              make(map[int64]*Memory),
		memoryEmbeddings:      make(map[int64][]byte),
		skills:                make(map[int64]*Skill),
		skillSessions:         make(map[int64]map[string]bool),
		markers:               make(map[string][]*Marker),
		contexts:              make(map[string]*SessionContext),
		lru:                   list.New(),
		lruElement:            make(map[string]*list.Element),
		lastAccess:            make(map[string]time.Time),
	}
}

func (v *VolatileStore) Close() error { return nil }

func (v *VolatileStore) touch(sessionID string) {
	now := time.Now()
	v.lastAccess[sessionID] = now
	if elem, ok := v.lruElement[sessionID]; ok {
		v.lru.MoveToFront(elem)
		return
	}
	v.lruElement[sessionID] = v.lru.PushFront(sessionID)
}

// evictIfNeeded drops sessions from the back of the LRU list until at most
// maxSessions remain. touch moves a session to the front on every store and
// GetSession, so the back is always the session accessed longest ago; the
// lastAccess timestamps are recorded but not consulted here.
func (v *VolatileStore) evictIfNeeded() {
	for len(v.sessions) > v.maxSessions {
		elem := v.lru.Back()
		if elem == nil {
			return
		}
		sessionID := elem.Value.(string)
		v.lru.Remove(elem)
		delete(v.lruElement, sessionID)
		delete(v.lastAccess, sessionID)
		delete(v.sessions, sessionID)
		delete(v.messages, sessionID)
		delete(v.markers, sessionID)
		delete(v.contexts, sessionID)
	}
}

func (v *VolatileStore) GetSessionState(ctx context.Context, sessionID string) (SessionState, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	sess, ok := v.sessions[sessionID]
	if !ok {
		return DefaultSessionState(), nil
	}
	maxSeq := -1
	for _, m := range v.messages[sessionID] {
		if m.SequenceNum > maxSeq {
			maxSeq = m.SequenceNum
		}
	}
	return SessionState{FileSize: sess.FileSize, MessageCount: sess.MessageCount, MaxSequence: maxSeq}, nil
}

func (v *VolatileStore) findOrCreateProjectLocked(folderPath string) (string, bool) {
	if isRejectedProjectPath(folderPath) {
		return "", false
	}
	if id, ok := v.projectsByFolder[folderPath]; ok {
		return id, true
	}
	id := fmt.Sprintf("proj-%d", len(v.projects)+1)
	now := time.Now().UTC()
	v.projects[id] = &Project{ID: id, Name: folderPath, FolderPath: folderPath, CreatedAt: now, UpdatedAt: now}
	v.projectsByFolder[folderPath] = id
	return id, true
}

func (v *VolatileStore) StoreFullParse(ctx context.Context, filePath, sessionID, aiTool string, result ParseResult) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	folderPath := filepath.Dir(filePath)
	projectID, ok := v.findOrCreateProjectLocked(folderPath)
	if !ok {
		return false, nil
	}

	now := time.Now().UTC()
	fileSize := int64(0)
	for _, e := range result.Events {
		if end := e.ByteOffset + e.ByteLength; end > fileSize {
			fileSize = end
		}
	}

	sess, existed := v.sessions[sessionID]
	if !existed {
		sess = &Session{ID: sessionID, CreatedAt: now}
	}
	sess.ProjectID = projectID
	sess.FilePath = filePath
	sess.AITool = aiTool
	sess.MessageCount = len(result.Events)
	sess.HasCode = result.Stats.HasCode
	sess.HasErrors = result.Stats.HasErrors
	sess.FileSize = fileSize
	sess.IndexedAt = now
	if result.Metadata.Title != "" && sess.Title == nil {
		title := result.Metadata.Title
		sess.Title = &title
	}
	v.sessions[sessionID] = sess

	msgs := make([]*Message, len(result.Events))
	for i := range result.Events {
		m := result.Events[i]
		msgs[i] = &m
	}
	if len(msgs) > v.maxMessagesPerSession {
		msgs = msgs[len(msgs)-v.maxMessagesPerSession:]
	}
	v.messages[sessionID] = msgs

	v.touch(sessionID)
	v.evictIfNeeded()

	return true, nil
}

func (v *VolatileStore) StoreIncrementalParse(ctx context.Context, sessionID string, events []Message, stats ParseStats, lastOffset int64, lastMsgCount, lastMaxSeq int) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	sess, ok := v.sessions[sessionID]
	if !ok {
		return 0, fmt.Errorf("unknown session: %s", sessionID)
	}

	maxEnd := sess.FileSize
	rebased := make([]*Message, len(events))
	for i, e := range events {
		e.SequenceNum += lastMaxSeq + 1
		e.ByteOffset += lastOffset
		rebased[i] = &e
		if end := e.ByteOffset + e.ByteLength; end > maxEnd {
			maxEnd = end
		}
	}

	// Incremental appends are not trimmed, per spec.md §4.B.
	v.messages[sessionID] = append(v.messages[sessionID], rebased...)

	newTotal := lastMsgCount + len(events)
	sess.MessageCount = newTotal
	sess.FileSize = maxEnd
	sess.HasCode = sess.HasCode || stats.HasCode
	sess.HasErrors = sess.HasErrors || stats.HasErrors
	sess.IndexedAt = time.Now().UTC()

	v.touch(sessionID)

	return newTotal, nil
}

func (v *VolatileStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	sess, ok := v.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	v.touch(sessionID)
	cp := *sess
	return &cp, nil
}

func (v *VolatileStore) ListSessions(ctx context.Context, projectID string) ([]*Session, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var out []*Session
	for _, sess := range v.sessions {
		if sess.ProjectID == projectID {
			cp := *sess
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (v *VolatileStore) GetMessages(ctx context.Context, sessionID string, limit int) ([]*Message, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	msgs := v.messages[sessionID]
	if limit > 0 && limit < len(msgs) {
		msgs = msgs[:limit]
	}
	out := make([]*Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (v *VolatileStore) GetProject(ctx context.Context, projectID string) (*Project, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	p, ok := v.projects[projectID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (v *VolatileStore) ListProjects(ctx context.Context) ([]*Project, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]*Project, 0, len(v.projects))
	for _, p := range v.projects {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (v *VolatileStore) ListProjectIDs(ctx context.Context) ([]string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]string, 0, len(v.projects))
	for id := range v.projects {
		out = append(out, id)
	}
	return out, nil
}

func (v *VolatileStore) StoreMemory(ctx context.Context, m *Memory) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, existing := range v.memories {
		if existing.ProjectID != m.ProjectID || existing.State == MemoryStateRemoved {
			continue
		}
		if existing.Title == m.Title {
			return false, nil
		}
		if similarity.IsSimilarMemory(m.Title, m.Content, existing.Title, existing.Content, similarity.MemoryExtractionThreshold) {
			return false, nil
		}
	}

	v.nextMemoryID++
	m.ID = v.nextMemoryID
	if m.ExtractedAt.IsZero() {
		m.ExtractedAt = time.Now().UTC()
	}
	if m.State == "" {
		m.State = MemoryStateNew
	}
	cp := *m
	v.memories[m.ID] = &cp
	return true, nil
}

func (v *VolatileStore) ListMemories(ctx context.Context, filter MemoryFilter) ([]*Memory, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var out []*Memory
	for _, m := range v.memories {
		if filter.ProjectID != "" && m.ProjectID != filter.ProjectID {
			continue
		}
		if filter.SessionID != "" && m.SessionID != filter.SessionID {
			continue
		}
		if filter.MemoryType != "" && m.MemoryType != filter.MemoryType {
			continue
		}
		if filter.State != "" && m.State != filter.State {
			continue
		}
		if filter.ExcludeState != "" && m.State == filter.ExcludeState {
			continue
		}
		if filter.Tag != "" && !containsTag(m.Tags, filter.Tag) {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (v *VolatileStore) UpdateMemoryState(ctx context.Context, id int64, state string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	m, ok := v.memories[id]
	if !ok {
		return fmt.Errorf("memory not found: %d", id)
	}
	m.State = state
	return nil
}

func (v *VolatileStore) TouchMemory(ctx context.Context, id int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	m, ok := v.memories[id]
	if !ok {
		return fmt.Errorf("memory not found: %d", id)
	}
	m.AccessCount++
	now := time.Now().UTC()
	m.LastAccessedAt = &now
	return nil
}

func (v *VolatileStore) SetMemoryEmbedding(ctx context.Context, id int64, embedding []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.memories[id]; !ok {
		return fmt.Errorf("memory not found: %d", id)
	}
	v.memoryEmbeddings[id] = embedding
	return nil
}

func (v *VolatileStore) MemoriesMissingEmbedding(ctx context.Context, projectID string, limit int) ([]*Memory, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var out []*Memory
	for _, m := range v.memories {
		if m.ProjectID != projectID || m.State == MemoryStateRemoved {
			continue
		}
		if _, has := v.memoryEmbeddings[m.ID]; has {
			continue
		}
		cp := *m
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (v *VolatileStore) StoreSkill(ctx context.Context, sk *Skill) (bool, string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, existing := range v.skills {
		if existing.ProjectID == sk.ProjectID && existing.Name == sk.Name {
			if v.skillSessions[existing.ID] == nil {
				v.skillSessions[existing.ID] = make(map[string]bool)
			}
			v.skillSessions[existing.ID][sk.SessionID] = true
			return false, sk.SessionID, nil
		}
	}

	v.nextSkillID++
	sk.ID = v.nextSkillID
	if sk.ExtractedAt.IsZero() {
		sk.ExtractedAt = time.Now().UTC()
	}
	cp := *sk
	v.skills[sk.ID] = &cp
	v.skillSessions[sk.ID] = map[string]bool{sk.SessionID: true}
	return true, "", nil
}

func (v *VolatileStore) ListSkills(ctx context.Context, filter SkillFilter) ([]*Skill, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var out []*Skill
	for _, sk := range v.skills {
		if filter.ProjectID != "" && sk.ProjectID != filter.ProjectID {
			continue
		}
		if filter.SessionID != "" && !v.skillSessions[sk.ID][filter.SessionID] {
			continue
		}
		cp := *sk
		out = append(out, &cp)
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (v *VolatileStore) DeleteSkill(ctx context.Context, id int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.skills, id)
	delete(v.skillSessions, id)
	return nil
}

func (v *VolatileStore) UpsertMarker(ctx context.Context, m *Marker) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.nextMarkerID++
	m.ID = v.nextMarkerID
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	cp := *m
	v.markers[m.SessionID] = append(v.markers[m.SessionID], &cp)
	return nil
}

func (v *VolatileStore) ListMarkers(ctx context.Context, sessionID string) ([]*Marker, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]*Marker, len(v.markers[sessionID]))
	copy(out, v.markers[sessionID])
	return out, nil
}

func (v *VolatileStore) UpsertSessionContext(ctx context.Context, c *SessionContext) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	cp := *c
	v.contexts[c.SessionID] = &cp
	return nil
}

func (v *VolatileStore) GetSessionContext(ctx context.Context, sessionID string) (*SessionContext, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	c, ok := v.contexts[sessionID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (v *VolatileStore) SetSessionTitle(ctx context.Context, sessionID, title string, aiGenerated bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	sess, ok := v.sessions[sessionID]
	if !ok {
		return fmt.Errorf("unknown session: %s", sessionID)
	}
	sess.Title = &title
	sess.TitleAIGenerated = aiGenerated
	return nil
}

func (v *VolatileStore) MarkMemoriesExtracted(ctx context.Context, sessionID string, atMessageCount int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	sess, ok := v.sessions[sessionID]
	if !ok {
		return fmt.Errorf("unknown session: %s", sessionID)
	}
	now := time.Now().UTC()
	sess.MemoriesExtractedAt = &now
	sess.MemoriesExtractedCount = atMessageCount
	return nil
}

func (v *VolatileStore) MarkSkillsExtracted(ctx context.Context, sessionID string, atMessageCount int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	sess, ok := v.sessions[sessionID]
	if !ok {
		return fmt.Errorf("unknown session: %s", sessionID)
	}
	now := time.Now().UTC()
	sess.SkillsExtractedAt = &now
	sess.SkillsExtractedCount = atMessageCount
	return nil
}

func (v *VolatileStore) SessionsNeedingRecovery(ctx context.Context, limit int) ([]*Session, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var out []*Session
	for _, sess := range v.sessions {
		if sess.MessageCount < 25 {
			continue
		}
		if !sess.TitleAIGenerated || sess.MemoriesExtractedAt == nil || sess.SkillsExtractedAt == nil {
			cp := *sess
			out = append(out, &cp)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// GetFirstUserMessages reads the source JSONL file directly to recover the
// first `max` user messages (each truncated to `chars`), for the ephemeral
// title shortcut of spec.md §4.I that runs without a DB-backed auto-trigger.
func (v *VolatileStore) GetFirstUserMessages(ctx context.Context, sessionID string, max, chars int) ([]string, error) {
	v.mu.RLock()
	sess, ok := v.sessions[sessionID]
	v.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown session: %s", sessionID)
	}

	f, err := os.Open(sess.FilePath)
	if err != nil {
		return nil, fmt.Errorf("open session file: %w", err)
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() && len(out) < max {
		line := scanner.Text()
		text, isUser := extractUserText(line)
		if !isUser {
			continue
		}
		if len(text) > chars {
			text = text[:chars]
		}
		out = append(out, text)
	}
	return out, scanner.Err()
}
