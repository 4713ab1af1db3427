package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore is the persistent backend: a writer connection serialized
// behind a mutex and an independently-opened reader connection that relies
// on WAL snapshot isolation to proceed concurrently with writes. Grounded
// on original_source/src/db/mod.rs's Database (write_conn/read_conn split)
// and adapted from the teacher's SQLiteLearningDB for the database/sql
// access idiom.
type SQLiteStore struct {
	writer   *sql.DB
	writerMu sync.Mutex
	reader   *sql.DB
	path     string
}

var requiredPragmas = []string{
	"PRAGMA foreign_keys = ON",
	"PRAGMA journal_mode = WAL",
	"PRAGMA wal_autocheckpoint = 100",
	"PRAGMA journal_size_limit = 209715200",
}

func configureConnection(db *sql.DB) error {
	for _, pragma := range requiredPragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}
	return nil
}

// OpenSQLiteStore opens (creating if absent) the database at dbPath with a
// dedicated writer and reader connection, initializes the schema and runs
// migrations on the writer.
func OpenSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	writer, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open writer connection: %w", err)
	}
	writer.SetMaxOpenConns(1)
	if err := configureConnection(writer); err != nil {
		writer.Close()
		return nil, err
	}
	if _, err := writer.Exec(schemaSQL); err != nil {
		writer.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	if err := runMigrations(writer); err != nil {
		writer.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	reader, err := sql.Open("sqlite", dbPath)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open reader connection: %w", err)
	}
	reader.SetMaxOpenConns(4)
	if err := configureConnection(reader); err != nil {
		writer.Close()
		reader.Close()
		return nil, err
	}

	return &SQLiteStore{writer: writer, reader: reader, path: dbPath}, nil
}

func (s *SQLiteStore) Close() error {
	werr := s.writer.Close()
	rerr := s.reader.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// Checkpoint runs a passive WAL checkpoint on the writer connection,
// used by the scheduler's unconditional WAL-checkpoint task.
func (s *SQLiteStore) Checkpoint(ctx context.Context) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()
	_, err := s.writer.ExecContext(ctx, "PRAGMA wal_checkpoint(PASSIVE)")
	return err
}

// tempPathPattern rejects folder names that look like temp/system
// directories rather than real projects, per spec.md §3's "rejected" rule.
var tempPathPattern = regexp.MustCompile(`(?i)(^|[\\/])(tmp|temp|var[\\/]folders|appdata[\\/]local[\\/]temp|private[\\/]tmp|\.cache)([\\/]|$)`)

func isRejectedProjectPath(folderPath string) bool {
	return tempPathPattern.MatchString(folderPath)
}

// findOrCreateProject returns the id of the project owning folderPath,
// creating it if absent. Returns ("", false, nil) if the path is rejected.
func (s *SQLiteStore) findOrCreateProject(tx *sql.Tx, folderPath string) (string, bool, error) {
	if isRejectedProjectPath(folderPath) {
		return "", false, nil
	}

	var id string
	err := tx.QueryRow("SELECT id FROM projects WHERE folder_path = ?", folderPath).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if err != sql.ErrNoRows {
		return "", false, fmt.Errorf("lookup project: %w", err)
	}

	id = uuid.New().String()
	name := filepath.Base(folderPath)
	now := time.Now().UTC()
	_, err = tx.Exec(
		`INSERT INTO projects (id, name, folder_path, auto_sync, longest_streak, created_at, updated_at)
		 VALUES (?, ?, ?, 1, 0, ?, ?)`,
		id, name, folderPath, now, now,
	)
	if err != nil {
		return "", false, fmt.Errorf("create project: %w", err)
	}
	return id, true, nil
}

func (s *SQLiteStore) GetSessionState(ctx context.Context, sessionID string) (SessionState, error) {
	var fileSize int64
	var messageCount int
	var maxSeq sql.NullInt64

	err := s.reader.QueryRowContext(ctx,
		"SELECT file_size, message_count FROM sessions WHERE id = ?", sessionID,
	).Scan(&fileSize, &messageCount)
	if err == sql.ErrNoRows {
		return DefaultSessionState(), nil
	}
	if err != nil {
		return SessionState{}, fmt.Errorf("get session state: %w", err)
	}

	err = s.reader.QueryRowContext(ctx,
		"SELECT MAX(sequence_num) FROM session_messages WHERE session_id = ?", sessionID,
	).Scan(&maxSeq)
	if err != nil {
		return SessionState{}, fmt.Errorf("get max sequence: %w", err)
	}

	state := SessionState{FileSize: fileSize, MessageCount: messageCount, MaxSequence: -1}
	if maxSeq.Valid {
		state.MaxSequence = int(maxSeq.Int64)
	}
	return state, nil
}

func (s *SQLiteStore) StoreFullParse(ctx context.Context, filePath, sessionID, aiTool string, result ParseResult) (bool, error) {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	folderPath := filepath.Dir(filePath)
	projectID, ok, err := s.findOrCreateProject(tx, folderPath)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	now := time.Now().UTC()
	var fileModified *time.Time
	if fi, statErr := os.Stat(filePath); statErr == nil {
		mt := fi.ModTime().UTC()
		fileModified = &mt
	}

	fileSize := int64(0)
	for _, e := range result.Events {
		if end := e.ByteOffset + e.ByteLength; end > fileSize {
			fileSize = end
		}
	}

	_, err = tx.Exec(
		`INSERT INTO sessions (id, project_id, file_path, title, ai_tool, message_count, duration_ms,
		                        has_code, has_errors, file_size, file_modified, created_at, indexed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     message_count = excluded.message_count,
		     duration_ms = excluded.duration_ms,
		     has_code = excluded.has_code,
		     has_errors = excluded.has_errors,
		     file_size = excluded.file_size,
		     file_modified = excluded.file_modified,
		     indexed_at = excluded.indexed_at`,
		sessionID, projectID, filePath, nullableString(result.Metadata.Title), aiTool, len(result.Events),
		durationMs(result.Metadata.Duration), result.Stats.HasCode, result.Stats.HasErrors,
		fileSize, fileModified, now, now,
	)
	if err != nil {
		return false, fmt.Errorf("upsert session: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM session_messages WHERE session_id = ?", sessionID); err != nil {
		return false, fmt.Errorf("clear messages: %w", err)
	}

	if err := insertMessages(tx, sessionID, result.Events); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) StoreIncrementalParse(ctx context.Context, sessionID string, events []Message, stats ParseStats, lastOffset int64, lastMsgCount, lastMaxSeq int) (int, error) {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rebased := make([]Message, len(events))
	maxEnd := int64(0)
	for i, e := range events {
		e.SequenceNum += lastMaxSeq + 1
		e.ByteOffset += lastOffset
		rebased[i] = e
		if end := e.ByteOffset + e.ByteLength; end > maxEnd {
			maxEnd = end
		}
	}

	if err := insertMessages(tx, sessionID, rebased); err != nil {
		return 0, err
	}

	newTotal := lastMsgCount + len(events)
	_, err = tx.Exec(
		`UPDATE sessions SET
		     message_count = ?,
		     file_size = MAX(file_size, ?),
		     has_code = has_code OR ?,
		     has_errors = has_errors OR ?,
		     indexed_at = ?
		 WHERE id = ?`,
		newTotal, maxEnd, stats.HasCode, stats.HasErrors, time.Now().UTC(), sessionID,
	)
	if err != nil {
		return 0, fmt.Errorf("update session counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return newTotal, nil
}

func insertMessages(tx *sql.Tx, sessionID string, events []Message) error {
	stmt, err := tx.Prepare(
		`INSERT OR IGNORE INTO session_messages
		    (session_id, sequence_num, role, content_preview, search_content, has_code, has_error,
		     has_file_changes, tool_name, tool_type, tool_summary, byte_offset, byte_length,
		     input_tokens, output_tokens, cache_read_tokens, cache_creation_tokens, model, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare message insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		_, err := stmt.Exec(
			sessionID, e.SequenceNum, e.Role, e.ContentPreview, e.SearchContent, e.HasCode, e.HasError,
			e.HasFileChanges, e.ToolName, e.ToolType, e.ToolSummary, e.ByteOffset, e.ByteLength,
			e.InputTokens, e.OutputTokens, e.CacheReadTokens, e.CacheCreationTokens, e.Model, e.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert message seq=%d: %w", e.SequenceNum, err)
		}
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	row := s.reader.QueryRowContext(ctx, sessionSelectColumns+" FROM sessions WHERE id = ?", sessionID)
	return scanSession(row)
}

func (s *SQLiteStore) ListSessions(ctx context.Context, projectID string) ([]*Session, error) {
	rows, err := s.reader.QueryContext(ctx, sessionSelectColumns+" FROM sessions WHERE project_id = ? ORDER BY created_at DESC", projectID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		sess, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

const sessionSelectColumns = `SELECT id, project_id, file_path, title, ai_tool, message_count, duration_ms,
       has_code, has_errors, file_size, file_modified, title_edited, title_ai_generated,
       memories_extracted_at, memories_extracted_count, skills_extracted_at, skills_extracted_count,
       is_hidden, created_at, indexed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	return scanSessionRows(row)
}

func scanSessionRows(row rowScanner) (*Session, error) {
	var sess Session
	var title, fileModified, memoriesExtractedAt, skillsExtractedAt sql.NullString
	var durationMs sql.NullInt64

	err := row.Scan(
		&sess.ID, &sess.ProjectID, &sess.FilePath, &title, &sess.AITool, &sess.MessageCount, &durationMs,
		&sess.HasCode, &sess.HasErrors, &sess.FileSize, &fileModified, &sess.TitleEdited, &sess.TitleAIGenerated,
		&memoriesExtractedAt, &sess.MemoriesExtractedCount, &skillsExtractedAt, &sess.SkillsExtractedCount,
		&sess.IsHidden, &sess.CreatedAt, &sess.IndexedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	if title.Valid {
		sess.Title = &title.String
	}
	if durationMs.Valid {
		sess.DurationMs = &durationMs.Int64
	}
	if fileModified.Valid {
		t, _ := time.Parse(time.RFC3339, fileModified.String)
		sess.FileModified = &t
	}
	if memoriesExtractedAt.Valid {
		t, _ := time.Parse(time.RFC3339, memoriesExtractedAt.String)
		sess.MemoriesExtractedAt = &t
	}
	if skillsExtractedAt.Valid {
		t, _ := time.Parse(time.RFC3339, skillsExtractedAt.String)
		sess.SkillsExtractedAt = &t
	}
	return &sess, nil
}

func (s *SQLiteStore) GetMessages(ctx context.Context, sessionID string, limit int) ([]*Message, error) {
	query := `SELECT session_id, sequence_num, role, content_preview, search_content, has_code, has_error,
	                 has_file_changes, tool_name, tool_type, tool_summary, byte_offset, byte_length,
	                 input_tokens, output_tokens, cache_read_tokens, cache_creation_tokens, model, timestamp
	          FROM session_messages WHERE session_id = ? ORDER BY sequence_num ASC`
	args := []any{sessionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		var m Message
		var toolName, toolType, toolSummary, model sql.NullString
		var inputTokens, outputTokens, cacheRead, cacheCreation sql.NullInt64

		err := rows.Scan(
			&m.SessionID, &m.SequenceNum, &m.Role, &m.ContentPreview, &m.SearchContent, &m.HasCode, &m.HasError,
			&m.HasFileChanges, &toolName, &toolType, &toolSummary, &m.ByteOffset, &m.ByteLength,
			&inputTokens, &outputTokens, &cacheRead, &cacheCreation, &model, &m.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if toolName.Valid {
			m.ToolName = &toolName.String
		}
		if toolType.Valid {
			m.ToolType = &toolType.String
		}
		if toolSummary.Valid {
			m.ToolSummary = &toolSummary.String
		}
		if model.Valid {
			m.Model = &model.String
		}
		if inputTokens.Valid {
			m.InputTokens = &inputTokens.Int64
		}
		if outputTokens.Valid {
			m.OutputTokens = &outputTokens.Int64
		}
		if cacheRead.Valid {
			m.CacheReadTokens = &cacheRead.Int64
		}
		if cacheCreation.Valid {
			m.CacheCreationTokens = &cacheCreation.Int64
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetProject(ctx context.Context, projectID string) (*Project, error) {
	var p Project
	err := s.reader.QueryRowContext(ctx,
		"SELECT id, name, folder_path, created_at, updated_at FROM projects WHERE id = ?", projectID,
	).Scan(&p.ID, &p.Name, &p.FolderPath, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}

func (s *SQLiteStore) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := s.reader.QueryContext(ctx, "SELECT id, name, folder_path, created_at, updated_at FROM projects ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []*Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.FolderPath, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListProjectIDs(ctx context.Context) ([]string, error) {
	rows, err := s.reader.QueryContext(ctx, "SELECT id FROM projects")
	if err != nil {
		return nil, fmt.Errorf("list project ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) SetSessionTitle(ctx context.Context, sessionID, title string, aiGenerated bool) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	_, err := s.writer.ExecContext(ctx,
		"UPDATE sessions SET title = ?, title_ai_generated = ? WHERE id = ?", title, aiGenerated, sessionID,
	)
	if err != nil {
		return fmt.Errorf("set session title: %w", err)
	}
	return nil
}

func (s *SQLiteStore) MarkMemoriesExtracted(ctx context.Context, sessionID string, atMessageCount int) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	_, err := s.writer.ExecContext(ctx,
		"UPDATE sessions SET memories_extracted_at = ?, memories_extracted_count = ? WHERE id = ?",
		time.Now().UTC(), atMessageCount, sessionID,
	)
	if err != nil {
		return fmt.Errorf("mark memories extracted: %w", err)
	}
	return nil
}

func (s *SQLiteStore) MarkSkillsExtracted(ctx context.Context, sessionID string, atMessageCount int) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	_, err := s.writer.ExecContext(ctx,
		"UPDATE sessions SET skills_extracted_at = ?, skills_extracted_count = ? WHERE id = ?",
		time.Now().UTC(), atMessageCount, sessionID,
	)
	if err != nil {
		return fmt.Errorf("mark skills extracted: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SessionsNeedingRecovery(ctx context.Context, limit int) ([]*Session, error) {
	rows, err := s.reader.QueryContext(ctx,
		sessionSelectColumns+` FROM sessions
		 WHERE message_count >= 25
		   AND (title_ai_generated = 0 OR memories_extracted_at IS NULL OR skills_extracted_at IS NULL)
		 ORDER BY indexed_at ASC
		 LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sessions needing recovery: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		sess, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func durationMs(d time.Duration) any {
	if d == 0 {
		return nil
	}
	return d.Milliseconds()
}

func marshalTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	b, _ := json.Marshal(tags)
	return string(b)
}

func unmarshalTags(raw string) []string {
	var tags []string
	if raw == "" {
		return tags
	}
	_ = json.Unmarshal([]byte(raw), &tags)
	return tags
}
