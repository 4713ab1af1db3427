package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/yologdev/yocore-go/internal/similarity"
)

// StoreMemory inserts m in state 'new' unless it is an exact-title or
// near-duplicate (combined similarity >= similarity.MemoryExtractionThreshold)
// of one of the project's 200 most recently extracted, non-removed
// memories, per spec.md §4.G and the S3 testable scenario.
func (s *SQLiteStore) StoreMemory(ctx context.Context, m *Memory) (bool, error) {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	rows, err := s.writer.QueryContext(ctx,
		`SELECT title, content FROM memories
		 WHERE project_id = ? AND state != 'removed'
		 ORDER BY extracted_at DESC LIMIT 200`, m.ProjectID,
	)
	if err != nil {
		return false, fmt.Errorf("load recent memories: %w", err)
	}
	type existing struct{ title, content string }
	var recent []existing
	for rows.Next() {
		var e existing
		if err := rows.Scan(&e.title, &e.content); err != nil {
			rows.Close()
			return false, fmt.Errorf("scan recent memory: %w", err)
		}
		recent = append(recent, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return false, err
	}

	for _, e := range recent {
		if e.title == m.Title {
			return false, nil
		}
		if similarity.IsSimilarMemory(m.Title, m.Content, e.title, e.content, similarity.MemoryExtractionThreshold) {
			return false, nil
		}
	}

	if m.ExtractedAt.IsZero() {
		m.ExtractedAt = time.Now().UTC()
	}
	if m.State == "" {
		m.State = MemoryStateNew
	}

	result, err := s.writer.ExecContext(ctx,
		`INSERT INTO memories (project_id, session_id, memory_type, title, content, context, tags,
		                        confidence, is_validated, extracted_at, file_reference, state,
		                        access_count, last_accessed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ProjectID, m.SessionID, m.MemoryType, m.Title, m.Content, m.Context, marshalTags(m.Tags),
		m.Confidence, m.IsValidated, m.ExtractedAt, m.FileReference, m.State,
		m.AccessCount, m.LastAccessedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert memory: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("get memory id: %w", err)
	}
	m.ID = id
	return true, nil
}

func (s *SQLiteStore) ListMemories(ctx context.Context, filter MemoryFilter) ([]*Memory, error) {
	query := `SELECT id, project_id, session_id, memory_type, title, content, context, tags, confidence,
	                 is_validated, extracted_at, file_reference, state, access_count, last_accessed_at
	          FROM memories WHERE 1=1`
	var args []any

	if filter.ProjectID != "" {
		query += " AND project_id = ?"
		args = append(args, filter.ProjectID)
	}
	if filter.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, filter.SessionID)
	}
	if filter.MemoryType != "" {
		query += " AND memory_type = ?"
		args = append(args, filter.MemoryType)
	}
	if filter.Tag != "" {
		query += " AND tags LIKE ?"
		args = append(args, "%\""+filter.Tag+"\"%")
	}
	if filter.State != "" {
		query += " AND state = ?"
		args = append(args, filter.State)
	}
	if filter.ExcludeState != "" {
		query += " AND state != ?"
		args = append(args, filter.ExcludeState)
	}

	query += " ORDER BY extracted_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	var out []*Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMemory(rows *sql.Rows) (*Memory, error) {
	var m Memory
	var context, fileReference sql.NullString
	var tags string
	var lastAccessedAt sql.NullTime

	err := rows.Scan(
		&m.ID, &m.ProjectID, &m.SessionID, &m.MemoryType, &m.Title, &m.Content, &context, &tags,
		&m.Confidence, &m.IsValidated, &m.ExtractedAt, &fileReference, &m.State, &m.AccessCount, &lastAccessedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan memory: %w", err)
	}
	if context.Valid {
		m.Context = &context.String
	}
	if fileReference.Valid {
		m.FileReference = &fileReference.String
	}
	if lastAccessedAt.Valid {
		m.LastAccessedAt = &lastAccessedAt.Time
	}
	m.Tags = unmarshalTags(tags)
	return &m, nil
}

func (s *SQLiteStore) UpdateMemoryState(ctx context.Context, id int64, state string) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	_, err := s.writer.ExecContext(ctx, "UPDATE memories SET state = ? WHERE id = ?", state, id)
	if err != nil {
		return fmt.Errorf("update memory state: %w", err)
	}
	return nil
}

// TouchMemory increments access_count and bumps last_accessed_at, the
// signal the ranking task scores on.
func (s *SQLiteStore) TouchMemory(ctx context.Context, id int64) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	_, err := s.writer.ExecContext(ctx,
		"UPDATE memories SET access_count = access_count + 1, last_accessed_at = ? WHERE id = ?",
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("touch memory: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SetMemoryEmbedding(ctx context.Context, id int64, embedding []byte) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	_, err := s.writer.ExecContext(ctx,
		`INSERT INTO memory_embeddings (memory_id, embedding) VALUES (?, ?)
		 ON CONFLICT(memory_id) DO UPDATE SET embedding = excluded.embedding`,
		id, embedding,
	)
	if err != nil {
		return fmt.Errorf("set memory embedding: %w", err)
	}
	return nil
}

// SearchMemoriesFTS runs query against memories_fts and returns matching
// memory ids ordered by bm25 rank, best match first. Soft-removed memories
// are excluded per spec.md §9's "removed-memory retention" note: they stay
// indexed in FTS until rebuilt, so every FTS query must filter state
// explicitly rather than relying on the index to have dropped them.
func (s *SQLiteStore) SearchMemoriesFTS(ctx context.Context, projectID, query string, limit int) ([]int64, error) {
	rows, err := s.reader.QueryContext(ctx,
		`SELECT m.id FROM memories_fts f
		 JOIN memories m ON m.id = f.rowid
		 WHERE memories_fts MATCH ? AND m.project_id = ? AND m.state != 'removed'
		 ORDER BY bm25(memories_fts) LIMIT ?`,
		query, projectID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search memories fts: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan fts match: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MemoryEmbeddings returns every embedded, non-removed memory in a project
// alongside its embedding blob, for the vector half of hybrid search.
func (s *SQLiteStore) MemoryEmbeddings(ctx context.Context, projectID string) (map[int64][]byte, error) {
	rows, err := s.reader.QueryContext(ctx,
		`SELECT e.memory_id, e.embedding FROM memory_embeddings e
		 JOIN memories m ON m.id = e.memory_id
		 WHERE m.project_id = ? AND m.state != 'removed'`, projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("memory embeddings: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]byte)
	for rows.Next() {
		var id int64
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scan memory embedding: %w", err)
		}
		out[id] = blob
	}
	return out, rows.Err()
}

func (s *SQLiteStore) MemoriesMissingEmbedding(ctx context.Context, projectID string, limit int) ([]*Memory, error) {
	rows, err := s.reader.QueryContext(ctx,
		`SELECT m.id, m.project_id, m.session_id, m.memory_type, m.title, m.content, m.context, m.tags,
		        m.confidence, m.is_validated, m.extracted_at, m.file_reference, m.state, m.access_count, m.last_accessed_at
		 FROM memories m
		 LEFT JOIN memory_embeddings e ON e.memory_id = m.id
		 WHERE m.project_id = ? AND m.state != 'removed' AND e.memory_id IS NULL
		 LIMIT ?`, projectID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("memories missing embedding: %w", err)
	}
	defer rows.Close()

	var out []*Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
