package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// UpsertSessionContext stores or replaces the session's lifeboat snapshot.
func (s *SQLiteStore) UpsertSessionContext(ctx context.Context, c *SessionContext) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	_, err := s.writer.ExecContext(ctx,
		`INSERT INTO session_context (session_id, project_id, active_task, recent_decisions, open_questions,
		                                resume_context, source, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		     active_task = excluded.active_task,
		     recent_decisions = excluded.recent_decisions,
		     open_questions = excluded.open_questions,
		     resume_context = excluded.resume_context,
		     source = excluded.source,
		     updated_at = excluded.updated_at`,
		c.SessionID, c.ProjectID, c.ActiveTask, marshalTags(c.RecentDecisions), marshalTags(c.OpenQuestions),
		c.ResumeContext, c.Source, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert session context: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSessionContext(ctx context.Context, sessionID string) (*SessionContext, error) {
	var c SessionContext
	var activeTask, resumeContext sql.NullString
	var recentDecisions, openQuestions string

	err := s.reader.QueryRowContext(ctx,
		`SELECT session_id, project_id, active_task, recent_decisions, open_questions, resume_context,
		        source, created_at, updated_at
		 FROM session_context WHERE session_id = ?`, sessionID,
	).Scan(&c.SessionID, &c.ProjectID, &activeTask, &recentDecisions, &openQuestions, &resumeContext,
		&c.Source, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session context: %w", err)
	}

	if activeTask.Valid {
		c.ActiveTask = &activeTask.String
	}
	if resumeContext.Valid {
		c.ResumeContext = &resumeContext.String
	}
	c.RecentDecisions = unmarshalTags(recentDecisions)
	c.OpenQuestions = unmarshalTags(openQuestions)
	return &c, nil
}
