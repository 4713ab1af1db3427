package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// StoreSkill dedups by exact name per project. On a hit it links session
// sessionID to the existing skill via skill_sessions instead of inserting,
// per spec.md §4.G and the S5 testable scenario.
func (s *SQLiteStore) StoreSkill(ctx context.Context, sk *Skill) (bool, string, error) {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	var existingID int64
	err := s.writer.QueryRowContext(ctx,
		"SELECT id FROM skills WHERE project_id = ? AND name = ?", sk.ProjectID, sk.Name,
	).Scan(&existingID)
	if err != nil && err != sql.ErrNoRows {
		return false, "", fmt.Errorf("lookup existing skill: %w", err)
	}

	if err == nil {
		_, linkErr := s.writer.ExecContext(ctx,
			`INSERT OR IGNORE INTO skill_sessions (skill_id, session_id, added_at) VALUES (?, ?, ?)`,
			existingID, sk.SessionID, time.Now().UTC(),
		)
		if linkErr != nil {
			return false, "", fmt.Errorf("link duplicate skill session: %w", linkErr)
		}
		return false, sk.SessionID, nil
	}

	if sk.ExtractedAt.IsZero() {
		sk.ExtractedAt = time.Now().UTC()
	}

	result, err := s.writer.ExecContext(ctx,
		`INSERT INTO skills (project_id, session_id, name, description, steps, confidence, extracted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sk.ProjectID, sk.SessionID, sk.Name, sk.Description, marshalTags(sk.Steps), sk.Confidence, sk.ExtractedAt,
	)
	if err != nil {
		return false, "", fmt.Errorf("insert skill: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return false, "", fmt.Errorf("get skill id: %w", err)
	}
	sk.ID = id

	_, err = s.writer.ExecContext(ctx,
		"INSERT INTO skill_sessions (skill_id, session_id, added_at) VALUES (?, ?, ?)", id, sk.SessionID, sk.ExtractedAt,
	)
	if err != nil {
		return false, "", fmt.Errorf("link skill session: %w", err)
	}

	return true, "", nil
}

func (s *SQLiteStore) ListSkills(ctx context.Context, filter SkillFilter) ([]*Skill, error) {
	query := `SELECT DISTINCT skills.id, skills.project_id, skills.session_id, skills.name, skills.description,
	                 skills.steps, skills.confidence, skills.extracted_at
	          FROM skills`
	var args []any

	if filter.SessionID != "" {
		query += " JOIN skill_sessions ON skill_sessions.skill_id = skills.id"
	}
	query += " WHERE 1=1"

	if filter.ProjectID != "" {
		query += " AND skills.project_id = ?"
		args = append(args, filter.ProjectID)
	}
	if filter.SessionID != "" {
		query += " AND skill_sessions.session_id = ?"
		args = append(args, filter.SessionID)
	}

	query += " ORDER BY skills.extracted_at ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}
	defer rows.Close()

	var out []*Skill
	for rows.Next() {
		var sk Skill
		var steps string
		if err := rows.Scan(&sk.ID, &sk.ProjectID, &sk.SessionID, &sk.Name, &sk.Description, &steps, &sk.Confidence, &sk.ExtractedAt); err != nil {
			return nil, fmt.Errorf("scan skill: %w", err)
		}
		sk.Steps = unmarshalTags(steps)
		out = append(out, &sk)
	}
	return out, rows.Err()
}

// DeleteSkill hard-deletes a skill and (via FK cascade) its embedding and
// session links, per spec.md §3: "Duplicates are hard-deleted (no state column)".
func (s *SQLiteStore) DeleteSkill(ctx context.Context, id int64) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	if _, err := s.writer.ExecContext(ctx, "DELETE FROM skills WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete skill: %w", err)
	}
	return nil
}
