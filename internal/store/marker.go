package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

func (s *SQLiteStore) UpsertMarker(ctx context.Context, m *Marker) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	result, err := s.writer.ExecContext(ctx,
		`INSERT INTO session_markers (session_id, event_index, marker_type, label, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.SessionID, m.EventIndex, m.MarkerType, m.Label, m.Description, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert marker: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get marker id: %w", err)
	}
	m.ID = id
	return nil
}

func (s *SQLiteStore) ListMarkers(ctx context.Context, sessionID string) ([]*Marker, error) {
	rows, err := s.reader.QueryContext(ctx,
		`SELECT id, session_id, event_index, marker_type, label, description, created_at
		 FROM session_markers WHERE session_id = ? ORDER BY event_index ASC`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list markers: %w", err)
	}
	defer rows.Close()

	var out []*Marker
	for rows.Next() {
		var m Marker
		var description sql.NullString
		if err := rows.Scan(&m.ID, &m.SessionID, &m.EventIndex, &m.MarkerType, &m.Label, &description, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan marker: %w", err)
		}
		if description.Valid {
			m.Description = &description.String
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
