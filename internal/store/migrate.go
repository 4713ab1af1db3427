package store

import "database/sql"

// runMigrations adds columns absent from older database files and
// normalizes legacy values. Ported from original_source/src/db/schema.rs's
// run_migrations: the baseline schema.sql already declares every current
// column, but a database file written before this column existed will not
// have it, so the check stays in place for upgrades in the field.
func runMigrations(db *sql.DB) error {
	hasColumn, err := columnExists(db, "sessions", "title_ai_generated")
	if err != nil {
		return err
	}
	if !hasColumn {
		if _, err := db.Exec("ALTER TABLE sessions ADD COLUMN title_ai_generated INTEGER NOT NULL DEFAULT 0"); err != nil {
			return err
		}
	}

	// Yolo mode: every project always syncs.
	if _, err := db.Exec("UPDATE projects SET auto_sync = 1 WHERE auto_sync = 0"); err != nil {
		return err
	}

	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	var count int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
