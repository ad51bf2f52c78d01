package database

import (
	"database/sql"

	_ "modernc.org/sqlite" // SQLite driver
)

// New opens the single-file audit store in WAL mode. WAL keeps readers
// unblocked while the single writer holds the write lock, which is all
// the concurrency this service needs.
func New(dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, err
	}
	if _, err = db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, err
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate runs the SQL statements to set up the audit event schema.
// Every statement is IF NOT EXISTS so re-running it is a no-op.
func Migrate(db *sql.DB) error {
	const sqlStmt = `
	CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT NOT NULL PRIMARY KEY,
		time INTEGER NOT NULL,
		class_uid INTEGER NOT NULL,
		class_name TEXT NOT NULL,
		category_uid INTEGER NOT NULL,
		category_name TEXT NOT NULL,
		activity_id INTEGER NOT NULL,
		activity_name TEXT NOT NULL,
		severity_id INTEGER NOT NULL,
		status_id INTEGER NOT NULL,
		status_detail TEXT,
		message TEXT NOT NULL,
		actor_user TEXT,
		actor_process TEXT,
		actor_session TEXT,
		target_type TEXT,
		target_name TEXT,
		target_data TEXT,
		metadata_version TEXT NOT NULL,
		product_name TEXT NOT NULL,
		product_version TEXT NOT NULL,
		raw_data TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_events_time ON audit_events(time);
	CREATE INDEX IF NOT EXISTS idx_audit_events_category ON audit_events(category_uid);
	CREATE INDEX IF NOT EXISTS idx_audit_events_activity ON audit_events(activity_id);
	CREATE INDEX IF NOT EXISTS idx_audit_events_target ON audit_events(target_type);
	`
	_, err := db.Exec(sqlStmt)
	return err
}
