// Package sqlite implements the session and plan storage of spec.md
// §4.6: a single-file embedded SQL database holding sessions, ordered
// messages, and a 1:1 plan with structured tasks. Grounded on
// srv/sqlite/client.go, storage.go and migrate.go in the teacher, which
// uses the same pure-Go modernc.org/sqlite driver and
// golang-migrate/migrate/v4 iofs-embedded migration pattern; the schema
// itself is new (sessions/messages/plans/plan_tasks rather than the
// teacher's flows/tasks/subflows) since this core's data model is
// spec.md §3's, not the teacher's task manager's.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"

	_ "modernc.org/sqlite"
)

// Open opens (creating if necessary) the sqlite database at path with
// 0600 permissions, per spec.md §6 ("the file must be considered
// private"), and enables WAL mode plus foreign keys so ON DELETE CASCADE
// actually fires (sqlite disables FK enforcement by default).
func Open(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600)
			if err != nil {
				return nil, fmt.Errorf("failed to create database file: %w", err)
			}
			f.Close()
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single-writer embedded database; one connection avoids
	// SQLITE_BUSY under concurrent writers contending for the one file.
	db.SetMaxOpenConns(1)
	return db, nil
}
