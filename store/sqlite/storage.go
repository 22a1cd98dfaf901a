package sqlite

import (
	"database/sql"
	"sync"
)

// Storage implements session and plan persistence over a single sqlite
// connection. Grounded on srv/sqlite/storage.go's thin wrapper struct;
// writeMu serializes writes the way the teacher's single-connection
// pattern implicitly does, made explicit here since this core's
// orchestrator issues writes from goroutines the teacher's Temporal
// activities never would concurrently (spec.md §5: "the session store
// is guarded by a per-connection write mutex").
type Storage struct {
	db      *sql.DB
	writeMu sync.Mutex
}

func NewStorage(db *sql.DB) *Storage {
	return &Storage{db: db}
}

func (s *Storage) DB() *sql.DB { return s.db }
