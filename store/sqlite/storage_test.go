package sqlite

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestStorage opens an in-memory database, applies every migration, and
// wraps it in a Storage. Callers get a fresh schema per test.
func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, MigrateUp(db))
	return NewStorage(db)
}

func TestOpen_InMemorySkipsFileCreation(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Ping())
}

func TestMigrateUp_IsIdempotent(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, MigrateUp(db))
	require.NoError(t, MigrateUp(db))

	var name string
	err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'sessions'`).Scan(&name)
	require.NoError(t, err)
	require.Equal(t, "sessions", name)
}

func TestStorage_DB_ReturnsUnderlyingConn(t *testing.T) {
	s := newTestStorage(t)
	var db *sql.DB = s.DB()
	require.NoError(t, db.PingContext(context.Background()))
}
