package db

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestMigrateCreatesSchema(t *testing.T) {
	conn := openMemoryDB(t)

	require.NoError(t, Migrate(conn, nil))

	var name string
	err := conn.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='task_executions'",
	).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "task_executions", name)
}

func TestMigrateIsIdempotent(t *testing.T) {
	conn := openMemoryDB(t)

	require.NoError(t, Migrate(conn, nil))
	require.NoError(t, Migrate(conn, nil))

	var count int
	err := conn.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count) // 000 and 001, each recorded once
}
