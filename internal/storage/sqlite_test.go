package storage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "history.db")
	db, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, db.Close())
	return path
}

func TestOpenSQLiteCreatesSchema(t *testing.T) {
	path := openTemp(t)

	// Reopening an existing database must not fail on the schema.
	db, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	defer db.Close()

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE tbl_name = 'command_log' ORDER BY name`)
	require.NoError(t, err)
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		require.NoError(t, rows.Scan(&n))
		names = append(names, n)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{
		"command_log",
		"command_log_id_idx",
		"command_log_submitted_at_idx",
		"command_log_tool_state_idx",
	}, names)

	var mode string
	require.NoError(t, db.QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	assert.Equal(t, "wal", strings.ToLower(mode))

	require.NoError(t, BootstrapSQLite(context.Background(), db))
}

func TestOpenSQLiteRejectsEmptyPath(t *testing.T) {
	_, err := OpenSQLite(context.Background(), "")
	assert.ErrorContains(t, err, "sqlite path is empty")
}
