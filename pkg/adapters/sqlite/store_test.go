package sqlite_test

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elvinasadov/agroflow/pkg/adapters/sqlite"
	"github.com/elvinasadov/agroflow/pkg/ports"
)

func TestSQLiteStore_Contract(t *testing.T) {
	store, err := sqlite.New(filepath.Join(t.TempDir(), "checkpoints.db"))
	require.NoError(t, err)
	defer store.Close()

	ports.RunCheckpointStoreContract(t, store)
}

func TestSQLiteStore_OpensInWALMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.db")

	store, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// WAL mode is persisted in the database file, so a plain connection
	// reports it. Anything else means the open-time pragmas were ignored.
	db, err := sql.Open("sqlite", "file:"+path)
	require.NoError(t, err)
	defer db.Close()

	var mode string
	require.NoError(t, db.QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestSQLiteStore_OpenFailure(t *testing.T) {
	// A directory path is not a usable database file.
	_, err := sqlite.New(t.TempDir())
	require.Error(t, err)
}
