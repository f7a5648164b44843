package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestDB opens a fresh migrated database in a per-test temp dir.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "laps.db"))
	require.NoError(t, err, "NewDB")
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPragmasApplied(t *testing.T) {
	db := newTestDB(t)

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	require.Equal(t, "wal", journalMode)

	var busyTimeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	require.Equal(t, 5000, busyTimeout)

	var foreignKeys int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	require.Equal(t, 1, foreignKeys)
}

func TestMigrateUpIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.MigrateUp(), "second MigrateUp")

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	require.False(t, dirty)
	require.NotZero(t, version)
}

func TestMigrateDownRollsBackOneVersion(t *testing.T) {
	db := newTestDB(t)

	before, _, err := db.MigrateVersion()
	require.NoError(t, err)

	require.NoError(t, db.MigrateDown())
	after, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	require.False(t, dirty)
	require.Equal(t, before-1, after)

	// Back up to latest for good measure.
	require.NoError(t, db.MigrateUp())
}

func TestMigrateVersionFreshDatabase(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	defer db.Close()

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	require.False(t, dirty)
	require.Zero(t, version)
}
