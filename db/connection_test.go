package db

import (
	"path/filepath"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/dataq/errors"
)

func TestOpen(t *testing.T) {
	t.Run("opens database with pragmas on every connection", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")

		db, err := Open(dbPath, zaptest.NewLogger(t).Sugar())
		require.NoError(t, err)
		defer db.Close()

		var journalMode string
		require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
		assert.Equal(t, "wal", journalMode)

		var foreignKeys int
		require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
		assert.Equal(t, 1, foreignKeys)

		var busyTimeout int
		require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
		assert.Equal(t, SQLiteBusyTimeoutMS, busyTimeout)
	})

	t.Run("returns wrapped error for invalid path", func(t *testing.T) {
		db, err := Open("/invalid/nonexistent/path/db.sqlite", nil)
		if db != nil {
			db.Close()
		}

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to open database")
	})
}

func TestIsDatabaseClosed(t *testing.T) {
	assert.False(t, IsDatabaseClosed(nil))
	assert.True(t, IsDatabaseClosed(ErrDatabaseClosed))
	assert.True(t, IsDatabaseClosed(errors.Wrap(ErrDatabaseClosed, "dequeue")))
	assert.True(t, IsDatabaseClosed(errors.New("sql: database is closed")))
	assert.False(t, IsDatabaseClosed(errors.New("database is locked")))
}

func TestIsBusy(t *testing.T) {
	assert.False(t, IsBusy(nil))
	assert.False(t, IsBusy(errors.New("database is locked")))
	assert.True(t, IsBusy(sqlite3.Error{Code: sqlite3.ErrBusy}))
	assert.True(t, IsBusy(errors.Wrap(sqlite3.Error{Code: sqlite3.ErrLocked}, "claim job")))
	assert.False(t, IsBusy(sqlite3.Error{Code: sqlite3.ErrConstraint}))
}
