package db

import (
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/teranos/dataq/errors"
)

// ErrDatabaseClosed is returned when operations are attempted on a closed database,
// typically during shutdown while workers are still draining.
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed checks if an error indicates the database connection is closed.
// database/sql returns its own unexported value, so the message is matched as a fallback.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDatabaseClosed) {
		return true
	}
	return strings.Contains(err.Error(), "database is closed")
}

// IsBusy reports whether err is SQLite lock contention that outlasted the
// busy timeout. The statement can be retried as-is.
func IsBusy(err error) bool {
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return false
	}
	return serr.Code == sqlite3.ErrBusy || serr.Code == sqlite3.ErrLocked
}
