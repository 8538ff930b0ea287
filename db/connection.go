package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/dataq/errors"
)

// SQLiteBusyTimeoutMS is how long a writer waits on a locked database
const SQLiteBusyTimeoutMS = 5000

// Open opens a SQLite database at the specified path with WAL journaling,
// foreign keys and a busy timeout on every pooled connection.
// If logger is provided, logs database operations; otherwise operates silently.
func Open(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	if logger != nil {
		logger.Debugw("Opening database", "path", path)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=%d&_txlock=immediate",
		path, SQLiteBusyTimeoutMS)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	// sql.Open is lazy; fail here rather than on the first query
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to open database at %s", path)
	}

	if logger != nil {
		logger.Infow("Database opened successfully",
			"path", path,
			"wal_mode", true,
			"foreign_keys", true,
		)
	}

	return db, nil
}

// OpenWithMigrations opens the database and applies pending migrations
func OpenWithMigrations(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	db, err := Open(path, logger)
	if err != nil {
		return nil, err
	}

	if err := Migrate(db, logger); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to run migrations")
	}

	return db, nil
}
