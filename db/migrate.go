package db

import (
	"database/sql"
	"embed"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/dataq/errors"
)

//go:embed sqlite/migrations/*.sql
var migrations embed.FS

// migrationFiles returns the embedded migration names in apply order
func migrationFiles() ([]string, error) {
	entries, err := migrations.ReadDir("sqlite/migrations")
	if err != nil {
		return nil, errors.Wrap(err, "read migrations")
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// Migrate runs all pending migrations.
// If logger is provided, logs migration progress; otherwise operates silently.
func Migrate(db *sql.DB, logger *zap.SugaredLogger) error {
	files, err := migrationFiles()
	if err != nil {
		return err
	}

	applied := 0
	for _, filename := range files {
		version := strings.Split(filename, "_")[0]

		// schema_migrations is created by 000
		var exists bool
		err := db.QueryRow("SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)", version).Scan(&exists)
		if err != nil {
			if version != "000" || IsDatabaseClosed(err) {
				return errors.Wrapf(err, "check migration %s", filename)
			}
		} else if exists {
			if logger != nil {
				logger.Debugw("Skipping migration (already applied)", "migration", filename)
			}
			continue
		}

		sqlBytes, err := migrations.ReadFile(path.Join("sqlite/migrations", filename))
		if err != nil {
			return errors.Wrapf(err, "read %s", filename)
		}

		if logger != nil {
			logger.Infow("Applying migration", "migration", filename, "version", version)
		}

		tx, err := db.Begin()
		if err != nil {
			return errors.Wrapf(err, "begin tx for %s", filename)
		}

		if _, err := tx.Exec(string(sqlBytes)); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "execute %s", filename)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "record %s", filename)
		}

		if err := tx.Commit(); err != nil {
			return errors.Wrapf(err, "commit %s", filename)
		}
		applied++
	}

	if logger != nil {
		logger.Infow("Migrations complete",
			"total_migrations", len(files),
			"applied", applied,
		)
	}

	return nil
}

// AppliedVersions lists the migration versions recorded in schema_migrations
func AppliedVersions(db *sql.DB) ([]string, error) {
	rows, err := db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, errors.Wrap(err, "query schema_migrations")
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrap(err, "scan schema_migrations")
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}
