package commands

import (
	"database/sql"

	"github.com/teranos/dataq/am"
	"github.com/teranos/dataq/db"
	"github.com/teranos/dataq/errors"
	"github.com/teranos/dataq/logger"
)

// openDatabase opens and migrates the database at dbPath, or at
// database.path when dbPath is empty.
func openDatabase(cfg *am.Config, dbPath string) (*sql.DB, error) {
	if dbPath == "" {
		dbPath = cfg.Database.Path
	}
	if dbPath == "" {
		dbPath = "dataq.db"
	}

	database, err := db.Open(dbPath, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}

	if err := db.Migrate(database, logger.Logger); err != nil {
		database.Close()
		return nil, errors.Wrapf(err, "failed to run migrations on %s", dbPath)
	}

	return database, nil
}

// loadConfig loads the layered configuration and validates it
func loadConfig() (*am.Config, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithHint(
			errors.Wrap(err, "invalid configuration"),
			"run 'dataq am show' to see the merged values")
	}
	return cfg, nil
}
