package commands

import (
	"database/sql"

	"github.com/fitbaus/fitbaus/am"
	"github.com/fitbaus/fitbaus/db"
	"github.com/fitbaus/fitbaus/errors"
	"github.com/fitbaus/fitbaus/logger"
)

// openDatabase opens and migrates the job archive at dbPath. If dbPath is
// empty, it resolves through am config. Returns the resolved path so the
// banner can display it.
func openDatabase(dbPath string) (*sql.DB, string, error) {
	if dbPath == "" {
		path, err := am.GetDatabasePath()
		if err != nil {
			return nil, "", errors.Wrap(err, "failed to get database path")
		}
		if path == "" {
			dbPath = "fitbaus.db"
		} else {
			dbPath = path
		}
	}

	database, err := db.Open(dbPath, logger.Logger)
	if err != nil {
		return nil, "", errors.Wrapf(err, "failed to open database at %s", dbPath)
	}

	if err := db.Migrate(database, logger.Logger); err != nil {
		database.Close()
		return nil, "", errors.Wrapf(err, "failed to run migrations on %s", dbPath)
	}

	return database, dbPath, nil
}
