package storage

import (
	"database/sql"
	"os"
	"path/filepath"

	"tickstream/src/helpers"
	"tickstream/src/logger"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------
// SQLite store
// -----------------------------------------------------------------------------

// NewSQLiteStore opens (creating if needed) a sqlite database at dbPath.
func NewSQLiteStore(dbPath string, log *logger.Logger) (*SQLStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &helpers.DatabaseError{TickstreamError: helpers.TickstreamError{Message: "cannot create database directory", Cause: err}}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, &helpers.DatabaseError{TickstreamError: helpers.TickstreamError{Message: "cannot open sqlite database", Cause: err}}
	}

	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent API calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, &helpers.DatabaseError{TickstreamError: helpers.TickstreamError{Message: "cannot enable foreign keys", Cause: err}}
	}

	log.Info("SQLite store opened at %s", dbPath)
	return &SQLStore{DB: db, Logger: log, rebind: rebindQuestion}, nil
}
