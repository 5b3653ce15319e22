package storage

import (
	"database/sql"
	"time"

	"tickstream/src/helpers"
	"tickstream/src/logger"

	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------
// Postgres store
// -----------------------------------------------------------------------------

// NewPostgresStore connects to postgres using a lib/pq connection string.
// The server may still be coming up when we start, so the initial ping is
// retried with backoff.
func NewPostgresStore(connString string, log *logger.Logger) (*SQLStore, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, &helpers.DatabaseError{TickstreamError: helpers.TickstreamError{Message: "cannot open postgres connection", Cause: err}}
	}

	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	_, err = helpers.RetryWithBackoff("postgres ping", 5, time.Second, func() (interface{}, error) {
		return nil, db.Ping()
	})
	if err != nil {
		db.Close()
		return nil, &helpers.DatabaseError{TickstreamError: helpers.TickstreamError{Message: "postgres unreachable", Cause: err}}
	}

	log.Info("Postgres store connected")
	return &SQLStore{DB: db, Logger: log, rebind: rebindDollar}, nil
}
