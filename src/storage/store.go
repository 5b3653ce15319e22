package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"tickstream/src/helpers"
	"tickstream/src/logger"
	"tickstream/src/models"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// SQLStore
// -----------------------------------------------------------------------------

// SQLStore implements watchlist persistence over database/sql. The sqlite
// and postgres constructors share this implementation; only the driver,
// placeholder style and connect sequence differ.
type SQLStore struct {
	DB     *sql.DB
	Logger *logger.Logger

	// rebind rewrites ?-style placeholders into the driver's dialect.
	rebind func(string) string
}

// -----------------------------------------------------------------------------

const schema = `
CREATE TABLE IF NOT EXISTS watchlists (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS watchlist_entries (
	watchlist_id TEXT NOT NULL REFERENCES watchlists(id) ON DELETE CASCADE,
	symbol       TEXT NOT NULL,
	exchange     TEXT NOT NULL,
	position     INTEGER NOT NULL,
	UNIQUE (watchlist_id, symbol, exchange)
);
`

// -----------------------------------------------------------------------------

// Initialize creates the schema and seeds the default watchlist.
func (s *SQLStore) Initialize() error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.DB.Exec(stmt); err != nil {
			return &helpers.DatabaseError{TickstreamError: helpers.TickstreamError{Message: "schema setup failed", Cause: err}}
		}
	}

	// Seed the default watchlist; it always exists.
	var count int
	row := s.DB.QueryRow(s.rebind(`SELECT COUNT(*) FROM watchlists WHERE id = ?`), models.DefaultWatchlistID)
	if err := row.Scan(&count); err != nil {
		return &helpers.DatabaseError{TickstreamError: helpers.TickstreamError{Message: "default watchlist lookup failed", Cause: err}}
	}
	if count == 0 {
		_, err := s.DB.Exec(s.rebind(`INSERT INTO watchlists (id, name) VALUES (?, ?)`), models.DefaultWatchlistID, "Default")
		if err != nil {
			return &helpers.DatabaseError{TickstreamError: helpers.TickstreamError{Message: "default watchlist seed failed", Cause: err}}
		}
		s.Logger.Info("Seeded default watchlist")
	}
	return nil
}

// -----------------------------------------------------------------------------

// All returns every watchlist with its ordered entries.
func (s *SQLStore) All() ([]models.MWatchlist, error) {
	rows, err := s.DB.Query(`SELECT id, name FROM watchlists ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lists []models.MWatchlist
	for rows.Next() {
		var wl models.MWatchlist
		if err := rows.Scan(&wl.ID, &wl.Name); err != nil {
			return nil, err
		}
		lists = append(lists, wl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range lists {
		entries, err := s.entries(lists[i].ID)
		if err != nil {
			return nil, err
		}
		lists[i].Symbols = entries
	}
	return lists, nil
}

// -----------------------------------------------------------------------------

// Get returns one watchlist by id.
func (s *SQLStore) Get(id string) (models.MWatchlist, error) {
	var wl models.MWatchlist
	row := s.DB.QueryRow(s.rebind(`SELECT id, name FROM watchlists WHERE id = ?`), id)
	if err := row.Scan(&wl.ID, &wl.Name); err != nil {
		if err == sql.ErrNoRows {
			return models.MWatchlist{}, ErrWatchlistNotFound
		}
		return models.MWatchlist{}, err
	}

	entries, err := s.entries(id)
	if err != nil {
		return models.MWatchlist{}, err
	}
	wl.Symbols = entries
	return wl, nil
}

// -----------------------------------------------------------------------------

// Create adds a new empty watchlist.
func (s *SQLStore) Create(name string) (models.MWatchlist, error) {
	id := uuid.NewString()[:8]
	_, err := s.DB.Exec(s.rebind(`INSERT INTO watchlists (id, name) VALUES (?, ?)`), id, name)
	if err != nil {
		return models.MWatchlist{}, err
	}
	return models.MWatchlist{ID: id, Name: name, Symbols: []models.MWatchlistEntry{}}, nil
}

// -----------------------------------------------------------------------------

// Rename changes a watchlist's display name.
func (s *SQLStore) Rename(id, name string) error {
	res, err := s.DB.Exec(s.rebind(`UPDATE watchlists SET name = ? WHERE id = ?`), name, id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// -----------------------------------------------------------------------------

// Delete removes a watchlist and its entries. The default list is protected.
func (s *SQLStore) Delete(id string) error {
	if id == models.DefaultWatchlistID {
		return ErrDefaultWatchlist
	}

	// Explicit entry delete; sqlite only honors ON DELETE CASCADE with
	// foreign keys enabled per connection.
	if _, err := s.DB.Exec(s.rebind(`DELETE FROM watchlist_entries WHERE watchlist_id = ?`), id); err != nil {
		return err
	}
	res, err := s.DB.Exec(s.rebind(`DELETE FROM watchlists WHERE id = ?`), id)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// -----------------------------------------------------------------------------

// AddEntry appends a (symbol, exchange) pair at the end of the list.
func (s *SQLStore) AddEntry(id, symbol, exchange string) (models.MWatchlist, error) {
	if _, err := s.Get(id); err != nil {
		return models.MWatchlist{}, err
	}

	var count int
	row := s.DB.QueryRow(
		s.rebind(`SELECT COUNT(*) FROM watchlist_entries WHERE watchlist_id = ? AND symbol = ? AND exchange = ?`),
		id, symbol, exchange)
	if err := row.Scan(&count); err != nil {
		return models.MWatchlist{}, err
	}
	if count > 0 {
		return models.MWatchlist{}, ErrDuplicateEntry
	}

	_, err := s.DB.Exec(
		s.rebind(`INSERT INTO watchlist_entries (watchlist_id, symbol, exchange, position)
			SELECT ?, ?, ?, COALESCE(MAX(position), 0) + 1 FROM watchlist_entries WHERE watchlist_id = ?`),
		id, symbol, exchange, id)
	if err != nil {
		return models.MWatchlist{}, err
	}
	return s.Get(id)
}

// -----------------------------------------------------------------------------

// RemoveEntry deletes a (symbol, exchange) pair from a list.
func (s *SQLStore) RemoveEntry(id, symbol, exchange string) (models.MWatchlist, error) {
	if _, err := s.Get(id); err != nil {
		return models.MWatchlist{}, err
	}

	res, err := s.DB.Exec(
		s.rebind(`DELETE FROM watchlist_entries WHERE watchlist_id = ? AND symbol = ? AND exchange = ?`),
		id, symbol, exchange)
	if err != nil {
		return models.MWatchlist{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.MWatchlist{}, err
	}
	if n == 0 {
		return models.MWatchlist{}, ErrEntryNotFound
	}
	return s.Get(id)
}

// -----------------------------------------------------------------------------

// AllEntries returns the de-duplicated union of entries across all lists.
func (s *SQLStore) AllEntries() ([]models.MWatchlistEntry, error) {
	rows, err := s.DB.Query(`SELECT DISTINCT symbol, exchange FROM watchlist_entries ORDER BY symbol, exchange`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.MWatchlistEntry
	for rows.Next() {
		var e models.MWatchlistEntry
		if err := rows.Scan(&e.Symbol, &e.Exchange); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// -----------------------------------------------------------------------------

// Close the database connection.
func (s *SQLStore) Close() error {
	return s.DB.Close()
}

// -----------------------------------------------------------------------------
// Internals
// -----------------------------------------------------------------------------

func (s *SQLStore) entries(id string) ([]models.MWatchlistEntry, error) {
	rows, err := s.DB.Query(
		s.rebind(`SELECT symbol, exchange FROM watchlist_entries WHERE watchlist_id = ? ORDER BY position`), id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.MWatchlistEntry{}
	for rows.Next() {
		var e models.MWatchlistEntry
		if err := rows.Scan(&e.Symbol, &e.Exchange); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// -----------------------------------------------------------------------------

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrWatchlistNotFound
	}
	return nil
}

// -----------------------------------------------------------------------------

// rebindQuestion is the identity rebind for drivers that take ? natively.
func rebindQuestion(q string) string { return q }

// -----------------------------------------------------------------------------

// rebindDollar rewrites ? placeholders to $1..$n for postgres.
func rebindDollar(q string) string {
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
