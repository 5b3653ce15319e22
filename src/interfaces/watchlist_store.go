package interfaces

import "tickstream/src/models"

// -----------------------------------------------------------------------------
// IWatchlistStore defines the contract for watchlist persistence.
// -----------------------------------------------------------------------------

type IWatchlistStore interface {

	// Initialize sets up the schema and seeds the default watchlist.
	Initialize() error

	// -----------------------------------------------------------------------------

	// All returns every watchlist with its ordered entries.
	All() ([]models.MWatchlist, error)

	// -----------------------------------------------------------------------------

	// Get returns one watchlist by id.
	Get(id string) (models.MWatchlist, error)

	// -----------------------------------------------------------------------------

	// Create adds a new empty watchlist and returns it.
	Create(name string) (models.MWatchlist, error)

	// -----------------------------------------------------------------------------

	// Rename changes a watchlist's display name.
	Rename(id, name string) error

	// -----------------------------------------------------------------------------

	// Delete removes a watchlist. The default watchlist cannot be deleted.
	Delete(id string) error

	// -----------------------------------------------------------------------------

	// AddEntry appends a (symbol, exchange) pair; duplicates within one list
	// are rejected.
	AddEntry(id, symbol, exchange string) (models.MWatchlist, error)

	// -----------------------------------------------------------------------------

	// RemoveEntry deletes a (symbol, exchange) pair from a list.
	RemoveEntry(id, symbol, exchange string) (models.MWatchlist, error)

	// -----------------------------------------------------------------------------

	// AllEntries returns the de-duplicated union of entries across all
	// watchlists. This is the core engine's only read.
	AllEntries() ([]models.MWatchlistEntry, error)

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
