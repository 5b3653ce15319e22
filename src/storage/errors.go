package storage

import "errors"

// -----------------------------------------------------------------------------
// Storage errors
// -----------------------------------------------------------------------------

var (
	// ErrWatchlistNotFound is returned when the watchlist id does not exist.
	ErrWatchlistNotFound = errors.New("watchlist not found")

	// ErrDuplicateEntry is returned when a (symbol, exchange) pair is added
	// to a list that already contains it.
	ErrDuplicateEntry = errors.New("symbol already in watchlist")

	// ErrEntryNotFound is returned when removing a pair the list lacks.
	ErrEntryNotFound = errors.New("symbol not in watchlist")

	// ErrDefaultWatchlist is returned on attempts to delete the default
	// watchlist.
	ErrDefaultWatchlist = errors.New("default watchlist cannot be deleted")
)
