package models

// DefaultWatchlistID is the reserved watchlist that always exists and
// cannot be deleted.
const DefaultWatchlistID = "default"

// MWatchlistEntry is one (symbol, exchange) pair in a watchlist.
type MWatchlistEntry struct {
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"`
}

// MWatchlist is a named, ordered list of entries. (symbol, exchange) is
// unique within one list.
type MWatchlist struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Symbols []MWatchlistEntry `json:"symbols"`
}
