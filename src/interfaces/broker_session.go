package interfaces

import (
	"context"
	"time"

	"tickstream/src/models"
)

// -----------------------------------------------------------------------------
// IBrokerSession is the authenticated connection to the brokerage REST API.
// -----------------------------------------------------------------------------

type IBrokerSession interface {

	// IsAuthenticated reports whether a usable access token is present.
	IsAuthenticated() bool

	// -----------------------------------------------------------------------------

	// LoginURL returns the broker's interactive login page for this API key.
	LoginURL() string

	// -----------------------------------------------------------------------------

	// ExchangeToken swaps a request token from the login redirect for an
	// access token and installs it on the session.
	ExchangeToken(requestToken string) (string, error)

	// -----------------------------------------------------------------------------

	// SetAccessToken installs a previously obtained access token.
	SetAccessToken(token string)

	// -----------------------------------------------------------------------------

	// InvalidateToken drops the access token and the instrument directory.
	// Used on logout and when the broker reports an auth failure.
	InvalidateToken()

	// -----------------------------------------------------------------------------

	// FeedCredentials returns the (api key, access token) pair the push feed
	// authenticates with.
	FeedCredentials() (string, string)

	// -----------------------------------------------------------------------------

	// ResolveInstrument maps (exchange, symbol) to the broker's instrument
	// token. Returns ErrInstrumentNotFound when the symbol is unknown.
	ResolveInstrument(exchange, symbol string) (int64, error)

	// -----------------------------------------------------------------------------

	// SearchInstruments returns up to limit directory entries whose symbol
	// contains query.
	SearchInstruments(exchange, query string, limit int) ([]models.MInstrument, error)

	// -----------------------------------------------------------------------------

	// HistoricalRange returns daily bars for [from, to], oldest first.
	HistoricalRange(ctx context.Context, token int64, from, to time.Time) ([]models.MDailyBar, error)

	// -----------------------------------------------------------------------------

	// Quote fetches a one-shot snapshot for an instrument. Fallback path for
	// instruments that have not pushed a tick yet.
	Quote(ctx context.Context, exchange, symbol string) (*models.MTick, error)
}
