package interfaces

import (
	"context"
	"sync"

	"tickstream/src/models"
)

// -----------------------------------------------------------------------------
// ITickerFeed owns the push connection to the brokerage feed.
// -----------------------------------------------------------------------------

type ITickerFeed interface {

	// Start launches the connection watchdog.
	// ctx: controls the lifecycle (cancellation stops the feed)
	// wg: WaitGroup to signal when the feed has fully stopped
	Start(ctx context.Context, wg *sync.WaitGroup) error

	// -----------------------------------------------------------------------------

	// Subscribe asks the feed to stream the given instrument tokens. The feed
	// records them so they survive a reconnect.
	Subscribe(tokens []int64) error

	// -----------------------------------------------------------------------------

	// Unsubscribe stops streaming for the given tokens.
	Unsubscribe(tokens []int64) error

	// -----------------------------------------------------------------------------

	// State returns the current connection state.
	State() models.FeedState

	// -----------------------------------------------------------------------------

	// Ticks is the outbound channel of parsed ticks. Delivery never blocks
	// the feed; overflow ticks are dropped.
	Ticks() <-chan models.MTick

	// -----------------------------------------------------------------------------

	// MarkUnauthenticated closes the connection, clears the recorded
	// subscriptions and parks the feed until new credentials arrive.
	MarkUnauthenticated()
}
