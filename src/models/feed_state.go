package models

// FeedState is the connection state of the upstream feed session.
type FeedState string

const (
	FeedDisconnected    FeedState = "disconnected"
	FeedConnecting      FeedState = "connecting"
	FeedConnected       FeedState = "connected"
	FeedUnauthenticated FeedState = "unauthenticated"
)
