package models

// -----------------------------------------------------------------------------
// Outbound stream message shapes
// -----------------------------------------------------------------------------

const (
	MsgTypeInitial    = "initial_data"
	MsgTypeTickUpdate = "tick_update"
	MsgTypeHeartbeat  = "heartbeat"
	MsgTypePong       = "pong"
	MsgTypeError      = "error"
)

// MStreamMessage is one outbound frame to a viewer. Data and Watchlists are
// only populated for initial_data / tick_update frames.
type MStreamMessage struct {
	Type       string       `json:"type"`
	Data       []MAnalytics `json:"data,omitempty"`
	Watchlists []MWatchlist `json:"watchlists,omitempty"`
	Timestamp  string       `json:"timestamp,omitempty"`
	Message    string       `json:"message,omitempty"`
	Code       string       `json:"code,omitempty"`
}

// -----------------------------------------------------------------------------
// Inbound client commands
// -----------------------------------------------------------------------------

// MClientCommand is a message from a connected viewer. "ping" gets an
// immediate pong reply.
type MClientCommand struct {
	Type string `json:"type"`
}
