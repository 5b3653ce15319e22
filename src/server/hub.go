package server

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"tickstream/src/logger"
	"tickstream/src/models"
)

// -----------------------------------------------------------------------------
// Hub
// -----------------------------------------------------------------------------

// Hub owns the set of connected stream viewers. Registration, removal and
// fan-out all go through its channels so the client set is only touched by
// the run loop. A viewer whose send buffer is full gets dropped rather than
// stalling the broadcast.
type Hub struct {
	Logger *logger.Logger

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	viewerCount atomic.Int64
}

// -----------------------------------------------------------------------------

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		Logger:     log,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
	}
}

// -----------------------------------------------------------------------------

// Run processes hub events until the context is cancelled. Start it once,
// in its own goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				delete(h.clients, client)
				client.closeSend()
			}
			h.viewerCount.Store(0)
			return

		case client := <-h.register:
			h.clients[client] = true
			h.viewerCount.Store(int64(len(h.clients)))
			h.Logger.Info("Viewer connected (%d total)", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closeSend()
				h.viewerCount.Store(int64(len(h.clients)))
				h.Logger.Info("Viewer disconnected (%d total)", len(h.clients))
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer; prune it.
					delete(h.clients, client)
					client.closeSend()
					h.viewerCount.Store(int64(len(h.clients)))
					h.Logger.Warning("Dropped slow viewer (%d total)", len(h.clients))
				}
			}
		}
	}
}

// -----------------------------------------------------------------------------

// Broadcast fans a message out to every connected viewer. Marshal failures
// and full hub queues are logged, never surfaced to the caller.
func (h *Hub) Broadcast(msg *models.MStreamMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.Logger.Error("Cannot marshal broadcast message: %v", err)
		return
	}

	select {
	case h.broadcast <- payload:
	default:
		h.Logger.Warning("Hub broadcast queue full; dropping %s frame", msg.Type)
	}
}

// -----------------------------------------------------------------------------

// ViewerCount returns the number of currently connected viewers.
func (h *Hub) ViewerCount() int {
	return int(h.viewerCount.Load())
}
