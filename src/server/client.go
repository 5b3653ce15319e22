package server

import (
	"encoding/json"
	"sync"
	"time"

	"tickstream/src/models"

	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Client
// -----------------------------------------------------------------------------

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Application-level heartbeat frame on an otherwise idle stream, so
	// viewers behind proxies that strip ws control frames still see traffic.
	heartbeatPeriod = 30 * time.Second

	maxMessageSize = 512
	sendBufferSize = 256
)

// Client is one connected stream viewer.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// heartbeat is the idle window before an explicit heartbeat frame.
	heartbeat time.Duration

	// closed guards send: the hub loop closes the channel on prune or
	// unregister while enqueue may fire concurrently from the initial
	// snapshot goroutine or a pong reply.
	mu     sync.Mutex
	closed bool
}

// -----------------------------------------------------------------------------

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		heartbeat: heartbeatPeriod,
	}
}

// -----------------------------------------------------------------------------

// closeSend closes the send channel exactly once. Only the hub loop calls
// it; afterwards enqueue is a no-op.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// -----------------------------------------------------------------------------

// readPump consumes inbound frames. The only client command is "ping",
// answered immediately with a pong frame; everything else is ignored.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.Logger.Debug("Viewer read error: %v", err)
			}
			return
		}

		var cmd models.MClientCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}
		if cmd.Type == "ping" {
			c.enqueue(&models.MStreamMessage{
				Type:      models.MsgTypePong,
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			})
		}
	}
}

// -----------------------------------------------------------------------------

// writePump drains the send buffer to the socket, keeps the ws ping cycle
// going, and emits a heartbeat frame when the stream has been idle.
func (c *Client) writePump() {
	pingTicker := time.NewTicker(pingPeriod)
	heartbeatTicker := time.NewTicker(c.heartbeat)
	defer func() {
		pingTicker.Stop()
		heartbeatTicker.Stop()
		c.conn.Close()
	}()

	lastSend := time.Now()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
			lastSend = time.Now()

		case <-pingTicker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-heartbeatTicker.C:
			if time.Since(lastSend) < c.heartbeat {
				continue
			}
			payload, err := json.Marshal(&models.MStreamMessage{
				Type:      models.MsgTypeHeartbeat,
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			})
			if err != nil {
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
			lastSend = time.Now()
		}
	}
}

// -----------------------------------------------------------------------------

// enqueue marshals and queues one direct message to this viewer, dropping
// it when the buffer is full or the hub has already removed the viewer.
func (c *Client) enqueue(msg *models.MStreamMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}
