package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tickstream/src/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newSocketPair upgrades one connection through a throwaway HTTP server and
// returns both ends.
func newSocketPair(t *testing.T) (serverSide, clientSide *websocket.Conn) {
	t.Helper()

	upgraded := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		upgraded <- conn
	}))
	t.Cleanup(srv.Close)

	clientSide, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { clientSide.Close() })

	select {
	case serverSide = <-upgraded:
	case <-time.After(time.Second):
		t.Fatal("upgrade did not complete")
	}
	t.Cleanup(func() { serverSide.Close() })
	return serverSide, clientSide
}

// startViewer wires a Client onto the server side of a socket pair with its
// pumps running.
func startViewer(t *testing.T, h *Hub, heartbeat time.Duration) (viewer *Client, clientSide *websocket.Conn) {
	t.Helper()

	serverSide, clientSide := newSocketPair(t)
	viewer = &Client{
		hub:       h,
		conn:      serverSide,
		send:      make(chan []byte, 16),
		heartbeat: heartbeat,
	}
	h.register <- viewer
	go viewer.writePump()
	go viewer.readPump()
	return viewer, clientSide
}

func readFrame(t *testing.T, conn *websocket.Conn) models.MStreamMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg models.MStreamMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestPingCommandGetsPong(t *testing.T) {
	h := newTestHub(t)
	_, clientSide := startViewer(t, h, time.Hour)

	require.NoError(t, clientSide.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))

	msg := readFrame(t, clientSide)
	assert.Equal(t, models.MsgTypePong, msg.Type)
	assert.NotEmpty(t, msg.Timestamp)
}

func TestIdleViewerGetsHeartbeat(t *testing.T) {
	h := newTestHub(t)
	_, clientSide := startViewer(t, h, 50*time.Millisecond)

	msg := readFrame(t, clientSide)
	assert.Equal(t, models.MsgTypeHeartbeat, msg.Type)
	assert.NotEmpty(t, msg.Timestamp)
}

func TestHeartbeatSuppressedByTraffic(t *testing.T) {
	h := newTestHub(t)
	viewer, clientSide := startViewer(t, h, 300*time.Millisecond)

	// Keep the stream busy for a few heartbeat windows.
	stop := time.After(700 * time.Millisecond)
	for busy := true; busy; {
		select {
		case <-stop:
			busy = false
		default:
			viewer.enqueue(&models.MStreamMessage{Type: models.MsgTypeTickUpdate})
			msg := readFrame(t, clientSide)
			assert.Equal(t, models.MsgTypeTickUpdate, msg.Type)
			time.Sleep(50 * time.Millisecond)
		}
	}
}
